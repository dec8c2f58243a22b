package search

import (
	"context"
	"log/slog"
	"sync"
)

// index is the Meilisearch surface the service drives.
type index interface {
	Backend
	Healthy() bool
	IndexComics(docs []Document) error
	DeleteComic(id int64) error
	Close()
}

// indexOp is one queued index write. Exactly one of its fields is set.
type indexOp struct {
	upsert  *Document
	remove  int64
	reindex Loader
	ctx     context.Context
}

const indexQueueSize = 256

// Service is the facade that tries Meilisearch first and falls back to
// Postgres. Index writes go through one queue and are applied in the order
// they were submitted.
type Service struct {
	meili    index
	postgres Backend
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
	ops    chan indexOp
	done   chan struct{}
}

// NewService creates a search service. meili may be nil if Meilisearch is not
// configured.
func NewService(meili *Meili, postgres Backend, logger *slog.Logger) *Service {
	var idx index
	if meili != nil {
		idx = meili
	}
	return newService(idx, postgres, logger)
}

func newService(idx index, postgres Backend, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{meili: idx, postgres: postgres, logger: logger, done: make(chan struct{})}
	if idx == nil {
		close(s.done)
		return s
	}
	s.ops = make(chan indexOp, indexQueueSize)
	go s.drain()
	return s
}

// Search tries Meilisearch if healthy, otherwise falls back to Postgres.
// Unpublished comics are stripped for callers that may not see them even if
// an index returned them.
func (s *Service) Search(ctx context.Context, q Query) (Response, error) {
	q = q.normalized()

	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return s.respond(q, results, total), nil
		}
		s.logger.Warn("meilisearch error, falling back to postgres", "error", err)
	}

	results, total, err := s.postgres.Search(ctx, q)
	if err != nil {
		return Response{}, err
	}
	return s.respond(q, results, total), nil
}

func (s *Service) respond(q Query, results []Document, total int) Response {
	filtered := make([]Document, 0, len(results))
	for _, doc := range results {
		if !doc.IsPublished && !q.IncludeUnpublished {
			total--
			continue
		}
		if doc.Tags == nil {
			doc.Tags = []string{}
		}
		filtered = append(filtered, doc)
	}
	if total < len(filtered) {
		total = len(filtered)
	}
	return Response{Results: filtered, Total: total, Query: q.Text}
}

// IndexComic queues an upsert of one comic.
func (s *Service) IndexComic(doc Document) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	s.enqueue(indexOp{upsert: &doc})
}

// RemoveComic queues removal of a comic from the index.
func (s *Service) RemoveComic(id int64) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	s.enqueue(indexOp{remove: id})
}

// Loader reads every comic for a full reindex.
type Loader interface {
	LoadAll(ctx context.Context) ([]Document, error)
}

// Reindex queues a full rebuild from loader. The load runs on the queue, so
// updates submitted afterwards are applied on top of it.
func (s *Service) Reindex(ctx context.Context, loader Loader) {
	if s.meili == nil || !s.meili.Healthy() || loader == nil {
		return
	}
	s.enqueue(indexOp{reindex: loader, ctx: ctx})
}

func (s *Service) enqueue(op indexOp) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ops <- op
}

func (s *Service) drain() {
	defer close(s.done)
	for op := range s.ops {
		s.apply(op)
	}
}

func (s *Service) apply(op indexOp) {
	switch {
	case op.upsert != nil:
		if err := s.meili.IndexComics([]Document{*op.upsert}); err != nil {
			s.logger.Warn("index comic failed", "comic_id", op.upsert.ID, "error", err)
		}
	case op.reindex != nil:
		docs, err := op.reindex.LoadAll(op.ctx)
		if err != nil {
			s.logger.Warn("reindex load failed", "error", err)
			return
		}
		if err := s.meili.IndexComics(docs); err != nil {
			s.logger.Warn("reindex failed", "error", err)
			return
		}
		s.logger.Info("search index rebuilt", "comics", len(docs))
	default:
		if err := s.meili.DeleteComic(op.remove); err != nil {
			s.logger.Warn("remove comic from index failed", "comic_id", op.remove, "error", err)
		}
	}
}

// Close flushes queued index writes and stops the Meilisearch client.
func (s *Service) Close() {
	s.mu.Lock()
	first := !s.closed
	if first {
		s.closed = true
		if s.ops != nil {
			close(s.ops)
		}
	}
	s.mu.Unlock()
	<-s.done
	if first && s.meili != nil {
		s.meili.Close()
	}
}
