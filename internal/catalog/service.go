package catalog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"brucewnd/api/internal/metrics"
	"brucewnd/api/internal/search"
)

const (
	defaultMaxAttempts = 5
	defaultBackoff     = 10 * time.Millisecond
)

// Hasher is the credential capability the engine consumes.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// Index receives committed comic state and serves discovery queries. It is
// never part of a unit of work.
type Index interface {
	IndexComic(doc search.Document)
	RemoveComic(id int64)
	Search(ctx context.Context, q search.Query) (search.Response, error)
}

type Options struct {
	// MaxAttempts bounds how often one unit of work runs when it keeps
	// losing races. Values below 1 mean the default.
	MaxAttempts int
	Backoff     time.Duration
	Index       Index
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Service is the catalog consistency engine. Every exported operation runs as
// one atomic unit of work against the store.
type Service struct {
	store       Store
	hasher      Hasher
	index       Index
	metrics     *metrics.Metrics
	logger      *slog.Logger
	maxAttempts int
	backoff     time.Duration
}

func NewService(store Store, hasher Hasher, opts Options) *Service {
	s := &Service{
		store:       store,
		hasher:      hasher,
		index:       opts.Index,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
	}
	if s.maxAttempts < 1 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.backoff <= 0 {
		s.backoff = defaultBackoff
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.index == nil {
		s.index = noopIndex{}
	}
	return s
}

// unitOfWork runs fn in a fresh transaction, re-running it from scratch when
// it loses a race the store reports as retryable. fn must not keep state
// across attempts except through its return.
func (s *Service) unitOfWork(ctx context.Context, op string, fn func(context.Context, Tx) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = s.store.InTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt >= s.maxAttempts {
			break
		}
		s.metrics.UnitRetry(op)
		s.logger.DebugContext(ctx, "retrying unit of work", "op", op, "attempt", attempt, "error", err)
		if waitErr := sleep(ctx, time.Duration(attempt)*s.backoff); waitErr != nil {
			err = waitErr
			break
		}
	}

	if retryable(err) {
		s.logger.WarnContext(ctx, "unit of work retries exhausted", "op", op, "attempts", s.maxAttempts, "error", err)
	}
	err = classify(err)
	kind := string(KindOf(err))
	if kind == "" {
		kind = "internal"
	}
	s.metrics.UnitFailure(op, kind)
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Ready reports whether the backing store answers.
func (s *Service) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Search runs a discovery query. Only administrators get unpublished comics.
func (s *Service) Search(ctx context.Context, caller Caller, q search.Query) (search.Response, error) {
	q.IncludeUnpublished = caller.seesUnpublished()
	q.Tag = firstTag(q.Tag)
	return s.index.Search(ctx, q)
}

func firstTag(raw string) string {
	names := NormalizeTagNames([]string{raw})
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

type noopIndex struct{}

func (noopIndex) IndexComic(search.Document) {}
func (noopIndex) RemoveComic(int64)          {}
func (noopIndex) Search(_ context.Context, q search.Query) (search.Response, error) {
	return search.Response{Results: []search.Document{}, Query: q.Text}, errors.New("search is not configured")
}
