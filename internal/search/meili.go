package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxComics = "brucewnd_comics"

// Meili implements Backend via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
	logger  *slog.Logger
}

// NewMeili creates a Meilisearch client and configures the comic index. The
// client is returned even when the first health check fails; the health loop
// picks it up once the server is reachable.
func NewMeili(url, apiKey string, logger *slog.Logger) *Meili {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		done:   make(chan struct{}),
		logger: logger,
	}

	if _, err := m.client.Health(); err != nil {
		logger.Warn("meilisearch unavailable", "url", url, "error", err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxComics,
		PrimaryKey: "id",
	}); err != nil {
		m.logger.Debug("create index (may already exist)", "index", idxComics, "error", err)
	}

	index := m.client.Index(idxComics)
	filterable := []interface{}{"isPublished", "tags"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.logger.Warn("update filterable attributes", "index", idxComics, "error", err)
	}
	searchable := []string{"name", "synopsis", "tags", "authorUsername"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn("update searchable attributes", "index", idxComics, "error", err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.logger.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(_ context.Context, q Query) ([]Document, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	request := &meili.SearchRequest{
		IndexUID: idxComics,
		Query:    q.Text,
		Limit:    int64(q.Limit),
		Offset:   int64(q.Offset),
	}
	if filters := meiliFilters(q); len(filters) > 0 {
		request.Filter = filters
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{request},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	var docs []Document
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		for _, hit := range sr.Hits {
			doc, err := hitToDocument(hit)
			if err != nil {
				return nil, 0, err
			}
			docs = append(docs, doc)
		}
	}
	return docs, total, nil
}

func meiliFilters(q Query) []string {
	var filters []string
	if !q.IncludeUnpublished {
		filters = append(filters, "isPublished = true")
	}
	if q.Tag != "" {
		filters = append(filters, fmt.Sprintf("tags = %q", q.Tag))
	}
	return filters
}

func hitToDocument(hit meili.Hit) (Document, error) {
	raw, err := json.Marshal(hit)
	if err != nil {
		return Document{}, fmt.Errorf("encode hit: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("decode hit: %w", err)
	}
	return doc, nil
}

// IndexComics adds or replaces comics in the index.
func (m *Meili) IndexComics(docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	_, err := m.client.Index(idxComics).AddDocuments(docs, nil)
	return err
}

func (m *Meili) DeleteComic(id int64) error {
	_, err := m.client.Index(idxComics).DeleteDocument(strconv.FormatInt(id, 10), nil)
	return err
}
