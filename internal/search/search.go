package search

import (
	"context"
	"strings"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Document is the searchable projection of one comic.
type Document struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	Synopsis       string   `json:"synopsis"`
	CoverImage     *string  `json:"coverImage"`
	IsPublished    bool     `json:"isPublished"`
	AuthorUsername string   `json:"authorUsername"`
	Tags           []string `json:"tags"`
}

// Query describes a search request. Tag is a canonical tag name; empty means
// any tag.
type Query struct {
	Text               string
	Tag                string
	IncludeUnpublished bool
	Limit              int
	Offset             int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Document `json:"results"`
	Total   int        `json:"total"`
	Query   string     `json:"query"`
}

// Backend executes a search against one index.
type Backend interface {
	Search(ctx context.Context, q Query) ([]Document, int, error)
}

func (q Query) normalized() Query {
	q.Text = strings.TrimSpace(q.Text)
	q.Tag = strings.ToLower(strings.TrimSpace(q.Tag))
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}
