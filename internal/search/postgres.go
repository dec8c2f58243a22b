package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// Postgres implements Backend with pattern matching over the catalog tables.
// It is the fallback whenever Meilisearch is absent or unhealthy.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const selectDocument = `
	SELECT c.id, c.name, c.synopsis, c.cover_image, c.is_published, u.username,
		COALESCE((
			SELECT json_agg(t.name ORDER BY t.name)
			FROM comic_tags ct JOIN tags t ON t.id = ct.tag_id
			WHERE ct.comic_id = c.id
		), '[]'::json)::text
	FROM comics c
	JOIN users u ON u.id = c.author_id`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// whereClause builds the filter for q and its positional arguments.
func whereClause(q Query) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if q.Text != "" {
		args = append(args, "%"+likeEscaper.Replace(q.Text)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(`(c.name ILIKE $%d OR c.synopsis ILIKE $%d OR u.username ILIKE $%d)`, n, n, n))
	}
	if q.Tag != "" {
		args = append(args, q.Tag)
		conds = append(conds, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM comic_tags ct JOIN tags t ON t.id = ct.tag_id
			WHERE ct.comic_id = c.id AND t.name = $%d)`, len(args)))
	}
	if !q.IncludeUnpublished {
		conds = append(conds, `c.is_published`)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (p *Postgres) Search(ctx context.Context, q Query) ([]Document, int, error) {
	q = q.normalized()
	where, args := whereClause(q)

	var total int
	countSQL := `SELECT count(*) FROM comics c JOIN users u ON u.id = c.author_id` + where
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("search count: %w", err)
	}

	dataSQL := fmt.Sprintf(`%s%s ORDER BY lower(c.name), c.id LIMIT %d OFFSET %d`, selectDocument, where, q.Limit, q.Offset)
	docs, err := p.query(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// LoadAll returns every comic for a full reindex.
func (p *Postgres) LoadAll(ctx context.Context) ([]Document, error) {
	return p.query(ctx, selectDocument+` ORDER BY c.id`)
}

func (p *Postgres) query(ctx context.Context, query string, args ...any) ([]Document, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	docs := make([]Document, 0)
	for rows.Next() {
		var (
			doc   Document
			cover sql.NullString
			tags  string
		)
		if err := rows.Scan(&doc.ID, &doc.Name, &doc.Synopsis, &cover, &doc.IsPublished, &doc.AuthorUsername, &tags); err != nil {
			return nil, fmt.Errorf("search scan: %w", err)
		}
		if cover.Valid {
			doc.CoverImage = &cover.String
		}
		if err := json.Unmarshal([]byte(tags), &doc.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search iterate: %w", err)
	}
	return docs, nil
}
