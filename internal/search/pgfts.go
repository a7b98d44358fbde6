package search

import (
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search ranks notes with ts_rank and builds snippets with ts_headline.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	const query = `
		SELECT n.id, n.title, n.folder_id, n.kind, COALESCE(n.template_type, ''),
			ts_headline('english', n.plain_text, plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			COUNT(*) OVER() AS total
		FROM notes n
		WHERE to_tsvector('english', n.title || ' ' || n.plain_text) @@ plainto_tsquery('english', $1)
		ORDER BY ts_rank(to_tsvector('english', n.title || ' ' || n.plain_text), plainto_tsquery('english', $1)) DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := p.db.Query(query, q.Text, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts search: %w", err)
	}
	defer rows.Close()

	var results []Result
	total := 0
	for rows.Next() {
		var result Result
		if err := rows.Scan(&result.ID, &result.Title, &result.FolderID, &result.Kind,
			&result.TemplateType, &result.Snippet, &total); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, result)
	}
	return results, total, rows.Err()
}
