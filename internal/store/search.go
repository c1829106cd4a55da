package store

import (
	"context"
	"strings"

	"github.com/soyeahso/iris/internal/domain"
)

// Search finds messages matching every word of query using FTS5, best
// match first. Limit of 0 defaults to 20.
func (l *SQLiteLog) Search(ctx context.Context, query string, limit int) ([]domain.Message, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := l.db.sql.QueryContext(ctx,
		`SELECT m.session_id, m.role, m.content, m.timestamp
		 FROM messages_fts
		 JOIN messages m ON m.id = messages_fts.rowid
		 WHERE messages_fts MATCH ?
		 ORDER BY rank
		 LIMIT ?`,
		match, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

// ftsQuery quotes each word so user input never hits FTS5 query syntax.
func ftsQuery(q string) string {
	words := strings.Fields(q)
	for i, w := range words {
		words[i] = `"` + strings.ReplaceAll(w, `"`, `""`) + `"`
	}
	return strings.Join(words, " ")
}
