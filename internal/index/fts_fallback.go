//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"

	"github.com/starford/sitekeeper/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses LIKE over the items table.
	return nil
}

func ftsInsert(_ *sql.Tx, _ models.Kind, _ ItemRow) error { return nil }

func ftsClear(_ *sql.Tx, _ models.Kind) error { return nil }

// Search performs a LIKE-based search (fallback when FTS5 is not compiled in).
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT kind, position, title, date, substr(value, 1, 200)
		FROM items
		WHERE title LIKE ? OR value LIKE ?
		ORDER BY kind, position
		LIMIT ?
	`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}
