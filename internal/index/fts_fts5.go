//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"

	"github.com/starford/sitekeeper/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS items_fts USING fts5(
			kind UNINDEXED,
			position UNINDEXED,
			date UNINDEXED,
			title,
			value,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsInsert(tx *sql.Tx, kind models.Kind, r ItemRow) error {
	_, err := tx.Exec(`INSERT INTO items_fts (kind, position, date, title, value) VALUES (?, ?, ?, ?, ?)`,
		string(kind), r.Position, r.Date, r.Title, r.Value)
	if err != nil {
		return fmt.Errorf("index: insert fts: %w", err)
	}
	return nil
}

func ftsClear(tx *sql.Tx, kind models.Kind) error {
	if _, err := tx.Exec(`DELETE FROM items_fts WHERE kind = ?`, string(kind)); err != nil {
		return fmt.Errorf("index: clear fts: %w", err)
	}
	return nil
}

// Search performs an FTS5 full-text search and returns matching results with snippets.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT kind,
		       position,
		       title,
		       date,
		       snippet(items_fts, 4, '<b>', '</b>', '...', 32)
		FROM items_fts
		WHERE items_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}
