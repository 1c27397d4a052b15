package index

import (
	"fmt"

	"github.com/starford/sitekeeper/internal/models"
)

// ItemRow is one indexed item. Value holds the update body or the document
// reference.
type ItemRow struct {
	Kind     models.Kind
	Position int
	Title    string
	Date     string
	Value    string
}

// SearchResult represents one search hit. Position is the item's index in
// its list at the time it was indexed.
type SearchResult struct {
	Kind     models.Kind `json:"kind"`
	Position int         `json:"index"`
	Title    string      `json:"title"`
	Date     string      `json:"date"`
	Snippet  string      `json:"snippet"`
}

// ReplaceKind swaps every row of kind for rows within one transaction.
func (db *DB) ReplaceKind(kind models.Kind, rows []ItemRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.Exec(`DELETE FROM items WHERE kind = ?`, string(kind)); err != nil {
		return fmt.Errorf("index: clear %s: %w", kind, err)
	}
	if err := ftsClear(tx, kind); err != nil {
		return err
	}

	if len(rows) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO items (kind, position, title, date, value) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare item insert: %w", err)
		}
		defer stmt.Close()
		for _, r := range rows {
			if _, err := stmt.Exec(string(kind), r.Position, r.Title, r.Date, r.Value); err != nil {
				return fmt.Errorf("index: insert item: %w", err)
			}
			if err := ftsInsert(tx, kind, r); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// Count returns the number of indexed items of kind.
func (db *DB) Count(kind models.Kind) (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM items WHERE kind = ?`, string(kind)).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}
