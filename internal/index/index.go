package index

import "github.com/starford/sitekeeper/internal/models"

// ItemIndex defines the search index operations used by the command
// interfaces. Consumers depend on it rather than on *DB so tests can stub it.
type ItemIndex interface {
	ReplaceKind(kind models.Kind, rows []ItemRow) error
	Search(query string, limit int) ([]SearchResult, error)
	Count(kind models.Kind) (int, error)
	Close() error
}

// Verify *DB satisfies ItemIndex at compile time.
var _ ItemIndex = (*DB)(nil)
