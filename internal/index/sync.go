package index

import (
	"log/slog"
	"sync"

	"github.com/starford/sitekeeper/internal/itemstore"
	"github.com/starford/sitekeeper/internal/models"
)

// Source is the read side of the item store.
type Source interface {
	Updates() []models.UpdateItem
	Documents() []models.DocItem
}

// Sync rebuilds the index rows of kind from the store's current list.
func Sync(db ItemIndex, src Source, kind models.Kind) error {
	var rows []ItemRow
	switch kind {
	case models.KindUpdates:
		for i, u := range src.Updates() {
			rows = append(rows, ItemRow{Kind: kind, Position: i, Title: u.Title, Date: u.Date, Value: u.Body})
		}
	case models.KindDocuments:
		for i, d := range src.Documents() {
			rows = append(rows, ItemRow{Kind: kind, Position: i, Title: d.Name, Date: d.Date, Value: d.Reference})
		}
	}
	return db.ReplaceKind(kind, rows)
}

// SyncAll rebuilds both kinds.
func SyncAll(db ItemIndex, src Source) error {
	for _, k := range models.Kinds {
		if err := Sync(db, src, k); err != nil {
			return err
		}
	}
	return nil
}

// Follow keeps db in step with store: every change re-indexes the affected
// kind. Observers run outside the store lock, so syncs are serialized here
// and each one reads the store after taking the lock; the last sync always
// sees the newest list. Failures are logged; the index is rebuilt on the
// next change.
func Follow(db ItemIndex, store *itemstore.Store, logger *slog.Logger) {
	var mu sync.Mutex
	store.OnChange(func(c itemstore.Change) {
		mu.Lock()
		defer mu.Unlock()
		if err := Sync(db, store, c.Kind); err != nil {
			logger.Warn("index: sync failed",
				slog.String("kind", string(c.Kind)),
				slog.String("error", err.Error()))
			return
		}
		logger.Debug("index: synced",
			slog.String("kind", string(c.Kind)),
			slog.String("action", string(c.Action)))
	})
}
