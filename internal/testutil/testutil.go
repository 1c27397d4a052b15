// Package testutil provides shared test helpers for setting up sites and databases.
package testutil

import (
	"os"
	"testing"
	"time"

	"github.com/starford/sitekeeper/internal/index"
	"github.com/starford/sitekeeper/internal/itemstore"
	"github.com/starford/sitekeeper/internal/publish"
	"github.com/starford/sitekeeper/internal/staging"
	"github.com/starford/sitekeeper/internal/storage"
)

// FixedNow is the clock used by TestStore.
var FixedNow = time.Date(2024, 2, 29, 18, 5, 0, 0, time.UTC)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "sitekeeper-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Site is a temporary site working copy.
type Site struct {
	Root    string
	Files   *storage.FS
	Uploads *staging.Manager
}

// TestSite creates an empty site directory with an "uploads" staging area.
func TestSite(t *testing.T) *Site {
	t.Helper()
	root := t.TempDir()
	files, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	uploads, err := staging.New(root, "uploads")
	if err != nil {
		t.Fatal(err)
	}
	return &Site{Root: root, Files: files, Uploads: uploads}
}

// TestStore loads a store over site with the default page names and
// FixedNow as its clock. A nil publisher means publishing is disabled.
func TestStore(t *testing.T, site *Site, pub publish.Publisher) *itemstore.Store {
	t.Helper()
	if pub == nil {
		pub = publish.Noop{}
	}
	store, err := itemstore.New(itemstore.Config{
		Storage:       site.Files,
		UpdatesFile:   "index.html",
		DocumentsFile: "documents.html",
		Stager:        site.Uploads,
		Publisher:     pub,
		Clock:         func() time.Time { return FixedNow },
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.LoadAll(); err != nil {
		t.Fatal(err)
	}
	return store
}
