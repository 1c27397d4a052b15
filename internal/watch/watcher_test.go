package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/sitekeeper/internal/models"
)

type fakeStore struct {
	mu      sync.Mutex
	reloads map[models.Kind]int
}

func (f *fakeStore) File(kind models.Kind) (string, error) {
	if kind == models.KindUpdates {
		return "index.html", nil
	}
	return filepath.Join("pages", "documents.html"), nil
}

func (f *fakeStore) Reload(kind models.Kind) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads[kind]++
	return true, nil
}

func (f *fakeStore) count(kind models.Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reloads[kind]
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func startWatcher(t *testing.T) (string, *fakeStore) {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "pages"), 0o755); err != nil {
		t.Fatal(err)
	}
	store := &fakeStore{reloads: map[models.Kind]int{}}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go Watch(ctx, store, root, 50*time.Millisecond, logger)
	time.Sleep(100 * time.Millisecond)
	return root, store
}

func TestWatch_ReloadsEditedDocument(t *testing.T) {
	root, store := startWatcher(t)

	_ = os.WriteFile(filepath.Join(root, "index.html"), []byte("<div></div>"), 0o644)

	eventually(t, 5*time.Second, 25*time.Millisecond, func() bool {
		return store.count(models.KindUpdates) > 0
	}, "updates document edit did not trigger a reload")
	if store.count(models.KindDocuments) != 0 {
		t.Error("documents reloaded for an unrelated edit")
	}
}

func TestWatch_DocumentInSubdirectory(t *testing.T) {
	root, store := startWatcher(t)

	_ = os.WriteFile(filepath.Join(root, "pages", "documents.html"), []byte("x"), 0o644)

	eventually(t, 5*time.Second, 25*time.Millisecond, func() bool {
		return store.count(models.KindDocuments) > 0
	}, "documents edit did not trigger a reload")
}

func TestWatch_IgnoresOtherFiles(t *testing.T) {
	root, store := startWatcher(t)

	_ = os.WriteFile(filepath.Join(root, "style.css"), []byte("body{}"), 0o644)
	time.Sleep(300 * time.Millisecond)

	if store.count(models.KindUpdates)+store.count(models.KindDocuments) != 0 {
		t.Error("unrelated file triggered a reload")
	}
}

func TestWatch_DebouncesBursts(t *testing.T) {
	root, store := startWatcher(t)

	p := filepath.Join(root, "index.html")
	for i := 0; i < 5; i++ {
		_ = os.WriteFile(p, []byte{byte('a' + i)}, 0o644)
		time.Sleep(5 * time.Millisecond)
	}

	eventually(t, 5*time.Second, 25*time.Millisecond, func() bool {
		return store.count(models.KindUpdates) > 0
	}, "burst did not trigger a reload")
	time.Sleep(200 * time.Millisecond)
	if n := store.count(models.KindUpdates); n > 2 {
		t.Errorf("reloads = %d, want the burst coalesced", n)
	}
}
