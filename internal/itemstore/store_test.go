package itemstore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/sitekeeper/internal/apperr"
	"github.com/starford/sitekeeper/internal/codec"
	"github.com/starford/sitekeeper/internal/models"
	"github.com/starford/sitekeeper/internal/publish"
	"github.com/starford/sitekeeper/internal/staging"
	"github.com/starford/sitekeeper/internal/storage"
)

type fakePublisher struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, message string) (*publish.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, message)
	if p.err != nil {
		return &publish.Result{Message: message}, p.err
	}
	return &publish.Result{Message: message}, nil
}

// failingWrites wraps a provider and rejects every write once armed.
type failingWrites struct {
	storage.Provider
	fail bool
}

func (f *failingWrites) Write(path string, content []byte) error {
	if f.fail {
		return &fs.PathError{Op: "write", Path: path, Err: fs.ErrPermission}
	}
	return f.Provider.Write(path, content)
}

type fixture struct {
	root  string
	store *Store
	pub   *fakePublisher
	fs    *failingWrites
}

var fixedNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	fsys, err := storage.NewFS(root)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	stager, err := staging.New(root, "uploads")
	if err != nil {
		t.Fatalf("staging.New: %v", err)
	}
	wrapped := &failingWrites{Provider: fsys}
	pub := &fakePublisher{}
	s, err := New(Config{
		Storage:       wrapped,
		UpdatesFile:   "index.html",
		DocumentsFile: "documents.html",
		Stager:        stager,
		Publisher:     pub,
		Clock:         func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	return &fixture{root: root, store: s, pub: pub, fs: wrapped}
}

func (f *fixture) read(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.root, name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(data)
}

func (f *fixture) source(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Config{UpdatesFile: "a", DocumentsFile: "b"}); err == nil {
		t.Error("expected error without storage, stager and publisher")
	}
}

func TestLoad_MissingDocumentIsEmpty(t *testing.T) {
	f := newFixture(t)
	if n := f.store.Len(models.KindUpdates); n != 0 {
		t.Errorf("len = %d, want 0", n)
	}
	if _, err := os.Stat(filepath.Join(f.root, "index.html")); !os.IsNotExist(err) {
		t.Error("loading must not create the document")
	}
}

func TestAddUpdate_CreatesSkeletonAndPublishes(t *testing.T) {
	f := newFixture(t)
	res, err := f.store.Add(context.Background(), models.KindUpdates, models.Fields{Title: " Launch ", Body: "We are live."})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if res.Index != 0 || res.Message != "Add update" || !res.Published {
		t.Errorf("result = %+v", res)
	}

	doc := f.read(t, "index.html")
	if !strings.Contains(doc, codec.UpdatesMarker) {
		t.Error("skeleton marker missing")
	}
	if !strings.Contains(doc, "<strong>Launch</strong>") || !strings.Contains(doc, "<em>2024-03-01 09:30</em>") {
		t.Errorf("rendered block missing:\n%s", doc)
	}

	got := f.store.Updates()
	want := models.UpdateItem{Title: "Launch", Date: "2024-03-01 09:30", Body: "We are live."}
	if len(got) != 1 || got[0] != want {
		t.Errorf("updates = %+v", got)
	}
	if len(f.pub.messages) != 1 || f.pub.messages[0] != "Add update" {
		t.Errorf("published = %v", f.pub.messages)
	}
}

func TestAdd_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := []struct {
		kind models.Kind
		in   models.Fields
	}{
		{models.KindUpdates, models.Fields{Title: "", Body: "b"}},
		{models.KindUpdates, models.Fields{Title: "t", Body: "   "}},
		{models.KindDocuments, models.Fields{Title: "t"}},
		{models.KindDocuments, models.Fields{Source: "/tmp/x"}},
	}
	for _, c := range cases {
		_, err := f.store.Add(ctx, c.kind, c.in)
		if !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("%s %+v: err = %v, want ErrValidation", c.kind, c.in, err)
		}
	}
	if len(f.pub.messages) != 0 {
		t.Error("nothing should be published on validation errors")
	}
	if _, err := os.Stat(filepath.Join(f.root, "index.html")); !os.IsNotExist(err) {
		t.Error("validation errors must not touch the disk")
	}
}

func TestAddDocument_StagesSource(t *testing.T) {
	f := newFixture(t)
	src := f.source(t, "report.pdf", "pdf")
	res, err := f.store.Add(context.Background(), models.KindDocuments, models.Fields{Title: "Report", Source: src})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if res.Message != "Add document" {
		t.Errorf("message = %q", res.Message)
	}
	docs := f.store.Documents()
	if len(docs) != 1 || docs[0].Reference != "uploads/report.pdf" {
		t.Fatalf("documents = %+v", docs)
	}
	if _, err := os.Stat(filepath.Join(f.root, "uploads", "report.pdf")); err != nil {
		t.Errorf("staged copy missing: %v", err)
	}
	if !strings.Contains(f.read(t, "documents.html"), `href="uploads/report.pdf"`) {
		t.Error("document link not rendered")
	}
}

func TestAddDocument_MissingSource(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.Add(context.Background(), models.KindDocuments,
		models.Fields{Title: "Ghost", Source: filepath.Join(t.TempDir(), "ghost.pdf")})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if f.store.Len(models.KindDocuments) != 0 {
		t.Error("list changed after staging failure")
	}
}

func TestEditUpdate_KeepsDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.store.Add(ctx, models.KindUpdates, models.Fields{Title: "a", Body: "b"}); err != nil {
		t.Fatal(err)
	}
	f.store.now = func() time.Time { return fixedNow.Add(48 * time.Hour) }

	res, err := f.store.Edit(ctx, models.KindUpdates, 0, models.Fields{Title: "a2", Body: "b2"})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if res.Message != "Edit update" {
		t.Errorf("message = %q", res.Message)
	}
	got := f.store.Updates()[0]
	if got.Title != "a2" || got.Body != "b2" || got.Date != "2024-03-01 09:30" {
		t.Errorf("edited = %+v", got)
	}
}

func TestEditDocument_ReferenceRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src := f.source(t, "v1.pdf", "one")
	if _, err := f.store.Add(ctx, models.KindDocuments, models.Fields{Title: "Doc", Source: src}); err != nil {
		t.Fatal(err)
	}

	// Empty and missing sources keep the reference.
	for _, source := range []string{"", filepath.Join(t.TempDir(), "nope.pdf"), "uploads/v1.pdf"} {
		if _, err := f.store.Edit(ctx, models.KindDocuments, 0, models.Fields{Title: "Doc", Source: source}); err != nil {
			t.Fatalf("Edit(%q): %v", source, err)
		}
		if ref := f.store.Documents()[0].Reference; ref != "uploads/v1.pdf" {
			t.Errorf("source %q: reference = %q", source, ref)
		}
	}

	v2 := f.source(t, "v2.pdf", "two")
	if _, err := f.store.Edit(ctx, models.KindDocuments, 0, models.Fields{Title: "Doc v2", Source: v2}); err != nil {
		t.Fatal(err)
	}
	d := f.store.Documents()[0]
	if d.Name != "Doc v2" || d.Reference != "uploads/v2.pdf" {
		t.Errorf("after restage = %+v", d)
	}
}

func TestEditDelete_IndexErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.store.Add(ctx, models.KindUpdates, models.Fields{Title: "a", Body: "b"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.Add(ctx, models.KindUpdates, models.Fields{Title: "c", Body: "d"}); err != nil {
		t.Fatal(err)
	}
	before := f.store.Updates()
	page := filepath.Join(f.root, "index.html")
	pageBefore, err := os.ReadFile(page)
	if err != nil {
		t.Fatal(err)
	}

	for _, idx := range []int{-1, 2, 5} {
		if _, err := f.store.Edit(ctx, models.KindUpdates, idx, models.Fields{Title: "x", Body: "y"}); !errors.Is(err, apperr.ErrIndex) {
			t.Errorf("Edit(%d): err = %v", idx, err)
		}
		if _, err := f.store.Delete(ctx, models.KindUpdates, idx); !errors.Is(err, apperr.ErrIndex) {
			t.Errorf("Delete(%d): err = %v", idx, err)
		}
	}
	if len(f.pub.messages) != 2 {
		t.Errorf("published = %v", f.pub.messages)
	}
	if !slices.Equal(f.store.Updates(), before) {
		t.Errorf("updates changed: %+v, want %+v", f.store.Updates(), before)
	}
	pageAfter, err := os.ReadFile(page)
	if err != nil {
		t.Fatal(err)
	}
	if string(pageAfter) != string(pageBefore) {
		t.Errorf("page rewritten after failed calls:\n%s", pageAfter)
	}
}

func TestDelete_RemovesBlockAndPublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, title := range []string{"one", "two", "three"} {
		if _, err := f.store.Add(ctx, models.KindUpdates, models.Fields{Title: title, Body: "b"}); err != nil {
			t.Fatal(err)
		}
	}
	res, err := f.store.Delete(ctx, models.KindUpdates, 1)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if res.Message != "Delete update" {
		t.Errorf("message = %q", res.Message)
	}
	doc := f.read(t, "index.html")
	if strings.Contains(doc, "<strong>two</strong>") {
		t.Error("deleted block still rendered")
	}
	if strings.Count(doc, codec.Updates.OpenTag()) != 2 {
		t.Errorf("expected two blocks:\n%s", doc)
	}
	list, _ := f.store.List(models.KindUpdates)
	if len(list) != 2 || !strings.HasPrefix(list[1], "three") {
		t.Errorf("list = %v", list)
	}
}

func TestPersist_RollsBackOnWriteFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.store.Add(ctx, models.KindUpdates, models.Fields{Title: "kept", Body: "b"}); err != nil {
		t.Fatal(err)
	}
	before := f.read(t, "index.html")

	f.fs.fail = true
	_, err := f.store.Add(ctx, models.KindUpdates, models.Fields{Title: "lost", Body: "b"})
	if !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
	if n := f.store.Len(models.KindUpdates); n != 1 {
		t.Errorf("len = %d after failed write, want 1", n)
	}
	if after := f.read(t, "index.html"); after != before {
		t.Error("document changed after failed write")
	}
	if len(f.pub.messages) != 1 {
		t.Errorf("published = %v", f.pub.messages)
	}
}

func TestPublishFailure_KeepsChange(t *testing.T) {
	f := newFixture(t)
	f.pub.err = &apperr.PublishError{Step: "git push", Err: errors.New("exit status 1")}
	res, err := f.store.Add(context.Background(), models.KindUpdates, models.Fields{Title: "t", Body: "b"})
	if !errors.Is(err, apperr.ErrPublish) {
		t.Fatalf("err = %v, want ErrPublish", err)
	}
	if res == nil || res.Published || res.Index != 0 {
		t.Errorf("result = %+v", res)
	}
	if f.store.Len(models.KindUpdates) != 1 {
		t.Error("the saved change must survive a publish failure")
	}
	if !strings.Contains(f.read(t, "index.html"), "<strong>t</strong>") {
		t.Error("document not written")
	}
}

func TestPersist_PreservesSurroundingMarkup(t *testing.T) {
	f := newFixture(t)
	host := "<html><body><h1>Nouvelles</h1>\n<div class=\"container\">" + codec.UpdatesMarker +
		"\n    <div class=\"update\">\n      <strong>old</strong>\n      <em>d</em>\n      <p>x</p>\n    </div>\n" +
		"</div>\n<footer>pied</footer></body></html>\n"
	if err := os.WriteFile(filepath.Join(f.root, "index.html"), []byte(host), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := f.store.Load(models.KindUpdates); err != nil {
		t.Fatal(err)
	}
	if err := f.store.Persist(models.KindUpdates); err != nil {
		t.Fatal(err)
	}
	if got := f.read(t, "index.html"); got != host {
		t.Errorf("persist without change altered the document:\n%q\n%q", host, got)
	}
}

func TestReload_IgnoresOwnWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.store.Add(ctx, models.KindUpdates, models.Fields{Title: "a", Body: "b"}); err != nil {
		t.Fatal(err)
	}
	changed, err := f.store.Reload(models.KindUpdates)
	if err != nil || changed {
		t.Errorf("Reload after own write = %v, %v", changed, err)
	}

	doc := f.read(t, "index.html")
	doc = strings.Replace(doc, "<strong>a</strong>", "<strong>edited by hand</strong>", 1)
	if err := os.WriteFile(filepath.Join(f.root, "index.html"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	var seen []Change
	f.store.OnChange(func(c Change) { seen = append(seen, c) })
	changed, err = f.store.Reload(models.KindUpdates)
	if err != nil || !changed {
		t.Fatalf("Reload after external edit = %v, %v", changed, err)
	}
	if f.store.Updates()[0].Title != "edited by hand" {
		t.Errorf("updates = %+v", f.store.Updates())
	}
	if len(seen) != 1 || seen[0].Action != ActionReload {
		t.Errorf("changes = %+v", seen)
	}
}

func TestOnChange_CalledOutsideLock(t *testing.T) {
	f := newFixture(t)
	var counts []int
	f.store.OnChange(func(c Change) {
		counts = append(counts, len(f.store.Updates()))
	})
	ctx := context.Background()
	if _, err := f.store.Add(ctx, models.KindUpdates, models.Fields{Title: "a", Body: "b"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.Delete(ctx, models.KindUpdates, 0); err != nil {
		t.Fatal(err)
	}
	if len(counts) != 2 || counts[0] != 1 || counts[1] != 0 {
		t.Errorf("observer saw %v", counts)
	}
}

func TestRoundTripThroughDisk(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	titles := []string{"x", "x", "y"}
	for _, title := range titles {
		if _, err := f.store.Add(ctx, models.KindUpdates, models.Fields{Title: title, Body: "body " + title}); err != nil {
			t.Fatal(err)
		}
	}
	want := f.store.Updates()

	fresh, err := New(Config{
		Storage:       f.fs,
		UpdatesFile:   "index.html",
		DocumentsFile: "documents.html",
		Stager:        f.store.stager,
		Publisher:     publish.Noop{},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := fresh.LoadAll(); err != nil {
		t.Fatal(err)
	}
	got := fresh.Updates()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestUnknownKind(t *testing.T) {
	f := newFixture(t)
	if _, err := f.store.List(models.Kind("photos")); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("err = %v", err)
	}
}
