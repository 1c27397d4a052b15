package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/sitekeeper/internal/index"
	"github.com/starford/sitekeeper/internal/itemstore"
	"github.com/starford/sitekeeper/internal/models"
	"github.com/starford/sitekeeper/internal/testutil"
)

type fakeFetcher struct {
	data []byte
	ext  string
}

func (f fakeFetcher) Fetch(context.Context, string) ([]byte, string, error) {
	return f.data, f.ext, nil
}

func testServer(t *testing.T) (*Server, string) {
	t.Helper()

	site := testutil.TestSite(t)
	store := testutil.TestStore(t, site, nil)
	db := testutil.TestDB(t)
	if err := index.SyncAll(db, store); err != nil {
		t.Fatal(err)
	}
	store.OnChange(func(c itemstore.Change) { _ = index.Sync(db, store, c.Kind) })

	return New(store, db, site.Uploads), site.Root
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no in-process call helper; dispatch to the handlers directly.
	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"list_items":       srv.listItems,
		"add_update":       srv.addUpdate,
		"edit_update":      srv.editUpdate,
		"add_document":     srv.addDocument,
		"edit_document":    srv.editDocument,
		"delete_item":      srv.deleteItem,
		"search_items":     srv.searchItems,
		"stage_upload":     srv.stageUpload,
		"get_block_format": srv.getBlockFormat,
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := h(ctx, req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestAddAndListUpdates(t *testing.T) {
	srv, root := testServer(t)

	r := callTool(t, srv, "add_update", map[string]any{"title": "Launch", "body": "We are live."})
	if r.IsError {
		t.Fatalf("add_update: %s", resultText(r))
	}
	var res itemstore.Result
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Message != "Add update" || res.Index != 0 {
		t.Errorf("result = %+v", res)
	}

	r = callTool(t, srv, "list_items", map[string]any{"kind": "updates"})
	if got := resultText(r); got != "0. Launch  [2024-02-29 18:05]" {
		t.Errorf("list = %q", got)
	}

	doc, _ := os.ReadFile(filepath.Join(root, "index.html"))
	if !strings.Contains(string(doc), "<p>We are live.</p>") {
		t.Error("update not written")
	}
}

func TestListItems_EmptyAndBadKind(t *testing.T) {
	srv, _ := testServer(t)
	if got := resultText(callTool(t, srv, "list_items", map[string]any{"kind": "documents"})); got != "no documents" {
		t.Errorf("empty list = %q", got)
	}
	r := callTool(t, srv, "list_items", map[string]any{"kind": "photos"})
	if !r.IsError || !strings.HasPrefix(resultText(r), "ValidationError") {
		t.Errorf("bad kind = %q", resultText(r))
	}
}

func TestEditUpdate_IndexError(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "edit_update", map[string]any{"index": 3, "title": "t", "body": "b"})
	if !r.IsError || !strings.HasPrefix(resultText(r), "IndexError") {
		t.Errorf("edit out of range = %q", resultText(r))
	}
}

func TestDocumentLifecycle(t *testing.T) {
	srv, root := testServer(t)
	src := filepath.Join(t.TempDir(), "plan.pdf")
	_ = os.WriteFile(src, []byte("%PDF-1.4"), 0o644)

	r := callTool(t, srv, "add_document", map[string]any{"name": "Plan", "source": src})
	if r.IsError {
		t.Fatalf("add_document: %s", resultText(r))
	}
	if _, err := os.Stat(filepath.Join(root, "uploads", "plan.pdf")); err != nil {
		t.Errorf("document not staged: %v", err)
	}

	r = callTool(t, srv, "edit_document", map[string]any{"index": 0, "name": "Plan v2"})
	if r.IsError {
		t.Fatalf("edit_document: %s", resultText(r))
	}
	docs := srv.store.Documents()
	if docs[0].Name != "Plan v2" || docs[0].Reference != "uploads/plan.pdf" {
		t.Errorf("documents = %+v", docs)
	}

	r = callTool(t, srv, "delete_item", map[string]any{"kind": "documents", "index": 0})
	if r.IsError {
		t.Fatalf("delete_item: %s", resultText(r))
	}
	if srv.store.Len(models.KindDocuments) != 0 {
		t.Error("document not deleted")
	}
}

func TestStageUploadThenAddDocument(t *testing.T) {
	srv, root := testServer(t)
	uri := "data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte("hello"))

	r := callTool(t, srv, "stage_upload", map[string]any{"url": uri, "filename": "notes.txt"})
	if r.IsError {
		t.Fatalf("stage_upload: %s", resultText(r))
	}
	var up uploadResult
	_ = json.Unmarshal([]byte(resultText(r)), &up)
	if up.Upload != "notes.txt" || up.Reference != "uploads/notes.txt" || up.Size != 5 {
		t.Errorf("upload = %+v", up)
	}
	data, _ := os.ReadFile(filepath.Join(root, "uploads", "notes.txt"))
	if string(data) != "hello" {
		t.Errorf("staged content = %q", data)
	}

	r = callTool(t, srv, "add_document", map[string]any{"name": "Notes", "upload": "notes.txt"})
	if r.IsError {
		t.Fatalf("add_document: %s", resultText(r))
	}
	if ref := srv.store.Documents()[0].Reference; ref != "uploads/notes.txt" {
		t.Errorf("reference = %q", ref)
	}
}

func TestStageUpload_FetchedAndChecked(t *testing.T) {
	srv, _ := testServer(t)
	srv.fetcher = fakeFetcher{data: []byte("not a pdf"), ext: ".pdf"}

	r := callTool(t, srv, "stage_upload", map[string]any{"url": "https://example.org/files/report.pdf"})
	if !r.IsError {
		t.Error("content mismatch should be rejected")
	}

	srv.fetcher = fakeFetcher{data: []byte("%PDF-1.4 real"), ext: ".pdf"}
	r = callTool(t, srv, "stage_upload", map[string]any{"url": "https://example.org/files/report.pdf"})
	if r.IsError {
		t.Fatalf("stage_upload: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), `"upload":"report.pdf"`) {
		t.Errorf("result = %s", resultText(r))
	}
}

func TestSearchItems(t *testing.T) {
	srv, _ := testServer(t)
	_ = callTool(t, srv, "add_update", map[string]any{"title": "Soutenance", "body": "date fixée"})

	r := callTool(t, srv, "search_items", map[string]any{"query": "Soutenance"})
	if !strings.Contains(resultText(r), `"title": "Soutenance"`) {
		t.Errorf("search = %s", resultText(r))
	}
	r = callTool(t, srv, "search_items", map[string]any{"query": "absent"})
	if resultText(r) != "no matches" {
		t.Errorf("empty search = %q", resultText(r))
	}
}

func TestBlockFormat(t *testing.T) {
	srv, _ := testServer(t)
	text := resultText(callTool(t, srv, "get_block_format", map[string]any{}))
	if !strings.Contains(text, `<div class="update">`) || !strings.Contains(text, `<div class="doc-item">`) {
		t.Error("contract missing block templates")
	}

	contents, err := srv.readBlockFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(contents) != 1 {
		t.Fatalf("resource = %v, %v", contents, err)
	}
	if tc, ok := contents[0].(mcp.TextResourceContents); !ok || tc.URI != BlockFormatURI {
		t.Errorf("resource contents = %+v", contents[0])
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"report final.pdf": "report_final.pdf",
		"../../etc/passwd": "passwd",
		"été.txt":          "_t_.txt",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
	if got := sanitizeFilename(".."); got == ".." || got == "" {
		t.Errorf("sanitizeFilename(..) = %q", got)
	}
}
