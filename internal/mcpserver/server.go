// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the site lists to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/sitekeeper/internal/apperr"
	"github.com/starford/sitekeeper/internal/index"
	"github.com/starford/sitekeeper/internal/itemstore"
	"github.com/starford/sitekeeper/internal/models"
	"github.com/starford/sitekeeper/internal/staging"
)

// Server wraps the MCP server with the site tools.
type Server struct {
	mcp     *server.MCPServer
	store   *itemstore.Store
	idx     index.ItemIndex
	uploads *staging.Manager
	fetcher Fetcher
}

// New creates a new MCP server with all tools registered.
func New(store *itemstore.Store, idx index.ItemIndex, uploads *staging.Manager) *Server {
	s := &Server{store: store, idx: idx, uploads: uploads, fetcher: httpFetcher{}}

	s.mcp = server.NewMCPServer(
		"Sitekeeper",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_items",
		mcp.WithDescription("List site updates or documents with their zero-based index, title and date."),
		mcp.WithString("kind", mcp.Required(), mcp.Enum("updates", "documents"), mcp.Description("Which list to show")),
	), s.listItems)

	s.mcp.AddTool(mcp.NewTool("add_update",
		mcp.WithDescription("Append a site update dated now, save the page and publish the site."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Update title")),
		mcp.WithString("body", mcp.Required(), mcp.Description("Update text")),
	), s.addUpdate)

	s.mcp.AddTool(mcp.NewTool("edit_update",
		mcp.WithDescription("Replace the title and body of an update. The date is kept."),
		mcp.WithNumber("index", mcp.Required(), mcp.Description("Zero-based position from list_items")),
		mcp.WithString("title", mcp.Required(), mcp.Description("New title")),
		mcp.WithString("body", mcp.Required(), mcp.Description("New text")),
	), s.editUpdate)

	s.mcp.AddTool(mcp.NewTool("add_document",
		mcp.WithDescription("Stage a file or directory and append a document linking to it. "+
			"Give either source, a path on the server, or upload, a name returned by stage_upload. "+
			"Read "+BlockFormatURI+" for the block format."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Display name")),
		mcp.WithString("source", mcp.Description("Local file or directory to stage")),
		mcp.WithString("upload", mcp.Description("File name previously staged with stage_upload")),
	), s.addDocument)

	s.mcp.AddTool(mcp.NewTool("edit_document",
		mcp.WithDescription("Rename a document and optionally replace its file. "+
			"The current file is kept when source is empty or does not exist."),
		mcp.WithNumber("index", mcp.Required(), mcp.Description("Zero-based position from list_items")),
		mcp.WithString("name", mcp.Required(), mcp.Description("New display name")),
		mcp.WithString("source", mcp.Description("Replacement file or directory")),
		mcp.WithString("upload", mcp.Description("Replacement file staged with stage_upload")),
	), s.editDocument)

	s.mcp.AddTool(mcp.NewTool("delete_item",
		mcp.WithDescription("Delete an update or document, save the page and publish the site."),
		mcp.WithString("kind", mcp.Required(), mcp.Enum("updates", "documents"), mcp.Description("Which list")),
		mcp.WithNumber("index", mcp.Required(), mcp.Description("Zero-based position from list_items")),
	), s.deleteItem)

	s.mcp.AddTool(mcp.NewTool("search_items",
		mcp.WithDescription("Full-text search through update and document titles and bodies."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchItems)

	s.mcp.AddTool(mcp.NewTool("stage_upload",
		mcp.WithDescription("Save a file into the staging directory from a base64 data URI or an http(s) URL. "+
			"Pass the returned upload name to add_document."),
		mcp.WithString("url", mcp.Required(), mcp.Description("data:<mime>;base64,<data> or http(s) URL")),
		mcp.WithString("filename", mcp.Description("Optional file name; derived from the URL when empty")),
	), s.stageUpload)

	s.mcp.AddTool(mcp.NewTool("get_block_format",
		mcp.WithDescription("Returns the block format used for updates and documents."),
	), s.getBlockFormat)

	s.mcp.AddResource(
		mcp.NewResource(BlockFormatURI, "Block Format",
			mcp.WithResourceDescription("How updates and documents are stored in the site pages."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readBlockFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", apperr.KindOf(err), err))
}

type mutationText struct {
	*itemstore.Result
	PublishError string `json:"publish_error,omitempty"`
}

// mutationResult reports a store mutation. A publish failure after a save is
// not a tool error: the change is kept and the failure is described.
func mutationResult(res *itemstore.Result, err error) *mcp.CallToolResult {
	if err != nil && (res == nil || !errors.Is(err, apperr.ErrPublish)) {
		return toolError(err)
	}
	out := mutationText{Result: res}
	if err != nil {
		out.PublishError = err.Error()
	}
	data, _ := json.MarshalIndent(out, "", "  ")
	return mcp.NewToolResultText(string(data))
}

func requireKind(req mcp.CallToolRequest) (models.Kind, error) {
	raw, err := req.RequireString("kind")
	if err != nil {
		return "", err
	}
	k, err := models.ParseKind(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	return k, nil
}

// documentSource resolves the source or upload argument to a local path.
func (s *Server) documentSource(req mcp.CallToolRequest) (string, error) {
	if upload := req.GetString("upload", ""); upload != "" {
		return s.uploads.Path(upload)
	}
	return req.GetString("source", ""), nil
}

func (s *Server) listItems(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind, err := requireKind(req)
	if err != nil {
		return toolError(err), nil
	}
	lines, err := s.store.List(kind)
	if err != nil {
		return toolError(err), nil
	}
	if len(lines) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("no %s", kind)), nil
	}
	var b strings.Builder
	for i, l := range lines {
		fmt.Fprintf(&b, "%d. %s\n", i, l)
	}
	return mcp.NewToolResultText(strings.TrimSuffix(b.String(), "\n")), nil
}

func (s *Server) addUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	body, err := req.RequireString("body")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mutationResult(s.store.Add(ctx, models.KindUpdates, models.Fields{Title: title, Body: body})), nil
}

func (s *Server) editUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	i, err := req.RequireInt("index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	body, err := req.RequireString("body")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mutationResult(s.store.Edit(ctx, models.KindUpdates, i, models.Fields{Title: title, Body: body})), nil
}

func (s *Server) addDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	source, err := s.documentSource(req)
	if err != nil {
		return toolError(err), nil
	}
	return mutationResult(s.store.Add(ctx, models.KindDocuments, models.Fields{Title: name, Source: source})), nil
}

func (s *Server) editDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	i, err := req.RequireInt("index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	source, err := s.documentSource(req)
	if err != nil {
		return toolError(err), nil
	}
	return mutationResult(s.store.Edit(ctx, models.KindDocuments, i, models.Fields{Title: name, Source: source})), nil
}

func (s *Server) deleteItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind, err := requireKind(req)
	if err != nil {
		return toolError(err), nil
	}
	i, err := req.RequireInt("index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mutationResult(s.store.Delete(ctx, kind, i)), nil
}

func (s *Server) searchItems(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.idx.Search(query, 20)
	if err != nil {
		return toolError(err), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no matches"), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getBlockFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(BlockFormatContract), nil
}

func (s *Server) readBlockFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      BlockFormatURI,
			MIMEType: "text/markdown",
			Text:     BlockFormatContract,
		},
	}, nil
}
