package internal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/starford/sitekeeper/internal/index"
	"github.com/starford/sitekeeper/internal/itemstore"
	"github.com/starford/sitekeeper/internal/publish"
	"github.com/starford/sitekeeper/internal/staging"
	"github.com/starford/sitekeeper/internal/storage"
)

var errConfigRequired = errors.New("config is required")

// Workspace is the wired set of components every command works with.
type Workspace struct {
	Config  *Config
	Logger  *slog.Logger
	Files   *storage.FS
	Uploads *staging.Manager
	Store   *itemstore.Store
	Index   *index.DB
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Open loads both lists from the site and brings the search index up to
// date. The index follows every later change. Call Close when done.
func Open(opts ...Option) (*Workspace, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	return open(app)
}

func open(app *application) (*Workspace, error) {
	cfg := app.config
	logger := newLogger(app.logOutput, cfg.App.LogLevel)
	slog.SetDefault(logger)

	files, err := storage.NewFS(cfg.Site.Root)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	uploads, err := staging.New(files.Root(), cfg.Site.StagingDir)
	if err != nil {
		return nil, fmt.Errorf("init staging: %w", err)
	}

	var publisher publish.Publisher = publish.Noop{}
	if cfg.Publish.Enabled {
		publisher = publish.NewGit(files.Root(),
			publish.WithBinary(cfg.Publish.GitBinary),
			publish.WithTarget(cfg.Publish.Remote, cfg.Publish.Branch),
			publish.WithLogger(logger))
	}

	store, err := itemstore.New(itemstore.Config{
		Storage:       files,
		UpdatesFile:   cfg.Site.UpdatesFile,
		DocumentsFile: cfg.Site.DocumentsFile,
		Stager:        uploads,
		Publisher:     publisher,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	if err := store.LoadAll(); err != nil {
		return nil, fmt.Errorf("load site: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}
	if err := index.SyncAll(db, store); err != nil {
		logger.Warn("initial index sync failed", slog.String("error", err.Error()))
	}
	index.Follow(db, store, logger)

	logger.Debug("workspace opened",
		slog.String("site_root", files.Root()),
		slog.Int("updates", len(store.Updates())),
		slog.Int("documents", len(store.Documents())),
		slog.Bool("publish", cfg.Publish.Enabled))

	return &Workspace{
		Config:  cfg,
		Logger:  logger,
		Files:   files,
		Uploads: uploads,
		Store:   store,
		Index:   db,
	}, nil
}

// Close releases the search index.
func (w *Workspace) Close() error {
	return w.Index.Close()
}
