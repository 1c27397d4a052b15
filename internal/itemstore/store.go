// Package itemstore owns the in-memory update and document lists and keeps
// the host documents in step with them.
//
// Every mutation renders the full list, merges it into the host document,
// writes the whole file, and then publishes. The lists are the source of
// truth between operations; the documents are derived from them.
package itemstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/sitekeeper/internal/apperr"
	"github.com/starford/sitekeeper/internal/checksum"
	"github.com/starford/sitekeeper/internal/codec"
	"github.com/starford/sitekeeper/internal/models"
	"github.com/starford/sitekeeper/internal/publish"
	"github.com/starford/sitekeeper/internal/storage"
)

// DateLayout is the format of generated item dates.
const DateLayout = "2006-01-02 15:04"

// Action names a store mutation.
type Action string

const (
	ActionAdd    Action = "add"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
	ActionReload Action = "reload"
)

var commitMessages = map[models.Kind]map[Action]string{
	models.KindUpdates: {
		ActionAdd:    "Add update",
		ActionEdit:   "Edit update",
		ActionDelete: "Delete update",
	},
	models.KindDocuments: {
		ActionAdd:    "Add document",
		ActionEdit:   "Edit document",
		ActionDelete: "Delete document",
	},
}

// Stager turns a local path into a reference inside the staging directory.
type Stager interface {
	Stage(source string) (string, error)
}

// Change is delivered to observers after a list changed on disk.
type Change struct {
	Kind   models.Kind
	Action Action
	Index  int
}

// Result reports a completed mutation.
type Result struct {
	Kind      models.Kind     `json:"kind"`
	Action    Action          `json:"action"`
	Index     int             `json:"index"`
	Message   string          `json:"message"`
	Published bool            `json:"published"`
	Publish   *publish.Result `json:"publish,omitempty"`
}

// Config wires a Store to its collaborators.
type Config struct {
	Storage       storage.Provider
	UpdatesFile   string
	DocumentsFile string
	Stager        Stager
	Publisher     publish.Publisher
	// Clock defaults to time.Now.
	Clock  func() time.Time
	Logger *slog.Logger
}

// Validate checks that every collaborator is present.
func (c *Config) Validate() error {
	if c.Storage == nil || c.Stager == nil || c.Publisher == nil {
		return errors.New("itemstore: storage, stager and publisher are required")
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.UpdatesFile, validation.Required),
		validation.Field(&c.DocumentsFile, validation.Required),
	)
}

type collection struct {
	schema  codec.Schema
	file    string
	records []codec.Record
	sum     string // checksum of the document last read or written; "" when absent
}

// Store holds both lists. Operations are serialized; each one runs to
// completion, publish included, before the next starts.
type Store struct {
	mu        sync.Mutex
	storage   storage.Provider
	stager    Stager
	publisher publish.Publisher
	now       func() time.Time
	logger    *slog.Logger
	cols      map[models.Kind]*collection

	obsMu     sync.RWMutex
	observers []func(Change)
}

// New creates a Store. Call LoadAll before use.
func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		storage:   cfg.Storage,
		stager:    cfg.Stager,
		publisher: cfg.Publisher,
		now:       now,
		logger:    logger,
		cols: map[models.Kind]*collection{
			models.KindUpdates:   {schema: codec.Updates, file: cfg.UpdatesFile},
			models.KindDocuments: {schema: codec.Documents, file: cfg.DocumentsFile},
		},
	}, nil
}

// OnChange registers fn to be called after every persisted mutation and
// every reload that changed a list. fn runs outside the store lock.
func (s *Store) OnChange(fn func(Change)) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = append(s.observers, fn)
}

// File returns the host document path of kind, relative to the site root.
func (s *Store) File(kind models.Kind) (string, error) {
	c, err := s.collection(kind)
	if err != nil {
		return "", err
	}
	return c.file, nil
}

// LoadAll loads both lists.
func (s *Store) LoadAll() error {
	for _, k := range models.Kinds {
		if err := s.Load(k); err != nil {
			return err
		}
	}
	return nil
}

// Load replaces the in-memory list of kind with the blocks parsed from its
// host document. A missing document yields an empty list.
func (s *Store) Load(kind models.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.collection(kind)
	if err != nil {
		return err
	}
	_, err = s.load(c)
	return err
}

// Reload re-reads the host document of kind when it differs from what the
// store last read or wrote, and reports whether the list was replaced.
func (s *Store) Reload(kind models.Kind) (bool, error) {
	s.mu.Lock()
	c, err := s.collection(kind)
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	changed, err := s.load(c)
	s.mu.Unlock()
	if err != nil || !changed {
		return false, err
	}
	s.logger.Info("itemstore: reloaded after external edit",
		slog.String("kind", string(kind)),
		slog.String("file", c.file))
	s.notify(Change{Kind: kind, Action: ActionReload, Index: -1})
	return true, nil
}

func (s *Store) load(c *collection) (bool, error) {
	data, err := s.storage.Read(c.file)
	if errors.Is(err, fs.ErrNotExist) {
		changed := c.sum != "" || len(c.records) > 0
		c.records = nil
		c.sum = ""
		return changed, nil
	}
	if err != nil {
		return false, classifyFS(fmt.Sprintf("load %s", c.file), err)
	}
	if checksum.Matches(data, c.sum) {
		return false, nil
	}
	c.records = codec.Parse(string(data), c.schema)
	c.sum = checksum.Sum(data)
	return true, nil
}

// Persist renders kind's list into its host document and writes it.
func (s *Store) Persist(kind models.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.collection(kind)
	if err != nil {
		return err
	}
	return s.persist(c)
}

func (s *Store) persist(c *collection) error {
	var doc string
	data, err := s.storage.Read(c.file)
	switch {
	case err == nil:
		doc = string(data)
	case errors.Is(err, fs.ErrNotExist):
		doc = c.schema.Skeleton()
	default:
		return classifyFS(fmt.Sprintf("persist %s", c.file), err)
	}

	out := []byte(codec.Merge(doc, codec.Render(c.records, c.schema), c.schema))
	if err := s.storage.Write(c.file, out); err != nil {
		return classifyFS(fmt.Sprintf("persist %s", c.file), err)
	}
	c.sum = checksum.Sum(out)
	return nil
}

// Add appends a new item dated now, persists and publishes it.
// Documents stage Fields.Source first; a staging failure leaves the list
// untouched.
func (s *Store) Add(ctx context.Context, kind models.Kind, f models.Fields) (*Result, error) {
	s.mu.Lock()
	res, err := s.add(ctx, kind, f)
	s.mu.Unlock()
	s.notifyResult(res)
	return res, err
}

func (s *Store) add(ctx context.Context, kind models.Kind, f models.Fields) (*Result, error) {
	c, err := s.collection(kind)
	if err != nil {
		return nil, err
	}
	f = trimFields(f)
	if err := validateFields(kind, f, true); err != nil {
		return nil, err
	}

	rec := codec.Record{Title: f.Title, Date: s.now().Format(DateLayout)}
	switch kind {
	case models.KindUpdates:
		rec.Value = f.Body
	case models.KindDocuments:
		ref, err := s.stager.Stage(f.Source)
		if err != nil {
			return nil, fmt.Errorf("add document: %w", err)
		}
		rec.Value = ref
	}

	next := append(slices.Clone(c.records), rec)
	if err := s.commit(c, next); err != nil {
		return nil, err
	}
	return s.publish(ctx, kind, ActionAdd, len(next)-1)
}

// Edit changes the item at index. Updates take a new title and body and keep
// their date. Documents take a new name; Source is staged only when it names
// an existing path other than the current reference, otherwise the previous
// reference is kept.
func (s *Store) Edit(ctx context.Context, kind models.Kind, index int, f models.Fields) (*Result, error) {
	s.mu.Lock()
	res, err := s.edit(ctx, kind, index, f)
	s.mu.Unlock()
	s.notifyResult(res)
	return res, err
}

func (s *Store) edit(ctx context.Context, kind models.Kind, index int, f models.Fields) (*Result, error) {
	c, err := s.collection(kind)
	if err != nil {
		return nil, err
	}
	if err := checkIndex(c, index); err != nil {
		return nil, err
	}
	f = trimFields(f)
	if err := validateFields(kind, f, false); err != nil {
		return nil, err
	}

	rec := c.records[index]
	rec.Title = f.Title
	switch kind {
	case models.KindUpdates:
		rec.Value = f.Body
	case models.KindDocuments:
		ref, err := s.restage(rec.Value, f.Source)
		if err != nil {
			return nil, fmt.Errorf("edit document: %w", err)
		}
		rec.Value = ref
	}

	next := slices.Clone(c.records)
	next[index] = rec
	if err := s.commit(c, next); err != nil {
		return nil, err
	}
	return s.publish(ctx, kind, ActionEdit, index)
}

func (s *Store) restage(current, source string) (string, error) {
	if source == "" || source == current {
		return current, nil
	}
	if _, err := os.Stat(source); err != nil {
		s.logger.Debug("itemstore: source not found, keeping reference",
			slog.String("source", source),
			slog.String("reference", current))
		return current, nil
	}
	return s.stager.Stage(source)
}

// Delete removes the item at index, persists and publishes.
func (s *Store) Delete(ctx context.Context, kind models.Kind, index int) (*Result, error) {
	s.mu.Lock()
	res, err := s.delete(ctx, kind, index)
	s.mu.Unlock()
	s.notifyResult(res)
	return res, err
}

func (s *Store) delete(ctx context.Context, kind models.Kind, index int) (*Result, error) {
	c, err := s.collection(kind)
	if err != nil {
		return nil, err
	}
	if err := checkIndex(c, index); err != nil {
		return nil, err
	}
	next := slices.Delete(slices.Clone(c.records), index, index+1)
	if err := s.commit(c, next); err != nil {
		return nil, err
	}
	return s.publish(ctx, kind, ActionDelete, index)
}

// commit swaps in next and persists it; a failed write restores the
// previous list so memory and disk agree.
func (s *Store) commit(c *collection, next []codec.Record) error {
	prev := c.records
	c.records = next
	if err := s.persist(c); err != nil {
		c.records = prev
		return err
	}
	return nil
}

func (s *Store) publish(ctx context.Context, kind models.Kind, action Action, index int) (*Result, error) {
	msg := commitMessages[kind][action]
	res := &Result{Kind: kind, Action: action, Index: index, Message: msg}

	s.logger.Info("itemstore: saved",
		slog.String("kind", string(kind)),
		slog.String("action", string(action)),
		slog.Int("index", index))

	pub, err := s.publisher.Publish(ctx, msg)
	res.Publish = pub
	if err != nil {
		return res, err
	}
	res.Published = pub != nil && !pub.Skipped
	return res, nil
}

// List returns the display strings of kind's items.
func (s *Store) List(kind models.Kind) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.collection(kind)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(c.records))
	for i, r := range c.records {
		switch kind {
		case models.KindUpdates:
			out[i] = toUpdate(r).String()
		case models.KindDocuments:
			out[i] = toDoc(r).String()
		}
	}
	return out, nil
}

// Len returns the number of items of kind.
func (s *Store) Len(kind models.Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cols[kind]; ok {
		return len(c.records)
	}
	return 0
}

// Updates returns a snapshot of the update list.
func (s *Store) Updates() []models.UpdateItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.cols[models.KindUpdates].records
	out := make([]models.UpdateItem, len(recs))
	for i, r := range recs {
		out[i] = toUpdate(r)
	}
	return out
}

// Documents returns a snapshot of the document list.
func (s *Store) Documents() []models.DocItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.cols[models.KindDocuments].records
	out := make([]models.DocItem, len(recs))
	for i, r := range recs {
		out[i] = toDoc(r)
	}
	return out
}

func (s *Store) collection(kind models.Kind) (*collection, error) {
	c, ok := s.cols[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", apperr.ErrValidation, kind)
	}
	return c, nil
}

func (s *Store) notifyResult(res *Result) {
	if res == nil {
		return
	}
	s.notify(Change{Kind: res.Kind, Action: res.Action, Index: res.Index})
}

func (s *Store) notify(ch Change) {
	s.obsMu.RLock()
	observers := slices.Clone(s.observers)
	s.obsMu.RUnlock()
	for _, fn := range observers {
		fn(ch)
	}
}

func checkIndex(c *collection, index int) error {
	if index < 0 || index >= len(c.records) {
		return fmt.Errorf("%w: %d (have %d items)", apperr.ErrIndex, index, len(c.records))
	}
	return nil
}

func trimFields(f models.Fields) models.Fields {
	return models.Fields{
		Title:  strings.TrimSpace(f.Title),
		Body:   strings.TrimSpace(f.Body),
		Source: strings.TrimSpace(f.Source),
	}
}

func validateFields(kind models.Kind, f models.Fields, adding bool) error {
	rules := []*validation.FieldRules{
		validation.Field(&f.Title, validation.Required),
	}
	switch {
	case kind == models.KindUpdates:
		rules = append(rules, validation.Field(&f.Body, validation.Required))
	case adding:
		rules = append(rules, validation.Field(&f.Source, validation.Required))
	}
	if err := validation.ValidateStruct(&f, rules...); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	return nil
}

func classifyFS(op string, err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%s: %w: %w", op, apperr.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func toUpdate(r codec.Record) models.UpdateItem {
	return models.UpdateItem{Title: r.Title, Date: r.Date, Body: r.Value}
}

func toDoc(r codec.Record) models.DocItem {
	return models.DocItem{Name: r.Title, Date: r.Date, Reference: r.Value}
}
