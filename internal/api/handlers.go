package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/sitekeeper/internal/apperr"
	"github.com/starford/sitekeeper/internal/index"
	"github.com/starford/sitekeeper/internal/itemstore"
	"github.com/starford/sitekeeper/internal/models"
	"github.com/starford/sitekeeper/internal/sse"
	"github.com/starford/sitekeeper/internal/staging"
)

const maxBodyBytes = 1 << 20

// EventPublisher receives publish outcome events. *sse.Broker satisfies it.
type EventPublisher interface {
	Publish(sse.Event)
}

// Handler holds the item, search and upload route handlers.
type Handler struct {
	store   *itemstore.Store
	idx     index.ItemIndex
	uploads *staging.Manager
	events  EventPublisher
}

// NewHandler creates a new Handler. idx and events may be nil.
func NewHandler(store *itemstore.Store, idx index.ItemIndex, uploads *staging.Manager, events EventPublisher) *Handler {
	return &Handler{store: store, idx: idx, uploads: uploads, events: events}
}

func itemIndex(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "index")
	i, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: index must be an integer: %q", apperr.ErrValidation, raw)
	}
	return i, nil
}

func decodeItem(w http.ResponseWriter, r *http.Request) (ItemRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req ItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, fmt.Errorf("%w: invalid JSON body", apperr.ErrValidation)
	}
	return req, nil
}

// fields converts a request into store input for kind. Documents are staged
// only from files already posted to /uploads; server-side paths are refused.
func (h *Handler) fields(kind models.Kind, req ItemRequest) (models.Fields, error) {
	f := models.Fields{Title: req.Title, Body: req.Body}
	if req.Source != "" {
		return f, fmt.Errorf("%w: source paths are not accepted over HTTP, post the file to /uploads and send its name as upload", apperr.ErrValidation)
	}
	if kind == models.KindDocuments {
		if req.Name != "" {
			f.Title = req.Name
		}
		if req.Upload != "" {
			p, err := h.uploads.Path(req.Upload)
			if err != nil {
				return f, err
			}
			f.Source = p
		}
	}
	return f, nil
}

// respond writes the outcome of a mutation. A publish failure still reports
// the saved change, with the failure attached.
func (h *Handler) respond(w http.ResponseWriter, op string, status int, res *itemstore.Result, err error) {
	if err != nil && (res == nil || !errors.Is(err, apperr.ErrPublish)) {
		writeError(w, op, err)
		return
	}
	out := MutationResponse{Result: res}
	if err != nil {
		out.PublishError = publishErrorInfo(err)
		slog.Warn("api: publish failed after save",
			slog.String("op", op),
			slog.String("error", err.Error()))
		h.emit(sse.Event{Type: sse.TypePublishFailed, Data: out})
	} else if res.Published {
		h.emit(sse.Event{Type: sse.TypePublishCompleted, Data: res})
	}
	writeJSON(w, status, out)
}

func (h *Handler) emit(ev sse.Event) {
	if h.events != nil {
		h.events.Publish(ev)
	}
}

// ListUpdates handles GET /api/updates.
//
//	@Summary	List site updates in document order
//	@Tags		updates
//	@Produce	json
//	@Success	200	{object}	UpdateListResponse
//	@Security	BearerAuth
//	@Router		/updates [get]
func (h *Handler) ListUpdates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, UpdateListResponse{Items: h.store.Updates()})
}

// ListDocuments handles GET /api/documents.
//
//	@Summary	List published documents in document order
//	@Tags		documents
//	@Produce	json
//	@Success	200	{object}	DocumentListResponse
//	@Security	BearerAuth
//	@Router		/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, DocumentListResponse{Items: h.store.Documents()})
}

// Create returns the POST handler for kind.
//
//	@Summary	Append an item, save the page and publish
//	@Tags		updates,documents
//	@Accept		json
//	@Produce	json
//	@Param		body	body		ItemRequest	true	"Item fields"
//	@Success	201		{object}	MutationResponse
//	@Failure	400		{object}	errResponse
//	@Failure	404		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/updates [post]
//	@Router		/documents [post]
func (h *Handler) Create(kind models.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeItem(w, r)
		if err != nil {
			writeError(w, "decode", err)
			return
		}
		f, err := h.fields(kind, req)
		if err != nil {
			writeError(w, "add "+string(kind), err)
			return
		}
		res, err := h.store.Add(r.Context(), kind, f)
		h.respond(w, "add "+string(kind), http.StatusCreated, res, err)
	}
}

// Edit returns the PUT handler for kind.
//
//	@Summary	Edit the item at index, save the page and publish
//	@Tags		updates,documents
//	@Accept		json
//	@Produce	json
//	@Param		index	path		int			true	"Zero-based position"
//	@Param		body	body		ItemRequest	true	"New fields"
//	@Success	200		{object}	MutationResponse
//	@Failure	400		{object}	errResponse
//	@Failure	404		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/updates/{index} [put]
//	@Router		/documents/{index} [put]
func (h *Handler) Edit(kind models.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i, err := itemIndex(r)
		if err != nil {
			writeError(w, "edit "+string(kind), err)
			return
		}
		req, err := decodeItem(w, r)
		if err != nil {
			writeError(w, "decode", err)
			return
		}
		f, err := h.fields(kind, req)
		if err != nil {
			writeError(w, "edit "+string(kind), err)
			return
		}
		res, err := h.store.Edit(r.Context(), kind, i, f)
		h.respond(w, "edit "+string(kind), http.StatusOK, res, err)
	}
}

// Delete returns the DELETE handler for kind.
//
//	@Summary	Delete the item at index, save the page and publish
//	@Tags		updates,documents
//	@Produce	json
//	@Param		index	path		int	true	"Zero-based position"
//	@Success	200		{object}	MutationResponse
//	@Failure	404		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/updates/{index} [delete]
//	@Router		/documents/{index} [delete]
func (h *Handler) Delete(kind models.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i, err := itemIndex(r)
		if err != nil {
			writeError(w, "delete "+string(kind), err)
			return
		}
		res, err := h.store.Delete(r.Context(), kind, i)
		h.respond(w, "delete "+string(kind), http.StatusOK, res, err)
	}
}

// Search handles GET /api/search.
//
//	@Summary	Full-text search across updates and documents
//	@Tags		search
//	@Produce	json
//	@Param		q		query		string	true	"Search query"
//	@Param		limit	query		int		false	"Max results"
//	@Success	200		{object}	SearchResponse
//	@Failure	400		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody(apperr.KindValidation, "query parameter 'q' is required"))
		return
	}
	if h.idx == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody(apperr.KindInternal, "search index unavailable"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.idx.Search(q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}
