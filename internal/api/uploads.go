package api

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"

	"github.com/go-chi/chi/v5"

	"github.com/starford/sitekeeper/internal/apperr"
)

const maxUploadBytes = 50 << 20 // 50 MB

// Upload handles POST /api/uploads (multipart/form-data, field "file").
// The file lands in the staging directory; pass its name as "upload" when
// adding a document.
//
//	@Summary	Upload a file into the staging directory
//	@Tags		uploads
//	@Accept		multipart/form-data
//	@Produce	json
//	@Param		file	formData	file	true	"File to stage"
//	@Success	201		{object}	UploadResponse
//	@Failure	400		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/uploads [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(apperr.KindValidation, "file too large or invalid multipart"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(apperr.KindValidation, "missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	ref, n, err := h.uploads.StageReader(header.Filename, file)
	if err != nil {
		writeError(w, "upload", err)
		return
	}
	name := path.Base(ref)
	writeJSON(w, http.StatusCreated, UploadResponse{
		Filename:  name,
		Reference: ref,
		Size:      n,
		URL:       "/api/uploads/" + name,
	})
}

// ServeUpload handles GET /api/uploads/{filename}.
func (h *Handler) ServeUpload(w http.ResponseWriter, r *http.Request) {
	p, err := h.uploads.Path(chi.URLParam(r, "filename"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && info.IsDir()) {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, p)
}
