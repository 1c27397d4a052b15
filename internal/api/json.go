package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/sitekeeper/internal/apperr"
)

const kindUnauthorized = "Unauthorized"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

func errorBody(kind, msg string) errResponse {
	return errResponse{Kind: kind, Error: msg}
}

// statusOf maps an error kind to its HTTP status.
func statusOf(kind string) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindIndex, apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindPermissionDenied:
		return http.StatusForbidden
	case apperr.KindPublish:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports err with the status of its kind. Internal errors are
// logged and hidden from the client.
func writeError(w http.ResponseWriter, op string, err error) {
	kind := apperr.KindOf(err)
	status := statusOf(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error(op+" failed", slog.String("error", err.Error()))
		msg = "internal error"
	}
	writeJSON(w, status, errorBody(kind, msg))
}

func publishErrorInfo(err error) *PublishFailure {
	var pe *apperr.PublishError
	if errors.As(err, &pe) {
		return &PublishFailure{Step: pe.Step, Output: pe.Output, Error: pe.Err.Error()}
	}
	return &PublishFailure{Error: err.Error()}
}
