// Package httperrors renders domain errors as JSON HTTP responses.
package httperrors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sir_venger/mediarelay/internal/models"
)

// Body is the JSON shape of every error response.
type Body struct {
	Error string `json:"error"`
}

// Status returns the HTTP status and client-facing message for err.
// Messages of server-side failures never include the underlying cause.
func Status(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrMissingToken):
		return http.StatusUnauthorized, models.ErrMissingToken.Error()
	case errors.Is(err, models.ErrInvalidToken):
		return http.StatusForbidden, models.ErrInvalidToken.Error()
	case errors.Is(err, models.ErrNoFile):
		return http.StatusBadRequest, models.ErrNoFile.Error()
	case errors.Is(err, models.ErrFileTooLarge), errors.Is(err, models.ErrMalformedUpload):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrInvalidName):
		return http.StatusNotFound, models.ErrNotFound.Error()
	case errors.Is(err, models.ErrDownloadFailed):
		return http.StatusInternalServerError, models.ErrDownloadFailed.Error()
	case errors.Is(err, models.ErrUploadFailed):
		return http.StatusInternalServerError, models.ErrUploadFailed.Error()
	default:
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
}

// Write maps err to a status code and writes a JSON error body. It returns the status.
func Write(w http.ResponseWriter, err error) int {
	status, msg := Status(err)
	WriteJSON(w, status, Body{Error: msg})
	return status
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
