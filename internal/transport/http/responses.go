package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	"veritrail/pkg/platform/sentinel"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError centralizes domain error translation to HTTP responses so all
// handlers produce consistent JSON error envelopes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		status = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, sentinel.ErrUnsupportedFormat):
		status = http.StatusBadRequest
		code = "unsupported_format"
	case errors.Is(err, sentinel.ErrConflict):
		status = http.StatusConflict
		code = "conflict"
	}
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": err.Error(),
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error":   "invalid_request",
		"message": message,
	})
}
