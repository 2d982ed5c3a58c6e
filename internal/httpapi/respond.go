// Package httpapi holds the JSON response envelope shared by the relay,
// signaling and LAN HTTP servers.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/dropwire/dropwire/internal/errdefs"
)

// ErrorResponse is the structured error envelope: a machine-checkable
// category (plus reason where it changes client behavior) and a
// human-readable detail.
type ErrorResponse struct {
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		}
	}
}

// WriteError maps a taxonomy error onto the envelope and an HTTP status.
func WriteError(w http.ResponseWriter, err error) {
	category := errdefs.CategoryOf(err)
	code := statusFor(category)
	WriteJSON(w, code, ErrorResponse{
		Error:   string(category),
		Reason:  string(errdefs.ReasonOf(err)),
		Message: err.Error(),
		Code:    code,
	})
}

func WriteErrorMessage(w http.ResponseWriter, statusCode int, msg string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: msg,
		Code:    statusCode,
	})
}

func statusFor(category errdefs.Category) int {
	switch category {
	case errdefs.CategoryNotFound:
		return http.StatusNotFound
	case errdefs.CategoryInvalidInput:
		return http.StatusBadRequest
	case errdefs.CategoryManifestCorrupt:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
