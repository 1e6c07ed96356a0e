package handler

// JSON RESPONSE HELPERS:
// Every JSON error from the app has the same shape:
//
//	{"error": "not_found", "message": "Recipe not found"}
//
// so clients always know which fields to expect.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/recipebox/internal/apperror"
)

// ErrorResponse is the body of every JSON error.
type ErrorResponse struct {
	Error   string `json:"error"`   // machine-readable type, e.g. "not_found"
	Message string `json:"message"` // human-readable description
}

// writeJSON sends data as JSON. Headers and status go out before the body;
// nothing can be changed after Encode starts writing.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorStatus maps a domain error to an HTTP status and error type.
// errors.Is walks the whole chain, so wrapped errors map the same way.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError sends a domain error as JSON. Only an *apperror.AppError
// message reaches the client; anything else becomes a generic 500 so SQL
// or file paths never leak.
func writeError(w http.ResponseWriter, err error) {
	status, errorType := errorStatus(err)

	var appErr *apperror.AppError
	if status == http.StatusInternalServerError || !errors.As(err, &appErr) {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	writeJSON(w, status, ErrorResponse{Error: errorType, Message: appErr.Message})
}

// userMessage picks the flash text for a failed page action: the
// AppError's own message for not found, validation and conflict errors,
// "Database connection error" for connectivity failures, and fallback for
// everything else.
func userMessage(err error, fallback string) string {
	if errors.Is(err, apperror.ErrUnavailable) {
		return msgDatabaseError
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		switch {
		case errors.Is(err, apperror.ErrNotFound),
			errors.Is(err, apperror.ErrValidation),
			errors.Is(err, apperror.ErrConflict),
			errors.Is(err, apperror.ErrForbidden):
			return appErr.Message
		}
	}
	return fallback
}
