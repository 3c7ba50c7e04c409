package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kalambet/intake/internal/matching"
	"github.com/kalambet/intake/internal/questionnaire"
	"github.com/kalambet/intake/internal/session"
	"github.com/kalambet/intake/internal/storage"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeErrorBody(w, code, map[string]any{
		"message": fmt.Sprintf(format, args...),
		"type":    errType,
	})
}

func writeErrorBody(w http.ResponseWriter, code int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{"error": body})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// errorStatus maps a domain error to its HTTP status and error type.
func errorStatus(err error) (int, string) {
	var (
		verr *questionnaire.ValidationError
		cerr *questionnaire.ConfigError
		serr *matching.SubmissionError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, "validation_error"
	case errors.As(err, &cerr):
		return http.StatusBadGateway, "config_error"
	case errors.As(err, &serr):
		return http.StatusBadGateway, "submission_error"
	case errors.Is(err, session.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, session.ErrUnknownQuestion):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, session.ErrInvalidAnswer):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, session.ErrBusy),
		errors.Is(err, session.ErrDuplicateSubmission),
		errors.Is(err, session.ErrComplete),
		errors.Is(err, session.ErrNotReady),
		errors.Is(err, session.ErrStaleResult):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "api_error"
	}
}

// writeError renders err in the error envelope. Validation errors also carry
// the per-field messages, submission errors whether a retry may succeed.
func writeError(w http.ResponseWriter, err error) {
	code, errType := errorStatus(err)
	body := map[string]any{
		"message": err.Error(),
		"type":    errType,
	}

	var verr *questionnaire.ValidationError
	if errors.As(err, &verr) {
		body["section_id"] = verr.SectionID
		body["fields"] = verr.Fields
	}
	var serr *matching.SubmissionError
	if errors.As(err, &serr) {
		body["retryable"] = serr.Retryable()
	}
	writeErrorBody(w, code, body)
}
