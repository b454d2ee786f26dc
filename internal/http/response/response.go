package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cermofi/ReserveUMT/internal/domain"
	"github.com/cermofi/ReserveUMT/pkg/logger"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Stable machine-readable error codes.
const (
	CodeInvalidInput  = "INVALID_INPUT"
	CodeConflict      = "CONFLICT"
	CodePolicyLimit   = "POLICY_LIMIT"
	CodeRateLimit     = "RATE_LIMIT_EXCEEDED"
	CodeNotFound      = "NOT_FOUND"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeInternalError = "INTERNAL_ERROR"
)

func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func WriteError(w http.ResponseWriter, statusCode int, message, code string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}

// Error maps a classified engine error onto the wire: 400 for validation,
// conflict and policy failures, 429 for rate limiting, 404 for not-found, 500
// for everything storage-shaped. Storage causes are logged, never echoed.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	msg := "internal error"
	kind := domain.KindOf(err)
	var de *domain.Error
	if errors.As(err, &de) {
		msg = de.Message
	}

	switch kind {
	case domain.KindValidation:
		WriteError(w, http.StatusBadRequest, msg, CodeInvalidInput)
	case domain.KindConflict:
		WriteError(w, http.StatusBadRequest, msg, CodeConflict)
	case domain.KindPolicy:
		WriteError(w, http.StatusBadRequest, msg, CodePolicyLimit)
	case domain.KindRateLimited:
		// Deliberately vague: the limiter's internals are not enumerable
		// from outside.
		WriteError(w, http.StatusTooManyRequests, "too many requests, try again later", CodeRateLimit)
	case domain.KindNotFound:
		WriteError(w, http.StatusNotFound, msg, CodeNotFound)
	default:
		logger.ErrorContext(r.Context(), "request failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal error", CodeInternalError)
	}
}

func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message, CodeUnauthorized)
}
