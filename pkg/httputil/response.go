package httputil

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	apperrors "github.com/barbmarcio/megastore-search/pkg/errors"
	"github.com/barbmarcio/megastore-search/pkg/logger"
	"github.com/barbmarcio/megastore-search/pkg/validator"
)

// Response is the standard JSON response envelope.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse represents an error in the standard response format.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// publicCodes are the sentinel codes whose error text is safe to return.
// Other bare sentinels get a generic message.
var publicCodes = map[string]bool{
	"INVALID_INPUT":    true,
	"INVALID_RELATION": true,
	"INVALID_FILTER":   true,
}

var genericMessages = map[string]string{
	"NOT_FOUND":           "resource not found",
	"SERVICE_UNAVAILABLE": "a dependency is unavailable",
	"INTERNAL_ERROR":      "an internal error occurred",
}

// WriteError renders err as the error envelope. Validation errors carry
// per-field messages and AppErrors keep their code and message. Bare
// sentinels get their code with either the error text or a generic message;
// anything else is a 500 with no detail. Server-side failures are logged
// with the request-scoped logger, or fallback when the request has none.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	status, body := describe(err)
	body.RequestID = logger.CorrelationIDFromContext(r.Context())

	if status >= http.StatusInternalServerError {
		l := logger.FromContext(r.Context())
		if l == slog.Default() {
			l = fallback
		}
		l.ErrorContext(r.Context(), "request failed",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
		)
	}
	WriteJSON(w, status, Response{Error: body})
}

func describe(err error) (int, *ErrorResponse) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		return http.StatusBadRequest, &ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "request validation failed",
			Fields:  valErr.Fields(),
		}
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Status, &ErrorResponse{Code: appErr.Code, Message: appErr.Message}
	}

	status, code := apperrors.HTTPStatus(err), apperrors.Code(err)
	if publicCodes[code] {
		return status, &ErrorResponse{Code: code, Message: err.Error()}
	}
	return status, &ErrorResponse{Code: code, Message: genericMessages[code]}
}

// ParseID parses a decimal product ID path parameter. On failure it writes a
// 400 INVALID_PARAMETER response and returns false, signaling the caller to
// return early.
func ParseID(w http.ResponseWriter, param string) (uint64, bool) {
	id, err := strconv.ParseUint(param, 10, 64)
	if err != nil {
		WriteJSON(w, http.StatusBadRequest, Response{
			Error: &ErrorResponse{
				Code:    "INVALID_PARAMETER",
				Message: "invalid product id: " + param,
			},
		})
		return 0, false
	}
	return id, true
}

// QueryFloat reads an optional float query parameter. An absent parameter
// yields nil.
func QueryFloat(r *http.Request, name string) (*float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, apperrors.InvalidInput(name + " must be a number")
	}
	return &v, nil
}

// QueryInt reads an int query parameter, falling back to def when absent.
func QueryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.InvalidInput(name + " must be an integer")
	}
	return v, nil
}

// QueryBool reads a boolean query parameter, falling back to def when absent.
func QueryBool(r *http.Request, name string, def bool) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperrors.InvalidInput(name + " must be true or false")
	}
	return v, nil
}
