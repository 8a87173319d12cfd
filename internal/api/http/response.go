package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"dorm-ledger-service/internal/domain"
	"dorm-ledger-service/internal/logger"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

func writeErrorBody(w http.ResponseWriter, status int, body errorBody) {
	writeJSON(w, status, errorEnvelope{Error: body})
}

// writeError maps service errors onto HTTP statuses. Unknown errors are
// logged and reported as a generic internal error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}

	if de, ok := domain.AsDomainError(err); ok {
		writeErrorBody(w, status, errorBody{Code: de.Code, Message: de.Message})
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		writeErrorBody(w, status, errorBody{Code: domain.ErrStoreUnavailable.Code, Message: "request timed out"})
		return
	}

	logger.ErrorContext(r.Context(), "Unhandled error", "path", r.URL.Path, "error", err)
	writeErrorBody(w, status, errorBody{Code: "INTERNAL", Message: "internal server error"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrDuplicateDue):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientDeposit):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrStoreUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
// It writes the error response itself and reports whether to continue.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeErrorBody(w, http.StatusBadRequest, errorBody{
			Code:    domain.ErrValidation.Code,
			Message: fmt.Sprintf("malformed request body: %v", err),
		})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		body := errorBody{Code: domain.ErrValidation.Code, Message: "request validation failed"}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			body.Details = make(map[string]string, len(verrs))
			for _, fe := range verrs {
				body.Details[fe.Field()] = fmt.Sprintf("failed on '%s' tag", fe.Tag())
			}
		}
		writeErrorBody(w, http.StatusBadRequest, body)
		return false
	}
	return true
}

func pathID(r *http.Request, name string) (int32, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || id <= 0 {
		return 0, domain.NewError(domain.ErrValidation, fmt.Sprintf("invalid %s %q", name, raw))
	}
	return int32(id), nil
}

func queryInt(r *http.Request, name string, def int64) (int64, error) {
	return parseQuery(r, name, def, 64)
}

// queryInt32 rejects values that do not fit an int32 instead of wrapping them.
func queryInt32(r *http.Request, name string, def int32) (int32, error) {
	v, err := parseQuery(r, name, int64(def), 32)
	return int32(v), err
}

func parseQuery(r *http.Request, name string, def int64, bitSize int) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, bitSize)
	if err != nil {
		return 0, domain.NewError(domain.ErrValidation, fmt.Sprintf("invalid %s %q", name, raw))
	}
	return v, nil
}

// splitList splits a comma-separated query value, dropping blank entries.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
