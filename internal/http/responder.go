package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/readingattendance/readingd/internal/application"
)

var (
	errBadRequestBody   = errors.New("invalid request body")
	errMissingToken     = errors.New("bearer token is required")
	errInvalidSignature = errors.New("invalid webhook signature")
	errInvalidLimit     = errors.New("limit must be an integer")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// writeError answers with a plain status and message, for failures detected
// before a service is called.
func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := strings.ToLower(http.StatusText(status))
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request rejected", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{ErrorCode: errorCodeForStatus(status), Message: message})
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	kind := application.KindOf(err)
	resp := errorResponse{
		ErrorCode: kind.String(),
		Message:   application.PublicMessage(err),
	}

	var vErr *application.ValidationError
	if errors.As(err, &vErr) && len(vErr.FieldErrors) > 0 {
		resp.Errors = vErr.FieldErrors
	}

	r.writeJSON(ctx, w, statusForKind(kind), resp)
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func statusForKind(kind application.Kind) int {
	switch kind {
	case application.KindUnauthenticated:
		return http.StatusUnauthorized
	case application.KindPermissionDenied:
		return http.StatusForbidden
	case application.KindNotFound:
		return http.StatusNotFound
	case application.KindAlreadyExists:
		return http.StatusConflict
	case application.KindFailedPrecondition:
		return http.StatusPreconditionFailed
	case application.KindInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func errorCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return application.KindInvalidArgument.String()
	case http.StatusUnauthorized:
		return application.KindUnauthenticated.String()
	case http.StatusForbidden:
		return application.KindPermissionDenied.String()
	case http.StatusNotFound:
		return application.KindNotFound.String()
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		return application.KindInternal.String()
	}
}

// decodeJSON reads a single JSON object from the request body. Unknown fields
// are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

const maxJSONBody = 64 << 10

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}
