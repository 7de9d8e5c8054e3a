package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/readingattendance/readingd/internal/application"
	"github.com/readingattendance/readingd/internal/persistence"
)

type sessionService interface {
	StartSession(ctx context.Context, principal application.Principal) (persistence.Session, error)
	ActiveSession(ctx context.Context, principal application.Principal) (persistence.Session, error)
	CompleteSession(ctx context.Context, principal application.Principal, sessionID string) (application.CompletionResult, error)
	VerifySession(ctx context.Context, principal application.Principal, sessionID string) (application.VerifyResult, error)
	MarkDisconnected(ctx context.Context, principal application.Principal, sessionID string) error
}

// SessionHandler serves the reading session lifecycle.
type SessionHandler struct {
	service   sessionService
	responder responder
	logger    *slog.Logger
}

func NewSessionHandler(service sessionService, logger *slog.Logger) *SessionHandler {
	base := defaultLogger(logger)
	return &SessionHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *SessionHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "SessionHandler", operation, attrs...)
}

func (h *SessionHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

// Start handles POST /sessions.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	session, err := h.service.StartSession(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "Start", "session_id", session.ID).InfoContext(r.Context(), "reading session started")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, sessionEnvelope{Session: toSessionDTO(application.Snapshot(session))})
}

// Active handles GET /sessions/active.
func (h *SessionHandler) Active(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	session, err := h.service.ActiveSession(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, sessionEnvelope{Session: toSessionDTO(application.Snapshot(session))})
}

// Complete handles POST /sessions/{id}/complete.
func (h *SessionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	sessionID := r.PathValue("id")
	result, err := h.service.CompleteSession(r.Context(), principal, sessionID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "Complete", "session_id", sessionID).InfoContext(r.Context(), "reading session completed", "duration_minutes", result.DurationMinutes)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, completionResponse{
		Points:          result.Points,
		DurationMinutes: result.DurationMinutes,
	})
}

// Verify handles POST /sessions/{id}/verify.
func (h *SessionHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	result, err := h.service.VerifySession(r.Context(), principal, r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	resp := verifyResponse{Found: result.Found}
	if result.Session != nil {
		dto := toSessionDTO(*result.Session)
		resp.Session = &dto
	} else {
		resp.SessionID = result.SessionID
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

// Disconnect handles POST /sessions/{id}/disconnect.
func (h *SessionHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	sessionID := r.PathValue("id")
	if err := h.service.MarkDisconnected(r.Context(), principal, sessionID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "Disconnect", "session_id", sessionID).InfoContext(r.Context(), "reading session marked disconnected")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type sessionDTO struct {
	ID              string  `json:"id"`
	StartAt         string  `json:"start_at"`
	EndAt           *string `json:"end_at,omitempty"`
	DurationMinutes *int    `json:"duration_minutes,omitempty"`
	Completed       bool    `json:"completed"`
	PointsAwarded   bool    `json:"points_awarded"`
	Disconnected    bool    `json:"disconnected"`
	AutoCompleted   bool    `json:"auto_completed"`
}

func toSessionDTO(s application.SessionSnapshot) sessionDTO {
	dto := sessionDTO{
		ID:              s.ID,
		StartAt:         s.StartAt.UTC().Format(time.RFC3339),
		DurationMinutes: s.DurationMinutes,
		Completed:       s.Completed,
		PointsAwarded:   s.PointsAwarded,
		Disconnected:    s.Disconnected,
		AutoCompleted:   s.AutoCompleted,
	}
	if s.EndAt != nil {
		end := s.EndAt.UTC().Format(time.RFC3339)
		dto.EndAt = &end
	}
	return dto
}

type sessionEnvelope struct {
	Session sessionDTO `json:"session"`
}

type completionResponse struct {
	Points          int `json:"points"`
	DurationMinutes int `json:"duration_minutes"`
}

type verifyResponse struct {
	Found     bool        `json:"found"`
	SessionID string      `json:"session_id,omitempty"`
	Session   *sessionDTO `json:"session,omitempty"`
}
