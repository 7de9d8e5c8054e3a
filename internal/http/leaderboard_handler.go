package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/readingattendance/readingd/internal/application"
)

type leaderboardService interface {
	Leaderboard(ctx context.Context, principal application.Principal, limit int) ([]application.LeaderboardEntry, error)
}

// LeaderboardHandler serves the masked ranking.
type LeaderboardHandler struct {
	service   leaderboardService
	responder responder
	logger    *slog.Logger
}

func NewLeaderboardHandler(service leaderboardService, logger *slog.Logger) *LeaderboardHandler {
	base := defaultLogger(logger)
	return &LeaderboardHandler{service: service, responder: newResponder(base), logger: base}
}

// List handles GET /leaderboard. A missing limit uses the service default.
func (h *LeaderboardHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidLimit)
			return
		}
		limit = parsed
	}

	principal, _ := PrincipalFromContext(r.Context())
	entries, err := h.service.Leaderboard(r.Context(), principal, limit)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	resp := leaderboardResponse{Entries: make([]leaderboardEntryDTO, 0, len(entries))}
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, leaderboardEntryDTO{
			Rank:   entry.Rank,
			Email:  entry.Email,
			Points: entry.Points,
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

type leaderboardEntryDTO struct {
	Rank   int    `json:"rank"`
	Email  string `json:"email"`
	Points int    `json:"points"`
}

type leaderboardResponse struct {
	Entries []leaderboardEntryDTO `json:"entries"`
}
