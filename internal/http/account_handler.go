package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/readingattendance/readingd/internal/application"
)

type accountService interface {
	Register(ctx context.Context, params application.RegisterParams) (application.Account, error)
	Login(ctx context.Context, params application.LoginParams) (application.LoginResult, error)
}

type profileService interface {
	Profile(ctx context.Context, principal application.Principal) (application.Profile, error)
}

// AccountHandler serves sign-up, sign-in and the caller's profile.
type AccountHandler struct {
	accounts  accountService
	profiles  profileService
	responder responder
	logger    *slog.Logger
}

func NewAccountHandler(accounts accountService, profiles profileService, logger *slog.Logger) *AccountHandler {
	base := defaultLogger(logger)
	return &AccountHandler{accounts: accounts, profiles: profiles, responder: newResponder(base), logger: base}
}

func (h *AccountHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AccountHandler", operation, attrs...)
}

// Register handles POST /accounts.
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.accounts == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "Register", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode registration", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	account, err := h.accounts.Register(r.Context(), application.RegisterParams{Email: req.Email, Password: req.Password})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "Register", "user_id", account.UserID).InfoContext(r.Context(), "account created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, accountResponse{
		UserID:        account.UserID,
		Email:         account.Email,
		PaymentStatus: account.PaymentStatus,
	})
}

// Login handles POST /tokens.
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.accounts == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "Login", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode login", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	result, err := h.accounts.Login(r.Context(), application.LoginParams{Email: req.Email, Password: req.Password})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, tokenResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Me handles GET /me.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.profiles == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	profile, err := h.profiles.Profile(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, profileResponse{
		UserID:        profile.UserID,
		Email:         profile.Email,
		Points:        profile.Points,
		Rank:          profile.Rank,
		LiveRank:      profile.LiveRank,
		PaymentStatus: profile.PaymentStatus,
	})
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type accountResponse struct {
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	PaymentStatus bool   `json:"payment_status"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

type profileResponse struct {
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	Points        int    `json:"points"`
	Rank          int    `json:"rank"`
	LiveRank      int    `json:"live_rank"`
	PaymentStatus bool   `json:"payment_status"`
}
