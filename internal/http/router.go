package http

import (
	"log/slog"
	"net/http"
)

// RouterConfig wires handlers into the router. Nil handlers leave their
// routes unregistered.
type RouterConfig struct {
	Accounts      *AccountHandler
	Sessions      *SessionHandler
	Leaderboard   *LeaderboardHandler
	Payments      *PaymentHandler
	Health        *HealthHandler
	Metrics       http.Handler
	Authenticator Authenticator
	Logger        *slog.Logger
	// Middleware wraps the whole mux, outermost first.
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	authed := func(h http.HandlerFunc) http.Handler { return h }
	if cfg.Authenticator != nil {
		requireAuth := RequireAuth(cfg.Authenticator, cfg.Logger)
		authed = func(h http.HandlerFunc) http.Handler { return requireAuth(h) }
	}

	if cfg.Accounts != nil {
		mux.HandleFunc("POST /accounts", cfg.Accounts.Register)
		mux.HandleFunc("POST /tokens", cfg.Accounts.Login)
		mux.Handle("GET /me", authed(cfg.Accounts.Me))
	}

	if cfg.Sessions != nil {
		mux.Handle("POST /sessions", authed(cfg.Sessions.Start))
		mux.Handle("GET /sessions/active", authed(cfg.Sessions.Active))
		mux.Handle("POST /sessions/{id}/complete", authed(cfg.Sessions.Complete))
		mux.Handle("POST /sessions/{id}/verify", authed(cfg.Sessions.Verify))
		mux.Handle("POST /sessions/{id}/disconnect", authed(cfg.Sessions.Disconnect))
	}

	if cfg.Leaderboard != nil {
		mux.Handle("GET /leaderboard", authed(cfg.Leaderboard.List))
	}

	if cfg.Payments != nil {
		mux.Handle("POST /payments", authed(cfg.Payments.Create))
		mux.Handle("POST /payments/{reference}/verify", authed(cfg.Payments.Verify))
		mux.HandleFunc("POST /webhooks/paystack", cfg.Payments.Webhook)
	}

	if cfg.Health != nil {
		mux.HandleFunc("GET /healthz", cfg.Health.Check)
	}
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}

	return handler
}
