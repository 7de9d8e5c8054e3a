package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/readingattendance/readingd/internal/http"
)

func newServeCmd(load configLoader) *cobra.Command {
	var shutdownTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Migrate the database, then serve the API and run scheduled jobs",
		Long: `Applies pending migrations, starts the HTTP API and runs the
auto-complete, recompute-ranks and cleanup-sessions jobs on their intervals.

SIGINT or SIGTERM stops the scheduler and drains in-flight requests.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.migrate(ctx); err != nil {
				return err
			}

			listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.HTTPPort))
			if err != nil {
				return err
			}
			return a.serve(ctx, listener, shutdownTimeout)
		},
	}
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "Maximum time to drain connections on shutdown")
	return cmd
}

func (a *app) handler() http.Handler {
	log := a.logger.Logger
	return httptransport.NewRouter(httptransport.RouterConfig{
		Accounts:      httptransport.NewAccountHandler(a.accounts, a.leaderboard, log),
		Sessions:      httptransport.NewSessionHandler(a.sessions, log),
		Leaderboard:   httptransport.NewLeaderboardHandler(a.leaderboard, log),
		Payments:      httptransport.NewPaymentHandler(a.payments, a.cfg.Paystack.SecretKey, log),
		Health:        httptransport.NewHealthHandler(a.store, log),
		Metrics:       a.metrics.Handler(),
		Authenticator: a.accounts,
		Logger:        log,
		// The metrics middleware reads the matched pattern, so it has to see
		// the request the mux routes.
		Middleware: []func(http.Handler) http.Handler{
			httptransport.Recover(log),
			httptransport.RequestLogger(log),
			a.metrics.Middleware,
		},
	})
}

// serve runs the HTTP server and the job runner until ctx is cancelled.
func (a *app) serve(ctx context.Context, listener net.Listener, shutdownTimeout time.Duration) error {
	server := &http.Server{
		Handler:           a.handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.InfoContext(gctx, "readingd listening", "addr", listener.Addr().String())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return a.runner.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.ErrorContext(shutdownCtx, "failed to shutdown server", "error", err)
			return err
		}
		a.logger.Info("server stopped")
		return nil
	})
	return g.Wait()
}
