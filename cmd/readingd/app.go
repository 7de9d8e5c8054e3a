package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/readingattendance/readingd/internal/application"
	"github.com/readingattendance/readingd/internal/config"
	"github.com/readingattendance/readingd/internal/logging"
	"github.com/readingattendance/readingd/internal/metrics"
	"github.com/readingattendance/readingd/internal/paystack"
	"github.com/readingattendance/readingd/internal/persistence/sqlstore"
	"github.com/readingattendance/readingd/internal/scheduler"
)

// Job names accepted by run-job.
const (
	jobAutoComplete    = "auto-complete"
	jobRecomputeRanks  = "recompute-ranks"
	jobCleanupSessions = "cleanup-sessions"
)

// app holds every long-lived dependency of the process.
type app struct {
	cfg     config.Config
	logger  *logging.Logger
	store   *sqlstore.Store
	metrics *metrics.Metrics
	ids     *idSource

	accounts    *application.AccountService
	sessions    *application.SessionService
	leaderboard *application.LeaderboardService
	payments    *application.PaymentService

	runner  *scheduler.Runner
	closers []io.Closer
}

// newApp builds the logger, opens the store and wires the services. The
// caller owns the returned app and must Close it.
func newApp(ctx context.Context, cfg config.Config, logOutput io.Writer) (*app, error) {
	logger, err := logging.New(logging.Options{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		FilePath:    cfg.Log.File,
		Output:      logOutput,
	})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}
	a.closers = append(a.closers, logger)

	if a.ids, err = newIDSource(cfg.NodeID); err != nil {
		_ = a.Close()
		return nil, err
	}

	a.store, err = sqlstore.Open(ctx, sqlstore.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: 30 * time.Minute,
	}, logger.Logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.store)

	a.wireServices()
	if err := a.wireScheduler(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wireServices() {
	now := time.Now
	log := a.logger.Logger

	a.accounts = application.NewAccountServiceWithLogger(
		a.store,
		application.NewPasswordHasher(application.DefaultArgon2idParams),
		application.NewTokenIssuer(a.cfg.TokenSecret, a.cfg.TokenTTL, now),
		a.ids.entityID,
		now,
		application.AccountConfig{FirstUserFree: a.cfg.FirstUserFree, EventIDs: a.ids.eventID},
		log,
	)
	a.sessions = application.NewSessionServiceWithLogger(a.store, a.ids.entityID, now, application.SessionConfig{
		MinDuration: a.cfg.MinSessionDuration,
		Retention:   a.cfg.SessionRetention,
		EventIDs:    a.ids.eventID,
		Recorder:    a.metrics,
	}, log)
	a.leaderboard = application.NewLeaderboardServiceWithLogger(a.store, now, a.ids.eventID, a.metrics, log)

	client := paystack.NewClient(paystack.Options{
		BaseURL:   a.cfg.Paystack.BaseURL,
		SecretKey: a.cfg.Paystack.SecretKey,
		Logger:    log,
	})
	a.payments = application.NewPaymentServiceWithLogger(a.store, paystackProvider{client: client}, a.ids.reference, now, application.PaymentConfig{
		Currency: a.cfg.PaymentCurrency,
		EventIDs: a.ids.eventID,
		Recorder: a.metrics,
	}, log)
}

// wireScheduler registers the maintenance jobs. Locks live in Redis when an
// address is configured so that only one replica runs each job.
func (a *app) wireScheduler(ctx context.Context) error {
	var locker scheduler.Locker = scheduler.NewLocalLocker()
	if a.cfg.Redis.Addr != "" {
		client, err := scheduler.NewRedisClient(ctx, a.cfg.Redis.Addr, a.cfg.Redis.Password)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, client)
		locker = scheduler.NewRedisLocker(client)
	}

	a.runner = scheduler.NewRunner(locker, scheduler.WithObserver(a.metrics), scheduler.WithLogger(a.logger.Logger))
	jobs := []scheduler.Job{
		{Name: jobAutoComplete, Interval: a.cfg.Jobs.SweepInterval, Run: a.autoComplete},
		{Name: jobRecomputeRanks, Interval: a.cfg.Jobs.RankInterval, Run: a.recomputeRanks},
		{Name: jobCleanupSessions, Interval: a.cfg.Jobs.CleanupInterval, Run: a.cleanupSessions},
	}
	for _, job := range jobs {
		if err := a.runner.Register(job); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) autoComplete(ctx context.Context) error {
	result, err := a.sessions.AutoCompleteDue(ctx)
	if result.Completed > 0 {
		a.logger.InfoContext(ctx, "due sessions auto-completed", "scanned", result.Scanned, "completed", result.Completed)
	}
	return err
}

func (a *app) recomputeRanks(ctx context.Context) error {
	_, err := a.leaderboard.RecomputeRanks(ctx)
	return err
}

func (a *app) cleanupSessions(ctx context.Context) error {
	deleted, err := a.sessions.CleanupSessions(ctx)
	if deleted > 0 {
		a.logger.InfoContext(ctx, "old sessions deleted", "deleted", deleted)
	}
	return err
}

// migrate applies pending schema migrations.
func (a *app) migrate(ctx context.Context) error {
	applied, err := a.store.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	a.logger.InfoContext(ctx, "schema up to date", "applied", applied, "driver", a.store.Driver())
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
