package testfixtures

import (
	"log/slog"
	"time"

	"github.com/readingattendance/readingd/internal/application"
	"github.com/readingattendance/readingd/internal/persistence"
)

// FastArgon2idParams keeps password hashing cheap in tests.
var FastArgon2idParams = application.Argon2idParams{
	Memory:      1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  8,
	KeyLength:   16,
}

// TestTokenSecret signs bearer tokens issued by factory-built services.
const TestTokenSecret = "test-token-secret"

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	EventIDs    *IDGenerator
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		EventIDs:    NewIDGenerator("event"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithLogger sets the logger handed to every service.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// NewSessionService builds a session service on store.
func (f *ServiceFactory) NewSessionService(store persistence.Store, cfg application.SessionConfig) *application.SessionService {
	if cfg.EventIDs == nil {
		cfg.EventIDs = f.EventIDs.NextFunc()
	}
	return application.NewSessionServiceWithLogger(store, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), cfg, f.Logger)
}

// NewLeaderboardService builds a leaderboard service on store.
func (f *ServiceFactory) NewLeaderboardService(store persistence.Store) *application.LeaderboardService {
	return application.NewLeaderboardServiceWithLogger(store, f.Clock.NowFunc(), f.EventIDs.NextFunc(), nil, f.Logger)
}

// NewPaymentService builds a payment service on store.
func (f *ServiceFactory) NewPaymentService(store persistence.Store, provider application.PaymentProvider) *application.PaymentService {
	return application.NewPaymentServiceWithLogger(store, provider, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), application.PaymentConfig{
		EventIDs: f.EventIDs.NextFunc(),
	}, f.Logger)
}

// NewAccountService builds an account service on store.
func (f *ServiceFactory) NewAccountService(store persistence.Store, firstUserFree bool) *application.AccountService {
	return application.NewAccountServiceWithLogger(
		store,
		application.NewPasswordHasher(FastArgon2idParams),
		application.NewTokenIssuer(TestTokenSecret, time.Hour, f.Clock.NowFunc()),
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		application.AccountConfig{FirstUserFree: firstUserFree, EventIDs: f.EventIDs.NextFunc()},
		f.Logger,
	)
}
