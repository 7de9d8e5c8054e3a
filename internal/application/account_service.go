package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/readingattendance/readingd/internal/persistence"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// AccountConfig tunes registration.
type AccountConfig struct {
	// FirstUserFree grants payment status to the very first registered user.
	FirstUserFree bool
	EventIDs      func() string
}

// AccountService registers users, signs them in and authenticates bearer tokens.
type AccountService struct {
	store       persistence.Store
	hasher      PasswordHasher
	tokens      *TokenIssuer
	idGenerator func() string
	now         func() time.Time
	cfg         AccountConfig
	reporter    errorReporter
	logger      *slog.Logger
}

// NewAccountService constructs an AccountService with the provided dependencies.
func NewAccountService(store persistence.Store, hasher PasswordHasher, tokens *TokenIssuer, idGenerator func() string, now func() time.Time, cfg AccountConfig) *AccountService {
	return NewAccountServiceWithLogger(store, hasher, tokens, idGenerator, now, cfg, nil)
}

// NewAccountServiceWithLogger constructs an AccountService with a specified logger.
func NewAccountServiceWithLogger(store persistence.Store, hasher PasswordHasher, tokens *TokenIssuer, idGenerator func() string, now func() time.Time, cfg AccountConfig, logger *slog.Logger) *AccountService {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if hasher == (PasswordHasher{}) {
		hasher = NewPasswordHasher(DefaultArgon2idParams)
	}
	return &AccountService{
		store:       store,
		hasher:      hasher,
		tokens:      tokens,
		idGenerator: idGenerator,
		now:         now,
		cfg:         cfg,
		reporter:    errorReporter{audit: store, eventIDs: cfg.EventIDs, now: now},
		logger:      defaultLogger(logger),
	}
}

func (s *AccountService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AccountService", operation, attrs...)
}

// Register creates an account. The first account is granted payment status
// when FirstUserFree is set; the user count is read in the same transaction
// as the insert.
func (s *AccountService) Register(ctx context.Context, params RegisterParams) (account Account, err error) {
	if s == nil || s.store == nil {
		err = fmt.Errorf("account store not configured")
		return
	}

	email := normalizeEmail(params.Email)
	logger := s.loggerWith(ctx, "Register", "email", email)
	defer func() {
		if err != nil {
			err = s.reporter.wrap(ctx, logger, "register", "", err)
			logOutcome(ctx, logger, "registration failed", err)
			return
		}
		logger.With(
			"user_id", account.UserID,
			"payment_status", account.PaymentStatus,
		).InfoContext(ctx, "user registered")
	}()

	vErr := validateCredentials(email, params.Password)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	hash, err := s.hasher.Hash(params.Password)
	if err != nil {
		err = fmt.Errorf("hash password: %w", err)
		return
	}

	now := s.now()
	err = s.store.WithinTx(ctx, func(tx persistence.Tx) error {
		if _, lookupErr := tx.GetUserByEmail(ctx, email); lookupErr == nil {
			return newError(KindAlreadyExists, "email already registered")
		} else if !errors.Is(lookupErr, persistence.ErrNotFound) {
			return lookupErr
		}

		count, countErr := tx.CountUsers(ctx)
		if countErr != nil {
			return countErr
		}

		user := persistence.User{
			ID:            s.idGenerator(),
			Email:         email,
			PasswordHash:  hash,
			PaymentStatus: s.cfg.FirstUserFree && count == 0,
			LastActiveAt:  &now,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if createErr := tx.CreateUser(ctx, user); createErr != nil {
			if errors.Is(createErr, persistence.ErrConflict) {
				return newError(KindAlreadyExists, "email already registered")
			}
			return createErr
		}
		account = accountOf(user)
		return nil
	})
	return
}

// Login verifies credentials and issues a bearer token. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *AccountService) Login(ctx context.Context, params LoginParams) (result LoginResult, err error) {
	if s == nil || s.store == nil {
		err = fmt.Errorf("account store not configured")
		return
	}
	if s.tokens == nil {
		err = fmt.Errorf("token issuer not configured")
		return
	}

	email := normalizeEmail(params.Email)
	logger := s.loggerWith(ctx, "Login", "email", email)
	defer func() {
		if err != nil {
			err = s.reporter.wrap(ctx, logger, "login", "", err)
			logOutcome(ctx, logger, "login failed", err)
			return
		}
		logger.With("user_id", result.Account.UserID).InfoContext(ctx, "user logged in")
	}()

	invalid := newError(KindUnauthenticated, "invalid email or password")
	if email == "" || params.Password == "" {
		err = invalid
		return
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = invalid
		}
		return
	}
	if verifyErr := s.hasher.Verify(user.PasswordHash, params.Password); verifyErr != nil {
		if !errors.Is(verifyErr, errPasswordMismatch) {
			logger.WarnContext(ctx, "stored password hash unreadable", "error", verifyErr)
		}
		err = invalid
		return
	}

	token, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return
	}
	result = LoginResult{Account: accountOf(user), Token: token, ExpiresAt: expiresAt}
	return
}

// Authenticate resolves a bearer token to the principal it was issued for.
func (s *AccountService) Authenticate(ctx context.Context, token string) (principal Principal, err error) {
	if s == nil || s.tokens == nil {
		err = fmt.Errorf("token issuer not configured")
		return
	}

	token = strings.TrimSpace(token)
	if token == "" {
		err = newError(KindUnauthenticated, "authentication required")
		return
	}

	userID, parseErr := s.tokens.Parse(token)
	if parseErr != nil {
		s.loggerWith(ctx, "Authenticate").DebugContext(ctx, "token rejected", "error", parseErr)
		err = &Error{Kind: KindUnauthenticated, Message: "invalid or expired token", Err: parseErr}
		return
	}
	principal = Principal{UserID: userID}
	return
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func validateCredentials(email, password string) *ValidationError {
	vErr := &ValidationError{}
	if email == "" {
		vErr.add("email", "email is required")
	} else if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		vErr.add("email", "email is invalid")
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		vErr.add("password", fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	return vErr
}

func accountOf(user persistence.User) Account {
	return Account{
		UserID:        user.ID,
		Email:         user.Email,
		PaymentStatus: user.PaymentStatus,
		CreatedAt:     user.CreatedAt,
	}
}
