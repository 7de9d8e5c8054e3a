package testfixtures

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/readingattendance/readingd/internal/persistence"
)

var (
	userCounter    uint64
	sessionCounter uint64
	paymentCounter uint64
)

// ----------------------------- User fixtures -----------------------------

// UserOption configures a generated user.
type UserOption func(*persistence.User)

// NewUser returns a deterministic paid user with optional overrides.
func NewUser(opts ...UserOption) persistence.User {
	idx := atomic.AddUint64(&userCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	user := persistence.User{
		ID:            fmt.Sprintf("user-%03d", idx),
		Email:         fmt.Sprintf("reader%03d@example.com", idx),
		PasswordHash:  fmt.Sprintf("hash-%03d", idx),
		PaymentStatus: true,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
	for _, opt := range opts {
		opt(&user)
	}
	return user
}

func WithUserID(id string) UserOption {
	return func(u *persistence.User) { u.ID = id }
}

func WithUserEmail(email string) UserOption {
	return func(u *persistence.User) { u.Email = email }
}

func WithUserPoints(points int) UserOption {
	return func(u *persistence.User) { u.Points = points }
}

func WithUserUnpaid() UserOption {
	return func(u *persistence.User) { u.PaymentStatus = false }
}

func WithUserCreatedAt(t time.Time) UserOption {
	return func(u *persistence.User) {
		u.CreatedAt = t
		u.UpdatedAt = t
	}
}

// --------------------------- Session fixtures ----------------------------

// SessionOption configures a generated session.
type SessionOption func(*persistence.Session)

// NewSession returns an active session started at ReferenceTime.
func NewSession(userID string, opts ...SessionOption) persistence.Session {
	idx := atomic.AddUint64(&sessionCounter, 1)
	session := persistence.Session{
		ID:        fmt.Sprintf("session-%03d", idx),
		UserID:    userID,
		StartAt:   referenceTime,
		CreatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&session)
	}
	return session
}

func WithSessionID(id string) SessionOption {
	return func(s *persistence.Session) { s.ID = id }
}

func WithSessionStart(t time.Time) SessionOption {
	return func(s *persistence.Session) {
		s.StartAt = t
		s.CreatedAt = t
	}
}

func WithSessionDisconnected(at time.Time) SessionOption {
	return func(s *persistence.Session) {
		s.Disconnected = true
		s.DisconnectedAt = &at
	}
}

func WithSessionCompleted(end time.Time, awarded bool) SessionOption {
	return func(s *persistence.Session) {
		duration := int(end.Sub(s.StartAt) / time.Minute)
		s.Completed = true
		s.EndAt = &end
		s.DurationMinutes = &duration
		s.PointsAwarded = awarded
	}
}

// --------------------------- Payment fixtures ----------------------------

// NewPendingPayment returns a pending payment owned by userID.
func NewPendingPayment(userID string) persistence.Payment {
	idx := atomic.AddUint64(&paymentCounter, 1)
	return persistence.Payment{
		Reference: fmt.Sprintf("reading_tracker_fixture%03d", idx),
		UserID:    userID,
		Email:     "payer@example.com",
		Amount:    50000,
		Currency:  "NGN",
		Status:    persistence.PaymentPending,
		Provider:  "paystack",
		CreatedAt: referenceTime,
	}
}

// ------------------------------- Seeding ---------------------------------

// Seed writes users, sessions and payments to store, failing the test on error.
func Seed(tb testing.TB, store persistence.Store, records ...any) {
	tb.Helper()
	ctx := context.Background()
	for _, record := range records {
		var err error
		switch r := record.(type) {
		case persistence.User:
			err = store.CreateUser(ctx, r)
		case persistence.Session:
			err = store.CreateSession(ctx, r)
		case persistence.Payment:
			err = store.CreatePayment(ctx, r)
		default:
			tb.Fatalf("cannot seed %T", record)
		}
		if err != nil {
			tb.Fatalf("seed %T: %v", record, err)
		}
	}
}
