package persistence

import (
	"context"
	"time"
)

// SessionRepository stores reading sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	// FindActiveSession returns the user's uncompleted session or ErrNotFound.
	FindActiveSession(ctx context.Context, userID string) (Session, error)
	// CompleteSession flips completed from false to true and reports whether
	// this call performed the transition. Disconnected sessions are only
	// closed when the completion awards no points.
	CompleteSession(ctx context.Context, completion SessionCompletion) (bool, error)
	// MarkDisconnected sets the disconnected flag on an uncompleted session and
	// reports whether the flag changed.
	MarkDisconnected(ctx context.Context, id string, at time.Time) (bool, error)
	// ListDueSessions returns uncompleted, connected sessions started at or
	// before the cutoff, ordered by start time then id. A non-nil after
	// restricts the result to sessions ordered strictly after that cursor.
	ListDueSessions(ctx context.Context, startedBefore time.Time, after *SessionCursor, limit int) ([]Session, error)
	DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionCursor marks a position in the (start time, id) session order.
type SessionCursor struct {
	StartAt time.Time
	ID      string
}

// CursorAfter returns the cursor positioned on session.
func CursorAfter(session Session) *SessionCursor {
	return &SessionCursor{StartAt: session.StartAt, ID: session.ID}
}

// UserRepository stores reader accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	CountUsers(ctx context.Context) (int, error)
	// AwardPoint atomically increments the user's points by one.
	AwardPoint(ctx context.Context, userID string, at time.Time) error
	GrantPayment(ctx context.Context, userID, reference string, at time.Time) error
	// ListUsersByStanding orders users by points descending, then by sign-up
	// time. A non-positive limit returns every user.
	ListUsersByStanding(ctx context.Context, limit int) ([]User, error)
	CountUsersWithMorePoints(ctx context.Context, points int) (int, error)
	AssignRanks(ctx context.Context, ranks []RankAssignment) error
}

// PaymentRepository stores payment records keyed by reference.
type PaymentRepository interface {
	CreatePayment(ctx context.Context, payment Payment) error
	GetPayment(ctx context.Context, reference string) (Payment, error)
	// SettlePayment moves a pending payment to success and reports whether
	// this call performed the transition.
	SettlePayment(ctx context.Context, settlement PaymentSettlement) (bool, error)
}

// AuditRepository appends session and error log entries.
type AuditRepository interface {
	AppendSessionLog(ctx context.Context, entry SessionLog) error
	ListSessionLogs(ctx context.Context, sessionID string) ([]SessionLog, error)
	AppendErrorLog(ctx context.Context, entry ErrorLog) error
}

// Tx groups the repositories available inside a store transaction.
type Tx interface {
	SessionRepository
	UserRepository
	PaymentRepository
	AuditRepository
}

// Store is a transactional backend for every repository.
type Store interface {
	Tx
	// WithinTx runs fn in a single transaction. The transaction commits when fn
	// returns nil and rolls back otherwise. fn must only use the supplied Tx.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}
