// Package memory provides an in-process persistence.Store used by tests and
// single-node development runs.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/readingattendance/readingd/internal/persistence"
)

var errClosed = errors.New("memory: store closed")

// Store keeps every table in maps guarded by a single mutex. Transactions run
// against a copy of the state that replaces the live state on commit.
type Store struct {
	mu     sync.Mutex
	st     *state
	closed bool
}

var _ persistence.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{st: newState()}
}

// WithinTx runs fn against a snapshot and commits it when fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(tx persistence.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	working := s.st.clone()
	if err := fn(working); err != nil {
		return err
	}
	s.st = working
	return nil
}

// Ping reports whether the store is still open.
func (s *Store) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// ErrorLogs returns a copy of every recorded error log entry.
func (s *Store) ErrorLogs() []persistence.ErrorLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]persistence.ErrorLog(nil), s.st.errorLogs...)
}

func (s *Store) CreateSession(ctx context.Context, session persistence.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.CreateSession(ctx, session)
}

func (s *Store) GetSession(ctx context.Context, id string) (persistence.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetSession(ctx, id)
}

func (s *Store) FindActiveSession(ctx context.Context, userID string) (persistence.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.FindActiveSession(ctx, userID)
}

func (s *Store) CompleteSession(ctx context.Context, completion persistence.SessionCompletion) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.CompleteSession(ctx, completion)
}

func (s *Store) MarkDisconnected(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.MarkDisconnected(ctx, id, at)
}

func (s *Store) ListDueSessions(ctx context.Context, startedBefore time.Time, after *persistence.SessionCursor, limit int) ([]persistence.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListDueSessions(ctx, startedBefore, after, limit)
}

func (s *Store) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.DeleteSessionsBefore(ctx, cutoff)
}

func (s *Store) CreateUser(ctx context.Context, user persistence.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.CreateUser(ctx, user)
}

func (s *Store) GetUser(ctx context.Context, id string) (persistence.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetUser(ctx, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetUserByEmail(ctx, email)
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.CountUsers(ctx)
}

func (s *Store) AwardPoint(ctx context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.AwardPoint(ctx, userID, at)
}

func (s *Store) GrantPayment(ctx context.Context, userID, reference string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GrantPayment(ctx, userID, reference, at)
}

func (s *Store) ListUsersByStanding(ctx context.Context, limit int) ([]persistence.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListUsersByStanding(ctx, limit)
}

func (s *Store) CountUsersWithMorePoints(ctx context.Context, points int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.CountUsersWithMorePoints(ctx, points)
}

func (s *Store) AssignRanks(ctx context.Context, ranks []persistence.RankAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.AssignRanks(ctx, ranks)
}

func (s *Store) CreatePayment(ctx context.Context, payment persistence.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.CreatePayment(ctx, payment)
}

func (s *Store) GetPayment(ctx context.Context, reference string) (persistence.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetPayment(ctx, reference)
}

func (s *Store) SettlePayment(ctx context.Context, settlement persistence.PaymentSettlement) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.SettlePayment(ctx, settlement)
}

func (s *Store) AppendSessionLog(ctx context.Context, entry persistence.SessionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.AppendSessionLog(ctx, entry)
}

func (s *Store) ListSessionLogs(ctx context.Context, sessionID string) ([]persistence.SessionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListSessionLogs(ctx, sessionID)
}

func (s *Store) AppendErrorLog(ctx context.Context, entry persistence.ErrorLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.AppendErrorLog(ctx, entry)
}
