package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/readingattendance/readingd/internal/persistence"
)

// state holds every table. Callers must hold the store mutex.
type state struct {
	sessions    map[string]persistence.Session
	users       map[string]persistence.User
	payments    map[string]persistence.Payment
	sessionLogs []persistence.SessionLog
	errorLogs   []persistence.ErrorLog
}

func newState() *state {
	return &state{
		sessions: make(map[string]persistence.Session),
		users:    make(map[string]persistence.User),
		payments: make(map[string]persistence.Payment),
	}
}

func (st *state) clone() *state {
	out := &state{
		sessions:    make(map[string]persistence.Session, len(st.sessions)),
		users:       make(map[string]persistence.User, len(st.users)),
		payments:    make(map[string]persistence.Payment, len(st.payments)),
		sessionLogs: append([]persistence.SessionLog(nil), st.sessionLogs...),
		errorLogs:   append([]persistence.ErrorLog(nil), st.errorLogs...),
	}
	for id, session := range st.sessions {
		out.sessions[id] = cloneSession(session)
	}
	for id, user := range st.users {
		out.users[id] = cloneUser(user)
	}
	for ref, payment := range st.payments {
		out.payments[ref] = clonePayment(payment)
	}
	return out
}

// --- SessionRepository ---

func (st *state) CreateSession(_ context.Context, session persistence.Session) error {
	if _, ok := st.sessions[session.ID]; ok {
		return fmt.Errorf("memory: session %s: %w", session.ID, persistence.ErrConflict)
	}
	if !session.Completed {
		for _, existing := range st.sessions {
			if existing.UserID == session.UserID && !existing.Completed {
				return fmt.Errorf("memory: active session for %s: %w", session.UserID, persistence.ErrConflict)
			}
		}
	}
	st.sessions[session.ID] = cloneSession(session)
	return nil
}

func (st *state) GetSession(_ context.Context, id string) (persistence.Session, error) {
	session, ok := st.sessions[id]
	if !ok {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return cloneSession(session), nil
}

func (st *state) FindActiveSession(_ context.Context, userID string) (persistence.Session, error) {
	var (
		found  persistence.Session
		exists bool
	)
	for _, session := range st.sessions {
		if session.UserID != userID || session.Completed {
			continue
		}
		if !exists || session.StartAt.After(found.StartAt) {
			found = session
			exists = true
		}
	}
	if !exists {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return cloneSession(found), nil
}

func (st *state) CompleteSession(_ context.Context, completion persistence.SessionCompletion) (bool, error) {
	session, ok := st.sessions[completion.SessionID]
	if !ok || session.Completed {
		return false, nil
	}
	if session.Disconnected && completion.PointsAwarded {
		return false, nil
	}
	end := completion.EndAt
	duration := completion.DurationMinutes
	session.Completed = true
	session.EndAt = &end
	session.DurationMinutes = &duration
	session.PointsAwarded = completion.PointsAwarded
	session.AutoCompleted = completion.AutoCompleted
	st.sessions[session.ID] = session
	return true, nil
}

func (st *state) MarkDisconnected(_ context.Context, id string, at time.Time) (bool, error) {
	session, ok := st.sessions[id]
	if !ok || session.Completed || session.Disconnected {
		return false, nil
	}
	session.Disconnected = true
	session.DisconnectedAt = &at
	st.sessions[id] = session
	return true, nil
}

func (st *state) ListDueSessions(_ context.Context, startedBefore time.Time, after *persistence.SessionCursor, limit int) ([]persistence.Session, error) {
	due := make([]persistence.Session, 0)
	for _, session := range st.sessions {
		if session.Completed || session.Disconnected || session.StartAt.After(startedBefore) {
			continue
		}
		if after != nil && !sessionAfter(session, *after) {
			continue
		}
		due = append(due, cloneSession(session))
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].StartAt.Equal(due[j].StartAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].StartAt.Before(due[j].StartAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func sessionAfter(session persistence.Session, cursor persistence.SessionCursor) bool {
	if session.StartAt.Equal(cursor.StartAt) {
		return session.ID > cursor.ID
	}
	return session.StartAt.After(cursor.StartAt)
}

func (st *state) DeleteSessionsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	for id, session := range st.sessions {
		if session.CreatedAt.Before(cutoff) {
			delete(st.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

// --- UserRepository ---

func (st *state) CreateUser(_ context.Context, user persistence.User) error {
	if _, ok := st.users[user.ID]; ok {
		return fmt.Errorf("memory: user %s: %w", user.ID, persistence.ErrConflict)
	}
	lower := strings.ToLower(user.Email)
	for _, existing := range st.users {
		if strings.ToLower(existing.Email) == lower {
			return fmt.Errorf("memory: email %s: %w", user.Email, persistence.ErrConflict)
		}
	}
	st.users[user.ID] = cloneUser(user)
	return nil
}

func (st *state) GetUser(_ context.Context, id string) (persistence.User, error) {
	user, ok := st.users[id]
	if !ok {
		return persistence.User{}, persistence.ErrNotFound
	}
	return cloneUser(user), nil
}

func (st *state) GetUserByEmail(_ context.Context, email string) (persistence.User, error) {
	lower := strings.ToLower(email)
	for _, user := range st.users {
		if strings.ToLower(user.Email) == lower {
			return cloneUser(user), nil
		}
	}
	return persistence.User{}, persistence.ErrNotFound
}

func (st *state) CountUsers(context.Context) (int, error) {
	return len(st.users), nil
}

func (st *state) AwardPoint(_ context.Context, userID string, at time.Time) error {
	user, ok := st.users[userID]
	if !ok {
		return persistence.ErrNotFound
	}
	user.Points++
	user.LastSessionCompletedAt = &at
	user.LastActiveAt = &at
	user.UpdatedAt = at
	st.users[userID] = user
	return nil
}

func (st *state) GrantPayment(_ context.Context, userID, reference string, at time.Time) error {
	user, ok := st.users[userID]
	if !ok {
		return persistence.ErrNotFound
	}
	user.PaymentStatus = true
	user.PaymentReference = reference
	user.PaymentVerifiedAt = &at
	user.UpdatedAt = at
	st.users[userID] = user
	return nil
}

func (st *state) ListUsersByStanding(_ context.Context, limit int) ([]persistence.User, error) {
	users := make([]persistence.User, 0, len(st.users))
	for _, user := range st.users {
		users = append(users, cloneUser(user))
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Points != users[j].Points {
			return users[i].Points > users[j].Points
		}
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].ID < users[j].ID
	})
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (st *state) CountUsersWithMorePoints(_ context.Context, points int) (int, error) {
	count := 0
	for _, user := range st.users {
		if user.Points > points {
			count++
		}
	}
	return count, nil
}

func (st *state) AssignRanks(_ context.Context, ranks []persistence.RankAssignment) error {
	for _, assignment := range ranks {
		user, ok := st.users[assignment.UserID]
		if !ok {
			continue
		}
		user.Rank = assignment.Rank
		st.users[assignment.UserID] = user
	}
	return nil
}

// --- PaymentRepository ---

func (st *state) CreatePayment(_ context.Context, payment persistence.Payment) error {
	if _, ok := st.payments[payment.Reference]; ok {
		return fmt.Errorf("memory: payment %s: %w", payment.Reference, persistence.ErrConflict)
	}
	st.payments[payment.Reference] = clonePayment(payment)
	return nil
}

func (st *state) GetPayment(_ context.Context, reference string) (persistence.Payment, error) {
	payment, ok := st.payments[reference]
	if !ok {
		return persistence.Payment{}, persistence.ErrNotFound
	}
	return clonePayment(payment), nil
}

func (st *state) SettlePayment(_ context.Context, settlement persistence.PaymentSettlement) (bool, error) {
	payment, ok := st.payments[settlement.Reference]
	if !ok || payment.Status != persistence.PaymentPending {
		return false, nil
	}
	verifiedAt := settlement.VerifiedAt
	payment.Status = persistence.PaymentSuccess
	payment.ProviderReference = settlement.ProviderReference
	payment.AmountPaid = settlement.AmountPaid
	payment.VerifiedAt = &verifiedAt
	payment.WebhookVerified = settlement.WebhookVerified
	st.payments[payment.Reference] = payment
	return true, nil
}

// --- AuditRepository ---

func (st *state) AppendSessionLog(_ context.Context, entry persistence.SessionLog) error {
	st.sessionLogs = append(st.sessionLogs, entry)
	return nil
}

func (st *state) ListSessionLogs(_ context.Context, sessionID string) ([]persistence.SessionLog, error) {
	logs := make([]persistence.SessionLog, 0)
	for _, entry := range st.sessionLogs {
		if entry.SessionID == sessionID {
			logs = append(logs, entry)
		}
	}
	return logs, nil
}

func (st *state) AppendErrorLog(_ context.Context, entry persistence.ErrorLog) error {
	st.errorLogs = append(st.errorLogs, entry)
	return nil
}

func cloneSession(session persistence.Session) persistence.Session {
	clone := session
	clone.EndAt = cloneTime(session.EndAt)
	clone.DisconnectedAt = cloneTime(session.DisconnectedAt)
	if session.DurationMinutes != nil {
		duration := *session.DurationMinutes
		clone.DurationMinutes = &duration
	}
	return clone
}

func cloneUser(user persistence.User) persistence.User {
	clone := user
	clone.PaymentVerifiedAt = cloneTime(user.PaymentVerifiedAt)
	clone.LastSessionCompletedAt = cloneTime(user.LastSessionCompletedAt)
	clone.LastActiveAt = cloneTime(user.LastActiveAt)
	return clone
}

func clonePayment(payment persistence.Payment) persistence.Payment {
	clone := payment
	clone.VerifiedAt = cloneTime(payment.VerifiedAt)
	return clone
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	copied := *t
	return &copied
}
