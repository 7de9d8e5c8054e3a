package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/readingattendance/readingd/internal/persistence"
)

// queries implements persistence.Tx on either the pool or an open transaction.
type queries struct {
	ext sqlx.ExtContext
}

func (q queries) get(ctx context.Context, dest any, query string, args ...any) error {
	return mapError(sqlx.GetContext(ctx, q.ext, dest, q.ext.Rebind(query), args...))
}

func (q queries) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	return mapError(sqlx.SelectContext(ctx, q.ext, dest, q.ext.Rebind(query), args...))
}

func (q queries) exec(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := q.ext.ExecContext(ctx, q.ext.Rebind(query), args...)
	if err != nil {
		return 0, mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlstore: rows affected: %w", err)
	}
	return affected, nil
}

// --- SessionRepository ---

func (q queries) CreateSession(ctx context.Context, session persistence.Session) error {
	const query = `INSERT INTO sessions (` + sessionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var duration any
	if session.DurationMinutes != nil {
		duration = *session.DurationMinutes
	}
	_, err := q.exec(ctx, query,
		session.ID,
		session.UserID,
		formatTime(session.StartAt),
		formatNullableTime(session.EndAt),
		duration,
		boolToInt(session.Completed),
		boolToInt(session.PointsAwarded),
		boolToInt(session.Disconnected),
		formatNullableTime(session.DisconnectedAt),
		boolToInt(session.AutoCompleted),
		formatTime(session.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlstore: create session: %w", err)
	}
	return nil
}

func (q queries) GetSession(ctx context.Context, id string) (persistence.Session, error) {
	var row sessionRow
	if err := q.get(ctx, &row, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id); err != nil {
		return persistence.Session{}, err
	}
	return row.toModel()
}

func (q queries) FindActiveSession(ctx context.Context, userID string) (persistence.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions
		WHERE user_id = ? AND completed = 0
		ORDER BY start_at DESC
		LIMIT 1`

	var row sessionRow
	if err := q.get(ctx, &row, query, userID); err != nil {
		return persistence.Session{}, err
	}
	return row.toModel()
}

func (q queries) CompleteSession(ctx context.Context, completion persistence.SessionCompletion) (bool, error) {
	const query = `UPDATE sessions
		SET completed = 1, end_at = ?, duration_minutes = ?, points_awarded = ?, auto_completed = ?
		WHERE id = ? AND completed = 0 AND (disconnected = 0 OR ? = 0)`

	awarded := boolToInt(completion.PointsAwarded)
	affected, err := q.exec(ctx, query,
		formatTime(completion.EndAt),
		completion.DurationMinutes,
		awarded,
		boolToInt(completion.AutoCompleted),
		completion.SessionID,
		awarded,
	)
	if err != nil {
		return false, fmt.Errorf("sqlstore: complete session: %w", err)
	}
	return affected == 1, nil
}

func (q queries) MarkDisconnected(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `UPDATE sessions SET disconnected = 1, disconnected_at = ?
		WHERE id = ? AND completed = 0 AND disconnected = 0`

	affected, err := q.exec(ctx, query, formatTime(at), id)
	if err != nil {
		return false, fmt.Errorf("sqlstore: mark disconnected: %w", err)
	}
	return affected == 1, nil
}

func (q queries) ListDueSessions(ctx context.Context, startedBefore time.Time, after *persistence.SessionCursor, limit int) ([]persistence.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
		WHERE completed = 0 AND disconnected = 0 AND start_at <= ?`
	args := []any{formatTime(startedBefore)}
	if after != nil {
		query += ` AND (start_at > ? OR (start_at = ? AND id > ?))`
		cursorAt := formatTime(after.StartAt)
		args = append(args, cursorAt, cursorAt, after.ID)
	}
	query += ` ORDER BY start_at ASC, id ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []sessionRow
	if err := q.selectAll(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("sqlstore: list due sessions: %w", err)
	}
	sessions := make([]persistence.Session, 0, len(rows))
	for _, row := range rows {
		session, err := row.toModel()
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func (q queries) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	deleted, err := q.exec(ctx, `DELETE FROM sessions WHERE created_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("sqlstore: delete sessions: %w", err)
	}
	return deleted, nil
}

// --- UserRepository ---

func (q queries) CreateUser(ctx context.Context, user persistence.User) error {
	const query = `INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := q.exec(ctx, query,
		user.ID,
		strings.ToLower(user.Email),
		user.PasswordHash,
		user.Points,
		user.Rank,
		boolToInt(user.PaymentStatus),
		user.PaymentReference,
		formatNullableTime(user.PaymentVerifiedAt),
		formatNullableTime(user.LastSessionCompletedAt),
		formatNullableTime(user.LastActiveAt),
		formatTime(user.CreatedAt),
		formatTime(user.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlstore: create user: %w", err)
	}
	return nil
}

func (q queries) GetUser(ctx context.Context, id string) (persistence.User, error) {
	var row userRow
	if err := q.get(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id = ?`, id); err != nil {
		return persistence.User{}, err
	}
	return row.toModel()
}

func (q queries) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	var row userRow
	if err := q.get(ctx, &row, `SELECT `+userColumns+` FROM users WHERE email = ?`, strings.ToLower(email)); err != nil {
		return persistence.User{}, err
	}
	return row.toModel()
}

func (q queries) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := q.get(ctx, &count, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("sqlstore: count users: %w", err)
	}
	return count, nil
}

func (q queries) AwardPoint(ctx context.Context, userID string, at time.Time) error {
	const query = `UPDATE users
		SET points = points + 1, last_session_completed_at = ?, last_active_at = ?, updated_at = ?
		WHERE id = ?`

	stamp := formatTime(at)
	affected, err := q.exec(ctx, query, stamp, stamp, stamp, userID)
	if err != nil {
		return fmt.Errorf("sqlstore: award point: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (q queries) GrantPayment(ctx context.Context, userID, reference string, at time.Time) error {
	const query = `UPDATE users
		SET payment_status = 1, payment_reference = ?, payment_verified_at = ?, updated_at = ?
		WHERE id = ?`

	stamp := formatTime(at)
	affected, err := q.exec(ctx, query, reference, stamp, stamp, userID)
	if err != nil {
		return fmt.Errorf("sqlstore: grant payment: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (q queries) ListUsersByStanding(ctx context.Context, limit int) ([]persistence.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY points DESC, created_at ASC, id ASC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []userRow
	if err := q.selectAll(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("sqlstore: list users: %w", err)
	}
	users := make([]persistence.User, 0, len(rows))
	for _, row := range rows {
		user, err := row.toModel()
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

func (q queries) CountUsersWithMorePoints(ctx context.Context, points int) (int, error) {
	var count int
	if err := q.get(ctx, &count, `SELECT COUNT(*) FROM users WHERE points > ?`, points); err != nil {
		return 0, fmt.Errorf("sqlstore: count users: %w", err)
	}
	return count, nil
}

func (q queries) AssignRanks(ctx context.Context, ranks []persistence.RankAssignment) error {
	for _, assignment := range ranks {
		if _, err := q.exec(ctx, `UPDATE users SET leaderboard_rank = ? WHERE id = ?`, assignment.Rank, assignment.UserID); err != nil {
			return fmt.Errorf("sqlstore: assign rank to %s: %w", assignment.UserID, err)
		}
	}
	return nil
}

// --- PaymentRepository ---

func (q queries) CreatePayment(ctx context.Context, payment persistence.Payment) error {
	const query = `INSERT INTO payments (` + paymentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := q.exec(ctx, query,
		payment.Reference,
		payment.UserID,
		payment.Email,
		payment.Amount,
		payment.Currency,
		string(payment.Status),
		payment.Provider,
		payment.ProviderReference,
		payment.AmountPaid,
		formatNullableTime(payment.VerifiedAt),
		boolToInt(payment.WebhookVerified),
		formatTime(payment.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlstore: create payment: %w", err)
	}
	return nil
}

func (q queries) GetPayment(ctx context.Context, reference string) (persistence.Payment, error) {
	var row paymentRow
	if err := q.get(ctx, &row, `SELECT `+paymentColumns+` FROM payments WHERE reference = ?`, reference); err != nil {
		return persistence.Payment{}, err
	}
	return row.toModel()
}

func (q queries) SettlePayment(ctx context.Context, settlement persistence.PaymentSettlement) (bool, error) {
	const query = `UPDATE payments
		SET status = ?, provider_reference = ?, amount_paid = ?, verified_at = ?, webhook_verified = ?
		WHERE reference = ? AND status = ?`

	affected, err := q.exec(ctx, query,
		string(persistence.PaymentSuccess),
		settlement.ProviderReference,
		settlement.AmountPaid,
		formatTime(settlement.VerifiedAt),
		boolToInt(settlement.WebhookVerified),
		settlement.Reference,
		string(persistence.PaymentPending),
	)
	if err != nil {
		return false, fmt.Errorf("sqlstore: settle payment: %w", err)
	}
	return affected == 1, nil
}

// --- AuditRepository ---

func (q queries) AppendSessionLog(ctx context.Context, entry persistence.SessionLog) error {
	const query = `INSERT INTO session_logs (id, session_id, user_id, event_type, event_data, created_at) VALUES (?, ?, ?, ?, ?, ?)`

	if _, err := q.exec(ctx, query, entry.ID, entry.SessionID, entry.UserID, entry.EventType, entry.EventData, formatTime(entry.CreatedAt)); err != nil {
		return fmt.Errorf("sqlstore: append session log: %w", err)
	}
	return nil
}

func (q queries) ListSessionLogs(ctx context.Context, sessionID string) ([]persistence.SessionLog, error) {
	const query = `SELECT id, session_id, user_id, event_type, event_data, created_at
		FROM session_logs WHERE session_id = ? ORDER BY created_at ASC, id ASC`

	var rows []sessionLogRow
	if err := q.selectAll(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("sqlstore: list session logs: %w", err)
	}
	logs := make([]persistence.SessionLog, 0, len(rows))
	for _, row := range rows {
		createdAt, err := parseTime(row.CreatedAt)
		if err != nil {
			return nil, err
		}
		logs = append(logs, persistence.SessionLog{
			ID:        row.ID,
			SessionID: row.SessionID,
			UserID:    row.UserID,
			EventType: row.EventType,
			EventData: row.EventData,
			CreatedAt: createdAt,
		})
	}
	return logs, nil
}

func (q queries) AppendErrorLog(ctx context.Context, entry persistence.ErrorLog) error {
	const query = `INSERT INTO error_logs (id, operation, user_id, message, details, created_at) VALUES (?, ?, ?, ?, ?, ?)`

	details := entry.Details
	if details == "" {
		details = "{}"
	}
	if _, err := q.exec(ctx, query, entry.ID, entry.Operation, entry.UserID, entry.Message, details, formatTime(entry.CreatedAt)); err != nil {
		return fmt.Errorf("sqlstore: append error log: %w", err)
	}
	return nil
}
