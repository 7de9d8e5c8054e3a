package sqlstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/readingattendance/readingd/internal/persistence"
)

// timeLayout is fixed width so lexical comparison in SQL matches time order.
const timeLayout = "2006-01-02 15:04:05.000000000"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatNullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(value string) (time.Time, error) {
	t, err := time.ParseInLocation(timeLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlstore: parse time %q: %w", value, err)
	}
	return t, nil
}

func parseNullableTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	t, err := parseTime(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

type sessionRow struct {
	ID              string         `db:"id"`
	UserID          string         `db:"user_id"`
	StartAt         string         `db:"start_at"`
	EndAt           sql.NullString `db:"end_at"`
	DurationMinutes sql.NullInt64  `db:"duration_minutes"`
	Completed       int            `db:"completed"`
	PointsAwarded   int            `db:"points_awarded"`
	Disconnected    int            `db:"disconnected"`
	DisconnectedAt  sql.NullString `db:"disconnected_at"`
	AutoCompleted   int            `db:"auto_completed"`
	CreatedAt       string         `db:"created_at"`
}

const sessionColumns = `id, user_id, start_at, end_at, duration_minutes, completed, points_awarded, disconnected, disconnected_at, auto_completed, created_at`

func (r sessionRow) toModel() (persistence.Session, error) {
	startAt, err := parseTime(r.StartAt)
	if err != nil {
		return persistence.Session{}, err
	}
	createdAt, err := parseTime(r.CreatedAt)
	if err != nil {
		return persistence.Session{}, err
	}
	endAt, err := parseNullableTime(r.EndAt)
	if err != nil {
		return persistence.Session{}, err
	}
	disconnectedAt, err := parseNullableTime(r.DisconnectedAt)
	if err != nil {
		return persistence.Session{}, err
	}

	session := persistence.Session{
		ID:             r.ID,
		UserID:         r.UserID,
		StartAt:        startAt,
		EndAt:          endAt,
		Completed:      r.Completed != 0,
		PointsAwarded:  r.PointsAwarded != 0,
		Disconnected:   r.Disconnected != 0,
		DisconnectedAt: disconnectedAt,
		AutoCompleted:  r.AutoCompleted != 0,
		CreatedAt:      createdAt,
	}
	if r.DurationMinutes.Valid {
		duration := int(r.DurationMinutes.Int64)
		session.DurationMinutes = &duration
	}
	return session, nil
}

type userRow struct {
	ID                     string         `db:"id"`
	Email                  string         `db:"email"`
	PasswordHash           string         `db:"password_hash"`
	Points                 int            `db:"points"`
	Rank                   int            `db:"leaderboard_rank"`
	PaymentStatus          int            `db:"payment_status"`
	PaymentReference       string         `db:"payment_reference"`
	PaymentVerifiedAt      sql.NullString `db:"payment_verified_at"`
	LastSessionCompletedAt sql.NullString `db:"last_session_completed_at"`
	LastActiveAt           sql.NullString `db:"last_active_at"`
	CreatedAt              string         `db:"created_at"`
	UpdatedAt              string         `db:"updated_at"`
}

const userColumns = `id, email, password_hash, points, leaderboard_rank, payment_status, payment_reference, payment_verified_at, last_session_completed_at, last_active_at, created_at, updated_at`

func (r userRow) toModel() (persistence.User, error) {
	createdAt, err := parseTime(r.CreatedAt)
	if err != nil {
		return persistence.User{}, err
	}
	updatedAt, err := parseTime(r.UpdatedAt)
	if err != nil {
		return persistence.User{}, err
	}
	verifiedAt, err := parseNullableTime(r.PaymentVerifiedAt)
	if err != nil {
		return persistence.User{}, err
	}
	lastCompleted, err := parseNullableTime(r.LastSessionCompletedAt)
	if err != nil {
		return persistence.User{}, err
	}
	lastActive, err := parseNullableTime(r.LastActiveAt)
	if err != nil {
		return persistence.User{}, err
	}

	return persistence.User{
		ID:                     r.ID,
		Email:                  r.Email,
		PasswordHash:           r.PasswordHash,
		Points:                 r.Points,
		Rank:                   r.Rank,
		PaymentStatus:          r.PaymentStatus != 0,
		PaymentReference:       r.PaymentReference,
		PaymentVerifiedAt:      verifiedAt,
		LastSessionCompletedAt: lastCompleted,
		LastActiveAt:           lastActive,
		CreatedAt:              createdAt,
		UpdatedAt:              updatedAt,
	}, nil
}

type paymentRow struct {
	Reference         string         `db:"reference"`
	UserID            string         `db:"user_id"`
	Email             string         `db:"email"`
	Amount            int64          `db:"amount"`
	Currency          string         `db:"currency"`
	Status            string         `db:"status"`
	Provider          string         `db:"provider"`
	ProviderReference string         `db:"provider_reference"`
	AmountPaid        int64          `db:"amount_paid"`
	VerifiedAt        sql.NullString `db:"verified_at"`
	WebhookVerified   int            `db:"webhook_verified"`
	CreatedAt         string         `db:"created_at"`
}

const paymentColumns = `reference, user_id, email, amount, currency, status, provider, provider_reference, amount_paid, verified_at, webhook_verified, created_at`

func (r paymentRow) toModel() (persistence.Payment, error) {
	createdAt, err := parseTime(r.CreatedAt)
	if err != nil {
		return persistence.Payment{}, err
	}
	verifiedAt, err := parseNullableTime(r.VerifiedAt)
	if err != nil {
		return persistence.Payment{}, err
	}
	return persistence.Payment{
		Reference:         r.Reference,
		UserID:            r.UserID,
		Email:             r.Email,
		Amount:            r.Amount,
		Currency:          r.Currency,
		Status:            persistence.PaymentStatus(r.Status),
		Provider:          r.Provider,
		ProviderReference: r.ProviderReference,
		AmountPaid:        r.AmountPaid,
		VerifiedAt:        verifiedAt,
		WebhookVerified:   r.WebhookVerified != 0,
		CreatedAt:         createdAt,
	}, nil
}

type sessionLogRow struct {
	ID        string `db:"id"`
	SessionID string `db:"session_id"`
	UserID    string `db:"user_id"`
	EventType string `db:"event_type"`
	EventData string `db:"event_data"`
	CreatedAt string `db:"created_at"`
}
