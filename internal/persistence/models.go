package persistence

import "time"

// Session is a single timed reading session.
type Session struct {
	ID              string
	UserID          string
	StartAt         time.Time
	EndAt           *time.Time
	DurationMinutes *int
	Completed       bool
	PointsAwarded   bool
	Disconnected    bool
	DisconnectedAt  *time.Time
	AutoCompleted   bool
	CreatedAt       time.Time
}

// User is a registered reader together with their score and payment state.
type User struct {
	ID                     string
	Email                  string
	PasswordHash           string
	Points                 int
	Rank                   int
	PaymentStatus          bool
	PaymentReference       string
	PaymentVerifiedAt      *time.Time
	LastSessionCompletedAt *time.Time
	LastActiveAt           *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// PaymentStatus is the settlement state of a payment record.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentSuccess PaymentStatus = "success"
)

// Payment tracks a single checkout attempt with the payment provider.
type Payment struct {
	Reference         string
	UserID            string
	Email             string
	Amount            int64
	Currency          string
	Status            PaymentStatus
	Provider          string
	ProviderReference string
	AmountPaid        int64
	VerifiedAt        *time.Time
	WebhookVerified   bool
	CreatedAt         time.Time
}

// SessionLog is an append-only audit entry about a session.
type SessionLog struct {
	ID        string
	SessionID string
	UserID    string
	EventType string
	EventData string
	CreatedAt time.Time
}

// ErrorLog is an append-only record of an unexpected failure.
type ErrorLog struct {
	ID        string
	Operation string
	UserID    string
	Message   string
	Details   string
	CreatedAt time.Time
}

// SessionCompletion describes the terminal write applied to a session.
type SessionCompletion struct {
	SessionID       string
	EndAt           time.Time
	DurationMinutes int
	PointsAwarded   bool
	AutoCompleted   bool
}

// PaymentSettlement describes the pending to success transition of a payment.
type PaymentSettlement struct {
	Reference         string
	ProviderReference string
	AmountPaid        int64
	VerifiedAt        time.Time
	WebhookVerified   bool
}

// RankAssignment pairs a user with a recomputed leaderboard position.
type RankAssignment struct {
	UserID string
	Rank   int
}
