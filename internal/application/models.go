package application

import "time"

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID string
}

// CompletionResult is returned by a successful manual completion.
type CompletionResult struct {
	Points          int
	DurationMinutes int
}

// VerifyResult reports whether a session exists. Session is nil when Found is
// false.
type VerifyResult struct {
	Found     bool
	SessionID string
	Session   *SessionSnapshot
}

// SessionSnapshot is a session as shown to clients, without its owner.
type SessionSnapshot struct {
	ID              string
	StartAt         time.Time
	EndAt           *time.Time
	DurationMinutes *int
	Completed       bool
	PointsAwarded   bool
	Disconnected    bool
	AutoCompleted   bool
}

// SweepResult summarises one auto-completion pass.
type SweepResult struct {
	Scanned   int
	Completed int
}

// LeaderboardEntry is a masked leaderboard row.
type LeaderboardEntry struct {
	Rank   int
	UserID string
	Email  string
	Points int
}

// Profile is the caller's own standing.
type Profile struct {
	UserID        string
	Email         string
	Points        int
	Rank          int
	LiveRank      int
	PaymentStatus bool
}

// CreatePaymentParams carries the checkout request.
type CreatePaymentParams struct {
	Email  string
	Amount int64
}

// CreatePaymentResult identifies the pending payment.
type CreatePaymentResult struct {
	Reference string
}

// VerifyPaymentResult reports the settled amount in minor units.
type VerifyPaymentResult struct {
	Amount   int64
	Currency string
}

// ProviderTransaction is the provider's view of a transaction.
type ProviderTransaction struct {
	Reference string
	Status    string
	Amount    int64
	Currency  string
	ID        string
}

// ChargeEvent is a decoded charge.success webhook event.
type ChargeEvent struct {
	Reference string
	Amount    int64
	Currency  string
	Status    string
	ID        string
}

// RegisterParams carries a sign-up request.
type RegisterParams struct {
	Email    string
	Password string
}

// Account is a registered user as returned to clients.
type Account struct {
	UserID        string
	Email         string
	PaymentStatus bool
	CreatedAt     time.Time
}

// LoginParams carries a sign-in request.
type LoginParams struct {
	Email    string
	Password string
}

// LoginResult contains an issued bearer token.
type LoginResult struct {
	Account   Account
	Token     string
	ExpiresAt time.Time
}
