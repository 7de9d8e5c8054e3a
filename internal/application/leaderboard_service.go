package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/readingattendance/readingd/internal/persistence"
)

const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
)

// LeaderboardService computes ranks and serves the leaderboard.
type LeaderboardService struct {
	store    persistence.Store
	now      func() time.Time
	recorder Recorder
	reporter errorReporter
	logger   *slog.Logger
}

// NewLeaderboardService constructs a LeaderboardService.
func NewLeaderboardService(store persistence.Store, now func() time.Time, eventIDs func() string, recorder Recorder) *LeaderboardService {
	return NewLeaderboardServiceWithLogger(store, now, eventIDs, recorder, nil)
}

// NewLeaderboardServiceWithLogger constructs a LeaderboardService with a specified logger.
func NewLeaderboardServiceWithLogger(store persistence.Store, now func() time.Time, eventIDs func() string, recorder Recorder, logger *slog.Logger) *LeaderboardService {
	if now == nil {
		now = time.Now
	}
	return &LeaderboardService{
		store:    store,
		now:      now,
		recorder: defaultRecorder(recorder),
		reporter: errorReporter{audit: store, eventIDs: eventIDs, now: now},
		logger:   defaultLogger(logger),
	}
}

func (s *LeaderboardService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "LeaderboardService", operation, attrs...)
}

// RecomputeRanks assigns every user a 1-based rank by points descending,
// earlier sign-ups first on ties, and writes all ranks in one transaction.
// Points awarded while this runs are picked up by the next run.
func (s *LeaderboardService) RecomputeRanks(ctx context.Context) (ranked int, err error) {
	if s == nil || s.store == nil {
		err = fmt.Errorf("leaderboard store not configured")
		return
	}

	logger := s.loggerWith(ctx, "RecomputeRanks")
	defer func() {
		if err != nil {
			err = s.reporter.wrap(ctx, logger, "updateRankings", "", err)
			logOutcome(ctx, logger, "rank recomputation failed", err)
			return
		}
		s.recorder.RanksRecomputed(ranked)
		logger.With("users", ranked).InfoContext(ctx, "ranks recomputed")
	}()

	err = s.store.WithinTx(ctx, func(tx persistence.Tx) error {
		users, listErr := tx.ListUsersByStanding(ctx, 0)
		if listErr != nil {
			return listErr
		}
		assignments := make([]persistence.RankAssignment, 0, len(users))
		for i, user := range users {
			assignments = append(assignments, persistence.RankAssignment{UserID: user.ID, Rank: i + 1})
		}
		if assignErr := tx.AssignRanks(ctx, assignments); assignErr != nil {
			return assignErr
		}
		ranked = len(assignments)
		return nil
	})
	return
}

// Leaderboard returns the top readers with masked emails. limit defaults to
// DefaultLeaderboardLimit and is capped at MaxLeaderboardLimit.
func (s *LeaderboardService) Leaderboard(ctx context.Context, principal Principal, limit int) (entries []LeaderboardEntry, err error) {
	if s == nil || s.store == nil {
		err = fmt.Errorf("leaderboard store not configured")
		return
	}

	logger := s.loggerWith(ctx, "Leaderboard", "user_id", principal.UserID, "limit", limit)
	defer func() {
		if err != nil {
			err = s.reporter.wrap(ctx, logger, "getLeaderboard", principal.UserID, err)
			logOutcome(ctx, logger, "leaderboard lookup failed", err)
		}
	}()

	if strings.TrimSpace(principal.UserID) == "" {
		err = newError(KindUnauthenticated, "authentication required")
		return
	}
	switch {
	case limit == 0:
		limit = DefaultLeaderboardLimit
	case limit < 0:
		vErr := &ValidationError{}
		vErr.add("limit", "limit must be positive")
		err = vErr
		return
	case limit > MaxLeaderboardLimit:
		limit = MaxLeaderboardLimit
	}

	users, err := s.store.ListUsersByStanding(ctx, limit)
	if err != nil {
		return
	}
	entries = make([]LeaderboardEntry, 0, len(users))
	for i, user := range users {
		entries = append(entries, LeaderboardEntry{
			Rank:   i + 1,
			UserID: user.ID,
			Email:  MaskEmail(user.Email),
			Points: user.Points,
		})
	}
	return
}

// Profile returns the caller's standing, including a live rank computed from
// current points rather than the last recomputation.
func (s *LeaderboardService) Profile(ctx context.Context, principal Principal) (profile Profile, err error) {
	if s == nil || s.store == nil {
		err = fmt.Errorf("leaderboard store not configured")
		return
	}

	logger := s.loggerWith(ctx, "Profile", "user_id", principal.UserID)
	defer func() {
		if err != nil {
			err = s.reporter.wrap(ctx, logger, "getProfile", principal.UserID, err)
			logOutcome(ctx, logger, "profile lookup failed", err)
		}
	}()

	if strings.TrimSpace(principal.UserID) == "" {
		err = newError(KindUnauthenticated, "authentication required")
		return
	}

	user, err := s.store.GetUser(ctx, principal.UserID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = newError(KindNotFound, "user not found")
		}
		return
	}
	ahead, err := s.store.CountUsersWithMorePoints(ctx, user.Points)
	if err != nil {
		return
	}

	profile = Profile{
		UserID:        user.ID,
		Email:         user.Email,
		Points:        user.Points,
		Rank:          user.Rank,
		LiveRank:      ahead + 1,
		PaymentStatus: user.PaymentStatus,
	}
	return
}

// MaskEmail keeps the first and last character of the local part:
// alice@example.com becomes a***e@example.com. Local parts of two characters
// or fewer are returned unchanged.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	local, domain := []rune(email[:at]), email[at:]
	if len(local) <= 2 {
		return email
	}
	return string(local[0]) + strings.Repeat("*", len(local)-2) + string(local[len(local)-1]) + domain
}
