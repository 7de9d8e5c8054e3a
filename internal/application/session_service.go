package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/readingattendance/readingd/internal/persistence"
)

const (
	// DefaultMinSessionDuration is the reading time required to earn a point.
	DefaultMinSessionDuration = 60 * time.Minute
	// DefaultSessionRetention is how long sessions are kept before cleanup.
	DefaultSessionRetention = 30 * 24 * time.Hour
	// DefaultSweepBatchSize bounds the sessions completed per sweep query.
	DefaultSweepBatchSize = 100

	eventManualVerification = "manual_verification"
)

// SessionConfig tunes the session lifecycle.
type SessionConfig struct {
	MinDuration    time.Duration
	Retention      time.Duration
	SweepBatchSize int
	// EventIDs generates ids for session and error log entries.
	EventIDs func() string
	Recorder Recorder
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.MinDuration <= 0 {
		c.MinDuration = DefaultMinSessionDuration
	}
	if c.Retention <= 0 {
		c.Retention = DefaultSessionRetention
	}
	if c.SweepBatchSize <= 0 {
		c.SweepBatchSize = DefaultSweepBatchSize
	}
	return c
}

// SessionService runs the reading session lifecycle: start, complete,
// verify, disconnect, scheduled auto-completion and cleanup.
type SessionService struct {
	store       persistence.Store
	idGenerator func() string
	now         func() time.Time
	cfg         SessionConfig
	recorder    Recorder
	reporter    errorReporter
	logger      *slog.Logger
}

// NewSessionService constructs a SessionService with the provided dependencies.
func NewSessionService(store persistence.Store, idGenerator func() string, now func() time.Time, cfg SessionConfig) *SessionService {
	return NewSessionServiceWithLogger(store, idGenerator, now, cfg, nil)
}

// NewSessionServiceWithLogger constructs a SessionService with a specified logger.
func NewSessionServiceWithLogger(store persistence.Store, idGenerator func() string, now func() time.Time, cfg SessionConfig, logger *slog.Logger) *SessionService {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	cfg = cfg.withDefaults()
	return &SessionService{
		store:       store,
		idGenerator: idGenerator,
		now:         now,
		cfg:         cfg,
		recorder:    defaultRecorder(cfg.Recorder),
		reporter:    errorReporter{audit: store, eventIDs: cfg.EventIDs, now: now},
		logger:      defaultLogger(logger),
	}
}

func (s *SessionService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SessionService", operation, attrs...)
}

func (s *SessionService) ready() error {
	if s == nil {
		return fmt.Errorf("SessionService is nil")
	}
	if s.store == nil {
		return fmt.Errorf("session store not configured")
	}
	return nil
}

// MinDuration returns the configured completion threshold.
func (s *SessionService) MinDuration() time.Duration {
	return s.cfg.MinDuration
}

// StartSession opens a new session for the caller. A caller with an active
// connected session gets AlreadyExists; an active disconnected session can
// never earn a point, so it is closed without one before the new session is
// created.
func (s *SessionService) StartSession(ctx context.Context, principal Principal) (session persistence.Session, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "StartSession", "user_id", principal.UserID)
	forfeited := false
	defer func() {
		if err != nil {
			err = s.reporter.wrap(ctx, logger, "startSession", principal.UserID, err)
			logOutcome(ctx, logger, "start session failed", err)
			return
		}
		if forfeited {
			s.recorder.SessionForfeited()
		}
		s.recorder.SessionStarted()
		logger.With("session_id", session.ID).InfoContext(ctx, "session started")
	}()

	if strings.TrimSpace(principal.UserID) == "" {
		err = newError(KindUnauthenticated, "authentication required")
		return
	}

	now := s.now()
	err = s.store.WithinTx(ctx, func(tx persistence.Tx) error {
		forfeited = false

		active, findErr := tx.FindActiveSession(ctx, principal.UserID)
		switch {
		case findErr == nil:
			if !active.Disconnected {
				return newError(KindAlreadyExists, "an active reading session already exists")
			}
			// A disconnected session can never be completed, so it is closed
			// without a point to free the user's single active slot.
			if _, closeErr := tx.CompleteSession(ctx, persistence.SessionCompletion{
				SessionID:       active.ID,
				EndAt:           now,
				DurationMinutes: elapsedMinutes(active.StartAt, now),
				PointsAwarded:   false,
			}); closeErr != nil {
				return closeErr
			}
			forfeited = true
		case !errors.Is(findErr, persistence.ErrNotFound):
			return findErr
		}

		user, userErr := tx.GetUser(ctx, principal.UserID)
		if userErr != nil {
			if errors.Is(userErr, persistence.ErrNotFound) {
				return newError(KindNotFound, "user not found")
			}
			return userErr
		}
		if !user.PaymentStatus {
			return newError(KindPermissionDenied, "payment required to start reading sessions")
		}

		candidate := persistence.Session{
			ID:        s.idGenerator(),
			UserID:    principal.UserID,
			StartAt:   now,
			CreatedAt: now,
		}
		if createErr := tx.CreateSession(ctx, candidate); createErr != nil {
			if errors.Is(createErr, persistence.ErrConflict) {
				return newError(KindAlreadyExists, "an active reading session already exists")
			}
			return createErr
		}
		session = candidate
		return nil
	})
	return
}

// CompleteSession closes the caller's session and awards one point. The
// completed flag is flipped with a conditional update in the same
// transaction as the point increment, so a session yields at most one point
// no matter how many completions race.
func (s *SessionService) CompleteSession(ctx context.Context, principal Principal, sessionID string) (result CompletionResult, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "CompleteSession", "user_id", principal.UserID, "session_id", sessionID)
	defer func() {
		if err != nil {
			err = s.reporter.wrap(ctx, logger, "completeSession", principal.UserID, err)
			logOutcome(ctx, logger, "complete session failed", err)
			return
		}
		s.recorder.SessionCompleted(false)
		logger.With(
			"points", result.Points,
			"duration_minutes", result.DurationMinutes,
		).InfoContext(ctx, "session completed")
	}()

	if strings.TrimSpace(principal.UserID) == "" {
		err = newError(KindUnauthenticated, "authentication required")
		return
	}
	if strings.TrimSpace(sessionID) == "" {
		err = newError(KindInvalidArgument, "session id is required")
		return
	}

	now := s.now()
	err = s.store.WithinTx(ctx, func(tx persistence.Tx) error {
		session, getErr := tx.GetSession(ctx, sessionID)
		if getErr != nil {
			if errors.Is(getErr, persistence.ErrNotFound) {
				return newError(KindNotFound, "session not found")
			}
			return getErr
		}
		if session.UserID != principal.UserID {
			return newError(KindPermissionDenied, "session belongs to another user")
		}
		if session.Completed {
			return newError(KindAlreadyExists, "session already completed")
		}

		duration := elapsedMinutes(session.StartAt, now)
		if now.Sub(session.StartAt) < s.cfg.MinDuration {
			return newError(KindFailedPrecondition, fmt.Sprintf("session must last at least %d minutes", int(s.cfg.MinDuration/time.Minute)))
		}
		if session.Disconnected {
			return newError(KindFailedPrecondition, "session was disconnected")
		}

		applied, completeErr := tx.CompleteSession(ctx, persistence.SessionCompletion{
			SessionID:       session.ID,
			EndAt:           now,
			DurationMinutes: duration,
			PointsAwarded:   true,
		})
		if completeErr != nil {
			return completeErr
		}
		if !applied {
			return newError(KindAlreadyExists, "session already completed")
		}

		if awardErr := tx.AwardPoint(ctx, session.UserID, now); awardErr != nil {
			return awardErr
		}
		user, userErr := tx.GetUser(ctx, session.UserID)
		if userErr != nil {
			return userErr
		}

		result = CompletionResult{Points: user.Points, DurationMinutes: duration}
		return nil
	})
	return
}

type verificationEvent struct {
	Completed     bool `json:"completed"`
	PointsAwarded bool `json:"pointsAwarded"`
	Disconnected  bool `json:"disconnected"`
}

// VerifySession reports whether a session exists and records the check in
// the session log. A missing session is not an error. Sessions owned by
// another user are rejected with PermissionDenied.
func (s *SessionService) VerifySession(ctx context.Context, principal Principal, sessionID string) (result VerifyResult, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "VerifySession", "user_id", principal.UserID, "session_id", sessionID)
	defer func() {
		if err != nil {
			err = s.reporter.wrap(ctx, logger, "verifySession", principal.UserID, err)
			logOutcome(ctx, logger, "verify session failed", err)
			return
		}
		logger.With("found", result.Found).InfoContext(ctx, "session verified")
	}()

	if strings.TrimSpace(principal.UserID) == "" {
		err = newError(KindUnauthenticated, "authentication required")
		return
	}
	if strings.TrimSpace(sessionID) == "" {
		err = newError(KindInvalidArgument, "session id is required")
		return
	}

	session, getErr := s.store.GetSession(ctx, sessionID)
	if getErr != nil {
		if errors.Is(getErr, persistence.ErrNotFound) {
			result = VerifyResult{Found: false, SessionID: sessionID}
			return
		}
		err = getErr
		return
	}

	if session.UserID != principal.UserID {
		err = newError(KindPermissionDenied, "session belongs to another user")
		return
	}

	data, marshalErr := json.Marshal(verificationEvent{
		Completed:     session.Completed,
		PointsAwarded: session.PointsAwarded,
		Disconnected:  session.Disconnected,
	})
	if marshalErr != nil {
		err = fmt.Errorf("encode verification event: %w", marshalErr)
		return
	}
	entry := persistence.SessionLog{
		ID:        s.reporter.nextID(),
		SessionID: session.ID,
		UserID:    principal.UserID,
		EventType: eventManualVerification,
		EventData: string(data),
		CreatedAt: s.now(),
	}
	if logErr := s.store.AppendSessionLog(ctx, entry); logErr != nil {
		logger.WarnContext(ctx, "failed to append session log", "error", logErr)
	}

	snapshot := Snapshot(session)
	result = VerifyResult{Found: true, SessionID: session.ID, Session: &snapshot}
	return
}

// MarkDisconnected records that the client lost its heartbeat. A
// disconnected session can no longer be completed. Repeated calls are no-ops.
func (s *SessionService) MarkDisconnected(ctx context.Context, principal Principal, sessionID string) (err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "MarkDisconnected", "user_id", principal.UserID, "session_id", sessionID)
	changed := false
	defer func() {
		if err != nil {
			err = s.reporter.wrap(ctx, logger, "markDisconnected", principal.UserID, err)
			logOutcome(ctx, logger, "mark disconnected failed", err)
			return
		}
		logger.With("changed", changed).InfoContext(ctx, "session marked disconnected")
	}()

	if strings.TrimSpace(principal.UserID) == "" {
		err = newError(KindUnauthenticated, "authentication required")
		return
	}

	now := s.now()
	err = s.store.WithinTx(ctx, func(tx persistence.Tx) error {
		session, getErr := tx.GetSession(ctx, sessionID)
		if getErr != nil {
			if errors.Is(getErr, persistence.ErrNotFound) {
				return newError(KindNotFound, "session not found")
			}
			return getErr
		}
		if session.UserID != principal.UserID {
			return newError(KindPermissionDenied, "session belongs to another user")
		}
		if session.Completed {
			return newError(KindFailedPrecondition, "session already completed")
		}
		var markErr error
		changed, markErr = tx.MarkDisconnected(ctx, session.ID, now)
		return markErr
	})
	return
}

// ActiveSession returns the caller's uncompleted session.
func (s *SessionService) ActiveSession(ctx context.Context, principal Principal) (session persistence.Session, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "ActiveSession", "user_id", principal.UserID)
	defer func() {
		if err != nil {
			err = s.reporter.wrap(ctx, logger, "activeSession", principal.UserID, err)
			logOutcome(ctx, logger, "active session lookup failed", err)
		}
	}()

	if strings.TrimSpace(principal.UserID) == "" {
		err = newError(KindUnauthenticated, "authentication required")
		return
	}

	session, err = s.store.FindActiveSession(ctx, principal.UserID)
	if errors.Is(err, persistence.ErrNotFound) {
		err = newError(KindNotFound, "no active reading session")
	}
	return
}

// AutoCompleteDue completes every connected session that has been running
// for at least the minimum duration. Sessions completed concurrently by their
// owner are skipped. Failures on individual sessions are joined into the
// returned error without stopping the sweep.
func (s *SessionService) AutoCompleteDue(ctx context.Context) (result SweepResult, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "AutoCompleteDue")
	defer func() {
		attrs := []any{"scanned", result.Scanned, "completed", result.Completed}
		if err != nil {
			logger.With(attrs...).ErrorContext(ctx, "auto-completion sweep finished with errors", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(attrs...).InfoContext(ctx, "auto-completion sweep finished")
	}()

	var (
		errs   []error
		cursor *persistence.SessionCursor
	)
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			errs = append(errs, ctxErr)
			break
		}

		now := s.now()
		due, listErr := s.store.ListDueSessions(ctx, now.Add(-s.cfg.MinDuration), cursor, s.cfg.SweepBatchSize)
		if listErr != nil {
			errs = append(errs, fmt.Errorf("list due sessions: %w", listErr))
			break
		}

		for _, session := range due {
			result.Scanned++

			completed, completeErr := s.autoComplete(ctx, session.ID)
			if completeErr != nil {
				logger.With("session_id", session.ID).ErrorContext(ctx, "auto-completion failed", "error", completeErr)
				errs = append(errs, fmt.Errorf("session %s: %w", session.ID, completeErr))
				continue
			}
			if completed {
				result.Completed++
				s.recorder.SessionCompleted(true)
			}
		}

		if len(due) < s.cfg.SweepBatchSize {
			break
		}
		cursor = persistence.CursorAfter(due[len(due)-1])
	}

	if len(errs) > 0 {
		err = errors.Join(errs...)
		_ = s.reporter.wrap(ctx, logger, "autoCompleteSessions", "", err)
	}
	return
}

func (s *SessionService) autoComplete(ctx context.Context, sessionID string) (completed bool, err error) {
	now := s.now()
	err = s.store.WithinTx(ctx, func(tx persistence.Tx) error {
		completed = false

		session, getErr := tx.GetSession(ctx, sessionID)
		if getErr != nil {
			if errors.Is(getErr, persistence.ErrNotFound) {
				return nil
			}
			return getErr
		}
		if session.Completed || session.Disconnected || now.Sub(session.StartAt) < s.cfg.MinDuration {
			return nil
		}

		applied, completeErr := tx.CompleteSession(ctx, persistence.SessionCompletion{
			SessionID:       session.ID,
			EndAt:           now,
			DurationMinutes: elapsedMinutes(session.StartAt, now),
			PointsAwarded:   true,
			AutoCompleted:   true,
		})
		if completeErr != nil || !applied {
			return completeErr
		}
		if awardErr := tx.AwardPoint(ctx, session.UserID, now); awardErr != nil {
			return awardErr
		}
		completed = true
		return nil
	})
	return
}

// CleanupSessions deletes sessions created before the retention window and
// returns how many were removed.
func (s *SessionService) CleanupSessions(ctx context.Context) (deleted int64, err error) {
	if err = s.ready(); err != nil {
		return
	}

	cutoff := s.now().Add(-s.cfg.Retention)
	logger := s.loggerWith(ctx, "CleanupSessions", "cutoff", cutoff)
	defer func() {
		if err != nil {
			err = s.reporter.wrap(ctx, logger, "cleanupOldSessions", "", err)
			logOutcome(ctx, logger, "session cleanup failed", err)
			return
		}
		logger.With("deleted", deleted).InfoContext(ctx, "old sessions cleaned up")
	}()

	deleted, err = s.store.DeleteSessionsBefore(ctx, cutoff)
	return
}

func elapsedMinutes(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	return int(end.Sub(start) / time.Minute)
}

// Snapshot converts a stored session into its client view.
func Snapshot(session persistence.Session) SessionSnapshot {
	return SessionSnapshot{
		ID:              session.ID,
		StartAt:         session.StartAt,
		EndAt:           session.EndAt,
		DurationMinutes: session.DurationMinutes,
		Completed:       session.Completed,
		PointsAwarded:   session.PointsAwarded,
		Disconnected:    session.Disconnected,
		AutoCompleted:   session.AutoCompleted,
	}
}
