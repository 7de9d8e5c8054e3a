package application

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/readingattendance/readingd/internal/persistence"
)

// errorReporter turns unexpected failures into internal errors and appends
// them to the error log.
type errorReporter struct {
	audit    persistence.AuditRepository
	eventIDs func() string
	now      func() time.Time
}

func (r errorReporter) wrap(ctx context.Context, logger *slog.Logger, operation, userID string, err error) error {
	if err == nil || KindOf(err) != KindInternal {
		return err
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return err
	}

	if r.audit != nil {
		details, _ := json.Marshal(map[string]string{"error_type": errorType(err)})
		entry := persistence.ErrorLog{
			ID:        r.nextID(),
			Operation: operation,
			UserID:    userID,
			Message:   err.Error(),
			Details:   string(details),
			CreatedAt: r.timestamp(),
		}
		if logErr := r.audit.AppendErrorLog(context.WithoutCancel(ctx), entry); logErr != nil {
			logger.WarnContext(ctx, "failed to record error log", "error", logErr)
		}
	}

	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

func (r errorReporter) nextID() string {
	if r.eventIDs == nil {
		return ""
	}
	return r.eventIDs()
}

func (r errorReporter) timestamp() time.Time {
	if r.now == nil {
		return time.Now().UTC()
	}
	return r.now().UTC()
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	case errors.Is(err, persistence.ErrConstraintViolation):
		return "constraint_violation"
	default:
		return "unexpected"
	}
}
