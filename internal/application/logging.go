package application

import (
	"context"
	"log/slog"

	"github.com/readingattendance/readingd/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	return logging.Scoped(ctx, base, "service", serviceName, operation, attrs...)
}

// ErrorKind maps an error to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	return KindOf(err).String()
}

// logOutcome logs err at a level matching its kind: caller mistakes at info,
// everything unexpected at error.
func logOutcome(ctx context.Context, logger *slog.Logger, msg string, err error) {
	kind := KindOf(err)
	level := slog.LevelInfo
	if kind == KindInternal {
		level = slog.LevelError
	}
	logger.Log(ctx, level, msg, "error", err, "error_kind", kind.String())
}
