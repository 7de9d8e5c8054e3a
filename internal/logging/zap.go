package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// Options controls the process logger.
type Options struct {
	// Level is one of debug, info, warn or error. Unknown values mean info.
	Level string
	// Development switches to the human readable console encoder.
	Development bool
	// FilePath, when set, additionally writes JSON logs to a daily rotated
	// file. The rotated name gets a .YYYYMMDD suffix and FilePath itself is
	// kept as a symlink to the current file.
	FilePath string
	// MaxAge bounds how long rotated files are kept. Zero means seven days.
	MaxAge time.Duration
	// Output replaces stdout. Used by tests.
	Output io.Writer
}

// Logger bundles the slog front end with the zap core behind it.
type Logger struct {
	*slog.Logger
	zap     *zap.Logger
	closers []io.Closer
}

// New builds a slog.Logger whose records are encoded by zap.
func New(opts Options) (*Logger, error) {
	level := ParseLevel(opts.Level)

	var encoder zapcore.Encoder
	if opts.Development {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(cfg)
	} else {
		encoder = zapcore.NewJSONEncoder(productionEncoderConfig())
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	cores := []zapcore.Core{zapcore.NewCore(encoder, zapcore.AddSync(out), level)}

	var closers []io.Closer
	if opts.FilePath != "" {
		maxAge := opts.MaxAge
		if maxAge <= 0 {
			maxAge = 7 * 24 * time.Hour
		}
		rotator, err := rotatelogs.New(
			opts.FilePath+".%Y%m%d",
			rotatelogs.WithLinkName(opts.FilePath),
			rotatelogs.WithRotationTime(24*time.Hour),
			rotatelogs.WithMaxAge(maxAge),
			rotatelogs.WithClock(rotatelogs.UTC),
		)
		if err != nil {
			return nil, fmt.Errorf("logging: open log file %s: %w", opts.FilePath, err)
		}
		closers = append(closers, rotator)
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(productionEncoderConfig()), zapcore.AddSync(rotator), level))
	}

	core := zapcore.NewTee(cores...)
	handler := zapslog.NewHandler(core, zapslog.WithCaller(true), zapslog.AddStacktraceAt(slog.LevelError))

	return &Logger{
		Logger:  slog.New(handler),
		zap:     zap.New(core, zap.AddCaller()),
		closers: closers,
	}, nil
}

// Zap exposes the underlying zap logger for libraries that want one.
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

// Close flushes buffered entries and closes any log files.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	_ = l.zap.Sync()
	var firstErr error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ParseLevel maps a configuration string to a zap level.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func productionEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}
