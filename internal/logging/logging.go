package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/pion/logging"
)

// LevelTrace sits below debug; pion's trace output only shows with
// LOG_LEVEL=trace.
const LevelTrace = slog.Level(-8)

func Init() {
	level := slog.LevelError // default: production only shows errors

	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		switch l {
		case "trace":
			level = LevelTrace
		case "dev", "development", "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn", "warning":
			level = slog.LevelWarn
		case "error", "production", "prod":
			level = slog.LevelError
		}
	}

	logger := slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}),
	)
	slog.SetDefault(logger)
}

// PionFactory routes the WebRTC stack's logs through logger, tagging each
// record with the pion subsystem as scope.
func PionFactory(logger *slog.Logger) logging.LoggerFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &pionFactory{logger: logger}
}

type pionFactory struct {
	logger *slog.Logger
}

func (f *pionFactory) NewLogger(scope string) logging.LeveledLogger {
	return &pionLogger{logger: f.logger.With("component", "pion", "scope", scope)}
}

type pionLogger struct {
	logger *slog.Logger
}

func (l *pionLogger) log(level slog.Level, msg string) {
	l.logger.Log(context.Background(), level, msg)
}

func (l *pionLogger) logf(level slog.Level, format string, args ...interface{}) {
	if !l.logger.Enabled(context.Background(), level) {
		return
	}
	l.logger.Log(context.Background(), level, fmt.Sprintf(format, args...))
}

func (l *pionLogger) Trace(msg string)                          { l.log(LevelTrace, msg) }
func (l *pionLogger) Tracef(format string, args ...interface{}) { l.logf(LevelTrace, format, args...) }
func (l *pionLogger) Debug(msg string)                          { l.log(slog.LevelDebug, msg) }
func (l *pionLogger) Debugf(format string, args ...interface{}) { l.logf(slog.LevelDebug, format, args...) }
func (l *pionLogger) Info(msg string)                           { l.log(slog.LevelInfo, msg) }
func (l *pionLogger) Infof(format string, args ...interface{})  { l.logf(slog.LevelInfo, format, args...) }
func (l *pionLogger) Warn(msg string)                           { l.log(slog.LevelWarn, msg) }
func (l *pionLogger) Warnf(format string, args ...interface{})  { l.logf(slog.LevelWarn, format, args...) }
func (l *pionLogger) Error(msg string)                          { l.log(slog.LevelError, msg) }
func (l *pionLogger) Errorf(format string, args ...interface{}) { l.logf(slog.LevelError, format, args...) }
