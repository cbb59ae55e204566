package common

import (
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// LoggingEnabled controls whether Logf produces output.
var LoggingEnabled atomic.Bool

var logger atomic.Pointer[zap.SugaredLogger]

func init() {
	LoggingEnabled.Store(true)
	l, err := zap.NewDevelopment(zap.WithCaller(false))
	if err != nil {
		l = zap.NewNop()
	}
	logger.Store(l.Sugar())
}

// SetLogger replaces the package logger. A nil logger installs a no-op one.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l.Sugar())
}

// Logger returns the current package logger.
func Logger() *zap.SugaredLogger {
	if !LoggingEnabled.Load() {
		return zap.NewNop().Sugar()
	}
	return logger.Load()
}

// Logf logs a formatted message at info level if logging is enabled.
func Logf(format string, args ...interface{}) {
	if LoggingEnabled.Load() {
		logger.Load().Infof(format, args...)
	}
}

// Warnf logs a formatted message at warn level if logging is enabled.
func Warnf(format string, args ...interface{}) {
	if LoggingEnabled.Load() {
		logger.Load().Warnf(format, args...)
	}
}

// formatDuration formats a duration with 2 decimal places.
// Returns a string like "1.23 ms" (no padding).
func formatDuration(d time.Duration) string {
	ms := float64(d) / float64(time.Millisecond)

	// Handle durations >= 1 second
	if ms >= 1000 {
		sec := ms / 1000
		return fmt.Sprintf("%.2f s", sec)
	} else if ms < 0.01 {
		// Sub-0.01 ms: show in microseconds
		us := ms * 1000
		return fmt.Sprintf("%.2f us", us)
	}
	return fmt.Sprintf("%.2f ms", ms)
}

// LogDuration logs a message together with the time elapsed since start.
func LogDuration(start time.Time, format string, args ...interface{}) {
	if !LoggingEnabled.Load() {
		return
	}
	logger.Load().Infow(fmt.Sprintf(format, args...), "elapsed", formatDuration(time.Since(start)))
}
