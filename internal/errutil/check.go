package errutil

import (
	"io"
	"log/slog"
)

// LogMsg logs err as a warning with a custom message if it is not nil.
func LogMsg(err error, msg string, args ...any) {
	if err != nil {
		slog.Warn(msg, withError(err, args)...)
	}
}

// ReportError logs an unexpected error.
// Everything the process cannot recover from locally funnels through here.
func ReportError(err error, msg string, args ...any) {
	if err != nil {
		slog.Error(msg, withError(err, args)...)
	}
}

// Close closes c and logs a warning if that fails.
func Close(c io.Closer, msg string, args ...any) {
	if c == nil {
		return
	}
	LogMsg(c.Close(), msg, args...)
}

func withError(err error, args []any) []any {
	return append([]any{"error", err}, args...)
}
