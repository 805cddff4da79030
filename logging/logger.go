// Package logging defines the structured logger used throughout hotswap.
package logging

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Logger defines the interface for runtime logging.
// hotswap uses structured logging with key-value pairs so that resolver
// decisions and lifecycle transitions produce consistent, parseable output.
//
// The Logger interface uses variadic arguments in key-value pairs:
//
//	logger.Info("swap committed", "domain", "adapter", "key", "cache", "provider", "redis")
//
// This approach is compatible with popular structured logging libraries
// like slog, zerolog, zap and others.
type Logger interface {
	// Info logs an informational message with optional key-value pairs.
	// Used for normal events like a committed swap or a loaded snapshot.
	Info(msg string, args ...any)

	// Error logs an error message with optional key-value pairs.
	// Used for failures that are recorded but not propagated, e.g. cleanup
	// of a retired instance.
	Error(msg string, args ...any)

	// Warn logs a warning message with optional key-value pairs.
	// Used for degraded outcomes such as a forced swap over a failed probe.
	Warn(msg string, args ...any)

	// Debug logs a debug message with optional key-value pairs.
	Debug(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}

// Nop returns a Logger that discards everything.
func Nop() Logger { return nopLogger{} }

// OrNop returns l, or a discarding logger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}

// ZerologLogger adapts a zerolog.Logger to the Logger interface.
type ZerologLogger struct {
	logger zerolog.Logger
}

// NewZerolog wraps the given zerolog logger.
func NewZerolog(logger zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{logger: logger}
}

func (z *ZerologLogger) Info(msg string, args ...any) {
	withFields(z.logger.Info(), args).Msg(msg)
}

func (z *ZerologLogger) Error(msg string, args ...any) {
	withFields(z.logger.Error(), args).Msg(msg)
}

func (z *ZerologLogger) Warn(msg string, args ...any) {
	withFields(z.logger.Warn(), args).Msg(msg)
}

func (z *ZerologLogger) Debug(msg string, args ...any) {
	withFields(z.logger.Debug(), args).Msg(msg)
}

// withFields attaches key/value pairs to a zerolog event. A trailing key
// without a value is logged under "!BADKEY", matching slog's convention.
func withFields(e *zerolog.Event, args []any) *zerolog.Event {
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			e = e.Interface("!BADKEY", args[i])
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		switch v := args[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
		case string:
			e = e.Str(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	return e
}
