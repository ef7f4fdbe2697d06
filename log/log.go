// Package log provides a leveled, structured logging abstraction used
// throughout hermesmq. Every component accepts a Logger at construction
// and falls back to Discard() when none is provided.
package log

import "strings"

// Fields carries structured, per-message context.
type Fields map[string]interface{}

// Level assigns a severity to a logged message.
type Level string

const (
	// Debug is for information broadly interesting to developers.
	Debug Level = "debug"
	// Info highlights the normal progress of the application.
	Info Level = "info"
	// Warning flags a potentially harmful situation that does not stop
	// processing.
	Warning Level = "warning"
	// Error flags a failure that prevented a specific operation.
	Error Level = "error"
	// Panic flags a severe condition the caller is about to panic() on.
	Panic Level = "panic"
	// Fatal flags a severe condition the caller is about to os.Exit() on.
	Fatal Level = "fatal"
)

// SimpleLogger is the minimal leveled-logging surface.
type SimpleLogger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warning(args ...interface{})
	Warningf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Panic(args ...interface{})
	Panicf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
}

// Logger extends SimpleLogger with structured-field support.
type Logger interface {
	SimpleLogger

	// WithFields returns a logger that will include fields on its next
	// chained message only.
	WithFields(fields Fields) Logger

	// WithField is a shorthand for WithFields with a single pair.
	WithField(key string, value interface{}) Logger

	// Sub returns a new logger that permanently carries tags on every
	// message it produces.
	Sub(tags Fields) Logger

	// SetLevel adjusts the minimum level that gets emitted.
	SetLevel(lvl Level)

	// Print logs a message at the given level.
	Print(level Level, args ...interface{})

	// Printf logs a formatted message at the given level.
	Printf(level Level, format string, args ...interface{})
}

func lprint(ll SimpleLogger, lv Level, args ...interface{}) {
	switch lv {
	case Debug:
		ll.Debug(args...)
	case Info:
		ll.Info(args...)
	case Warning:
		ll.Warning(args...)
	case Error:
		ll.Error(args...)
	case Panic:
		ll.Panic(args...)
	case Fatal:
		ll.Fatal(args...)
	}
}

func lprintf(ll SimpleLogger, lv Level, format string, args ...interface{}) {
	switch lv {
	case Debug:
		ll.Debugf(format, args...)
	case Info:
		ll.Infof(format, args...)
	case Warning:
		ll.Warningf(format, args...)
	case Error:
		ll.Errorf(format, args...)
	case Panic:
		ll.Panicf(format, args...)
	case Fatal:
		ll.Fatalf(format, args...)
	}
}

// sanitize strips newlines from string arguments to prevent log injection.
func sanitize(args ...interface{}) []interface{} {
	sv := make([]interface{}, len(args))
	for i, v := range args {
		if vs, ok := v.(string); ok {
			v = strings.NewReplacer("\n", "", "\r", "").Replace(vs)
		}
		sv[i] = v
	}
	return sv
}

func levelRank(lv Level) int {
	switch lv {
	case Debug:
		return 0
	case Info:
		return 1
	case Warning:
		return 2
	case Error:
		return 3
	case Panic:
		return 4
	case Fatal:
		return 5
	default:
		return 0
	}
}
