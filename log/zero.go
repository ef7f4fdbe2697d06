package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// nolint: varcheck, deadcode
const (
	colorBlack = iota + 30
	colorRed
	colorGreen
	colorYellow
	colorBlue
	colorMagenta
	colorCyan
	colorWhite

	colorBold     = 1
	colorDarkGray = 90
)

// ZeroOptions adjusts the behavior of a zerolog-backed logger instance.
type ZeroOptions struct {
	// PrettyPrint switches from structured JSON output to a colorized
	// textual representation, suitable for local development.
	PrettyPrint bool

	// ErrorField is the field name used to report error values. Defaults
	// to "error".
	ErrorField string

	// Sink is the destination for produced messages. Defaults to
	// os.Stderr.
	Sink io.Writer
}

// WithZero returns the default production Logger, backed by zerolog.
func WithZero(options ZeroOptions) Logger {
	if options.Sink == nil {
		options.Sink = os.Stderr
	}
	if options.ErrorField == "" {
		options.ErrorField = "error"
	}
	zerolog.ErrorFieldName = options.ErrorField
	handler := zerolog.New(options.Sink).With().Timestamp().Logger()
	if options.PrettyPrint {
		handler = handler.Output(consoleWriter(options.Sink))
	}
	return &zeroHandler{log: handler}
}

type zeroHandler struct {
	mu     sync.Mutex
	log    zerolog.Logger
	lvl    Level
	fields Fields
}

func (zh *zeroHandler) SetLevel(lvl Level) {
	zh.mu.Lock()
	zh.lvl = lvl
	zh.mu.Unlock()
}

func (zh *zeroHandler) Sub(tags Fields) Logger {
	return &zeroHandler{
		log: zh.log.With().Fields(map[string]interface{}(tags)).Logger(),
		lvl: zh.lvl,
	}
}

func (zh *zeroHandler) WithFields(fields Fields) Logger {
	zh.mu.Lock()
	if zh.fields == nil {
		zh.fields = Fields{}
	}
	for k, v := range fields {
		zh.fields[k] = v
	}
	zh.mu.Unlock()
	return zh
}

func (zh *zeroHandler) WithField(key string, value interface{}) Logger {
	return zh.WithFields(Fields{key: value})
}

func (zh *zeroHandler) Debug(args ...interface{}) { zh.emit(Debug, fmt.Sprint(sanitize(args...)...)) }
func (zh *zeroHandler) Debugf(format string, args ...interface{}) {
	zh.emit(Debug, fmt.Sprintf(format, sanitize(args...)...))
}
func (zh *zeroHandler) Info(args ...interface{}) { zh.emit(Info, fmt.Sprint(sanitize(args...)...)) }
func (zh *zeroHandler) Infof(format string, args ...interface{}) {
	zh.emit(Info, fmt.Sprintf(format, sanitize(args...)...))
}
func (zh *zeroHandler) Warning(args ...interface{}) {
	zh.emit(Warning, fmt.Sprint(sanitize(args...)...))
}
func (zh *zeroHandler) Warningf(format string, args ...interface{}) {
	zh.emit(Warning, fmt.Sprintf(format, sanitize(args...)...))
}
func (zh *zeroHandler) Error(args ...interface{}) { zh.emit(Error, fmt.Sprint(sanitize(args...)...)) }
func (zh *zeroHandler) Errorf(format string, args ...interface{}) {
	zh.emit(Error, fmt.Sprintf(format, sanitize(args...)...))
}
func (zh *zeroHandler) Panic(args ...interface{}) { zh.emit(Panic, fmt.Sprint(sanitize(args...)...)) }
func (zh *zeroHandler) Panicf(format string, args ...interface{}) {
	zh.emit(Panic, fmt.Sprintf(format, sanitize(args...)...))
}
func (zh *zeroHandler) Fatal(args ...interface{}) { zh.emit(Fatal, fmt.Sprint(sanitize(args...)...)) }
func (zh *zeroHandler) Fatalf(format string, args ...interface{}) {
	zh.emit(Fatal, fmt.Sprintf(format, sanitize(args...)...))
}

func (zh *zeroHandler) Print(level Level, args ...interface{}) {
	lprint(zh, level, sanitize(args...)...)
}

func (zh *zeroHandler) Printf(level Level, format string, args ...interface{}) {
	lprintf(zh, level, format, sanitize(args...)...)
}

func (zh *zeroHandler) emit(lvl Level, msg string) {
	zh.mu.Lock()
	if levelRank(lvl) < levelRank(zh.lvl) {
		zh.mu.Unlock()
		return
	}
	var ev *zerolog.Event
	switch lvl {
	case Debug:
		ev = zh.log.Debug()
	case Info:
		ev = zh.log.Info()
	case Warning:
		ev = zh.log.Warn()
	case Error:
		ev = zh.log.Error()
	case Panic:
		ev = zh.log.Error() // application decides whether to actually panic()
	case Fatal:
		ev = zh.log.Error() // application decides whether to actually os.Exit()
	default:
		ev = zh.log.Info()
	}
	if zh.fields != nil {
		ev = ev.Fields(map[string]interface{}(zh.fields))
		zh.fields = nil
	}
	zh.mu.Unlock()
	ev.Msg(msg)
}

func colorize(s interface{}, c int) string {
	return fmt.Sprintf("\x1b[%dm%v\x1b[0m", c, s)
}

func consoleWriter(sink io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        sink,
		TimeFormat: time.RFC3339,
		FormatFieldName: func(i interface{}) string {
			return colorize(fmt.Sprintf("%s=", i), colorDarkGray)
		},
		FormatErrFieldName: func(i interface{}) string {
			return colorize(fmt.Sprintf("%s=", i), colorRed)
		},
		FormatLevel: func(i interface{}) string {
			ll, ok := i.(string)
			if !ok {
				return colorize("???", colorBold)
			}
			switch ll {
			case "debug":
				return colorize("DBG", colorDarkGray)
			case "info":
				return colorize("INF", colorGreen)
			case "warn":
				return colorize("WRN", colorYellow)
			case "error":
				return colorize("ERR", colorRed)
			default:
				return colorize(strings.ToUpper(ll), colorBold)
			}
		},
	}
}
