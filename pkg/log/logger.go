package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/YuminosukeSato/sbikde/pkg/errors"
)

var (
	providerMu    sync.RWMutex
	defaultLogger = stderrLogger()
)

// GetLogger returns the process-wide default logger.
func GetLogger() Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return defaultLogger
}

// GetLoggerWithName returns the default logger tagged with a component name.
func GetLoggerWithName(name string) Logger {
	return GetLogger().With(ComponentKey, name)
}

// SetLogger replaces the process-wide default logger. Estimators capture the
// logger at construction, so call this before building them.
func SetLogger(l Logger) {
	providerMu.Lock()
	defer providerMu.Unlock()
	defaultLogger = l
}

// SetupLogger installs a slog JSON handler writing to w as both the slog
// default and the package default logger, and routes errors.Warn through it.
func SetupLogger(w io.Writer, loglevel string) error {
	level, err := ParseLevel(loglevel)
	if err != nil {
		return err
	}
	ops := slog.HandlerOptions{
		AddSource: true,
		Level:     slog.Level(level),
		// Replace attributes to convert to CloudLogging format.
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.LevelKey:
				attr = slog.Attr{
					Key:   "severity",
					Value: attr.Value,
				}
			case slog.MessageKey:
				attr = slog.Attr{
					Key:   "message",
					Value: attr.Value,
				}
			case slog.SourceKey:
				attr = slog.Attr{
					Key:   "logging.googleapis.com/sourceLocation",
					Value: attr.Value,
				}
			}
			return attr
		},
	}
	handler := slog.NewJSONHandler(w, &ops)
	errFmtHandler := WrapByErrFmtHandler(handler)
	l := slog.New(errFmtHandler)
	slog.SetDefault(l)
	logger := NewSlogLogger(l)
	SetLogger(logger)
	errors.SetZerologWarnFunc(nil)
	errors.SetWarningHandler(slogWarnFunc(logger))
	return nil
}

// slogWarnFunc renders library warnings as warn records tagged with the
// warning's type.
func slogWarnFunc(l Logger) func(error) {
	return func(w error) {
		l.Warn(w.Error(), ErrorTypeKey, fmt.Sprintf("%T", w))
	}
}

// SetupZerolog installs a zerolog logger writing to w as the package default
// and routes errors.Warn through it. console selects the human readable
// ConsoleWriter instead of JSON lines.
func SetupZerolog(w io.Writer, level Level, console bool) {
	zl := newZerolog(w, level, console)
	SetLogger(NewZerologLogger(zl))
	errors.SetZerologWarnFunc(zerologWarnFunc(zl))
}

// stderrLogger is the logger installed before any Setup call.
func stderrLogger() Logger {
	return NewZerologLogger(newZerolog(os.Stderr, LevelWarn, false))
}

// ParseLevel converts "debug", "info", "warn" or "error" into a Level.
func ParseLevel(level string) (Level, error) {
	switch level {
	case "info":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	case "warn":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return 0, errors.NewValidationError("log-level", "must be one of debug, info, warn, error", level)
	}
}

const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
)

// ErrAttr is a wrapper to pass err to slog.
func ErrAttr(err error) slog.Attr {
	return slog.Any(ErrAttrKey, err)
}

type slogLogger struct {
	l *slog.Logger
}

// NewSlogLogger adapts a *slog.Logger to Logger. A leading error field passed
// to Error is converted into ErrAttr so ErrFmtHandler can attach its stack.
func NewSlogLogger(l *slog.Logger) Logger {
	return &slogLogger{l: l}
}

func (s *slogLogger) Debug(msg string, fields ...any) { s.log(slog.LevelDebug, msg, fields) }
func (s *slogLogger) Info(msg string, fields ...any)  { s.log(slog.LevelInfo, msg, fields) }
func (s *slogLogger) Warn(msg string, fields ...any)  { s.log(slog.LevelWarn, msg, fields) }

func (s *slogLogger) Error(msg string, fields ...any) {
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			fields = append([]any{ErrAttr(err)}, fields[1:]...)
		}
	}
	s.log(slog.LevelError, msg, fields)
}

// log builds the record itself so the source attribute points at the
// caller of Debug/Info/Warn/Error rather than at this adapter.
func (s *slogLogger) log(level slog.Level, msg string, fields []any) {
	ctx := context.Background()
	if !s.l.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	// skip runtime.Callers, log and the level method
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(fields...)
	_ = s.l.Handler().Handle(ctx, r)
}

func (s *slogLogger) With(fields ...any) Logger {
	return &slogLogger{l: s.l.With(fields...)}
}

func (s *slogLogger) Enabled(ctx context.Context, level Level) bool {
	return s.l.Enabled(ctx, slog.Level(level))
}
