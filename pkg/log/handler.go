package log

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"
)

// ErrFmtHandler decorates records that carry an error under ErrAttrKey with
// the error's stack trace (from cockroachdb/errors), its concrete type, and an
// error code when the caller did not set one.
type ErrFmtHandler struct {
	handler slog.Handler
}

// WrapByErrFmtHandler returns handler wrapped by an ErrFmtHandler.
func WrapByErrFmtHandler(handler slog.Handler) slog.Handler {
	return &ErrFmtHandler{handler: handler}
}

func (eh *ErrFmtHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return eh.handler.Enabled(ctx, l)
}

func (eh *ErrFmtHandler) Handle(ctx context.Context, r slog.Record) error {
	var (
		found   error
		hasCode bool
	)
	r.Attrs(func(attr slog.Attr) bool {
		switch attr.Key {
		case ErrAttrKey:
			if err, ok := attr.Value.Any().(error); ok {
				found = err
			}
		case ErrorCodeKey:
			hasCode = true
		}
		return true
	})
	if found == nil {
		return eh.handler.Handle(ctx, r)
	}

	if st := extractStacktrace(found); st != "" {
		r.AddAttrs(slog.String(StacktraceAttrKey, st))
	}
	r.AddAttrs(slog.String(ErrorTypeKey, fmt.Sprintf("%T", errors.UnwrapAll(found))))
	if !hasCode {
		r.AddAttrs(slog.String(ErrorCodeKey, ErrorCode(found)))
	}
	return eh.handler.Handle(ctx, r)
}

func (eh *ErrFmtHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ErrFmtHandler{handler: eh.handler.WithAttrs(attrs)}
}

func (eh *ErrFmtHandler) WithGroup(g string) slog.Handler {
	return &ErrFmtHandler{handler: eh.handler.WithGroup(g)}
}

// extractStacktrace returns the first safe detail of err, which for errors
// built with WithStack is the formatted stack.
func extractStacktrace(err error) string {
	if details := errors.GetSafeDetails(err).SafeDetails; len(details) > 0 {
		return details[0]
	}
	return ""
}
