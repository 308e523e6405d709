package logging

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
)

type requestCtxKey struct{}

type requestFields struct {
	requestID string
	userID    string
}

// WithRequestContext attaches request/user identifiers to ctx so that
// any Logger.log call made with this context decorates its lines, per
// §4.2's setRequestContext.
func WithRequestContext(ctx context.Context, requestID, userID string) context.Context {
	return context.WithValue(ctx, requestCtxKey{}, requestFields{requestID: requestID, userID: userID})
}

// Logger is bound to one layer and component/plugin, but always reads
// its handler through the factory's atomic pointer so a Reconfigure
// takes effect on every handle without invalidating it.
type Logger struct {
	factory   *Factory
	layer     Layer
	state     *atomic.Pointer[layerState]
	component string
	plugin    string
	attrs     []slog.Attr
}

func (l *Logger) handler() slog.Handler {
	st := l.state.Load()
	if st == nil {
		return slog.NewTextHandler(nopWriter{}, nil)
	}
	return st.handler
}

func (l *Logger) baseAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(l.attrs)+2)
	attrs = append(attrs, slog.String("component", l.component))
	if l.plugin != "" {
		attrs = append(attrs, slog.String("pluginName", l.plugin))
	}
	attrs = append(attrs, l.attrs...)
	return attrs
}

func (l *Logger) log(ctx context.Context, level Level, err error, format string, args ...any) {
	h := l.handler()
	sl := level.SlogLevel()
	if !h.Enabled(ctx, sl) {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}

	attrs := l.baseAttrs()
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	if ctx != nil {
		if rf, ok := ctx.Value(requestCtxKey{}).(requestFields); ok {
			if rf.requestID != "" {
				attrs = append(attrs, slog.String("requestId", rf.requestID))
			}
			if rf.userID != "" {
				attrs = append(attrs, slog.String("userId", rf.userID))
			}
		}
	}

	rec := slog.NewRecord(time.Now(), sl, msg, 0)
	rec.AddAttrs(attrs...)
	_ = h.Handle(ctx, rec)
}

func (l *Logger) Verbose(format string, args ...any) { l.log(context.Background(), LevelVerbose, nil, format, args...) }
func (l *Logger) Debug(format string, args ...any)   { l.log(context.Background(), LevelDebug, nil, format, args...) }
func (l *Logger) Info(format string, args ...any)    { l.log(context.Background(), LevelInfo, nil, format, args...) }
func (l *Logger) Warn(format string, args ...any)    { l.log(context.Background(), LevelWarn, nil, format, args...) }
func (l *Logger) Error(err error, format string, args ...any) {
	l.log(context.Background(), LevelError, err, format, args...)
}

// VerboseCtx/DebugCtx/... are context-carrying variants used so
// request-id decoration (§4.2 setRequestContext) is applied.
func (l *Logger) VerboseCtx(ctx context.Context, format string, args ...any) {
	l.log(ctx, LevelVerbose, nil, format, args...)
}
func (l *Logger) DebugCtx(ctx context.Context, format string, args ...any) {
	l.log(ctx, LevelDebug, nil, format, args...)
}
func (l *Logger) InfoCtx(ctx context.Context, format string, args ...any) {
	l.log(ctx, LevelInfo, nil, format, args...)
}
func (l *Logger) WarnCtx(ctx context.Context, format string, args ...any) {
	l.log(ctx, LevelWarn, nil, format, args...)
}
func (l *Logger) ErrorCtx(ctx context.Context, err error, format string, args ...any) {
	l.log(ctx, LevelError, err, format, args...)
}

// Field is a convenience constructor for Child's structured fields.
func Field(key string, value any) slog.Attr {
	return slog.Any(key, value)
}

// Child returns a derived logger carrying merged structured fields,
// e.g. logger.Child(logging.Field("pluginName", "p1")).
func (l *Logger) Child(fields ...slog.Attr) *Logger {
	merged := make([]slog.Attr, 0, len(l.attrs)+len(fields))
	merged = append(merged, l.attrs...)
	merged = append(merged, fields...)
	return &Logger{
		factory:   l.factory,
		layer:     l.layer,
		state:     l.state,
		component: l.component,
		plugin:    l.plugin,
		attrs:     merged,
	}
}

// ForPlugin returns a Plugin-layer-shaped child carrying pluginName.
func (l *Logger) ForPlugin(name string) *Logger {
	c := l.Child()
	c.plugin = name
	return c
}

// StartTimer returns a function which, when called, logs the elapsed
// time under label at Info level (§4.2).
func (l *Logger) StartTimer(label string) func() {
	start := time.Now()
	return func() {
		l.Info("%s took %s", label, time.Since(start))
	}
}

// Logr adapts this Logger to the logr.Logger interface via the current
// slog handler, for code that only knows the generic logr surface.
func (l *Logger) Logr() logr.Logger {
	return logr.FromSlogHandler(l.handler())
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
