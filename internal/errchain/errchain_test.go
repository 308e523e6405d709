package errchain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sker/internal/registry"
)

func reqCtx() *registry.RequestContext {
	return &registry.RequestContext{RequestID: "req-1"}
}

func TestHandleFallsBackToDefaultResponse(t *testing.T) {
	c := New(nil, Config{}, nil)
	resp, err := c.Handle(MethodNotFound("tool", "missing"), reqCtx())
	require.NoError(t, err)
	r := resp.(Response)
	assert.True(t, r.Error)
	assert.Equal(t, CodeMethodNotFound, r.Code)
	assert.Equal(t, "req-1", r.RequestID)
}

func TestHandleUsesFirstMatchingHandler(t *testing.T) {
	handlers := []registry.ErrorHandlerEntry{
		{Priority: 1, Predicate: func(err error, ctx *registry.RequestContext) bool { return true }, Fn: func(err error, ctx *registry.RequestContext) (any, error) { return "handled", nil }},
	}
	c := New(handlers, Config{}, nil)
	resp, err := c.Handle(errors.New("boom"), reqCtx())
	require.NoError(t, err)
	assert.Equal(t, "handled", resp)
}

func TestRecoveryStrategyTriedBeforeHandlers(t *testing.T) {
	c := New(nil, Config{}, nil)
	c.RegisterRecovery(RecoveryStrategy{
		Name:       "retry-once",
		CanRecover: func(err error, ctx *registry.RequestContext) bool { return true },
		Recover:    func(err error, ctx *registry.RequestContext) (any, error) { return "recovered", nil },
	})
	resp, err := c.Handle(errors.New("transient"), reqCtx())
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp)
}

func TestExposeDetailsIncludesStack(t *testing.T) {
	c := New(nil, Config{ExposeDetails: true}, nil)
	resp, _ := c.Handle(Validation("bad arg", map[string]string{"field": "n"}), reqCtx())
	r := resp.(Response)
	assert.NotEmpty(t, r.Stack)
	assert.NotNil(t, r.Details)
}

type recordingLogger struct{ warnings []string }

func (l *recordingLogger) Warn(format string, args ...any) {
	l.warnings = append(l.warnings, format)
}

func TestRateLimitedLoggingStopsAfterMax(t *testing.T) {
	logger := &recordingLogger{}
	c := New(nil, Config{MaxErrors: 2, TimeWindow: time.Minute}, logger)
	for i := 0; i < 5; i++ {
		_, _ = c.Handle(MethodNotFound("tool", "x"), reqCtx())
	}
	assert.Len(t, logger.warnings, 2)
}
