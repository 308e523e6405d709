// Package dispatcher implements the Dispatcher (C11): descriptor
// lookup, argument coercion, middleware-wrapped invocation, error
// mapping, and the concurrency/timeout envelope around every request.
package dispatcher

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"sker/internal/errchain"
	"sker/internal/middleware"
	"sker/internal/registry"
)

// Config carries the knobs named in §4.11/§6.
type Config struct {
	MaxConcurrentRequests int
	RequestTimeout        time.Duration
}

// Dispatcher routes inbound MCP requests to registered descriptors
// through their middleware and error-handler chains (§4.11).
type Dispatcher struct {
	reg    *registry.Registry
	cfg    Config
	sem    chan struct{}
	logger registry.Logger

	mu             sync.RWMutex
	chains         map[string]*errchain.Chain // keyed by "kind/name"
	pluginMW       map[string][]registry.MiddlewareEntry
	defaultErrHdlr []registry.ErrorHandlerEntry
}

// New builds a Dispatcher bounded by cfg.MaxConcurrentRequests
// (default 100, per §4.11).
func New(reg *registry.Registry, cfg Config, logger registry.Logger) *Dispatcher {
	if cfg.MaxConcurrentRequests <= 0 {
		cfg.MaxConcurrentRequests = 100
	}
	return &Dispatcher{
		reg:      reg,
		cfg:      cfg,
		sem:      make(chan struct{}, cfg.MaxConcurrentRequests),
		logger:   logger,
		chains:   map[string]*errchain.Chain{},
		pluginMW: map[string][]registry.MiddlewareEntry{},
	}
}

// SetPluginMiddleware registers the plugin-level middleware entries
// (outermost, per §4.9) that apply to every descriptor that plugin
// contributes.
func (d *Dispatcher) SetPluginMiddleware(pluginName string, entries []registry.MiddlewareEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pluginMW[pluginName] = entries
}

// SetErrorChain registers a pre-built error chain keyed by kind/name.
// The chain handles only the MethodNotFound error raised when no
// descriptor is installed under that kind/name (a bare default chain
// is used when none is registered); requests that reach an installed
// descriptor use that descriptor's own error handlers merged with the
// defaults, not this chain.
func (d *Dispatcher) SetErrorChain(kind registry.Kind, name string, chain *errchain.Chain) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chains[string(kind)+"/"+name] = chain
}

// SetDefaultErrorHandlers installs the engine-wide error handlers
// (e.g. translating an isolation bridge denial into a PermissionDenied
// response) applied ahead of every descriptor's own handlers, on every
// request regardless of which descriptor raised the error.
func (d *Dispatcher) SetDefaultErrorHandlers(entries []registry.ErrorHandlerEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.defaultErrHdlr = entries
}

// errorHandlersFor merges the engine-wide default handlers with a
// descriptor's own, ascending by priority, so a global handler can run
// before or after a plugin-specific one depending on how it's tuned.
func (d *Dispatcher) errorHandlersFor(desc []registry.ErrorHandlerEntry) []registry.ErrorHandlerEntry {
	d.mu.RLock()
	defaults := d.defaultErrHdlr
	d.mu.RUnlock()
	if len(defaults) == 0 {
		return desc
	}
	if len(desc) == 0 {
		return defaults
	}
	merged := make([]registry.ErrorHandlerEntry, 0, len(defaults)+len(desc))
	merged = append(merged, defaults...)
	merged = append(merged, desc...)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Priority < merged[j].Priority })
	return merged
}

func (d *Dispatcher) chainFor(kind registry.Kind, name string) *errchain.Chain {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if c, ok := d.chains[string(kind)+"/"+name]; ok {
		return c
	}
	return errchain.New(nil, errchain.Config{}, d.logger)
}

// Dispatch runs the full §4.11 sequence for one inbound request.
func (d *Dispatcher) Dispatch(ctx context.Context, kind registry.Kind, name string, rawArgs map[string]any, raw any, logger registry.Logger) (any, error) {
	select {
	case d.sem <- struct{}{}:
		defer func() { <-d.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	reqCtx := &registry.RequestContext{
		RequestID:   uuid.NewString(),
		RequestType: kind,
		MethodName:  name,
		Args:        rawArgs,
		Request:     raw,
		Metadata:    map[string]any{},
		StartTime:   time.Now().UnixNano(),
		Logger:      logger,
	}

	timeout := d.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	reqCtx.Context = cctx
	reqCtx.Metadata["cancel"] = cancel

	if d.logger != nil {
		d.logger.Debug("dispatch %s %s request=%s", kind, name, reqCtx.RequestID)
	}

	desc, ok := d.reg.Lookup(kind, name)
	if !ok {
		chain := d.chainFor(kind, name)
		return chain.Handle(errchain.MethodNotFound(string(kind), name), reqCtx)
	}

	coerced, err := middleware.CoerceArgs(rawArgs, desc.InputSchema())
	if err != nil {
		errHandlers := errchain.New(d.errorHandlersFor(desc.ErrorHandlers), errchain.Config{}, d.logger)
		return errHandlers.Handle(errchain.Validation(err.Error(), nil), reqCtx)
	}
	reqCtx.Args = coerced

	d.mu.RLock()
	pluginEntries := d.pluginMW[desc.PluginName]
	d.mu.RUnlock()
	chain := middleware.Compose(pluginEntries, desc.Middleware)

	result, err := runWithTimeout(cctx, func() (any, error) {
		return middleware.Run(reqCtx, chain, func() (any, error) {
			return desc.Invoke(cctx, reqCtx.Args)
		})
	})

	if err != nil {
		if cctx.Err() != nil {
			err = errchain.Timeout(fmt.Sprintf("%s %s timed out after %s", kind, name, timeout))
		}
		errHandlers := errchain.New(d.errorHandlersFor(desc.ErrorHandlers), errchain.Config{}, d.logger)
		return errHandlers.Handle(err, reqCtx)
	}
	return result, nil
}

// runWithTimeout races fn against ctx's deadline, returning ctx.Err()
// if it fires first (§4.11: "resolves with a TimeoutError").
func runWithTimeout(ctx context.Context, fn func() (any, error)) (any, error) {
	type out struct {
		v   any
		err error
	}
	done := make(chan out, 1)
	go func() {
		v, err := fn()
		done <- out{v, err}
	}()
	select {
	case o := <-done:
		return o.v, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
