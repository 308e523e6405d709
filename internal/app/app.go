package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"sker/internal/conflict"
	"sker/internal/container"
	"sker/internal/config"
	"sker/internal/dispatcher"
	"sker/internal/errchain"
	"sker/internal/hotreload"
	"sker/internal/isolation"
	"sker/internal/middleware"
	"sker/internal/plugin"
	"sker/internal/registry"
	"sker/pkg/logging"
)

// Options configures NewApplication. Only HomeDir is required: an empty
// ConfigPath loads the layered config/ directory under HomeDir, and an
// empty Platform or EngineVersion gets a default in NewApplication.
type Options struct {
	HomeDir       string
	ConfigPath    string
	Platform      string
	EngineVersion string
}

// Application wires every other component in the order §4.13's state
// machine drives them through, and owns the single Lifecycle governing
// Start/Stop.
type Application struct {
	opts Options
	lc   *Lifecycle

	cfg        *config.Resolver
	logFactory *logging.Factory
	logger     *logging.Logger
	reg        *registry.Registry
	root       *container.Container
	isolate    *isolation.Manager
	detector   *conflict.Detector
	loader     *plugin.Loader
	dispatcher *dispatcher.Dispatcher
	hot        *hotreload.Manager
	metrics    *prometheus.Registry

	mu                sync.Mutex
	unwind            []teardownStep
	defaultMiddleware []registry.MiddlewareEntry
}

type teardownStep struct {
	name string
	undo func(ctx context.Context) error
}

// NewApplication bootstraps the config resolver and logging factory
// (needed before anything else can log) and constructs every other
// component, but does not start them — that is Start's job.
func NewApplication(opts Options) (*Application, error) {
	if opts.Platform == "" {
		opts.Platform = runtime.GOOS
	}
	if opts.EngineVersion == "" {
		opts.EngineVersion = "0.1.0"
	}

	cfg, err := config.NewResolver()
	if err != nil {
		return nil, fmt.Errorf("app: build config resolver: %w", err)
	}
	cfg.LoadEnvDefaults()
	if opts.ConfigPath != "" {
		if err := cfg.LoadFile(opts.ConfigPath, config.LoadOptions{}); err != nil {
			return nil, fmt.Errorf("app: load config %s: %w", opts.ConfigPath, err)
		}
	} else if opts.HomeDir != "" {
		_ = cfg.LoadDirectory(filepath.Join(opts.HomeDir, "config"), config.LoadOptions{})
	}

	logFactory, err := logging.NewFactory(loggingConfigFrom(cfg.Get(), opts.HomeDir))
	if err != nil {
		return nil, fmt.Errorf("app: build logging factory: %w", err)
	}
	logger := logFactory.New(logging.LayerApplication, "app")

	reg := registry.New()
	root := container.New()
	isolate := isolation.New(root)
	detector := conflict.New()

	snap := cfg.Get()
	loader := plugin.NewLoader(plugin.LoaderConfig{
		Platform:         opts.Platform,
		EngineVersion:    opts.EngineVersion,
		DevWarnOnly:      snap.Environment.Environment != "production",
		PluginPriorities: snap.Plugins.Isolation.Priorities,
		CoreTokens:       map[container.Token]bool{},
		TrustOf:          func(name string) isolation.TrustLevel { return isolation.TrustTrusted },
	}, isolate, detector, reg)

	disp := dispatcher.New(reg, dispatcher.Config{
		MaxConcurrentRequests: snap.Server.Limits.MaxConcurrentRequests,
		RequestTimeout:        time.Duration(snap.Server.Limits.RequestTimeoutMS) * time.Millisecond,
	}, logger)

	metrics := prometheus.NewRegistry()

	disp.SetDefaultErrorHandlers([]registry.ErrorHandlerEntry{permissionDeniedHandler()})

	a := &Application{
		opts:       opts,
		lc:         NewLifecycle(),
		cfg:        cfg,
		logFactory: logFactory,
		logger:     logger,
		reg:        reg,
		root:       root,
		isolate:    isolate,
		detector:   detector,
		loader:     loader,
		dispatcher: disp,
		metrics:    metrics,
	}
	a.hot = hotreload.New(loader, hotreload.Config{}, logger)
	return a, nil
}

// State returns the application's current lifecycle state.
func (a *Application) State() State { return a.lc.State() }

// Subscribe registers fn for every lifecycle transition.
func (a *Application) Subscribe(fn Subscriber) func() { return a.lc.Subscribe(fn) }

// Dispatcher exposes the built dispatcher for the transport layer to
// route inbound requests through.
func (a *Application) Dispatcher() *dispatcher.Dispatcher { return a.dispatcher }

// Config exposes the resolver so the transport layer can read
// server/transport settings from the live snapshot.
func (a *Application) Config() *config.Resolver { return a.cfg }

// Registry exposes the registry so the transport layer can resync its
// published tool/resource/prompt lists against it.
func (a *Application) Registry() *registry.Registry { return a.reg }

// Logger exposes the application's logger for the transport layer to log
// through.
func (a *Application) Logger() *logging.Logger { return a.logger }

// Start runs the full §4.13 startup sequence exactly once, rolling back
// whatever already started on any failure.
func (a *Application) Start(ctx context.Context) error {
	return a.lc.Start(ctx, a.start)
}

func (a *Application) start(ctx context.Context) error {
	a.mu.Lock()
	a.unwind = nil
	a.mu.Unlock()

	snap := a.cfg.Get()
	a.installGlobalMiddleware(snap)

	candidates, err := a.discoverPlugins(snap)
	if err != nil {
		return a.fail(ctx, fmt.Errorf("app: discover plugins: %w", err))
	}

	if err := a.loadPlugins(ctx, snap, candidates); err != nil {
		return a.fail(ctx, err)
	}

	if snap.Plugins.Discovery.Watch {
		if err := a.hot.Start(); err != nil {
			return a.fail(ctx, fmt.Errorf("app: start hot reload: %w", err))
		}
		a.push("hot reload watcher", func(context.Context) error { return a.hot.Stop() })
	}

	a.logger.Info("application started: %d plugin(s) loaded", len(a.loader.List()))
	return nil
}

// push records a successfully completed startup step's teardown, to be
// run in reverse order on a later failure or on Stop.
func (a *Application) push(name string, undo func(ctx context.Context) error) {
	a.mu.Lock()
	a.unwind = append(a.unwind, teardownStep{name: name, undo: undo})
	a.mu.Unlock()
}

// fail unwinds every step recorded so far, in reverse order, logging
// (but not propagating) any teardown error, then returns the original
// failure (§4.13 "previously started components are stopped in reverse
// order").
func (a *Application) fail(ctx context.Context, err error) error {
	a.unwindAll(ctx)
	return err
}

func (a *Application) unwindAll(ctx context.Context) {
	a.mu.Lock()
	steps := a.unwind
	a.unwind = nil
	a.mu.Unlock()

	for i := len(steps) - 1; i >= 0; i-- {
		if uerr := steps[i].undo(ctx); uerr != nil && a.logger != nil {
			a.logger.Error(uerr, "app: teardown of %s failed", steps[i].name)
		}
	}
}

func (a *Application) discoverPlugins(snap config.Snapshot) ([]plugin.Candidate, error) {
	dirs := snap.Plugins.Discovery.Directories
	if len(dirs) == 0 {
		dirs = []string{"plugins"}
	}
	opts := plugin.DiscoveryOptions{
		MaxDepth:     snap.Plugins.Discovery.MaxDepth,
		AllowInvalid: snap.Plugins.Discovery.IncludeDev,
	}
	var all []plugin.Candidate
	for _, dir := range dirs {
		root := dir
		if a.opts.HomeDir != "" && !filepath.IsAbs(dir) {
			root = filepath.Join(a.opts.HomeDir, dir)
		}
		found, err := plugin.Discover(root, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, found...)
	}
	return all, nil
}

// loadPlugins loads every discovered candidate, bounded by
// plugins.loading.maxConcurrent, propagating the first error and
// unloading whatever already succeeded (§4.13, grounded on
// golang.org/x/sync/errgroup's bounded-concurrency + first-error
// pattern).
func (a *Application) loadPlugins(ctx context.Context, snap config.Snapshot, candidates []plugin.Candidate) error {
	if len(candidates) == 0 {
		return nil
	}
	maxConcurrent := snap.Plugins.Loading.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	if !snap.Plugins.Loading.Parallel {
		maxConcurrent = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	var mu sync.Mutex
	var loaded []*plugin.Plugin

	for _, c := range candidates {
		c := c
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			p, err := a.loader.Load(c)
			if err != nil {
				return fmt.Errorf("app: load plugin %s: %w", c.Dir, err)
			}
			mu.Lock()
			loaded = append(loaded, p)
			mu.Unlock()
			a.afterLoad(snap, p, c)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, p := range loaded {
			_ = a.loader.Unload(p.Name)
		}
		return err
	}

	a.push("loaded plugins", func(ctx context.Context) error {
		var errs []error
		for i := len(loaded) - 1; i >= 0; i-- {
			p := loaded[i]
			if uerr := a.loader.Unload(p.Name); uerr != nil {
				errs = append(errs, uerr)
			}
		}
		if len(errs) > 0 {
			return fmt.Errorf("app: unload plugins: %v", errs)
		}
		return nil
	})
	return nil
}

// afterLoad wires the dispatcher's plugin-level middleware and, if the
// manifest opted into dev mode and global watching is on, enrolls the
// plugin directory with the hot-reload manager (§4.12).
func (a *Application) afterLoad(snap config.Snapshot, p *plugin.Plugin, c plugin.Candidate) {
	a.mu.Lock()
	mw := a.defaultMiddleware
	a.mu.Unlock()
	if len(mw) > 0 {
		a.dispatcher.SetPluginMiddleware(p.Name, mw)
	}
	if p.Manifest != nil && p.Manifest.Dev && snap.Plugins.Discovery.Watch {
		_ = a.hot.Enroll(p.Name, c.Dir)
	}
}

// permissionDeniedHandler translates an isolation bridge denial into a
// PermissionDenied response (§7 Permission taxonomy), ahead of every
// descriptor's own error handlers, so a plugin that simply lets a
// denied container.Get propagate still gets the right JSON-RPC code at
// the transport boundary instead of falling through to an internal
// error.
func permissionDeniedHandler() registry.ErrorHandlerEntry {
	return registry.ErrorHandlerEntry{
		ID:       "permission-denied",
		Priority: -1000,
		Predicate: func(err error, ctx *registry.RequestContext) bool {
			var denied isolation.ErrPermissionDenied
			return errors.As(err, &denied)
		},
		Fn: func(err error, ctx *registry.RequestContext) (any, error) {
			var denied isolation.ErrPermissionDenied
			errors.As(err, &denied)
			appErr := errchain.Permission(err.Error(), map[string]string{
				"plugin": denied.Plugin,
				"token":  string(denied.Token),
			})
			return errchain.Response{
				Error:     true,
				Message:   appErr.Error(),
				Code:      appErr.Code(),
				RequestID: ctx.RequestID,
				Timestamp: time.Now(),
				Details:   appErr.Details(),
			}, nil
		},
	}
}

// installGlobalMiddleware wires the ambient cross-cutting middleware
// implied by security.* and performance.* onto every plugin loaded
// afterward (applied per plugin in afterLoad).
func (a *Application) installGlobalMiddleware(snap config.Snapshot) {
	var entries []registry.MiddlewareEntry
	entries = append(entries, middleware.Logging("log", -100, 1.0, nil))
	entries = append(entries, middleware.Timing("timing", -90))

	if snap.Security.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(
			snap.Security.RateLimit.MaxRequests,
			time.Duration(snap.Security.RateLimit.WindowMS)*time.Millisecond,
		)
		entries = append(entries, middleware.RateLimit("ratelimit", -50, limiter))
	}
	if snap.Performance.Monitoring {
		metrics := middleware.NewPerformanceMetrics(a.metrics)
		entries = append(entries, middleware.Performance("perf", 50, metrics, middleware.Thresholds{}))
	}

	a.mu.Lock()
	a.defaultMiddleware = entries
	a.mu.Unlock()
}

// Stop runs the full §4.13 shutdown sequence exactly once, unwinding
// every step Start recorded in reverse order.
func (a *Application) Stop(ctx context.Context) error {
	return a.lc.Stop(ctx, a.stop)
}

func (a *Application) stop(ctx context.Context) error {
	a.unwindAll(ctx)
	a.logger.Info("application stopped")
	return nil
}

// Close releases resources that outlive the Stopped state itself (log
// sinks). Stop should be called first if the application is running;
// Close is safe to call regardless of lifecycle state.
func (a *Application) Close() error {
	if a.logFactory != nil {
		return a.logFactory.Close()
	}
	return nil
}
