package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// SinkConfig controls which outputs a layer writes to.
type SinkConfig struct {
	Console bool
	File    bool
	HTTPURL string
}

// LayerConfig is one layer's entry under logging.layers.* in the
// configuration snapshot.
type LayerConfig struct {
	Level Level
	Sinks SinkConfig
}

// Config is the Logger Factory's view of the configuration snapshot
// (logging.* in §6).
type Config struct {
	Format    string // "simple" (default) or "json"
	Colorize  bool
	Timestamp bool
	HomeDir   string // base for <home>/logs/<layer>/<layer>.log (platform, application, plugin)
	Rotation  RotationConfig
	Layers    map[Layer]LayerConfig
}

// DefaultConfig matches §6's logging.layers.* defaults.
func DefaultConfig(homeDir string) Config {
	return Config{
		Format:    "simple",
		Colorize:  true,
		Timestamp: true,
		HomeDir:   homeDir,
		Rotation:  DefaultRotation(),
		Layers: map[Layer]LayerConfig{
			LayerPlatform:    {Level: LevelWarn, Sinks: SinkConfig{Console: true, File: true}},
			LayerApplication: {Level: LevelInfo, Sinks: SinkConfig{Console: true, File: true}},
			LayerPlugin:      {Level: LevelDebug, Sinks: SinkConfig{Console: false, File: true}},
		},
	}
}

// layerState is the live, swappable state backing every *Logger on a
// given layer: a single slog.Handler built from the layer's current
// sink set, plus the open file/http sinks so Close can release them.
type layerState struct {
	handler slog.Handler
	level   Level
	closers []io.Closer
}

// Factory produces layered loggers and reconfigures them in place when
// the configuration snapshot changes (§4.2).
type Factory struct {
	mu     sync.Mutex
	states map[Layer]*atomic.Pointer[layerState]
	cfg    Config
}

// NewFactory builds a Factory from the initial configuration and opens
// the configured sinks for each layer.
func NewFactory(cfg Config) (*Factory, error) {
	f := &Factory{states: make(map[Layer]*atomic.Pointer[layerState])}
	for _, layer := range []Layer{LayerPlatform, LayerApplication, LayerPlugin} {
		f.states[layer] = &atomic.Pointer[layerState]{}
	}
	if err := f.Reconfigure(cfg); err != nil {
		return nil, err
	}
	return f, nil
}

// Reconfigure rebuilds every layer's handler from cfg and atomically
// swaps it in; loggers already handed out keep working because they
// read the handler through the same atomic.Pointer on every call.
func (f *Factory) Reconfigure(cfg Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for layer, lcfg := range cfg.Layers {
		state, err := f.buildLayerState(layer, lcfg, cfg)
		if err != nil {
			return err
		}
		ptr, ok := f.states[layer]
		if !ok {
			ptr = &atomic.Pointer[layerState]{}
			f.states[layer] = ptr
		}
		old := ptr.Swap(state)
		if old != nil {
			for _, c := range old.closers {
				_ = c.Close()
			}
		}
	}
	f.cfg = cfg
	return nil
}

func (f *Factory) buildLayerState(layer Layer, lcfg LayerConfig, cfg Config) (*layerState, error) {
	var writers []io.Writer
	var closers []io.Closer

	if lcfg.Sinks.Console {
		writers = append(writers, os.Stdout)
	}
	if lcfg.Sinks.File && cfg.HomeDir != "" {
		dir := filepath.Join(cfg.HomeDir, "logs", string(layer))
		rf, err := newRotatingFile(dir, string(layer), cfg.Rotation)
		if err != nil {
			return nil, err
		}
		writers = append(writers, rf)
		closers = append(closers, rf)
	}
	if lcfg.Sinks.HTTPURL != "" {
		hs := newHTTPSink(lcfg.Sinks.HTTPURL, 1024)
		writers = append(writers, hs)
		closers = append(closers, hs)
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	opts := &slog.HandlerOptions{Level: lcfg.Level.SlogLevel()}
	var handler slog.Handler
	dest := io.MultiWriter(writers...)
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(dest, opts)
	} else {
		handler = slog.NewTextHandler(dest, opts)
	}

	return &layerState{handler: handler, level: lcfg.Level, closers: closers}, nil
}

// New returns a logger bound to layer/component. Plugin-layer loggers
// should additionally call Child(logging.Field("pluginName", name)).
func (f *Factory) New(layer Layer, component string) *Logger {
	ptr, ok := f.states[layer]
	if !ok {
		ptr = &atomic.Pointer[layerState]{}
		f.states[layer] = ptr
	}
	return &Logger{factory: f, layer: layer, state: ptr, component: component}
}

// Close releases every layer's sinks.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ptr := range f.states {
		if st := ptr.Load(); st != nil {
			for _, c := range st.closers {
				_ = c.Close()
			}
		}
	}
	return nil
}
