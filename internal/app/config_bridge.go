package app

import (
	"strconv"
	"strings"

	"sker/internal/config"
	"sker/pkg/logging"
)

// loggingConfigFrom translates the config Snapshot's logging.* section
// (§6) into pkg/logging's Factory Config, falling back to the layer's
// built-in defaults for any layer the snapshot omits.
func loggingConfigFrom(snap config.Snapshot, homeDir string) logging.Config {
	cfg := logging.DefaultConfig(homeDir)
	cfg.Format = snap.Logging.Format
	cfg.Colorize = snap.Logging.Colorize
	cfg.Timestamp = snap.Logging.Timestamp
	cfg.Rotation = logging.RotationConfig{
		MaxSizeBytes: parseSizeBytes(snap.Logging.Rotation.MaxSize, cfg.Rotation.MaxSizeBytes),
		MaxFiles:     orInt(snap.Logging.Rotation.MaxFiles, cfg.Rotation.MaxFiles),
		DatePattern:  orString(snap.Logging.Rotation.DatePattern, cfg.Rotation.DatePattern),
		Compress:     snap.Logging.Rotation.Compress,
	}

	for name, layerCfg := range snap.Logging.Layers {
		layer := logging.Layer(name)
		existing, ok := cfg.Layers[layer]
		if !ok {
			existing = logging.LayerConfig{}
		}
		if layerCfg.Level != "" {
			existing.Level = logging.ParseLevel(layerCfg.Level)
		}
		existing.Sinks = logging.SinkConfig{Console: layerCfg.Console, File: layerCfg.File}
		cfg.Layers[layer] = existing
	}
	return cfg
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// parseSizeBytes reads a "20MB"-style value (§6 logging.rotation.maxSize);
// anything unrecognized falls back to def rather than failing bootstrap
// over a cosmetic logging setting.
func parseSizeBytes(s string, def int64) int64 {
	if s == "" {
		return def
	}
	lower := strings.ToLower(strings.TrimSpace(s))
	mult := int64(1)
	switch {
	case strings.HasSuffix(lower, "gb"):
		mult = 1024 * 1024 * 1024
		lower = strings.TrimSuffix(lower, "gb")
	case strings.HasSuffix(lower, "mb"):
		mult = 1024 * 1024
		lower = strings.TrimSuffix(lower, "mb")
	case strings.HasSuffix(lower, "kb"):
		mult = 1024
		lower = strings.TrimSuffix(lower, "kb")
	}
	n, err := strconv.ParseInt(strings.TrimSpace(lower), 10, 64)
	if err != nil {
		return def
	}
	return n * mult
}
