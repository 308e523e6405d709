// Package config implements the layered Config Resolver (C1): an ordered
// set of sources merged by priority into an immutable Snapshot, with
// change notification and optional hot reload of file sources.
//
// LoadConfig-style ordered loading plus per-directory YAML scanning,
// generalized from a single fixed config struct to the sker engine's
// server/logging/plugins/security/performance/environment sections
// (§6).
package config

import "time"

// Snapshot is the immutable, merged result of every configured source
// (§3 "Config Snapshot").
type Snapshot struct {
	Version    int
	Generation int

	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Plugins     PluginsConfig     `yaml:"plugins"`
	Security    SecurityConfig    `yaml:"security"`
	Performance PerformanceConfig `yaml:"performance"`
	Environment EnvironmentConfig `yaml:"environment"`
}

type TransportType string

const (
	TransportStdio TransportType = "stdio"
	TransportHTTP  TransportType = "http"
)

type HTTPTransportConfig struct {
	Port                        int      `yaml:"port"`
	Host                        string   `yaml:"host"`
	CORS                        bool     `yaml:"cors"`
	EnableSessions              bool     `yaml:"enableSessions"`
	EnableJSONResponse          bool     `yaml:"enableJsonResponse"`
	RequestTimeoutMS            int      `yaml:"requestTimeout"`
	MaxBodySizeBytes            int      `yaml:"maxBodySize"`
	EnableDNSRebindingProtect   bool     `yaml:"enableDnsRebindingProtection"`
	AllowedHosts                []string `yaml:"allowedHosts"`
	AllowedOrigins              []string `yaml:"allowedOrigins"`
}

type TransportConfig struct {
	Type TransportType       `yaml:"type"`
	HTTP HTTPTransportConfig `yaml:"http"`
}

type CapabilitiesConfig struct {
	Logging      bool `yaml:"logging"`
	Sampling     bool `yaml:"sampling"`
	Experimental bool `yaml:"experimental"`
}

type LimitsConfig struct {
	MaxConcurrentRequests int `yaml:"maxConcurrentRequests"`
	RequestTimeoutMS      int `yaml:"requestTimeout"`
	MaxRequestSizeBytes   int `yaml:"maxRequestSize"`
	MaxResponseSizeBytes  int `yaml:"maxResponseSize"`
}

type ServerConfig struct {
	Name         string             `yaml:"name"`
	Version      string             `yaml:"version"`
	Transport    TransportConfig    `yaml:"transport"`
	Capabilities CapabilitiesConfig `yaml:"capabilities"`
	Limits       LimitsConfig       `yaml:"limits"`
}

type LayerConfigYAML struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
	File    bool   `yaml:"file"`
}

type RotationConfigYAML struct {
	MaxSize     string `yaml:"maxSize"`
	MaxFiles    int    `yaml:"maxFiles"`
	DatePattern string `yaml:"datePattern"`
	Compress    bool   `yaml:"compress"`
}

type LoggingConfig struct {
	Level     string          `yaml:"level"`
	Format    string          `yaml:"format"`
	Colorize  bool            `yaml:"colorize"`
	Timestamp bool            `yaml:"timestamp"`
	Layers    map[string]LayerConfigYAML `yaml:"layers"`
	Rotation  RotationConfigYAML         `yaml:"rotation"`
}

type DiscoveryConfig struct {
	Directories []string `yaml:"directories"`
	MaxDepth    int      `yaml:"maxDepth"`
	Watch       bool     `yaml:"watch"`
	IncludeDev  bool     `yaml:"includeDev"`
}

type LoadingConfig struct {
	Parallel      bool `yaml:"parallel"`
	TimeoutMS     int  `yaml:"timeout"`
	MaxConcurrent int  `yaml:"maxConcurrent"`
}

type IsolationConfig struct {
	Default    string            `yaml:"default"`
	Plugins    map[string]string `yaml:"plugins"`
	Priorities []string          `yaml:"priorities"`
}

type PluginsConfig struct {
	Discovery DiscoveryConfig          `yaml:"discovery"`
	Loading   LoadingConfig            `yaml:"loading"`
	Isolation IsolationConfig          `yaml:"isolation"`
	Plugins   map[string]map[string]any `yaml:"plugins"`
}

type APIKeyConfig struct {
	Enabled bool     `yaml:"enabled"`
	Header  string   `yaml:"header"`
	Keys    []string `yaml:"keys"`
}

type RateLimitConfig struct {
	Enabled            bool `yaml:"enabled"`
	MaxRequests        int  `yaml:"maxRequests"`
	WindowMS           int  `yaml:"windowMs"`
	SkipFailedRequests bool `yaml:"skipFailedRequests"`
}

type SecurityConfig struct {
	Authentication bool            `yaml:"authentication"`
	Authorization  bool            `yaml:"authorization"`
	APIKey         APIKeyConfig    `yaml:"apiKey"`
	RateLimit      RateLimitConfig `yaml:"rateLimit"`
}

type CacheConfig struct {
	Enabled             bool `yaml:"enabled"`
	MaxSize             int  `yaml:"maxSize"`
	TTLMS               int  `yaml:"ttl"`
	CleanupIntervalMS   int  `yaml:"cleanupInterval"`
}

type MemoryConfig struct {
	Monitoring       bool `yaml:"monitoring"`
	WarningThreshold int  `yaml:"warningThreshold"`
	GCHints          bool `yaml:"gcHints"`
}

type PerformanceConfig struct {
	Monitoring bool         `yaml:"monitoring"`
	Cache      CacheConfig  `yaml:"cache"`
	Memory     MemoryConfig `yaml:"memory"`
}

type EnvironmentConfig struct {
	Environment string                    `yaml:"environment"`
	Overrides   map[string]map[string]any `yaml:"overrides"`
}

// ChangeEvent is delivered to subscribers on every successful merge
// (§4.1 subscribe).
type ChangeEvent struct {
	Previous     Snapshot
	Current      Snapshot
	ChangedPaths []string
	At           time.Time
}

// ErrorEvent is delivered when a source update is rejected by validation,
// or when a watched file becomes unreadable/invalid.
type ErrorEvent struct {
	SourceKey string
	Err       error
	At        time.Time
}
