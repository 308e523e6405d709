package config

import "fmt"

// Isolation levels a plugin can be configured with (§4.5/§4.6). Defined
// here, not in the plugin package, because config must not depend on
// plugin internals — plugin depends on config instead.
const (
	IsolationNone    = "none"
	IsolationService = "service"
	IsolationFull    = "full"
)

// validate rejects snapshots that would leave the engine in an
// inconsistent state. Validation runs after every merge (§4.1); a
// failure here must leave the previous snapshot untouched, so it takes
// only the candidate and never mutates it.
func validate(snap Snapshot) error {
	switch snap.Server.Transport.Type {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("config: server.transport.type must be %q or %q, got %q",
			TransportStdio, TransportHTTP, snap.Server.Transport.Type)
	}

	if snap.Server.Transport.Type == TransportHTTP {
		if snap.Server.Transport.HTTP.Port <= 0 || snap.Server.Transport.HTTP.Port > 65535 {
			return fmt.Errorf("config: server.transport.http.port out of range: %d", snap.Server.Transport.HTTP.Port)
		}
	}

	if snap.Server.Limits.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("config: server.limits.maxConcurrentRequests must be positive")
	}

	switch snap.Plugins.Isolation.Default {
	case IsolationNone, IsolationService, IsolationFull:
	default:
		return fmt.Errorf("config: plugins.isolation.default invalid: %q", snap.Plugins.Isolation.Default)
	}
	for name, level := range snap.Plugins.Isolation.Plugins {
		switch level {
		case IsolationNone, IsolationService, IsolationFull:
		default:
			return fmt.Errorf("config: plugins.isolation.plugins[%s] invalid: %q", name, level)
		}
	}

	if snap.Plugins.Loading.MaxConcurrent <= 0 {
		return fmt.Errorf("config: plugins.loading.maxConcurrent must be positive")
	}

	if snap.Security.RateLimit.Enabled && snap.Security.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("config: security.rateLimit.maxRequests must be positive when enabled")
	}

	if snap.Performance.Cache.Enabled && snap.Performance.Cache.MaxSize <= 0 {
		return fmt.Errorf("config: performance.cache.maxSize must be positive when enabled")
	}

	return nil
}
