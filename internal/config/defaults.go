package config

// Priority constants for the built-in source kinds (§4.1, ascending).
const (
	PriorityDefaults    = 0
	PriorityEnvTemplate = 10
	PriorityFile        = 15
	PriorityEnvVars     = 20
	PriorityRuntime     = 30
)

const (
	sourceKeyDefaults    = "defaults"
	sourceKeyEnvTemplate = "env-template"
	sourceKeyEnvVars     = "env-vars"
)

// defaultSnapshotData returns the built-in defaults (priority 0) as a
// generic map so it merges through the same deep-merge path as every
// other source.
func defaultSnapshotData() map[string]any {
	return map[string]any{
		"server": map[string]any{
			"name":    "sker-daemon-mcp",
			"version": "0.1.0",
			"transport": map[string]any{
				"type": "stdio",
				"http": map[string]any{
					"port":                         3000,
					"host":                         "localhost",
					"cors":                         false,
					"enableSessions":               false,
					"enableJsonResponse":           false,
					"requestTimeout":               30000,
					"maxBodySize":                  1048576,
					"enableDnsRebindingProtection": false,
					"allowedHosts":                 []any{},
					"allowedOrigins":               []any{},
				},
			},
			"capabilities": map[string]any{
				"logging":      true,
				"sampling":     false,
				"experimental": false,
			},
			"limits": map[string]any{
				"maxConcurrentRequests": 100,
				"requestTimeout":        30000,
				"maxRequestSize":        1048576,
				"maxResponseSize":       5242880,
			},
		},
		"logging": map[string]any{
			"level":     "info",
			"format":    "simple",
			"colorize":  true,
			"timestamp": true,
			"layers": map[string]any{
				"platform":    map[string]any{"level": "warn", "console": true, "file": true},
				"application": map[string]any{"level": "info", "console": true, "file": true},
				"plugin":      map[string]any{"level": "debug", "console": false, "file": true},
			},
			"rotation": map[string]any{
				"maxSize":     "20MB",
				"maxFiles":    14,
				"datePattern": "2006-01-02",
				"compress":    true,
			},
		},
		"plugins": map[string]any{
			"discovery": map[string]any{
				"directories": []any{"plugins"},
				"maxDepth":    3,
				"watch":       false,
				"includeDev":  false,
			},
			"loading": map[string]any{
				"parallel":      true,
				"timeout":       10000,
				"maxConcurrent": 3,
			},
			"isolation": map[string]any{
				"default":    "service",
				"plugins":    map[string]any{},
				"priorities": []any{},
			},
			"plugins": map[string]any{},
		},
		"security": map[string]any{
			"authentication": false,
			"authorization":  false,
			"apiKey": map[string]any{
				"enabled": false,
				"header":  "X-API-Key",
				"keys":    []any{},
			},
			"rateLimit": map[string]any{
				"enabled":            false,
				"maxRequests":        100,
				"windowMs":           60000,
				"skipFailedRequests": false,
			},
		},
		"performance": map[string]any{
			"monitoring": false,
			"cache": map[string]any{
				"enabled":         false,
				"maxSize":         100,
				"ttl":             300000,
				"cleanupInterval": 60000,
			},
			"memory": map[string]any{
				"monitoring":       false,
				"warningThreshold": 80,
				"gcHints":          false,
			},
		},
		"environment": map[string]any{
			"environment": "development",
			"overrides":   map[string]any{},
		},
	}
}
