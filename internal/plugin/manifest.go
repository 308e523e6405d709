// Package plugin implements the Plugin Loader & Discovery (C5):
// walking a plugin root for manifest-bearing directories, validating
// and loading candidates through the isolation manager and conflict
// detector, and unloading/reloading already-enabled plugins.
//
// Uses a directory-walk-plus-per-file-YAML-parse discovery pattern,
// collecting validation errors per candidate rather than aborting the
// whole walk.
package plugin

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"sker/internal/isolation"
)

// Manifest is the on-disk plugin.yaml/plugin.yml schema (§4.5).
type Manifest struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Main    string `yaml:"main"`

	// Dev opts this plugin into hot-reload watching of its entry
	// directory, gated overall by plugins.discovery.watch (§4.12).
	Dev bool `yaml:"dev"`

	MCP *MCPBlock `yaml:"mcp"`
}

// MCPBlock is the manifest's optional mcp section.
type MCPBlock struct {
	Type           string         `yaml:"type"`
	Category       string         `yaml:"category"`
	Permissions    PermissionSpec `yaml:"permissions"`
	IsolationLevel string         `yaml:"isolationLevel"`
	Compatibility  Compatibility  `yaml:"compatibility"`
}

// PermissionSpec is the manifest's requested (narrower-only)
// permission set (§3).
type PermissionSpec struct {
	ParentServices     bool `yaml:"parentServices"`
	GlobalRegistration bool `yaml:"globalRegistration"`
	CrossPluginAccess  bool `yaml:"crossPluginAccess"`
	CoreSystemAccess   bool `yaml:"coreSystemAccess"`
}

func (p PermissionSpec) toPermissions() isolation.Permissions {
	return isolation.Permissions{
		ParentServices:     p.ParentServices,
		GlobalRegistration: p.GlobalRegistration,
		CrossPluginAccess:  p.CrossPluginAccess,
		CoreSystemAccess:   p.CoreSystemAccess,
	}
}

// Compatibility is the manifest's declared platform/runtime/MCP
// constraints (§4.5).
type Compatibility struct {
	RuntimeVersion string   `yaml:"runtimeVersion"`
	Platform       []string `yaml:"platform"`
	MCPVersion     string   `yaml:"mcpVersion"`
}

// defaultMain is used when a manifest omits `main` (§4.5).
const defaultMain = "index.yaml"

// ParseManifest decodes raw YAML bytes and fills in defaults.
func ParseManifest(raw []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("plugin: parse manifest: %w", err)
	}
	if m.Main == "" {
		m.Main = defaultMain
	}
	return &m, nil
}

// ValidationError collects the reasons a manifest failed schema
// validation; a candidate with a non-empty list is skipped unless
// discovery runs with AllowInvalid (§4.5).
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("plugin: invalid manifest: %v", e.Reasons)
}

// Validate checks the required fields and, when present, the shape of
// the mcp block.
func (m *Manifest) Validate() *ValidationError {
	var reasons []string
	if m.Name == "" {
		reasons = append(reasons, "name is required")
	}
	if m.Version == "" {
		reasons = append(reasons, "version is required")
	} else if _, err := semver.NewVersion(m.Version); err != nil {
		reasons = append(reasons, fmt.Sprintf("version %q is not valid semver", m.Version))
	}
	if m.MCP != nil {
		switch m.MCP.IsolationLevel {
		case "", string(isolation.LevelNone), string(isolation.LevelService), string(isolation.LevelFull):
		default:
			reasons = append(reasons, fmt.Sprintf("mcp.isolationLevel %q is invalid", m.MCP.IsolationLevel))
		}
	}
	if len(reasons) == 0 {
		return nil
	}
	return &ValidationError{Reasons: reasons}
}

// CheckCompatibility validates a manifest's declared platform and
// runtime-version constraints against the running engine (§4.5 step
// 1). devWarnOnly downgrades an incompatibility to a non-fatal warning
// (returned as the second value) instead of ErrIncompatiblePlugin.
func CheckCompatibility(m *Manifest, currentPlatform, engineVersion string, devWarnOnly bool) (warning string, err error) {
	if m.MCP == nil {
		return "", nil
	}
	c := m.MCP.Compatibility

	if len(c.Platform) > 0 {
		ok := false
		for _, p := range c.Platform {
			if p == currentPlatform {
				ok = true
				break
			}
		}
		if !ok {
			msg := fmt.Sprintf("plugin %q requires platform in %v, running on %q", m.Name, c.Platform, currentPlatform)
			if devWarnOnly {
				return msg, nil
			}
			return "", &ErrIncompatiblePlugin{Plugin: m.Name, Reason: msg}
		}
	}

	if c.RuntimeVersion != "" {
		constraint, err := semver.NewConstraint(c.RuntimeVersion)
		if err != nil {
			return "", fmt.Errorf("plugin: invalid runtimeVersion constraint %q: %w", c.RuntimeVersion, err)
		}
		running, err := semver.NewVersion(engineVersion)
		if err != nil {
			return "", fmt.Errorf("plugin: invalid engine version %q: %w", engineVersion, err)
		}
		if !constraint.Check(running) {
			msg := fmt.Sprintf("plugin %q requires runtime %s, running %s", m.Name, c.RuntimeVersion, engineVersion)
			if devWarnOnly {
				return msg, nil
			}
			return "", &ErrIncompatiblePlugin{Plugin: m.Name, Reason: msg}
		}
	}

	return "", nil
}

// ErrIncompatiblePlugin is returned by CheckCompatibility (§4.5).
type ErrIncompatiblePlugin struct {
	Plugin string
	Reason string
}

func (e *ErrIncompatiblePlugin) Error() string {
	return fmt.Sprintf("plugin: %s incompatible: %s", e.Plugin, e.Reason)
}
