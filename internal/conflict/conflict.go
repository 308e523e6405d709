// Package conflict implements the Conflict Detector (C7): a set of
// built-in and custom rules run over candidate plugins (optionally
// alongside the current registry) to surface naming and version
// collisions, plus the resolution strategies the plugin loader applies
// to decide rollback vs partial acceptance.
//
// Rule objects carry a detect function and are collected into a fixed
// slice, the same shape a validation-rule-set registry uses, extended
// here from a single-kind check into the kind-polymorphic rule set
// named in §4.7.
package conflict

import (
	"fmt"

	"sker/internal/registry"
)

// Severity classifies a Conflict (§3).
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Type names the built-in and custom conflict categories (§3/§4.7).
type Type string

const (
	TypeToolName          Type = "toolName"
	TypeResourceURI        Type = "resourceUri"
	TypePromptName         Type = "promptName"
	TypeServiceClass       Type = "serviceClass"
	TypePluginNameVersion  Type = "pluginNameVersion"
	TypeCompat             Type = "compat"
	TypeConfiguration      Type = "configuration"
)

// Resource identifies what a conflict is about (§3).
type Resource struct {
	Kind       string
	Identifier string
}

// Conflict is one detected collision (§3).
type Conflict struct {
	ID                  string
	Type                Type
	Severity            Severity
	Plugins             []string
	Resource            Resource
	RecommendedStrategy Strategy
	Description         string
}

// CandidatePlugin is the minimal shape the detector needs about a
// plugin under consideration: its identity, the service-class symbols
// it contributes, its declared MCP compatibility range, and the
// descriptors it wants to install.
type CandidatePlugin struct {
	Name            string
	Version         string
	IsolationLevel  string
	ServiceClasses  []string
	MCPVersion      string
	Descriptors     []*registry.HandlerDescriptor
}

// Rule is a single detection pass; Detect receives every candidate
// plugin plus the registry's current snapshot for cross-checking
// against already-installed descriptors.
type Rule struct {
	Name        string
	Description string
	Detect      func(candidates []CandidatePlugin, current registry.Snapshot) []Conflict
}

// Strategy is a resolution strategy name (§4.7).
type Strategy string

const (
	StrategyFirstWins Strategy = "firstWins"
	StrategyLastWins  Strategy = "lastWins"
	StrategyPriority  Strategy = "priority"
	StrategyManual    Strategy = "manual"
)

// allowedStrategies lists which strategies are valid for a conflict
// type; pluginNameVersion allows only manual resolution, compat allows
// manual or priority, while name collisions support the full set.
func allowedStrategiesFor(t Type) []Strategy {
	switch t {
	case TypePluginNameVersion:
		return []Strategy{StrategyManual}
	case TypeCompat:
		return []Strategy{StrategyManual, StrategyPriority}
	default:
		return []Strategy{StrategyFirstWins, StrategyLastWins, StrategyPriority, StrategyManual}
	}
}

// Detector runs the built-in rules plus any custom rules registered at
// startup (§4.7).
type Detector struct {
	rules []Rule
}

// New returns a Detector seeded with the built-in rules.
func New() *Detector {
	d := &Detector{}
	d.rules = append(d.rules,
		toolNameRule(), resourceURIRule(), promptNameRule(),
		serviceClassRule(), pluginNameVersionRule(), compatRule(),
	)
	return d
}

// RegisterRule adds a custom rule (§4.7 "objects {name, description,
// detect(plugins)→conflicts} registered at startup").
func (d *Detector) RegisterRule(r Rule) {
	d.rules = append(d.rules, r)
}

// Detect runs every registered rule against the candidates and current
// registry snapshot, concatenating their conflicts.
func (d *Detector) Detect(candidates []CandidatePlugin, current registry.Snapshot) []Conflict {
	var all []Conflict
	for _, r := range d.rules {
		all = append(all, r.Detect(candidates, current)...)
	}
	return all
}

func conflictID(t Type, identifier string) string {
	return fmt.Sprintf("%s:%s", t, identifier)
}

func toolNameRule() Rule {
	return Rule{
		Name:        "toolName",
		Description: "two descriptors of kind tool share a name",
		Detect: func(candidates []CandidatePlugin, current registry.Snapshot) []Conflict {
			return nameCollisions(candidates, current, registry.KindTool, TypeToolName)
		},
	}
}

func resourceURIRule() Rule {
	return Rule{
		Name:        "resourceUri",
		Description: "two descriptors of kind resource share a URI",
		Detect: func(candidates []CandidatePlugin, current registry.Snapshot) []Conflict {
			return nameCollisions(candidates, current, registry.KindResource, TypeResourceURI)
		},
	}
}

func promptNameRule() Rule {
	return Rule{
		Name:        "promptName",
		Description: "two descriptors of kind prompt share a name",
		Detect: func(candidates []CandidatePlugin, current registry.Snapshot) []Conflict {
			return nameCollisions(candidates, current, registry.KindPrompt, TypePromptName)
		},
	}
}

// nameCollisions is shared by the three identifier-collision rules:
// it checks each candidate's descriptors of kind against both its
// sibling candidates and the already-installed registry.
func nameCollisions(candidates []CandidatePlugin, current registry.Snapshot, kind registry.Kind, t Type) []Conflict {
	seenBy := map[string]string{} // name -> owning plugin (candidate or already installed)

	existing := current.Tools
	switch kind {
	case registry.KindResource:
		existing = current.Resources
	case registry.KindPrompt:
		existing = current.Prompts
	}
	for _, d := range existing {
		seenBy[d.Name] = d.PluginName
	}

	var conflicts []Conflict
	for _, c := range candidates {
		for _, d := range c.Descriptors {
			if d.Kind != kind {
				continue
			}
			if owner, ok := seenBy[d.Name]; ok && owner != c.Name {
				conflicts = append(conflicts, Conflict{
					ID:                  conflictID(t, d.Name),
					Type:                t,
					Severity:            SeverityError,
					Plugins:             []string{owner, c.Name},
					Resource:            Resource{Kind: string(kind), Identifier: d.Name},
					RecommendedStrategy: StrategyFirstWins,
					Description:         fmt.Sprintf("%s %q claimed by both %q and %q", kind, d.Name, owner, c.Name),
				})
				continue
			}
			seenBy[d.Name] = c.Name
		}
	}
	return conflicts
}

func serviceClassRule() Rule {
	return Rule{
		Name:        "serviceClass",
		Description: "same service-class symbol appears in two plugins",
		Detect: func(candidates []CandidatePlugin, _ registry.Snapshot) []Conflict {
			seenBy := map[string]string{}
			isoBy := map[string]string{} // symbol -> isolation level of its first owner
			var conflicts []Conflict
			for _, c := range candidates {
				for _, sc := range c.ServiceClasses {
					if owner, ok := seenBy[sc]; ok && owner != c.Name {
						sev := SeverityInfo
						if c.IsolationLevel == "none" || isoBy[sc] == "none" {
							sev = SeverityWarning
						}
						conflicts = append(conflicts, Conflict{
							ID:                  conflictID(TypeServiceClass, sc),
							Type:                TypeServiceClass,
							Severity:            sev,
							Plugins:             []string{owner, c.Name},
							Resource:            Resource{Kind: "serviceClass", Identifier: sc},
							RecommendedStrategy: StrategyManual,
							Description:         fmt.Sprintf("service class %q declared by both %q and %q", sc, owner, c.Name),
						})
						continue
					}
					seenBy[sc] = c.Name
					isoBy[sc] = c.IsolationLevel
				}
			}
			return conflicts
		},
	}
}

func pluginNameVersionRule() Rule {
	return Rule{
		Name:        "pluginNameVersion",
		Description: "two plugins share an identical name,version tuple",
		Detect: func(candidates []CandidatePlugin, _ registry.Snapshot) []Conflict {
			seen := map[string]string{}
			var conflicts []Conflict
			for _, c := range candidates {
				key := c.Name + "@" + c.Version
				if _, ok := seen[key]; ok {
					conflicts = append(conflicts, Conflict{
						ID:                  conflictID(TypePluginNameVersion, key),
						Type:                TypePluginNameVersion,
						Severity:            SeverityError,
						Plugins:             []string{c.Name},
						Resource:            Resource{Kind: "plugin", Identifier: key},
						RecommendedStrategy: StrategyManual,
						Description:         fmt.Sprintf("duplicate plugin %s", key),
					})
					continue
				}
				seen[key] = c.Name
			}
			return conflicts
		},
	}
}

func compatRule() Rule {
	return Rule{
		Name:        "compat",
		Description: "plugin's declared MCP version lies outside the supported range",
		Detect: func(candidates []CandidatePlugin, _ registry.Snapshot) []Conflict {
			var conflicts []Conflict
			for _, c := range candidates {
				if c.MCPVersion == "" {
					continue
				}
				if !supportedMCPVersion(c.MCPVersion) {
					conflicts = append(conflicts, Conflict{
						ID:                  conflictID(TypeCompat, c.Name),
						Type:                TypeCompat,
						Severity:            SeverityWarning,
						Plugins:             []string{c.Name},
						Resource:            Resource{Kind: "plugin", Identifier: c.Name},
						RecommendedStrategy: StrategyManual,
						Description:         fmt.Sprintf("plugin %q declares unsupported mcp version %q", c.Name, c.MCPVersion),
					})
				}
			}
			return conflicts
		},
	}
}

// SupportedMCPVersions is the range this engine's transport layer
// understands; kept as a var rather than a const so the application
// bootstrap can widen it from config if needed.
var SupportedMCPVersions = []string{"2024-11-05", "2025-03-26", "2025-06-18"}

func supportedMCPVersion(v string) bool {
	for _, s := range SupportedMCPVersions {
		if s == v {
			return true
		}
	}
	return false
}

// Resolution is the record a resolution strategy produces (§4.7).
type Resolution struct {
	Success          bool
	Action           string
	AffectedPlugins  []string
}

// Resolve applies strategy to a conflict, validating it is allowed for
// the conflict's type (§4.7: "apply only an allowed one").
func Resolve(c Conflict, strategy Strategy, pluginPriorities []string) (Resolution, error) {
	allowed := allowedStrategiesFor(c.Type)
	ok := false
	for _, s := range allowed {
		if s == strategy {
			ok = true
			break
		}
	}
	if !ok {
		return Resolution{}, fmt.Errorf("conflict: strategy %q not allowed for conflict type %q", strategy, c.Type)
	}

	switch strategy {
	case StrategyFirstWins:
		return Resolution{Success: true, Action: "kept " + c.Plugins[0], AffectedPlugins: c.Plugins[1:]}, nil
	case StrategyLastWins:
		last := c.Plugins[len(c.Plugins)-1]
		return Resolution{Success: true, Action: "kept " + last, AffectedPlugins: c.Plugins[:len(c.Plugins)-1]}, nil
	case StrategyPriority:
		winner := highestPriority(c.Plugins, pluginPriorities)
		if winner == "" {
			return Resolution{Success: false, Action: "no priority configured", AffectedPlugins: c.Plugins}, nil
		}
		var losers []string
		for _, p := range c.Plugins {
			if p != winner {
				losers = append(losers, p)
			}
		}
		return Resolution{Success: true, Action: "kept " + winner, AffectedPlugins: losers}, nil
	case StrategyManual:
		return Resolution{Success: false, Action: "surfaced to operator", AffectedPlugins: c.Plugins}, nil
	default:
		return Resolution{}, fmt.Errorf("conflict: unknown strategy %q", strategy)
	}
}

// highestPriority returns the name in plugins that appears earliest in
// priorities (earlier = higher priority), or "" if none of plugins is
// listed.
func highestPriority(plugins []string, priorities []string) string {
	best := -1
	var winner string
	for _, p := range plugins {
		for i, pr := range priorities {
			if pr == p && (best == -1 || i < best) {
				best = i
				winner = p
			}
		}
	}
	return winner
}
