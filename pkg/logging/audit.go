package logging

import "strings"

// AuditEvent is a structured audit record for security-sensitive engine
// decisions: permission denials, conflict resolutions, plugin lifecycle
// transitions.
type AuditEvent struct {
	Action    string
	Outcome   string // "success" or "denied"/"failure"
	Plugin    string
	Target    string
	Details   string
	Error     string
}

// Audit logs an AuditEvent at Info level with an [AUDIT] prefix so it is
// easy to grep or ship to a separate collector.
func (l *Logger) Audit(event AuditEvent) {
	parts := make([]string, 0, 6)
	parts = append(parts, "action="+event.Action)
	parts = append(parts, "outcome="+event.Outcome)
	if event.Plugin != "" {
		parts = append(parts, "plugin="+event.Plugin)
	}
	if event.Target != "" {
		parts = append(parts, "target="+event.Target)
	}
	if event.Details != "" {
		parts = append(parts, "details="+event.Details)
	}
	if event.Error != "" {
		parts = append(parts, "error="+event.Error)
	}
	l.Info("[AUDIT] %s", strings.Join(parts, " "))
}
