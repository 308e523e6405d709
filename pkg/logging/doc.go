// Package logging provides the layered logger factory for the sker MCP host.
//
// Loggers are organized into three fixed layers — Platform, Application, and
// Plugin — each with its own default level and sink set (see
// logging.layers.* in the configuration snapshot). A Factory builds
// loggers on demand and reconfigures every logger it has produced, in
// place, whenever the configuration snapshot changes; existing *Logger
// handles keep working after a reconfiguration because they hold a
// pointer to an atomically-swapped handler rather than a fixed one.
//
// The package is built on log/slog, with a github.com/go-logr/logr bridge
// for callers that want the generic logr.Logger interface.
package logging
