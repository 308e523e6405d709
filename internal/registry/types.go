// Package registry implements the Handler Metadata Model (C3) and the
// Registry (C8): the declaration surface that lets a plugin's service
// classes expose tools, resources, and prompts, and the three
// name-keyed maps those declarations end up installed in.
//
// It generalizes a typed request/response, service-locator-map
// handler-registration pattern to a kind-polymorphic descriptor with an
// attached middleware and error-handler pipeline.
package registry

import (
	"context"
	"fmt"
)

// Kind is one of the three surfaces a descriptor can register against.
type Kind string

const (
	KindTool     Kind = "tool"
	KindResource Kind = "resource"
	KindPrompt   Kind = "prompt"
)

// InputParam is per-parameter metadata attached at declaration (§3).
type InputParam struct {
	Position    int
	Name        string
	Schema      Schema
	Description string
	Required    bool
}

// Schema is a minimal structural validator for a mapping of argument
// name to typed value. It intentionally mirrors JSON Schema's "type"
// vocabulary rather than depending on a full JSON Schema library,
// since the engine only needs to validate/coerce primitive argument
// shapes (§4.3), not arbitrary nested documents.
type Schema struct {
	Type       string // "string", "number", "integer", "boolean", "array", "object"
	Items      *Schema
	Properties map[string]Schema
	Enum       []any
	// Required names the properties an "object" schema's mapping must
	// contain (§4.3 "all required unless marked optional").
	Required []string
}

// InvokeFunc is a descriptor's bound handler body: args have already
// been validated/coerced against the descriptor's input schema.
type InvokeFunc func(ctx context.Context, args map[string]any) (any, error)

// MiddlewareFunc is the contract from §4.9: fn(ctx, next) -> result.
type MiddlewareFunc func(ctx *RequestContext, next func() (any, error)) (any, error)

// MiddlewareEntry orders a middleware in a descriptor's or plugin's
// chain; lower Priority runs outermost (§3).
type MiddlewareEntry struct {
	ID       string
	Priority int
	Fn       MiddlewareFunc
}

// ErrorPredicate decides whether an ErrorHandlerEntry applies to err.
type ErrorPredicate func(err error, ctx *RequestContext) bool

// ErrorHandlerFunc produces a response object for a matched error.
type ErrorHandlerFunc func(err error, ctx *RequestContext) (any, error)

// ErrorHandlerEntry is tried in ascending Priority; the first whose
// Predicate matches produces the response (§3, §4.10).
type ErrorHandlerEntry struct {
	ID        string
	Priority  int
	Predicate ErrorPredicate
	Fn        ErrorHandlerFunc
}

// RequestContext is built per request (§3).
type RequestContext struct {
	RequestID   string
	RequestType Kind
	MethodName  string
	Args        map[string]any
	Request     any
	Metadata    map[string]any
	StartTime   int64
	Logger      Logger
	Context     context.Context
}

// Logger is the narrow slice of pkg/logging.Logger the registry and
// its consumers need, kept as an interface here so this package does
// not import pkg/logging and create an import cycle risk as the
// dependency graph grows.
type Logger interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(err error, format string, args ...any)
	Debug(format string, args ...any)
}

// HandlerDescriptor is the unit of registration (§3). Immutable once
// installed.
type HandlerDescriptor struct {
	Kind          Kind
	Name          string
	Description   string
	Params        []InputParam
	URIPattern    string // resources only
	MIMEType      string // resources only
	Middleware    []MiddlewareEntry
	ErrorHandlers []ErrorHandlerEntry
	Invoke        InvokeFunc

	PluginName string
}

// Validate checks the invariants from §4.3: non-empty name, and a
// middleware list whose priorities are non-decreasing once explicit
// priorities are applied (ties broken by list index, which is already
// true by construction since we never reorder equal priorities).
func (d *HandlerDescriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("registry: descriptor name must not be empty")
	}
	switch d.Kind {
	case KindTool, KindResource, KindPrompt:
	default:
		return fmt.Errorf("registry: descriptor %q has unknown kind %q", d.Name, d.Kind)
	}
	for i := 1; i < len(d.Middleware); i++ {
		if d.Middleware[i].Priority < d.Middleware[i-1].Priority {
			return fmt.Errorf("registry: descriptor %q middleware out of priority order at index %d", d.Name, i)
		}
	}
	return nil
}

// InputSchema derives the descriptor's combined input schema from its
// Params, as the product of per-parameter schemas (§3: "the handler's
// full input schema is the product of its parameters"), carrying
// forward each param's Required flag so the coercion step can enforce
// it (§4.3 "all required unless marked optional").
func (d *HandlerDescriptor) InputSchema() Schema {
	props := make(map[string]Schema, len(d.Params))
	var required []string
	for _, p := range d.Params {
		props[p.Name] = p.Schema
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return Schema{Type: "object", Properties: props, Required: required}
}
