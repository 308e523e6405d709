package middleware

import (
	"fmt"

	"sker/internal/registry"
)

// ValidationError is raised when ctx.Args fails the descriptor's
// inputSchema (§4.9, §4.11 step 3).
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: field %q: %s", e.Field, e.Reason)
}

// Validation coerces and checks schema against ctx.Args before calling
// next, failing closed with a ValidationError (§4.9).
func Validation(id string, priority int, schema registry.Schema) registry.MiddlewareEntry {
	return registry.MiddlewareEntry{
		ID:       id,
		Priority: priority,
		Fn: func(ctx *registry.RequestContext, next func() (any, error)) (any, error) {
			coerced, err := coerceAgainstSchema(ctx.Args, schema)
			if err != nil {
				return nil, err
			}
			ctx.Args = coerced
			return next()
		},
	}
}

// CoerceArgs exposes the schema coercion step for the dispatcher's own
// §4.11 step 3 (argument coercion against the descriptor's inputSchema,
// ahead of the middleware chain), independent of whether the descriptor
// also opted into a Validation middleware entry.
func CoerceArgs(args map[string]any, schema registry.Schema) (map[string]any, error) {
	return coerceAgainstSchema(args, schema)
}

func coerceAgainstSchema(args map[string]any, schema registry.Schema) (map[string]any, error) {
	if schema.Type != "object" {
		return args, nil
	}
	out := make(map[string]any, len(args))
	for name, val := range args {
		out[name] = val
	}
	for name, propSchema := range schema.Properties {
		val, present := out[name]
		if !present {
			continue
		}
		coerced, err := coerceValue(val, propSchema)
		if err != nil {
			return nil, &ValidationError{Field: name, Reason: err.Error()}
		}
		out[name] = coerced
	}
	for _, name := range schema.Required {
		if _, present := out[name]; !present {
			return nil, &ValidationError{Field: name, Reason: "required argument missing"}
		}
	}
	return out, nil
}

func coerceValue(v any, schema registry.Schema) (any, error) {
	switch schema.Type {
	case "string":
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		if len(schema.Enum) > 0 && !containsAny(schema.Enum, s) {
			return nil, fmt.Errorf("value %q not in allowed set", s)
		}
		return s, nil
	case "integer":
		switch n := v.(type) {
		case int:
			return n, nil
		case float64:
			return int(n), nil
		default:
			return nil, fmt.Errorf("expected integer, got %T", v)
		}
	case "number":
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		default:
			return nil, fmt.Errorf("expected number, got %T", v)
		}
	case "boolean":
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected boolean, got %T", v)
		}
		return b, nil
	case "array":
		list, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("expected array, got %T", v)
		}
		if schema.Items == nil {
			return list, nil
		}
		out := make([]any, len(list))
		for i, item := range list {
			coerced, err := coerceValue(item, *schema.Items)
			if err != nil {
				return nil, err
			}
			out[i] = coerced
		}
		return out, nil
	default:
		return v, nil
	}
}

func containsAny(list []any, v any) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
