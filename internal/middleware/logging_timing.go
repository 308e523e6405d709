package middleware

import (
	"time"

	"sker/internal/registry"
)

// Logging logs entry/exit/error for every call, sampled by rate (1.0
// logs everything, 0.0 disables; §4.9).
func Logging(id string, priority int, sampleRate float64, sample func() float64) registry.MiddlewareEntry {
	return registry.MiddlewareEntry{
		ID:       id,
		Priority: priority,
		Fn: func(ctx *registry.RequestContext, next func() (any, error)) (any, error) {
			logIt := sampleRate >= 1 || (sampleRate > 0 && sample() < sampleRate)
			if logIt && ctx.Logger != nil {
				ctx.Logger.Debug("enter %s %s (request %s)", ctx.RequestType, ctx.MethodName, ctx.RequestID)
			}
			result, err := next()
			if logIt && ctx.Logger != nil {
				if err != nil {
					ctx.Logger.Error(err, "exit %s %s (request %s)", ctx.RequestType, ctx.MethodName, ctx.RequestID)
				} else {
					ctx.Logger.Debug("exit %s %s (request %s)", ctx.RequestType, ctx.MethodName, ctx.RequestID)
				}
			}
			return result, err
		},
	}
}

// Timing measures wall-clock duration and records it into
// ctx.Metadata["duration"] for downstream middleware/handlers to read
// (§4.9).
func Timing(id string, priority int) registry.MiddlewareEntry {
	return registry.MiddlewareEntry{
		ID:       id,
		Priority: priority,
		Fn: func(ctx *registry.RequestContext, next func() (any, error)) (any, error) {
			start := time.Now()
			result, err := next()
			if ctx.Metadata != nil {
				ctx.Metadata["duration"] = time.Since(start)
			}
			return result, err
		},
	}
}
