// Package middleware implements the Middleware Executor (C9): chain
// composition from plugin-level and descriptor-level entries, and the
// built-in middlewares named in §4.9.
//
// The chain-composition shape (build once, innermost-last, run via a
// closure-composed "next") wraps a base call in successive decorators,
// the same idiom a tool-call pipeline uses to layer cross-cutting
// concerns around a single handler invocation.
package middleware

import (
	"sort"

	"sker/internal/registry"
)

// Compose builds the final chain for one descriptor: plugin-level
// entries (outermost) concatenated with descriptor-level entries
// (innermost), sorted by ascending priority with a stable tie-break
// preserving list order (§4.9).
func Compose(pluginLevel, descriptorLevel []registry.MiddlewareEntry) []registry.MiddlewareEntry {
	all := make([]registry.MiddlewareEntry, 0, len(pluginLevel)+len(descriptorLevel))
	all = append(all, pluginLevel...)
	all = append(all, descriptorLevel...)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Priority < all[j].Priority
	})
	return all
}

// Run executes chain around terminal, outermost middleware first. Each
// middleware receives a next() that invokes the remainder of the
// chain (or terminal at the end), matching §4.9's contract.
func Run(ctx *registry.RequestContext, chain []registry.MiddlewareEntry, terminal func() (any, error)) (any, error) {
	next := terminal
	for i := len(chain) - 1; i >= 0; i-- {
		mw := chain[i]
		prevNext := next
		next = func() (any, error) {
			return mw.Fn(ctx, prevNext)
		}
	}
	return next()
}
