package middleware

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"sker/internal/registry"
)

// cacheEntry is one stored value plus its tags (for tag-based
// invalidation) and expiry.
type cacheEntry struct {
	value   any
	tags    []string
	expires time.Time
}

// Cache is the shared store behind the cache middleware: TTL-bound,
// single-flight-guarded, invalidatable by tag or key pattern (§4.9).
type Cache struct {
	mu    sync.Mutex
	store map[string]cacheEntry
	group singleflight.Group
	ttl   time.Duration
}

// NewCache returns a Cache with the given default TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: map[string]cacheEntry{}, ttl: ttl}
}

// Fingerprint builds the cache key from kind, name, and args, as
// named in §4.9 ("fingerprint(kind,name,args,params)").
func Fingerprint(kind registry.Kind, name string, args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	fmt.Fprintf(&b, "%s:%s", kind, name)
	for _, k := range keys {
		fmt.Fprintf(&b, ":%s=%v", k, args[k])
	}
	return b.String()
}

// InvalidateTag removes every entry matching tag.
func (c *Cache) InvalidateTag(tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		for _, t := range e.tags {
			if t == tag {
				delete(c.store, k)
				break
			}
		}
	}
}

// InvalidatePattern removes every key containing substr (a minimal
// stand-in for a glob/regex pattern, sufficient for the tag-style
// invalidation the spec calls for).
func (c *Cache) InvalidatePattern(substr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.store {
		if strings.Contains(k, substr) {
			delete(c.store, k)
		}
	}
}

func (c *Cache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.store[key]
	if !ok || time.Now().After(e.expires) {
		return nil, false
	}
	return e.value, true
}

func (c *Cache) put(key string, value any, tags []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = cacheEntry{value: value, tags: tags, expires: time.Now().Add(c.ttl)}
}

// CacheMiddleware wraps next with a TTL cache keyed by Fingerprint,
// using a singleflight.Group so concurrent callers with the same key
// build the value at most once (§4.9).
func CacheMiddleware(id string, priority int, cache *Cache, tagsFor func(ctx *registry.RequestContext) []string) registry.MiddlewareEntry {
	return registry.MiddlewareEntry{
		ID:       id,
		Priority: priority,
		Fn: func(ctx *registry.RequestContext, next func() (any, error)) (any, error) {
			key := Fingerprint(ctx.RequestType, ctx.MethodName, ctx.Args)
			if v, ok := cache.get(key); ok {
				return v, nil
			}
			v, err, _ := cache.group.Do(key, func() (any, error) {
				if v, ok := cache.get(key); ok {
					return v, nil
				}
				result, err := next()
				if err != nil {
					return nil, err
				}
				var tags []string
				if tagsFor != nil {
					tags = tagsFor(ctx)
				}
				cache.put(key, result, tags)
				return result, nil
			})
			return v, err
		},
	}
}
