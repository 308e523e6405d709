package middleware

import (
	"errors"
	"sync"
	"time"

	"sker/internal/registry"
)

// BreakerState is one of the three circuit-breaker states (§4.9).
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// ErrCircuitOpen is returned when a call is rejected because the
// breaker is open.
var ErrCircuitOpen = errors.New("middleware: circuit open")

// CircuitBreaker trips to Open on an error-rate threshold within a
// rolling window, then admits a bounded number of half-open probes
// before closing again (§4.9).
type CircuitBreaker struct {
	mu sync.Mutex

	state        BreakerState
	openedAt     time.Time
	resetTimeout time.Duration

	window       time.Duration
	threshold    float64
	minSamples   int
	results      []result

	halfOpenMax    int
	halfOpenInFlight int
}

type result struct {
	at      time.Time
	success bool
}

// NewCircuitBreaker configures a breaker that trips once at least
// minSamples calls land within window and the error rate exceeds
// threshold (0..1); it stays open for resetTimeout before allowing
// halfOpenMax concurrent probes.
func NewCircuitBreaker(window time.Duration, threshold float64, minSamples int, resetTimeout time.Duration, halfOpenMax int) *CircuitBreaker {
	return &CircuitBreaker{
		state:        BreakerClosed,
		window:       window,
		threshold:    threshold,
		minSamples:   minSamples,
		resetTimeout: resetTimeout,
		halfOpenMax:  halfOpenMax,
	}
}

func (b *CircuitBreaker) prune(now time.Time) {
	cutoff := now.Add(-b.window)
	i := 0
	for ; i < len(b.results); i++ {
		if b.results[i].at.After(cutoff) {
			break
		}
	}
	b.results = b.results[i:]
}

func (b *CircuitBreaker) errorRate() float64 {
	if len(b.results) == 0 {
		return 0
	}
	failures := 0
	for _, r := range b.results {
		if !r.success {
			failures++
		}
	}
	return float64(failures) / float64(len(b.results))
}

// admit decides whether a call may proceed, transitioning state as a
// side effect.
func (b *CircuitBreaker) admit() (bool, BreakerState) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	switch b.state {
	case BreakerOpen:
		if now.Sub(b.openedAt) >= b.resetTimeout {
			b.state = BreakerHalfOpen
			b.halfOpenInFlight = 0
		} else {
			return false, BreakerOpen
		}
	}
	if b.state == BreakerHalfOpen {
		if b.halfOpenInFlight >= b.halfOpenMax {
			return false, BreakerHalfOpen
		}
		b.halfOpenInFlight++
	}
	return true, b.state
}

func (b *CircuitBreaker) record(state BreakerState, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if state == BreakerHalfOpen {
		b.halfOpenInFlight--
		if success {
			b.state = BreakerClosed
			b.results = nil
			return
		}
		b.state = BreakerOpen
		b.openedAt = now
		return
	}

	b.results = append(b.results, result{at: now, success: success})
	b.prune(now)
	if len(b.results) >= b.minSamples && b.errorRate() > b.threshold {
		b.state = BreakerOpen
		b.openedAt = now
	}
}

// CircuitBreakerMiddleware gates next behind the breaker (§4.9).
func CircuitBreakerMiddleware(id string, priority int, breaker *CircuitBreaker) registry.MiddlewareEntry {
	return registry.MiddlewareEntry{
		ID:       id,
		Priority: priority,
		Fn: func(ctx *registry.RequestContext, next func() (any, error)) (any, error) {
			ok, state := breaker.admit()
			if !ok {
				return nil, ErrCircuitOpen
			}
			result, err := next()
			breaker.record(state, err == nil)
			return result, err
		},
	}
}
