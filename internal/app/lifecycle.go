// Package app implements the Application Lifecycle (C13): bootstrapping
// and wiring every other component (config, registry, container,
// isolation, conflict, plugin loader, dispatcher, hot reload) and
// driving them through a single Stopped/Starting/Running/Stopping/Error
// state machine.
//
// Uses a two-phase bootstrap (construct, then start) generalized from a
// fixed orchestrator hand-off into an explicit, idempotent, serialized
// state machine per §4.13.
package app

import (
	"context"
	"sync"
	"time"
)

// State is one node of the §4.13 state machine.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateError    State = "error"
)

// Event is emitted to subscribers on every state transition (§4.13
// "starting/started/stopping/stopped/error").
type Event struct {
	State State
	Err   error
	At    time.Time
}

// Subscriber receives lifecycle events.
type Subscriber func(Event)

// Lifecycle implements the idempotent, serialized start/stop machinery
// from §4.13, independent of what is actually being started. A second
// concurrent Start call while one is already in flight joins the first
// rather than running the sequence twice; same for Stop.
type Lifecycle struct {
	mu    sync.Mutex
	state State

	starting   chan struct{}
	startErr   error
	stopping   chan struct{}
	stopErr    error

	subsMu sync.Mutex
	subs   []Subscriber
}

// NewLifecycle returns a Lifecycle in the Stopped state.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateStopped}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Subscribe registers fn for every future transition; returns an
// unsubscribe function.
func (l *Lifecycle) Subscribe(fn Subscriber) func() {
	l.subsMu.Lock()
	defer l.subsMu.Unlock()
	l.subs = append(l.subs, fn)
	idx := len(l.subs) - 1
	return func() {
		l.subsMu.Lock()
		defer l.subsMu.Unlock()
		l.subs[idx] = nil
	}
}

func (l *Lifecycle) emit(state State, err error) {
	l.subsMu.Lock()
	subs := append([]Subscriber(nil), l.subs...)
	l.subsMu.Unlock()
	ev := Event{State: state, Err: err, At: time.Now()}
	for _, fn := range subs {
		if fn != nil {
			fn(ev)
		}
	}
}

// Start runs run() exactly once per Stopped->Running transition,
// idempotently returning nil if already Running and joining an
// in-flight attempt if one is already Starting. On failure the state
// becomes Error and run's error is returned (§4.13).
func (l *Lifecycle) Start(ctx context.Context, run func(ctx context.Context) error) error {
	l.mu.Lock()
	switch l.state {
	case StateRunning:
		l.mu.Unlock()
		return nil
	case StateStarting:
		ch := l.starting
		l.mu.Unlock()
		<-ch
		l.mu.Lock()
		err := l.startErr
		l.mu.Unlock()
		return err
	}
	l.state = StateStarting
	ch := make(chan struct{})
	l.starting = ch
	l.mu.Unlock()
	l.emit(StateStarting, nil)

	err := run(ctx)

	l.mu.Lock()
	l.startErr = err
	if err != nil {
		l.state = StateError
	} else {
		l.state = StateRunning
	}
	finalState := l.state
	close(ch)
	l.mu.Unlock()
	l.emit(finalState, err)
	return err
}

// Stop runs run() exactly once per Running/Error->Stopped transition,
// idempotent when already Stopped and joining an in-flight Stop
// otherwise (§4.13).
func (l *Lifecycle) Stop(ctx context.Context, run func(ctx context.Context) error) error {
	l.mu.Lock()
	switch l.state {
	case StateStopped:
		l.mu.Unlock()
		return nil
	case StateStopping:
		ch := l.stopping
		l.mu.Unlock()
		<-ch
		l.mu.Lock()
		err := l.stopErr
		l.mu.Unlock()
		return err
	}
	l.state = StateStopping
	ch := make(chan struct{})
	l.stopping = ch
	l.mu.Unlock()
	l.emit(StateStopping, nil)

	err := run(ctx)

	l.mu.Lock()
	l.stopErr = err
	if err != nil {
		l.state = StateError
	} else {
		l.state = StateStopped
	}
	finalState := l.state
	close(ch)
	l.mu.Unlock()
	l.emit(finalState, err)
	return err
}
