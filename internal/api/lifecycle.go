package api

import (
	"fmt"
	"sync"
)

type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateDegraded      State = "degraded"
)

// Lifecycle tracks generator initialisation. It moves
// uninitialized -> initializing -> ready | degraded exactly once.
type Lifecycle struct {
	mu        sync.RWMutex
	state     State
	generator Generator
	err       error
}

func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateUninitialized}
}

// NewReadyLifecycle returns a lifecycle that already serves generator.
func NewReadyLifecycle(generator Generator) *Lifecycle {
	return &Lifecycle{state: StateReady, generator: generator}
}

func (l *Lifecycle) Begin() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateUninitialized {
		return fmt.Errorf("cannot begin initialisation from state %s", l.state)
	}
	l.state = StateInitializing
	return nil
}

func (l *Lifecycle) Ready(generator Generator) error {
	if generator == nil {
		return l.Fail(fmt.Errorf("generator is nil"))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateInitializing {
		return fmt.Errorf("cannot become ready from state %s", l.state)
	}
	l.state = StateReady
	l.generator = generator
	return nil
}

func (l *Lifecycle) Fail(cause error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateInitializing {
		return fmt.Errorf("cannot degrade from state %s", l.state)
	}
	l.state = StateDegraded
	l.err = cause
	return nil
}

// Snapshot returns the current state, the generator when ready, and the failure when degraded.
func (l *Lifecycle) Snapshot() (State, Generator, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state, l.generator, l.err
}
