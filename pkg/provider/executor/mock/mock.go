// Package mock provides a test double for the executor.Executor interface.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/dawvox/pkg/provider/executor"
	"github.com/MrWong99/dawvox/pkg/types"
)

// Executor is a mock implementation of executor.Executor.
type Executor struct {
	mu sync.Mutex

	// Err, if non-nil, is returned by Execute.
	Err error

	// Delay is how long each Execute takes. Execute returns ctx.Err() if the
	// context ends first.
	Delay time.Duration

	// Actions records every executed action in order.
	Actions []types.Action
}

var _ executor.Executor = (*Executor)(nil)

// Execute records a and returns Err.
func (e *Executor) Execute(ctx context.Context, a types.Action) error {
	e.mu.Lock()
	e.Actions = append(e.Actions, a)
	err, delay := e.Err, e.Delay
	e.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// CallCount returns the number of Execute calls. Thread-safe.
func (e *Executor) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Actions)
}

// Calls returns a copy of the executed actions. Thread-safe.
func (e *Executor) Calls() []types.Action {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]types.Action(nil), e.Actions...)
}
