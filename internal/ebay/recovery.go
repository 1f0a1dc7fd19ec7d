package ebay

import (
	"context"
	"sync"
)

// RecoveryCoordinator ensures only one task performs interactive login
// recovery at a time. Other tasks blocked on the same condition wait for
// the recoverer to finish and then re-check their own session.
type RecoveryCoordinator struct {
	mu   sync.Mutex
	done chan struct{}
}

// NewRecoveryCoordinator creates an idle coordinator
func NewRecoveryCoordinator() *RecoveryCoordinator {
	return &RecoveryCoordinator{}
}

// TryBecomeRecoverer atomically claims the recoverer role. Returns false
// when another task already holds it.
func (c *RecoveryCoordinator) TryBecomeRecoverer() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done != nil {
		return false
	}
	c.done = make(chan struct{})
	return true
}

// Finish releases the recoverer role and wakes every waiter
func (c *RecoveryCoordinator) Finish() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done != nil {
		close(c.done)
		c.done = nil
	}
}

// Wait blocks until the current recovery finishes, or returns immediately
// when none is in flight.
func (c *RecoveryCoordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	ch := c.done
	c.mu.Unlock()

	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
