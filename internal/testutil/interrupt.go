package testutil

import (
	"context"
	"sync"
)

// CountdownContext is a context that becomes cancelled after its Err method
// has been called n times. Evaluation polls Err at fixed step intervals, so
// a countdown interrupts a query at a reproducible point without timers.
//
// Thread-safety: all methods are safe for concurrent use.
type CountdownContext struct {
	context.Context

	mu        sync.Mutex
	remaining int
	done      chan struct{}
}

// NewCountdownContext returns a context whose first n calls to Err report
// nil and every later call reports context.Canceled.
func NewCountdownContext(n int) *CountdownContext {
	c := &CountdownContext{
		Context:   context.Background(),
		remaining: n,
		done:      make(chan struct{}),
	}
	if n <= 0 {
		close(c.done)
	}
	return c
}

// Err counts down and reports context.Canceled once the count is spent.
func (c *CountdownContext) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remaining <= 0 {
		return context.Canceled
	}
	c.remaining--
	if c.remaining == 0 {
		close(c.done)
	}
	return nil
}

// Done is closed once Err starts failing.
func (c *CountdownContext) Done() <-chan struct{} {
	return c.done
}

// Remaining returns the number of Err calls left before cancellation.
func (c *CountdownContext) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}
