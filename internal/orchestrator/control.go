package orchestrator

import (
	"context"
	"sync"
)

// Control is the two-stage cancel switch for one job. The first request
// closes the stop channel: the current unit finishes, the pool is flushed and
// the run ends. The second cancels the job context outright.
type Control struct {
	mu       sync.Mutex
	requests int
	stop     chan struct{}
	cancel   context.CancelFunc
}

// NewControl returns the control and the job context it can abort
func NewControl(parent context.Context) (*Control, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &Control{stop: make(chan struct{}), cancel: cancel}, ctx
}

// Cancel registers one cancel request and reports whether it escalated to an abort
func (c *Control) Cancel() (escalated bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests++
	switch c.requests {
	case 1:
		close(c.stop)
	case 2:
		c.cancel()
	}
	return c.requests >= 2
}

// Stop is closed on the first cancel request
func (c *Control) Stop() <-chan struct{} {
	return c.stop
}

func (c *Control) StopRequested() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

func (c *Control) Aborted() bool {
	return c.Requests() >= 2
}

func (c *Control) Requests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests
}

// Release frees the job context once the run is over
func (c *Control) Release() {
	c.cancel()
}
