package media

import (
	"context"
	"sync"

	"github.com/harunnryd/telira/pkg/errorsx"
)

// ExclusiveCapture serializes access to the physical microphone: only one
// acquired stream exists at a time, and switching devices stops the previous
// tap before the new one is handed out.
type ExclusiveCapture struct {
	inner Capture

	mu      sync.Mutex
	current Stream
}

func NewExclusiveCapture(inner Capture) *ExclusiveCapture {
	return &ExclusiveCapture{inner: inner}
}

func (c *ExclusiveCapture) Acquire(ctx context.Context, deviceID string) (Stream, error) {
	c.mu.Lock()
	previous := c.current
	c.current = nil
	c.mu.Unlock()

	if previous != nil {
		ReleaseStream(previous)
	}

	stream, err := c.inner.Acquire(ctx, deviceID)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonMediaAcquire)
	}

	c.mu.Lock()
	c.current = stream
	c.mu.Unlock()
	return stream, nil
}

// ReleaseCurrent stops the active tap, if any.
func (c *ExclusiveCapture) ReleaseCurrent() {
	c.mu.Lock()
	current := c.current
	c.current = nil
	c.mu.Unlock()

	if current != nil {
		ReleaseStream(current)
	}
}
