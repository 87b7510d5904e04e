package app

import (
	"sync"

	json "github.com/goccy/go-json"

	"github.com/dkeye/Chat/internal/core"
)

// fakeConn is an outbox with a fixed capacity; cap 0 means unbounded.
type fakeConn struct {
	mu     sync.Mutex
	cap    int
	frames []core.Frame
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	if c.cap > 0 && len(c.frames) >= c.cap {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

func (c *fakeConn) events() []core.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Envelope, 0, len(c.frames))
	for _, f := range c.frames {
		var env core.Envelope
		_ = json.Unmarshal(f, &env)
		out = append(out, env)
	}
	return out
}
