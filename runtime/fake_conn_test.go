package runtime

import (
	"fmt"
	"sync"
	"sync/atomic"
	"whiteboard-relay/errors"

	"github.com/google/uuid"
)

// fakeConn is an in-memory connection. Frames pushed into inbox are returned
// by Receive; closing inbox simulates the peer hanging up.
type fakeConn struct {
	id       string
	inbox    chan []byte
	closed   chan struct{}
	once     sync.Once
	closes   atomic.Int32
	failSend atomic.Bool

	mu   sync.Mutex
	sent [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		id:     uuid.NewString(),
		inbox:  make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(frame []byte) error {
	if c.failSend.Load() {
		return fmt.Errorf("write %s: broken pipe", c.id)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, frame)
	return nil
}

func (c *fakeConn) Receive() ([]byte, error) {
	select {
	case frame, ok := <-c.inbox:
		if !ok {
			return nil, errors.ErrConnectionClosed
		}
		return frame, nil
	case <-c.closed:
		return nil, errors.ErrConnectionClosed
	}
}

func (c *fakeConn) Close() error {
	c.closes.Add(1)
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sent))
	for _, frame := range c.sent {
		out = append(out, string(frame))
	}
	return out
}
