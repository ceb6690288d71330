// Package transport adapts gorilla websockets to contract.Connection.
package transport

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
	"whiteboard-relay/errors"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	DefaultWriteTimeout = 10 * time.Second
	DefaultPongTimeout  = 60 * time.Second
	DefaultMaxFrameSize = 1 << 20
)

type Options struct {
	WriteTimeout time.Duration
	PongTimeout  time.Duration
	MaxFrameSize int64
}

func (o Options) withDefaults() Options {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = DefaultPongTimeout
	}
	if o.MaxFrameSize <= 0 {
		o.MaxFrameSize = DefaultMaxFrameSize
	}
	return o
}

// Conn is one websocket session. Send may be called from any goroutine,
// Receive only from the single reader loop.
type Conn struct {
	id   string
	ws   *websocket.Conn
	opts Options
	log  *slog.Logger

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewConn takes ownership of ws and starts its keepalive pings.
func NewConn(log *slog.Logger, ws *websocket.Conn, opts Options) *Conn {
	opts = opts.withDefaults()
	c := &Conn{
		id:   uuid.NewString(),
		ws:   ws,
		opts: opts,
		done: make(chan struct{}),
	}
	c.log = log.With("conn_id", c.id, "remote_addr", ws.RemoteAddr().String())

	ws.SetReadLimit(opts.MaxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(opts.PongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(opts.PongTimeout))
	})

	go c.keepAlive()
	return c
}

func (c *Conn) ID() string { return c.id }

// Send writes frame as a single text message within the write timeout.
func (c *Conn) Send(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return errors.ErrConnectionClosed
	default:
	}

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Receive returns the payload of the next text or binary message.
func (c *Conn) Receive() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
			select {
			case <-c.done:
				// closed locally
			default:
				c.log.Warn("websocket closed unexpectedly", "error", err)
			}
		}
		return nil, fmt.Errorf("%w: %v", errors.ErrConnectionClosed, err)
	}
	return data, nil
}

// Close sends a close frame when possible and releases the socket.
// Calling it again is a no-op.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteTimeout))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

func (c *Conn) keepAlive() {
	ticker := time.NewTicker(c.opts.PongTimeout * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.opts.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.log.Debug("ping failed", "error", err)
				_ = c.Close()
				return
			}
		}
	}
}
