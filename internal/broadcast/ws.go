package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WSConn adapts a gorilla websocket connection to Conn. Writes are serialized
// by a mutex and bounded by a write deadline.
type WSConn struct {
	id   string
	conn *websocket.Conn

	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

// NewWSConn wraps conn; writeTimeout caps every write (0 means only the
// caller's context deadline applies).
func NewWSConn(conn *websocket.Conn, writeTimeout time.Duration) *WSConn {
	return &WSConn{id: uuid.NewString(), conn: conn, writeTimeout: writeTimeout}
}

func (c *WSConn) ID() string { return c.id }

// RemoteAddr is the peer address for logging.
func (c *WSConn) RemoteAddr() string {
	if c == nil || c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

// Underlying exposes the websocket for the read loop.
func (c *WSConn) Underlying() *websocket.Conn { return c.conn }

func (c *WSConn) deadline(ctx context.Context) time.Time {
	var d time.Time
	if c.writeTimeout > 0 {
		d = time.Now().Add(c.writeTimeout)
	}
	if cd, ok := ctx.Deadline(); ok && (d.IsZero() || cd.Before(d)) {
		d = cd
	}
	return d
}

// Send writes payload as one text frame.
func (c *WSConn) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.conn.SetWriteDeadline(c.deadline(ctx)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Close drops the connection with a going-away close frame.
func (c *WSConn) Close() error {
	return c.CloseWith(websocket.CloseGoingAway, "")
}

// CloseWith sends a close frame (best effort) and closes the socket. It is
// safe to call more than once.
func (c *WSConn) CloseWith(code int, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.conn.Close()
}
