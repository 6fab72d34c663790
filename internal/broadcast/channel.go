package broadcast

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Channel is the set of currently connected clients.
type Channel struct {
	mu    sync.RWMutex
	conns map[string]Conn

	// changed is closed and replaced whenever the set changes.
	changed chan struct{}
}

func NewChannel() *Channel {
	return &Channel{conns: map[string]Conn{}, changed: make(chan struct{})}
}

func (c *Channel) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// Add registers conn. Re-adding the same id replaces the previous entry.
func (c *Channel) Add(conn Conn) {
	c.mu.Lock()
	c.conns[conn.ID()] = conn
	c.notifyLocked()
	c.mu.Unlock()
}

// Remove unregisters conn. It reports whether conn was registered.
func (c *Channel) Remove(conn Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.conns[conn.ID()]
	if !ok || cur != conn {
		return false
	}
	delete(c.conns, conn.ID())
	c.notifyLocked()
	return true
}

func (c *Channel) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.conns)
}

// Changed returns a channel closed on the next Add/Remove.
func (c *Channel) Changed() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.changed
}

// Conns returns the registered connections ordered by id.
func (c *Channel) Conns() []Conn {
	c.mu.RLock()
	out := make([]Conn, 0, len(c.conns))
	for _, conn := range c.conns {
		out = append(out, conn)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// SendAll delivers payload to every registered connection concurrently. Each
// send is bounded by timeout (0 means only ctx bounds it). One failing or
// slow client never prevents delivery to the rest.
func (c *Channel) SendAll(ctx context.Context, payload []byte, timeout time.Duration) Result {
	conns := c.Conns()

	var (
		mu  sync.Mutex
		res Result
		g   errgroup.Group
	)
	for _, conn := range conns {
		conn := conn
		g.Go(func() error {
			sctx := ctx
			if timeout > 0 {
				var cancel context.CancelFunc
				sctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			err := conn.Send(sctx, payload)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed = append(res.Failed, Failure{Conn: conn, Err: err})
			} else {
				res.Succeeded = append(res.Succeeded, conn)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(res.Succeeded, func(i, j int) bool { return res.Succeeded[i].ID() < res.Succeeded[j].ID() })
	sort.Slice(res.Failed, func(i, j int) bool { return res.Failed[i].Conn.ID() < res.Failed[j].Conn.ID() })
	return res
}
