package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id    string
	err   error
	block bool

	mu   sync.Mutex
	sent [][]byte
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(ctx context.Context, payload []byte) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.sent = append(f.sent, payload)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestAddRemove(t *testing.T) {
	ch := NewChannel()
	a := &fakeConn{id: "a"}
	b := &fakeConn{id: "b"}

	changed := ch.Changed()
	ch.Add(a)
	select {
	case <-changed:
	default:
		t.Fatal("Add did not signal change")
	}
	ch.Add(b)
	assert.Equal(t, 2, ch.Len())

	assert.True(t, ch.Remove(a))
	assert.False(t, ch.Remove(a))
	assert.False(t, ch.Remove(&fakeConn{id: "b"}), "a different conn with the same id is not removed")
	assert.Equal(t, 1, ch.Len())
}

func TestSendAllPartialFailure(t *testing.T) {
	ch := NewChannel()
	good1 := &fakeConn{id: "1"}
	dead := &fakeConn{id: "2", err: errors.New("broken pipe")}
	good2 := &fakeConn{id: "3"}
	ch.Add(good1)
	ch.Add(dead)
	ch.Add(good2)

	res := ch.SendAll(context.Background(), []byte(`{"prompt_id":"x"}`), time.Second)
	assert.Equal(t, 2, res.Delivered())
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "2", res.Failed[0].Conn.ID())
	assert.Equal(t, 1, good1.count())
	assert.Equal(t, 1, good2.count())
}

func TestSendAllTimeoutBoundsSlowClient(t *testing.T) {
	ch := NewChannel()
	slow := &fakeConn{id: "slow", block: true}
	fast := &fakeConn{id: "fast"}
	ch.Add(slow)
	ch.Add(fast)

	start := time.Now()
	res := ch.SendAll(context.Background(), []byte("p"), 50*time.Millisecond)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, res.Delivered())
	require.Len(t, res.Failed, 1)
	assert.ErrorIs(t, res.Failed[0].Err, context.DeadlineExceeded)
}

func TestSendAllEmpty(t *testing.T) {
	res := NewChannel().SendAll(context.Background(), []byte("p"), time.Second)
	assert.Zero(t, res.Delivered())
	assert.Empty(t, res.Failed)
}
