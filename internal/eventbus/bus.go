package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published during a run.
const (
	TypeRunStarted      = "run.started"
	TypeRunStopped      = "run.stopped"
	TypePromptDispatch  = "prompt.dispatched"
	TypePromptStatus    = "prompt.status"
	TypeClientConnected = "client.connected"
	TypeClientGone      = "client.disconnected"
	TypeLogEntry        = "log.entry" // Data is a logx.Entry
)

// Event is a lightweight, in-memory signal used to decouple components.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers MUST use buffered channels.
//   - Slow subscribers may drop events (bounded backpressure).
type Event struct {
	Type string
	Time time.Time
	Data any
}

// PromptDispatched is the Data of TypePromptDispatch.
type PromptDispatched struct {
	ID        string
	Text      string
	Template  string
	Delivered int
	Failed    int
	Sent      int // run total after this dispatch
}

// PromptStatus is the Data of TypePromptStatus.
type PromptStatus struct {
	ID     string
	Status string
}

// RunStopped is the Data of TypeRunStopped.
type RunStopped struct {
	Reason string
	Sent   int
}

// Client is the Data of the client events.
type Client struct {
	ID     string
	Remote string
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns a simple in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Hold the read lock while sending: unsubscribe takes the write lock
	// before closing, so a send never hits a closed channel.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, unsub
}
