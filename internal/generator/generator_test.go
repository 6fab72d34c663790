package generator

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"minerva/internal/broadcast"
	"minerva/internal/config"
	"minerva/internal/eventbus"
	"minerva/internal/tracker"
	"minerva/internal/wildcard"
	logx "minerva/pkg/logx"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeConn records every prompt it receives. When tr is set it reports each
// prompt complete as soon as it arrives.
type fakeConn struct {
	id   string
	tr   *tracker.Tracker
	fail error

	mu     sync.Mutex
	got    []Prompt
	closed bool
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(_ context.Context, payload []byte) error {
	if c.fail != nil {
		return c.fail
	}
	var p Prompt
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	c.mu.Lock()
	c.got = append(c.got, p)
	c.mu.Unlock()
	if c.tr != nil {
		c.tr.Update(p.PromptID, tracker.StatusComplete)
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) prompts() []Prompt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Prompt(nil), c.got...)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakePersister struct {
	mu    sync.Mutex
	saved []int
}

func (p *fakePersister) SaveCursor(_ context.Context, next int) error {
	p.mu.Lock()
	p.saved = append(p.saved, next)
	p.mu.Unlock()
	return nil
}

func (p *fakePersister) last() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.saved) == 0 {
		return 0, 0
	}
	return p.saved[len(p.saved)-1], len(p.saved)
}

func seqIDs() func() string {
	var n atomic.Int64
	return func() string { return "p" + strconv.FormatInt(n.Add(1), 10) }
}

func testSettings() config.Settings {
	s := config.Default().Settings
	s.SendDelay = 0
	s.StopAfter = 3
	s.EnableStopAfter = true
	return s
}

func newTestGenerator(s config.Settings, tr *tracker.Tracker, ch *broadcast.Channel, p Persister, bus eventbus.Bus) *Generator {
	return New(Config{
		Settings:     s,
		Table:        wildcard.Table{"COLOR": {"red", "blue"}},
		Rand:         rand.New(rand.NewSource(1)),
		PollInterval: 10 * time.Millisecond,
		SendTimeout:  time.Second,
		NewID:        seqIDs(),
	}, tr, ch, p, bus, logx.Nop())
}

func runAsync(ctx context.Context, g *Generator) <-chan error {
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()
	return done
}

func waitErr(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("generator did not return")
		return nil
	}
}

func TestRunStopsAfterLimit(t *testing.T) {
	tr := tracker.New()
	ch := broadcast.NewChannel()
	c := &fakeConn{id: "a", tr: tr}
	ch.Add(c)

	s := testSettings()
	s.Templates = []string{"a [COLOR] box"}
	g := newTestGenerator(s, tr, ch, nil, nil)
	err := g.Run(context.Background())
	require.ErrorIs(t, err, ErrStopAfterReached)

	got := c.prompts()
	require.Len(t, got, 3)
	for _, p := range got {
		assert.Contains(t, []string{"a red box", "a blue box"}, p.Text)
	}
	assert.Equal(t, 3, g.Sent())
	assert.Equal(t, StateStopped, g.State())
}

func TestRunRoundRobinPersistsCursor(t *testing.T) {
	tr := tracker.New()
	ch := broadcast.NewChannel()
	c := &fakeConn{id: "a", tr: tr}
	ch.Add(c)

	s := testSettings()
	s.Templates = []string{"a [COLOR] box", "plain", "third"}
	s.NextTemplate = 1
	s.StopAfter = 4
	p := &fakePersister{}

	g := newTestGenerator(s, tr, ch, p, nil)
	require.ErrorIs(t, g.Run(context.Background()), ErrStopAfterReached)

	got := c.prompts()
	require.Len(t, got, 4)
	assert.Equal(t, "plain", got[0].Text)
	assert.Equal(t, "third", got[1].Text)
	assert.Contains(t, []string{"a red box", "a blue box"}, got[2].Text)
	assert.Equal(t, "plain", got[3].Text)

	last, n := p.last()
	assert.Equal(t, 4, n)
	assert.Equal(t, 2, last)
	assert.Equal(t, "third", g.NextTemplate())
}

func TestRunStallsAtMaxConcurrent(t *testing.T) {
	tr := tracker.New()
	ch := broadcast.NewChannel()
	c := &fakeConn{id: "a"} // never reports back
	ch.Add(c)

	s := testSettings()
	s.MaxConcurrent = 2
	s.StopAfter = 3

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g := newTestGenerator(s, tr, ch, nil, nil)
	done := runAsync(ctx, g)

	require.Eventually(t, func() bool { return g.State() == StateWaitingForCapacity }, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, c.prompts(), 2)
	assert.Equal(t, 2, tr.InFlight())

	// Completing one prompt frees a slot.
	first := c.prompts()[0].PromptID
	known, changed := tr.Update(first, tracker.StatusComplete)
	require.True(t, known)
	require.True(t, changed)

	require.ErrorIs(t, waitErr(t, done), ErrStopAfterReached)
	assert.Len(t, c.prompts(), 3)
}

func TestRunWaitsForClient(t *testing.T) {
	tr := tracker.New()
	ch := broadcast.NewChannel()
	s := testSettings()
	s.StopAfter = 1

	g := newTestGenerator(s, tr, ch, nil, nil)
	done := runAsync(context.Background(), g)

	require.Eventually(t, func() bool { return g.State() == StateWaitingForClient }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, g.Sent())

	c := &fakeConn{id: "late", tr: tr}
	ch.Add(c)
	require.ErrorIs(t, waitErr(t, done), ErrStopAfterReached)
	assert.Len(t, c.prompts(), 1)
}

func TestRunCancelIsResponsive(t *testing.T) {
	cases := map[string]func(s *config.Settings, ch *broadcast.Channel){
		"waiting for client": func(*config.Settings, *broadcast.Channel) {},
		"cooling down": func(s *config.Settings, ch *broadcast.Channel) {
			s.SendDelay = 60
			ch.Add(&fakeConn{id: "a"})
		},
		"waiting for capacity": func(s *config.Settings, ch *broadcast.Channel) {
			s.MaxConcurrent = 1
			ch.Add(&fakeConn{id: "a"})
		},
	}
	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			tr := tracker.New()
			ch := broadcast.NewChannel()
			s := testSettings()
			s.EnableStopAfter = false
			setup(&s, ch)

			ctx, cancel := context.WithCancel(context.Background())
			g := newTestGenerator(s, tr, ch, nil, nil)
			done := runAsync(ctx, g)
			time.Sleep(50 * time.Millisecond)

			start := time.Now()
			cancel()
			require.ErrorIs(t, waitErr(t, done), context.Canceled)
			assert.Less(t, time.Since(start), time.Second)
		})
	}
}

func TestDispatchFailureIsNotCounted(t *testing.T) {
	tr := tracker.New()
	ch := broadcast.NewChannel()
	bad := &fakeConn{id: "bad", fail: errors.New("broken pipe")}
	ch.Add(bad)

	s := testSettings()
	s.StopAfter = 1
	p := &fakePersister{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g := newTestGenerator(s, tr, ch, p, nil)
	done := runAsync(ctx, g)

	// The broken client is dropped and the loop goes back to waiting.
	require.Eventually(t, func() bool { return g.State() == StateWaitingForClient }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, bad.isClosed())
	assert.Equal(t, 0, ch.Len())
	assert.Equal(t, 0, g.Sent())
	assert.Equal(t, 0, tr.Len())
	_, n := p.last()
	assert.Equal(t, 0, n)

	good := &fakeConn{id: "good", tr: tr}
	ch.Add(good)
	require.ErrorIs(t, waitErr(t, done), ErrStopAfterReached)
	assert.Len(t, good.prompts(), 1)
}

func TestDispatchPartialFailure(t *testing.T) {
	tr := tracker.New()
	ch := broadcast.NewChannel()
	good := &fakeConn{id: "a", tr: tr}
	bad := &fakeConn{id: "b", fail: errors.New("timeout")}
	ch.Add(good)
	ch.Add(bad)

	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	s := testSettings()
	s.StopAfter = 1
	g := newTestGenerator(s, tr, ch, nil, bus)
	require.ErrorIs(t, g.Run(context.Background()), ErrStopAfterReached)

	assert.Len(t, good.prompts(), 1)
	assert.True(t, bad.isClosed())
	assert.Equal(t, 1, ch.Len())

	ev := <-events
	require.Equal(t, eventbus.TypePromptDispatch, ev.Type)
	d, ok := ev.Data.(eventbus.PromptDispatched)
	require.True(t, ok)
	assert.Equal(t, 1, d.Delivered)
	assert.Equal(t, 1, d.Failed)
	assert.Equal(t, 1, d.Sent)
	assert.Equal(t, good.prompts()[0].PromptID, d.ID)
}

func TestRunWithStopAfterZeroSendsNothing(t *testing.T) {
	tr := tracker.New()
	ch := broadcast.NewChannel()
	c := &fakeConn{id: "a", tr: tr}
	ch.Add(c)

	s := testSettings()
	s.StopAfter = 0
	g := newTestGenerator(s, tr, ch, nil, nil)
	require.ErrorIs(t, g.Run(context.Background()), ErrStopAfterReached)
	assert.Empty(t, c.prompts())
}
