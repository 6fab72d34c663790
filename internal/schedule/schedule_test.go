package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "minerva/pkg/logx"
)

func TestParseVariants(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"*/5 * * * *", "0 */5 * * * *", "@hourly", "@every 55m", "90s"} {
		_, err := Parse(raw)
		assert.NoError(t, err, raw)
	}
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "-5m", "61 * * * *"} {
		_, err := Parse(raw)
		assert.Error(t, err, raw)
	}
}

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("")
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	_, err = LoadLocation("Mars/Olympus_Mons")
	assert.Error(t, err)
}

func TestServiceFiresTrigger(t *testing.T) {
	var fired atomic.Int32
	svc := New(Config{Spec: "@every 1s"}, func(context.Context) error {
		fired.Add(1)
		return nil
	}, logx.Nop())

	require.NoError(t, svc.Start(context.Background()))
	require.NoError(t, svc.Start(context.Background()), "second start is a no-op")
	assert.False(t, svc.Next().IsZero())

	require.Eventually(t, func() bool { return fired.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	svc.Stop()
	svc.Stop()
	assert.True(t, svc.Next().IsZero())
}
