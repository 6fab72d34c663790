package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	logx "minerva/pkg/logx"
)

func TestMain(m *testing.M) { goleak.VerifyTestMain(m) }

func TestStopCancelsAndWaits(t *testing.T) {
	s := New(context.Background(), WithLogger(logx.Nop()))
	for i := 0; i < 3; i++ {
		s.Go0("loop", func(ctx context.Context) { <-ctx.Done() })
	}
	assert.Equal(t, int64(3), s.Active())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	stopErr := errors.New("operator stop")
	require.NoError(t, s.Stop(ctx, stopErr))
	assert.Equal(t, int64(0), s.Active())
	assert.ErrorIs(t, context.Cause(s.Context()), stopErr)
}

func TestCancelOnErrorRecordsFirstError(t *testing.T) {
	s := New(context.Background(), WithCancelOnError(true))
	boom := errors.New("listener failed")
	s.Go("listener", func(context.Context) error { return boom })
	s.Go0("generator", func(ctx context.Context) { <-ctx.Done() })

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("supervisor did not wind down after error")
	}
	assert.ErrorIs(t, s.Err(), boom)
}

func TestPanicIsRecovered(t *testing.T) {
	s := New(context.Background(), WithCancelOnError(true))
	s.Go0("bad", func(context.Context) { panic("kaboom") })
	<-s.Done()
	require.Error(t, s.Err())
	assert.Contains(t, s.Err().Error(), "kaboom")
	assert.Error(t, s.Context().Err())
}

func TestCanceledIsNotAnError(t *testing.T) {
	s := New(context.Background())
	s.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, s.Stop(context.Background(), nil))
	assert.NoError(t, s.Err())
}
