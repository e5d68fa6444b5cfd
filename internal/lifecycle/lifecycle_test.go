package lifecycle

import (
	"context"
	"errors"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubComponent struct {
	name     string
	delay    time.Duration
	shutdown atomic.Bool
	err      error
}

func (s *stubComponent) Name() string { return s.name }

func (s *stubComponent) Shutdown(ctx context.Context) error {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
	}
	s.shutdown.Store(true)
	return s.err
}

type stubFlusher struct {
	closed atomic.Bool
	err    error
}

func (f *stubFlusher) Close() error {
	f.closed.Store(true)
	return f.err
}

func TestRunDrainsComponentsAndFlushesOnSignal(t *testing.T) {
	c := New(100 * time.Millisecond)
	comp := &stubComponent{name: "mempool"}
	c.Register(comp)
	flusher := &stubFlusher{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan int, 1)
	go func() { done <- c.Run(ctx, flusher) }()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))

	select {
	case code := <-done:
		require.Equal(t, 0, code)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after SIGTERM")
	}

	require.True(t, comp.shutdown.Load())
	require.True(t, flusher.closed.Load())
}

func TestRunReturnsNonZeroOnFlushError(t *testing.T) {
	c := New(50 * time.Millisecond)
	flusher := &stubFlusher{err: errors.New("disk full")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // pre-canceled context stands in for a received signal

	code := c.Run(ctx, flusher)
	require.Equal(t, 1, code)
	require.True(t, flusher.closed.Load())
}

func TestDrainDoesNotWaitPastGracePeriod(t *testing.T) {
	c := New(20 * time.Millisecond)
	slow := &stubComponent{name: "slow", delay: time.Second}
	c.Register(slow)

	start := time.Now()
	c.drain()
	require.Less(t, time.Since(start), 500*time.Millisecond)
}
