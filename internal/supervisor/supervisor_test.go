package supervisor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ceti-tag/whaletag-daemon/internal/config"
	"github.com/stretchr/testify/require"
)

// blockingService runs until ctx is cancelled, recording whether it was
// ever started and whether it observed cancellation.
type blockingService struct {
	name      string
	started   atomic.Bool
	cancelled atomic.Bool
}

func (s *blockingService) Serve(ctx context.Context) error {
	s.started.Store(true)
	<-ctx.Done()
	s.cancelled.Store(true)
	return ctx.Err()
}

func (s *blockingService) String() string { return s.name }

func testRuntime() *Runtime {
	return New(&config.TagConfig{}, nil)
}

func TestServeStopsAcquisitionBeforeLoggingOnCancel(t *testing.T) {
	r := testRuntime()
	acq := &blockingService{name: "acq"}
	logw := &blockingService{name: "log"}
	r.AddAcquisitionWorker(acq)
	r.AddLoggingWorker(logw)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Serve(ctx, nil, nil, nil) }()

	require.Eventually(t, func() bool { return acq.started.Load() && logw.started.Load() }, time.Second, time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}

	require.True(t, acq.cancelled.Load())
	require.True(t, logw.cancelled.Load())
	require.True(t, r.StopAcquisition())
	require.True(t, r.StopLogging())
}

func TestServeCallsCloseDriversAfterBothTreesStop(t *testing.T) {
	r := testRuntime()
	r.AddAcquisitionWorker(&blockingService{name: "acq"})
	r.AddLoggingWorker(&blockingService{name: "log"})

	var closed atomic.Bool
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.Serve(ctx, func() error { closed.Store(true); return nil }, nil, nil)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done
	require.True(t, closed.Load())
}

func TestServeIssuesPowerdownOnlyWhenRequested(t *testing.T) {
	r := testRuntime()

	var powerdownCalled atomic.Bool
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Serve(ctx, nil, func() bool { return true }, func() error { powerdownCalled.Store(true); return nil })
	require.Error(t, err)
	require.True(t, powerdownCalled.Load())
}

func TestServeSkipsPowerdownWhenNotRequested(t *testing.T) {
	r := testRuntime()

	var powerdownCalled atomic.Bool
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = r.Serve(ctx, nil, func() bool { return false }, func() error { powerdownCalled.Store(true); return nil })
	require.False(t, powerdownCalled.Load())
}

func TestRequestExitRecordsFlag(t *testing.T) {
	r := testRuntime()
	require.False(t, r.ExitRequested())
	r.RequestExit()
	require.True(t, r.ExitRequested())
}
