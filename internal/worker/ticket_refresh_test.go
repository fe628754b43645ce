package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookleaf/tracker/internal/service"
)

type fakeSyncer struct {
	mu       sync.Mutex
	calls    int
	inFlight bool
	enabled  bool
	err      error
}

func (f *fakeSyncer) Sync(ctx context.Context) (service.SyncResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return service.SyncResult{Tickets: 3}, f.err
}

func (f *fakeSyncer) InFlight() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

func (f *fakeSyncer) AutoRefreshEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

func (f *fakeSyncer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestTickSkipsWhenDisabled(t *testing.T) {
	f := &fakeSyncer{enabled: false}
	w := NewTicketRefreshWorker(f, time.Minute, zerolog.Nop())

	assert.False(t, w.tick(context.Background()))
	assert.Equal(t, 0, f.Calls())
}

func TestTickSkipsWhileManualSyncInFlight(t *testing.T) {
	f := &fakeSyncer{enabled: true, inFlight: true}
	w := NewTicketRefreshWorker(f, time.Minute, zerolog.Nop())

	assert.False(t, w.tick(context.Background()))
	assert.Equal(t, 0, f.Calls())
}

func TestTickSyncs(t *testing.T) {
	f := &fakeSyncer{enabled: true}
	w := NewTicketRefreshWorker(f, time.Minute, zerolog.Nop())

	assert.True(t, w.tick(context.Background()))
	assert.Equal(t, 1, f.Calls())
}

func TestTickLosesRaceToManualSync(t *testing.T) {
	f := &fakeSyncer{enabled: true, err: service.ErrSyncInFlight}
	w := NewTicketRefreshWorker(f, time.Minute, zerolog.Nop())

	assert.False(t, w.tick(context.Background()))
}

func TestTickRateLimited(t *testing.T) {
	f := &fakeSyncer{enabled: true, err: &service.RateLimitedError{RetryAfter: time.Minute}}
	w := NewTicketRefreshWorker(f, time.Minute, zerolog.Nop())

	assert.True(t, w.tick(context.Background()))
}

func TestStartRunsOnTickerAndStops(t *testing.T) {
	f := &fakeSyncer{enabled: true}
	w := NewTicketRefreshWorker(f, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return f.Calls() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestDefaultInterval(t *testing.T) {
	w := NewTicketRefreshWorker(&fakeSyncer{}, 0, zerolog.Nop())
	assert.Equal(t, defaultRefreshInterval, w.interval)
}
