package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/bookleaf/tracker/internal/metrics"
	"github.com/bookleaf/tracker/internal/service"
)

const defaultRefreshInterval = 10 * time.Minute

// Syncer is the slice of the ticket service the refresh loop drives.
type Syncer interface {
	Sync(ctx context.Context) (service.SyncResult, error)
	InFlight() bool
	AutoRefreshEnabled() bool
}

type TicketRefreshWorker struct {
	svc      Syncer
	interval time.Duration
	logger   zerolog.Logger
}

func NewTicketRefreshWorker(svc Syncer, interval time.Duration, logger zerolog.Logger) *TicketRefreshWorker {
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	return &TicketRefreshWorker{
		svc:      svc,
		interval: interval,
		logger:   logger.With().Str("worker", "ticket_refresh").Logger(),
	}
}

// Start blocks until ctx is cancelled. Unlike a manual sync the first run
// waits one full interval.
func (w *TicketRefreshWorker) Start(ctx context.Context) {
	w.logger.Info().Dur("interval", w.interval).Msg("ticket refresh worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("ticket refresh worker stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// tick runs one refresh cycle. It reports whether a sync was attempted.
func (w *TicketRefreshWorker) tick(ctx context.Context) bool {
	if !w.svc.AutoRefreshEnabled() {
		w.logger.Debug().Msg("auto-refresh disabled, skipping")
		return false
	}
	if w.svc.InFlight() {
		w.logger.Debug().Msg("sync in flight, skipping")
		return false
	}

	res, err := w.svc.Sync(ctx)
	switch {
	case err == nil:
		metrics.RecordSync(string(service.SyncSuccess))
		w.logger.Debug().Int("tickets", res.Tickets).Msg("auto-refresh complete")
	case errors.Is(err, service.ErrSyncInFlight):
		return false
	case errors.Is(err, service.ErrRateLimited):
		metrics.RecordSync(string(service.SyncRateLimited))
		w.logger.Warn().Err(err).Msg("auto-refresh rate limited; paused until re-enabled")
	default:
		metrics.RecordSync(string(service.SyncFailed))
		w.logger.Error().Err(err).Msg("auto-refresh failed")
	}
	return true
}
