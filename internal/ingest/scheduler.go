package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/neurasky/neurasky/internal/store"
)

// Scheduler re-imports a dataset source on a fixed interval.
type Scheduler struct {
	store    *store.Store
	src      Source
	interval time.Duration
	logger   *slog.Logger

	// AfterImport runs after an import that stored new records.
	AfterImport func(ctx context.Context, res ImportResult) error
}

func NewScheduler(st *store.Store, src Source, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    st,
		src:      src,
		interval: interval,
		logger:   logger,
	}
}

// Run imports once immediately and then every interval until ctx is done.
// A non-positive interval imports once and returns.
func (s *Scheduler) Run(ctx context.Context) {
	s.IngestOnce(ctx)

	if s.interval <= 0 {
		s.logger.Error("scheduler: non-positive interval, not rescheduling", "interval", s.interval)
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler: shutting down")
			return
		case <-ticker.C:
			s.IngestOnce(ctx)
		}
	}
}

// IngestOnce runs a single import and the AfterImport hook. Failures are
// logged; the next tick retries.
func (s *Scheduler) IngestOnce(ctx context.Context) {
	res, err := Import(ctx, s.store, s.src, s.logger)
	if err != nil {
		s.logger.Error("scheduler: import failed", "source", s.src.Kind(), "error", err)
		return
	}
	if res.Stored == 0 || s.AfterImport == nil {
		return
	}
	if err := s.AfterImport(ctx, res); err != nil {
		s.logger.Error("scheduler: after import", "run", res.RunID, "error", err)
	}
}
