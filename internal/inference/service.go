package inference

import (
	"iter"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/neurasky/neurasky/internal/metrics"
)

// Service serves the currently active Context. Swapping replaces the whole
// bundle at once, so a request never sees parts of two bundles.
type Service struct {
	current atomic.Pointer[Context]
	logger  *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	metrics.ModelAvailable.Set(0)
	return &Service{logger: logger}
}

// Swap installs c and returns the previously active context, if any.
func (s *Service) Swap(c *Context) *Context {
	if c == nil {
		return s.Unset()
	}
	old := s.current.Swap(c)
	metrics.ModelAvailable.Set(1)
	if old != nil {
		s.logger.Info("artifact bundle swapped", "from", old.bundle.ID, "to", c.bundle.ID)
	}
	return old
}

// Unset drops the active context; scoring fails with ErrArtifactUnavailable
// until the next Swap.
func (s *Service) Unset() *Context {
	metrics.ModelAvailable.Set(0)
	return s.current.Swap(nil)
}

// Current returns the active context or nil.
func (s *Service) Current() *Context {
	return s.current.Load()
}

func (s *Service) Available() bool {
	return s.current.Load() != nil
}

func (s *Service) Score(q Query, now time.Time) (Prediction, error) {
	c := s.current.Load()
	if c == nil {
		metrics.UnavailableTotal.Inc()
		return Prediction{}, ErrArtifactUnavailable
	}
	return c.Score(q, now)
}

// Forecast binds the sequence to the context active at call time and
// returns that context's bundle id.
func (s *Service) Forecast(q Query, now time.Time) (iter.Seq2[ForecastPoint, error], string, error) {
	c := s.current.Load()
	if c == nil {
		metrics.UnavailableTotal.Inc()
		return nil, "", ErrArtifactUnavailable
	}
	seq, err := c.Forecast(q, now)
	if err != nil {
		return nil, "", err
	}
	return seq, c.Bundle().ID, nil
}
