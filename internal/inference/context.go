// Package inference scores flight queries against a loaded artifact bundle.
package inference

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/neurasky/neurasky/internal/artifact"
	"github.com/neurasky/neurasky/internal/features"
	"github.com/neurasky/neurasky/internal/metrics"
)

var (
	ErrArtifactUnavailable = errors.New("inference: model artifacts unavailable")
	ErrMalformedQuery      = errors.New("inference: malformed query")
)

// Context holds one matched artifact bundle. It is read-only after
// construction and safe for concurrent use.
type Context struct {
	bundle   *artifact.Bundle
	drift    features.Drift
	loc      *time.Location
	loadedAt time.Time
	logger   *slog.Logger
}

// NewContext validates b and reports schema drift between the bundle and the
// running deriver. Drift is logged, not fatal: missing columns are filled at
// scoring time.
func NewContext(b *artifact.Bundle, loc *time.Location, logger *slog.Logger) (*Context, error) {
	if b == nil {
		return nil, errors.New("inference: nil bundle")
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("validate bundle: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Context{
		bundle:   b,
		drift:    b.Schema.Check(),
		loc:      loc,
		loadedAt: time.Now(),
		logger:   logger.With("bundle", b.ID),
	}
	if !c.drift.Empty() {
		c.logger.Warn("feature schema drift",
			"schema_version", b.Schema.Version,
			"deriver_version", features.SchemaVersion,
			"missing", c.drift.Missing,
			"extra", c.drift.Extra)
	}
	return c, nil
}

// LoadContext loads the bundle in dir.
func LoadContext(dir string, loc *time.Location, logger *slog.Logger) (*Context, error) {
	return loadWith(func() (*artifact.Bundle, error) { return artifact.Load(dir) }, loc, logger)
}

// LoadCurrentContext loads the bundle CURRENT points at under root.
func LoadCurrentContext(root string, loc *time.Location, logger *slog.Logger) (*Context, error) {
	return loadWith(func() (*artifact.Bundle, error) { return artifact.LoadCurrent(root) }, loc, logger)
}

func loadWith(load func() (*artifact.Bundle, error), loc *time.Location, logger *slog.Logger) (*Context, error) {
	b, err := load()
	if err != nil {
		metrics.ArtifactLoads.WithLabelValues("error").Inc()
		return nil, err
	}
	c, err := NewContext(b, loc, logger)
	if err != nil {
		metrics.ArtifactLoads.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.ArtifactLoads.WithLabelValues("success").Inc()
	c.logger.Info("artifact bundle loaded", "schema_version", b.Schema.Version, "columns", b.Schema.Len())
	return c, nil
}

func (c *Context) Bundle() *artifact.Bundle { return c.bundle }
func (c *Context) Drift() features.Drift     { return c.drift }
func (c *Context) LoadedAt() time.Time       { return c.loadedAt }
func (c *Context) Location() *time.Location  { return c.loc }
