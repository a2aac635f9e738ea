package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/neurasky/neurasky/internal/artifact"
	"github.com/neurasky/neurasky/internal/metrics"
	"github.com/neurasky/neurasky/internal/models"
	"github.com/neurasky/neurasky/internal/store"
	"github.com/neurasky/neurasky/internal/training"
)

// TrainOptions are the knobs shared by the train command and scheduled retraining.
type TrainOptions struct {
	Since        string  `help:"Only train on flights on or after this date (YYYY-MM-DD)."`
	Rounds       int     `help:"Maximum boosting rounds." default:"1000"`
	LearningRate float64 `help:"Booster learning rate." default:"0.05"`
	NumLeaves    int     `help:"Maximum leaves per tree." default:"31"`
	EarlyStop    int     `name:"early-stopping" help:"Stop after this many rounds without validation improvement." default:"50"`
	Seed         uint64  `help:"Seed for splits and sampling." default:"42"`
	NoActivate   bool    `help:"Save the bundle without making it current."`
}

type TrainCmd struct {
	TrainOptions `embed:""`

	Source string `help:"Import this dataset before training."`
	Report bool   `help:"Print the evaluation report when done." default:"true" negatable:""`
}

func (c *TrainCmd) Run(ctx context.Context, g *Globals) error {
	st, closeDB, err := g.openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	if c.Source != "" {
		if _, err := importSource(ctx, st, c.Source, g.logger); err != nil {
			return err
		}
	}

	bundle, err := trainBundle(ctx, st, g, c.TrainOptions)
	if err != nil {
		return err
	}
	if c.Report {
		return artifact.WriteReport(os.Stdout, bundle.Metrics)
	}
	return nil
}

// trainBundle trains on stored records, saves the bundle, records the run and,
// unless disabled, activates it.
func trainBundle(ctx context.Context, st *store.Store, g *Globals, opts TrainOptions) (*artifact.Bundle, error) {
	var since time.Time
	if opts.Since != "" {
		t, err := time.Parse("2006-01-02", opts.Since)
		if err != nil {
			return nil, fmt.Errorf("parse --since: %w", err)
		}
		since = t
	}

	records, err := st.FlightRecords(since)
	if err != nil {
		return nil, fmt.Errorf("load flight records: %w", err)
	}

	p := training.NewPipeline(g.logger, g.loc)
	p.Seed = opts.Seed
	p.Params.Seed = opts.Seed
	if opts.Rounds > 0 {
		p.Params.Rounds = opts.Rounds
	}
	if opts.LearningRate > 0 {
		p.Params.LearningRate = opts.LearningRate
	}
	if opts.NumLeaves > 0 {
		p.Params.NumLeaves = opts.NumLeaves
	}
	if opts.EarlyStop > 0 {
		p.Params.EarlyStoppingRounds = opts.EarlyStop
	}

	bundle, err := p.Run(ctx, records)
	if err != nil {
		metrics.TrainingRuns.WithLabelValues("error").Inc()
		return nil, err
	}

	dir, err := artifact.Save(g.Artifacts, bundle)
	if err != nil {
		metrics.TrainingRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("save bundle: %w", err)
	}
	metrics.TrainingRuns.WithLabelValues("success").Inc()

	if err := recordRun(st, bundle, dir); err != nil {
		return nil, err
	}
	g.logger.Info("bundle saved", "bundle", bundle.ID, "dir", dir,
		"roc_auc", bundle.Metrics.ROCAUC, "f1", bundle.Metrics.F1)

	if opts.NoActivate {
		return bundle, nil
	}
	if err := activate(st, g.Artifacts, bundle.ID, g.logger); err != nil {
		return nil, err
	}
	return bundle, nil
}

func recordRun(st *store.Store, b *artifact.Bundle, dir string) error {
	m := b.Metrics
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	_, err = st.InsertTrainingRun(models.TrainingRun{
		BundleID:      b.ID,
		SchemaVersion: b.Schema.Version,
		TrainedAt:     m.TrainedAt,
		DatasetSize:   m.DatasetSize,
		Accuracy:      m.Accuracy,
		Precision:     m.Precision,
		Recall:        m.Recall,
		F1:            m.F1,
		ROCAUC:        m.ROCAUC,
		BestIteration: m.BestIteration,
		ArtifactDir:   dir,
		MetricsJSON:   string(raw),
	})
	if err != nil {
		return fmt.Errorf("record training run: %w", err)
	}
	return nil
}

func activate(st *store.Store, root, id string, logger *slog.Logger) error {
	if err := artifact.Activate(root, id); err != nil {
		return fmt.Errorf("activate bundle: %w", err)
	}
	if err := st.MarkActivated(id); err != nil {
		// Bundles trained elsewhere have no registry entry.
		logger.Warn("bundle activated without a training run record", "bundle", id, "error", err)
	}
	logger.Info("bundle activated", "bundle", id)
	return nil
}

type ActivateCmd struct {
	Bundle string `arg:"" help:"Bundle id under the artifacts root."`
}

func (c *ActivateCmd) Run(g *Globals) error {
	st, closeDB, err := g.openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	// Refuse to point CURRENT at something the service cannot load.
	if _, err := artifact.Load(filepath.Join(g.Artifacts, c.Bundle)); err != nil {
		return err
	}
	return activate(st, g.Artifacts, c.Bundle, g.logger)
}
