package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neurasky/neurasky/internal/api"
	"github.com/neurasky/neurasky/internal/inference"
	"github.com/neurasky/neurasky/internal/ingest"
	"github.com/neurasky/neurasky/internal/reload"
)

type ServeCmd struct {
	Addr     string        `help:"Listen address." default:":8080" env:"NEURASKY_ADDR"`
	Watch    bool          `help:"Reload when the active bundle changes." default:"true" negatable:""`
	Source   string        `help:"Dataset source to import on a schedule (path, http(s) or ftp URL)." env:"NEURASKY_SOURCE"`
	Interval time.Duration `help:"Time between scheduled imports." default:"24h"`
	Retrain  bool          `help:"Retrain and activate a bundle after an import stores new records."`

	TrainOptions `embed:"" prefix:"train-"`
}

func (c *ServeCmd) Run(ctx context.Context, g *Globals) error {
	if c.Source != "" && c.Interval <= 0 {
		return fmt.Errorf("--interval must be positive, got %s", c.Interval)
	}

	st, closeDB, err := g.openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	svc := inference.NewService(g.logger)
	watcher := reload.New(g.Artifacts, svc, g.loc, g.logger)
	if err := watcher.Reload(); err != nil {
		// Serve degraded until a bundle shows up.
		g.logger.Warn("no artifact bundle loaded", "root", g.Artifacts, "error", err)
	}

	if c.Watch {
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				g.logger.Error("artifact watcher stopped", "error", err)
			}
		}()
	}

	if c.Source != "" {
		src, err := ingest.Open(c.Source)
		if err != nil {
			return fmt.Errorf("open source: %w", err)
		}
		sched := ingest.NewScheduler(st, src, c.Interval, g.logger)
		if c.Retrain {
			opts := c.TrainOptions
			sched.AfterImport = func(ctx context.Context, res ingest.ImportResult) error {
				g.logger.Info("retraining after import", "run", res.RunID, "stored", res.Stored)
				b, err := trainBundle(ctx, st, g, opts)
				if err != nil {
					return err
				}
				g.logger.Debug("retrained", "bundle", b.ID)
				if opts.NoActivate {
					return nil
				}
				// A no-op when the watcher already swapped the bundle in.
				return watcher.Reload()
			}
		}
		go sched.Run(ctx)
	}

	srv := api.NewServer(svc, st, c.Addr, g.loc, g.logger)
	return srv.Run(ctx)
}
