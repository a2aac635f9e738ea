package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/neurasky/neurasky/internal/api"
	"github.com/neurasky/neurasky/internal/inference"
	"github.com/neurasky/neurasky/internal/ingest"
	"github.com/neurasky/neurasky/internal/store"
	"github.com/neurasky/neurasky/internal/training"
)

type ImportCmd struct {
	Source string `arg:"" help:"CSV file, directory of CSVs, http(s) URL or ftp URL."`
}

func (c *ImportCmd) Run(ctx context.Context, g *Globals) error {
	st, closeDB, err := g.openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	res, err := importSource(ctx, st, c.Source, g.logger)
	if err != nil {
		return err
	}
	total, err := st.CountFlightRecords()
	if err != nil {
		return err
	}
	fmt.Printf("run %d: %d rows parsed, %d dropped, %d flagged, %d new records (%d total)\n",
		res.RunID, res.Stats.Rows, res.Stats.Dropped, res.Stats.Flagged, res.Stored, total)
	return nil
}

func importSource(ctx context.Context, st *store.Store, target string, logger *slog.Logger) (ingest.ImportResult, error) {
	src, err := ingest.Open(target)
	if err != nil {
		return ingest.ImportResult{}, fmt.Errorf("open source: %w", err)
	}
	return ingest.Import(ctx, st, src, logger)
}

type GenerateCmd struct {
	Count int    `help:"Number of flights." default:"20000"`
	Seed  uint64 `help:"Generator seed." default:"7"`
	Year  int    `help:"Year the flights fall in. Defaults to the current year."`
	Out   string `short:"o" help:"Output file, '-' for stdout." default:"-"`
}

func (c *GenerateCmd) Run(g *Globals) error {
	year := c.Year
	if year == 0 {
		year = time.Now().In(g.loc).Year()
	}
	records := training.Generate(c.Count, c.Seed, time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC))

	var w io.Writer = os.Stdout
	if c.Out != "-" {
		f, err := os.Create(c.Out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := ingest.WriteCSV(w, records); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	g.logger.Info("synthetic dataset written", "records", len(records), "out", c.Out)
	return nil
}

// QueryFlags are the route flags shared by predict and forecast.
type QueryFlags struct {
	Origin      string `required:"" help:"Origin airport IATA code."`
	Destination string `required:"" help:"Destination airport IATA code."`
	Airline     string `help:"Airline IATA code." default:"MH"`
}

type PredictCmd struct {
	QueryFlags `embed:""`

	Departure    string `help:"Departure time (RFC3339, local YYYY-MM-DDTHH:MM or HH:MM today). Defaults to now."`
	FlightNumber string `name:"flight-number" help:"Flight number echoed in the result."`
}

func (c *PredictCmd) Run(g *Globals) error {
	ic, err := inference.LoadCurrentContext(g.Artifacts, g.loc, g.logger)
	if err != nil {
		return err
	}
	now := time.Now()
	dep := now
	if c.Departure != "" {
		if dep, err = api.ParseDeparture(c.Departure, now, g.loc); err != nil {
			return err
		}
	}
	pred, err := ic.Score(inference.Query{
		Origin:        c.Origin,
		Destination:   c.Destination,
		Airline:       c.Airline,
		DepartureTime: dep,
		FlightNumber:  c.FlightNumber,
	}, now)
	if err != nil {
		return err
	}
	return printJSON(pred)
}

type ForecastCmd struct {
	QueryFlags `embed:""`

	JSON bool `help:"Print points as JSON."`
}

func (c *ForecastCmd) Run(g *Globals) error {
	ic, err := inference.LoadCurrentContext(g.Artifacts, g.loc, g.logger)
	if err != nil {
		return err
	}
	points, err := ic.Forecast(inference.Query{
		Origin:      c.Origin,
		Destination: c.Destination,
		Airline:     c.Airline,
	}, time.Now())
	if err != nil {
		return err
	}

	var all []inference.ForecastPoint
	for p, err := range points {
		if err != nil {
			return err
		}
		all = append(all, p)
	}
	if c.JSON {
		return printJSON(all)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tPROBABILITY\tRISK")
	for _, p := range all {
		fmt.Fprintf(tw, "%s\t%.3f\t%s\n", p.Time, p.Probability, p.RiskLevel)
	}
	return tw.Flush()
}

type RunsCmd struct {
	Limit int `help:"Number of runs to show." default:"20"`
}

func (c *RunsCmd) Run(g *Globals) error {
	st, closeDB, err := g.openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	runs, err := st.TrainingRuns(c.Limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BUNDLE\tTRAINED\tRECORDS\tAUC\tF1\tACTIVE")
	for _, r := range runs {
		active := ""
		if r.Activated {
			active = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.4f\t%.4f\t%s\n", r.BundleID,
			r.TrainedAt.In(g.loc).Format("2006-01-02 15:04"), r.DatasetSize, r.ROCAUC, r.F1, active)
	}
	return tw.Flush()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
