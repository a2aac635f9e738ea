// Package ingest fetches and parses historical flight datasets.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neurasky/neurasky/internal/metrics"
	"github.com/neurasky/neurasky/internal/models"
)

// LoadStats summarizes one Load call.
type LoadStats struct {
	Files   int
	Bytes   int
	Rows    int
	Dropped int
	Flagged int
}

// Load fetches every file from src and parses it as a dataset CSV.
func Load(ctx context.Context, src Source, logger *slog.Logger) ([]models.FlightRecord, LoadStats, error) {
	files, err := fetch(ctx, src)
	if err != nil {
		return nil, LoadStats{}, err
	}
	return Parse(files, src.Kind(), logger)
}

func fetch(ctx context.Context, src Source) ([]File, error) {
	kind := src.Kind()
	start := time.Now()
	files, err := src.Fetch(ctx)
	metrics.DatasetFetchLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DatasetFetches.WithLabelValues(kind, "error").Inc()
		return nil, fmt.Errorf("fetch %s dataset: %w", kind, err)
	}
	metrics.DatasetFetches.WithLabelValues(kind, "success").Inc()
	return files, nil
}

// Parse parses fetched files. Records are tagged with the file name as their
// source and carry quality flags from ValidateRecord.
func Parse(files []File, kind string, logger *slog.Logger) ([]models.FlightRecord, LoadStats, error) {
	var stats LoadStats
	var out []models.FlightRecord
	for _, f := range files {
		recs, ps, err := ParseCSV(bytes.NewReader(f.Data), f.Name)
		if err != nil {
			return nil, stats, fmt.Errorf("parse %s: %w", f.Name, err)
		}
		stats.Files++
		stats.Bytes += len(f.Data)
		stats.Rows += ps.Rows
		stats.Dropped += ps.Dropped
		for i := range recs {
			if flags := ValidateRecord(&recs[i]); len(flags) > 0 {
				recs[i].QualityFlags = QualityFlagsToJSON(flags)
				stats.Flagged++
			}
		}
		metrics.RecordsIngested.WithLabelValues(kind).Add(float64(len(recs)))
		logger.Info("dataset file parsed", "source", kind, "file", f.Name, "rows", ps.Rows, "dropped", ps.Dropped)
		out = append(out, recs...)
	}
	return out, stats, nil
}
