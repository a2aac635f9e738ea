package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/neurasky/neurasky/internal/store"
)

// ImportResult describes one completed Import.
type ImportResult struct {
	RunID  int64
	Stats  LoadStats
	Stored int
}

// Import fetches src, keeps a compressed copy of every file, and stores the
// parsed records. Each call is audited as an ingest run, failed or not.
func Import(ctx context.Context, st *store.Store, src Source, logger *slog.Logger) (ImportResult, error) {
	var res ImportResult

	run, err := st.StartIngestRun(src.Kind(), src.Location())
	if err != nil {
		return res, fmt.Errorf("start ingest run: %w", err)
	}
	res.RunID = run.ID

	fail := func(err error) (ImportResult, error) {
		run.Success = false
		run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
		if cerr := st.CompleteIngestRun(run); cerr != nil {
			logger.Warn("complete ingest run", "run", run.ID, "error", cerr)
		}
		return res, err
	}

	files, err := fetch(ctx, src)
	if err != nil {
		return fail(err)
	}

	for _, f := range files {
		id, err := st.StoreRawFile(&run.ID, src.Kind(), f.Name, f.Data)
		if err != nil {
			logger.Warn("store raw file", "file", f.Name, "error", err)
			continue
		}
		if id == 0 {
			logger.Debug("raw file already stored", "file", f.Name)
		}
	}

	records, stats, err := Parse(files, src.Kind(), logger)
	res.Stats = stats
	if err != nil {
		return fail(err)
	}

	stored, err := st.InsertFlightRecords(records)
	if err != nil {
		return fail(fmt.Errorf("store records: %w", err))
	}
	res.Stored = stored

	run.Success = true
	run.Files = sql.NullInt64{Int64: int64(stats.Files), Valid: true}
	run.Bytes = sql.NullInt64{Int64: int64(stats.Bytes), Valid: true}
	run.RowsParsed = sql.NullInt64{Int64: int64(stats.Rows), Valid: true}
	run.RowsDropped = sql.NullInt64{Int64: int64(stats.Dropped), Valid: true}
	run.RowsFlagged = sql.NullInt64{Int64: int64(stats.Flagged), Valid: true}
	run.RecordsStored = sql.NullInt64{Int64: int64(stored), Valid: true}
	if err := st.CompleteIngestRun(run); err != nil {
		return res, fmt.Errorf("complete ingest run: %w", err)
	}

	logger.Info("dataset imported", "source", src.Kind(), "location", src.Location(),
		"files", stats.Files, "rows", stats.Rows, "dropped", stats.Dropped,
		"flagged", stats.Flagged, "stored", stored)
	return res, nil
}
