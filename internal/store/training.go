package store

import (
	"database/sql"
	"fmt"

	"github.com/neurasky/neurasky/internal/models"
)

const trainingRunColumns = `id, bundle_id, schema_version, trained_at, dataset_size, accuracy, precision, recall, f1, roc_auc, best_iteration, artifact_dir, metrics_json, activated`

func (s *Store) InsertTrainingRun(run models.TrainingRun) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO training_runs
		(bundle_id, schema_version, trained_at, dataset_size, accuracy, precision, recall, f1, roc_auc, best_iteration, artifact_dir, metrics_json, activated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.BundleID, run.SchemaVersion, run.TrainedAt.UTC(), run.DatasetSize, run.Accuracy, run.Precision,
		run.Recall, run.F1, run.ROCAUC, run.BestIteration, run.ArtifactDir, run.MetricsJSON, run.Activated)
	if err != nil {
		return 0, fmt.Errorf("insert training run: %w", err)
	}
	return result.LastInsertId()
}

// MarkActivated flags bundleID as the active bundle and clears the flag on
// every other run.
func (s *Store) MarkActivated(bundleID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE training_runs SET activated = TRUE WHERE bundle_id = ?`, bundleID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("training run %q not found", bundleID)
	}
	if _, err := tx.Exec(`UPDATE training_runs SET activated = FALSE WHERE bundle_id != ?`, bundleID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) TrainingRuns(limit int) ([]models.TrainingRun, error) {
	rows, err := s.db.Query(`
		SELECT `+trainingRunColumns+`
		FROM training_runs
		ORDER BY trained_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.TrainingRun
	for rows.Next() {
		r, err := scanTrainingRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

func (s *Store) LatestTrainingRun() (*models.TrainingRun, error) {
	row := s.db.QueryRow(`
		SELECT ` + trainingRunColumns + `
		FROM training_runs
		ORDER BY trained_at DESC, id DESC
		LIMIT 1
	`)
	r, err := scanTrainingRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

func (s *Store) TrainingRunByBundle(bundleID string) (*models.TrainingRun, error) {
	row := s.db.QueryRow(`SELECT `+trainingRunColumns+` FROM training_runs WHERE bundle_id = ?`, bundleID)
	r, err := scanTrainingRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrainingRun(sc scanner) (*models.TrainingRun, error) {
	var r models.TrainingRun
	var datasetSize, bestIteration sql.NullInt64
	var accuracy, precision, recall, f1, auc sql.NullFloat64
	var dir, metricsJSON sql.NullString
	var activated sql.NullBool
	if err := sc.Scan(&r.ID, &r.BundleID, &r.SchemaVersion, &r.TrainedAt, &datasetSize,
		&accuracy, &precision, &recall, &f1, &auc, &bestIteration, &dir, &metricsJSON, &activated); err != nil {
		return nil, err
	}
	r.DatasetSize = int(datasetSize.Int64)
	r.Accuracy = accuracy.Float64
	r.Precision = precision.Float64
	r.Recall = recall.Float64
	r.F1 = f1.Float64
	r.ROCAUC = auc.Float64
	r.BestIteration = int(bestIteration.Int64)
	r.ArtifactDir = dir.String
	r.MetricsJSON = metricsJSON.String
	r.Activated = activated.Bool
	return &r, nil
}
