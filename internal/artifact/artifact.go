// Package artifact persists and loads the matched set of files produced by a
// training run: model, encoder, feature schema and metrics.
//
// A bundle lives in its own directory named after the bundle id:
//
//	<root>/<id>/model.json
//	<root>/<id>/encoder.json
//	<root>/<id>/schema.yaml
//	<root>/<id>/metrics.json
//	<root>/<id>/model_metrics.txt
//
// Every artifact file embeds the bundle id and schema version so that files
// from different runs cannot be mixed silently.
package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/neurasky/neurasky/internal/encoder"
	"github.com/neurasky/neurasky/internal/features"
	"github.com/neurasky/neurasky/internal/gbdt"
)

const (
	ModelFile   = "model.json"
	EncoderFile = "encoder.json"
	SchemaFile  = "schema.yaml"
	MetricsFile = "metrics.json"
	ReportFile  = "model_metrics.txt"
)

var ErrMismatchedBundle = errors.New("artifact: bundle files do not belong together")

// LoadError reports which artifact file could not be loaded.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

type Confusion struct {
	TN int `json:"tn"`
	FP int `json:"fp"`
	FN int `json:"fn"`
	TP int `json:"tp"`
}

type ClassDistribution struct {
	OnTime  int `json:"on_time"`
	Delayed int `json:"delayed"`
}

type Importance struct {
	Feature string  `json:"feature"`
	Gain    float64 `json:"gain"`
}

// Metrics describes a training run. It is informational only.
type Metrics struct {
	BundleID      string    `json:"bundle_id"`
	SchemaVersion string    `json:"schema_version"`
	TrainedAt     time.Time `json:"trained_at"`

	DatasetSize    int `json:"dataset_size"`
	DroppedRows    int `json:"dropped_rows"`
	TrainSize      int `json:"train_size"`
	ValidationSize int `json:"validation_size"`
	TestSize       int `json:"test_size"`

	Accuracy           float64 `json:"accuracy"`
	Precision          float64 `json:"precision"`
	Recall             float64 `json:"recall"`
	F1                 float64 `json:"f1"`
	ROCAUC             float64 `json:"roc_auc"`
	DelayDetectionRate float64 `json:"delay_detection_rate"`
	FalseAlarmRate     float64 `json:"false_alarm_rate"`

	Confusion          Confusion         `json:"confusion_matrix"`
	ClassDistribution  ClassDistribution `json:"class_distribution"`
	FeatureImportances []Importance      `json:"feature_importances"`

	BestIteration int         `json:"best_iteration"`
	ValidationAUC float64     `json:"validation_auc"`
	Params        gbdt.Params `json:"params"`
}

// Bundle is the in-memory form of one training run's artifacts.
type Bundle struct {
	ID      string
	Schema  features.Schema
	Encoder *encoder.Encoder
	Model   *gbdt.Booster
	Metrics Metrics
}

// Validate checks that the parts of b can be used together.
func (b *Bundle) Validate() error {
	if b.ID == "" {
		return errors.New("artifact: bundle has no id")
	}
	if b.Model == nil || b.Encoder == nil {
		return errors.New("artifact: bundle is missing model or encoder")
	}
	if err := b.Schema.Validate(); err != nil {
		return err
	}
	if err := b.Model.Validate(); err != nil {
		return err
	}
	if b.Model.NumFeatures != b.Schema.Len() {
		return fmt.Errorf("%w: model expects %d features, schema has %d",
			ErrMismatchedBundle, b.Model.NumFeatures, b.Schema.Len())
	}
	for _, col := range b.Schema.Columns {
		if features.IsCategorical(col) && !b.Encoder.HasColumn(col) {
			return fmt.Errorf("%w: encoder not fitted on categorical column %q", ErrMismatchedBundle, col)
		}
	}
	return nil
}

type modelFile struct {
	BundleID      string        `json:"bundle_id"`
	SchemaVersion string        `json:"schema_version"`
	Booster       *gbdt.Booster `json:"booster"`
}

type encoderFile struct {
	BundleID      string           `json:"bundle_id"`
	SchemaVersion string           `json:"schema_version"`
	Encoder       *encoder.Encoder `json:"encoder"`
}

type schemaFile struct {
	BundleID    string   `yaml:"bundle_id"`
	Version     string   `yaml:"version"`
	Columns     []string `yaml:"columns"`
	Categorical []string `yaml:"categorical,omitempty"`
}

// Save writes b under root/<b.ID>. Files are written to a temporary
// directory first and renamed into place, so a bundle directory is either
// complete or absent.
func Save(root string, b *Bundle) (string, error) {
	if err := b.Validate(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("create artifacts root: %w", err)
	}
	dir := filepath.Join(root, b.ID)
	if _, err := os.Stat(dir); err == nil {
		return "", fmt.Errorf("bundle %s already exists", b.ID)
	}

	tmp, err := os.MkdirTemp(root, ".tmp-"+b.ID+"-")
	if err != nil {
		return "", fmt.Errorf("create temp bundle dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	version := b.Schema.Version
	var categorical []string
	for _, c := range b.Schema.Columns {
		if features.IsCategorical(c) {
			categorical = append(categorical, c)
		}
	}

	if err := writeJSON(filepath.Join(tmp, ModelFile), modelFile{b.ID, version, b.Model}); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(tmp, EncoderFile), encoderFile{b.ID, version, b.Encoder}); err != nil {
		return "", err
	}
	schemaYAML, err := yaml.Marshal(schemaFile{b.ID, version, b.Schema.Columns, categorical})
	if err != nil {
		return "", fmt.Errorf("encode schema: %w", err)
	}
	if err := os.WriteFile(filepath.Join(tmp, SchemaFile), schemaYAML, 0o644); err != nil {
		return "", fmt.Errorf("write schema: %w", err)
	}

	m := b.Metrics
	m.BundleID, m.SchemaVersion = b.ID, version
	if err := writeJSON(filepath.Join(tmp, MetricsFile), m); err != nil {
		return "", err
	}

	var report bytes.Buffer
	if err := WriteReport(&report, m); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(tmp, ReportFile), report.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}

	if err := os.Rename(tmp, dir); err != nil {
		return "", fmt.Errorf("move bundle into place: %w", err)
	}
	return dir, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Load reads the bundle in dir. All four artifacts must load and agree on
// bundle id and schema version; otherwise nothing is returned.
func Load(dir string) (*Bundle, error) {
	var mf modelFile
	if err := readJSON(dir, ModelFile, &mf); err != nil {
		return nil, err
	}
	if mf.Booster == nil {
		return nil, &LoadError{File: ModelFile, Err: errors.New("no booster")}
	}

	var ef encoderFile
	if err := readJSON(dir, EncoderFile, &ef); err != nil {
		return nil, err
	}
	if ef.Encoder == nil {
		return nil, &LoadError{File: EncoderFile, Err: errors.New("no encoder")}
	}

	data, err := os.ReadFile(filepath.Join(dir, SchemaFile))
	if err != nil {
		return nil, &LoadError{File: SchemaFile, Err: err}
	}
	var sf schemaFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, &LoadError{File: SchemaFile, Err: err}
	}

	var m Metrics
	if err := readJSON(dir, MetricsFile, &m); err != nil {
		return nil, err
	}

	ids := []string{mf.BundleID, ef.BundleID, sf.BundleID, m.BundleID}
	versions := []string{mf.SchemaVersion, ef.SchemaVersion, sf.Version, m.SchemaVersion}
	if slices.Contains(ids, "") || len(slices.Compact(ids)) != 1 {
		return nil, fmt.Errorf("%w: bundle ids %v", ErrMismatchedBundle, ids)
	}
	if len(slices.Compact(versions)) != 1 {
		return nil, fmt.Errorf("%w: schema versions %v", ErrMismatchedBundle, versions)
	}

	b := &Bundle{
		ID:      mf.BundleID,
		Schema:  features.Schema{Version: sf.Version, Columns: sf.Columns},
		Encoder: ef.Encoder,
		Model:   mf.Booster,
		Metrics: m,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

func readJSON(dir, name string, v any) error {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return &LoadError{File: name, Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &LoadError{File: name, Err: err}
	}
	return nil
}
