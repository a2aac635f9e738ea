// Package training builds artifact bundles from historical flight records.
package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/neurasky/neurasky/internal/artifact"
	"github.com/neurasky/neurasky/internal/encoder"
	"github.com/neurasky/neurasky/internal/features"
	"github.com/neurasky/neurasky/internal/gbdt"
	"github.com/neurasky/neurasky/internal/models"
)

// MinRecords is the smallest usable dataset after cleaning.
const MinRecords = 50

var ErrInsufficientData = errors.New("training: not enough usable records")

type Pipeline struct {
	Params             gbdt.Params
	TestFraction       float64
	ValidationFraction float64
	Seed               uint64
	// Location is the zone in which FlightDate and CRSDepTime are read.
	Location *time.Location
	// LogEvery controls how often boosting progress is logged, in rounds.
	LogEvery int
	Logger   *slog.Logger
	Now      func() time.Time
	NewID    func() string
}

func NewPipeline(logger *slog.Logger, loc *time.Location) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Pipeline{
		Params:             gbdt.DefaultParams(),
		TestFraction:       0.2,
		ValidationFraction: 0.1,
		Seed:               42,
		Location:           loc,
		LogEvery:           100,
		Logger:             logger,
		Now:                time.Now,
		NewID:              uuid.NewString,
	}
}

type sample struct {
	vec     features.Vector
	delayed bool
}

// Run derives features, fits the encoder on the training split, trains the
// booster with early stopping on a validation split and evaluates it on the
// held-out test split. The returned bundle is not yet saved.
func (p *Pipeline) Run(ctx context.Context, records []models.FlightRecord) (*artifact.Bundle, error) {
	log := p.Logger.With("component", "training")

	samples, dropped := p.prepare(records)
	log.Info("dataset prepared", "records", len(records), "usable", len(samples), "dropped", dropped)
	if len(samples) < MinRecords {
		return nil, fmt.Errorf("%w: %d usable of %d", ErrInsufficientData, len(samples), len(records))
	}

	labels := make([]bool, len(samples))
	var dist artifact.ClassDistribution
	for i, s := range samples {
		labels[i] = s.delayed
		if s.delayed {
			dist.Delayed++
		} else {
			dist.OnTime++
		}
	}
	if dist.Delayed < 2 || dist.OnTime < 2 {
		return nil, fmt.Errorf("%w: need both classes, have %d on-time and %d delayed",
			ErrInsufficientData, dist.OnTime, dist.Delayed)
	}

	rng := rand.New(rand.NewPCG(p.Seed, p.Seed^0x5851f42d4c957f2d))
	trainIdx, testIdx := StratifiedSplit(labels, p.TestFraction, rng)
	fitPos, validPos := StratifiedSplit(pick(labels, trainIdx), p.ValidationFraction, rng)
	fitIdx, validIdx := pickIdx(trainIdx, fitPos), pickIdx(trainIdx, validPos)

	schema := features.Current()
	catRows := make([]map[string]string, len(trainIdx))
	for i, idx := range trainIdx {
		catRows[i] = samples[idx].vec.Categorical()
	}
	enc, err := encoder.Fit(features.CategoricalColumns(), catRows)
	if err != nil {
		return nil, fmt.Errorf("fit encoder: %w", err)
	}

	negW, posW := ClassWeights(pick(labels, fitIdx))
	build := func(idx []int, weighted bool) (*gbdt.Dataset, error) {
		d := &gbdt.Dataset{X: make([][]float64, len(idx)), Y: make([]float64, len(idx))}
		if weighted {
			d.Weights = make([]float64, len(idx))
		}
		for i, j := range idx {
			row, _, err := schema.Row(samples[j].vec, enc)
			if err != nil {
				return nil, err
			}
			d.X[i] = row
			if samples[j].delayed {
				d.Y[i] = 1
			}
			if weighted {
				d.Weights[i] = negW
				if samples[j].delayed {
					d.Weights[i] = posW
				}
			}
		}
		return d, nil
	}

	fitDS, err := build(fitIdx, true)
	if err != nil {
		return nil, fmt.Errorf("build training matrix: %w", err)
	}
	validDS, err := build(validIdx, false)
	if err != nil {
		return nil, fmt.Errorf("build validation matrix: %w", err)
	}
	testDS, err := build(testIdx, false)
	if err != nil {
		return nil, fmt.Errorf("build test matrix: %w", err)
	}

	params := p.Params
	userHook := params.OnRound
	params.OnRound = func(round int, auc float64) {
		if p.LogEvery > 0 && round%p.LogEvery == 0 {
			log.Info("boosting", "round", round, "valid_auc", auc)
		}
		if userHook != nil {
			userHook(round, auc)
		}
	}

	log.Info("training booster",
		"train", len(fitIdx), "validation", len(validIdx), "test", len(testIdx),
		"weight_on_time", negW, "weight_delayed", posW)
	start := time.Now()
	model, err := gbdt.Train(ctx, fitDS, validDS, params)
	if err != nil {
		return nil, fmt.Errorf("train booster: %w", err)
	}
	log.Info("booster trained", "trees", len(model.Trees), "best_iteration", model.BestIteration,
		"valid_auc", model.BestScore, "elapsed", time.Since(start).Round(time.Millisecond))

	probs := make([]float64, len(testDS.X))
	for i, x := range testDS.X {
		if probs[i], err = model.Predict(x); err != nil {
			return nil, fmt.Errorf("score test set: %w", err)
		}
	}
	eval := Evaluate(testDS.Y, probs)

	id := p.NewID()
	params.OnRound = nil
	metrics := artifact.Metrics{
		BundleID:           id,
		SchemaVersion:      schema.Version,
		TrainedAt:          p.Now().UTC(),
		DatasetSize:        len(samples),
		DroppedRows:        dropped,
		TrainSize:          len(fitIdx),
		ValidationSize:     len(validIdx),
		TestSize:           len(testIdx),
		Accuracy:           eval.Accuracy,
		Precision:          eval.Precision,
		Recall:             eval.Recall,
		F1:                 eval.F1,
		ROCAUC:             eval.ROCAUC,
		DelayDetectionRate: eval.DelayDetectionRate,
		FalseAlarmRate:     eval.FalseAlarmRate,
		Confusion:          eval.Confusion,
		ClassDistribution:  dist,
		FeatureImportances: importances(schema, model),
		BestIteration:      model.BestIteration,
		ValidationAUC:      finite(model.BestScore),
		Params:             params,
	}
	log.Info("evaluation",
		"accuracy", eval.Accuracy, "precision", eval.Precision, "recall", eval.Recall,
		"f1", eval.F1, "roc_auc", eval.ROCAUC)

	return &artifact.Bundle{
		ID:      id,
		Schema:  schema,
		Encoder: enc,
		Model:   model,
		Metrics: metrics,
	}, nil
}

// prepare normalizes codes and derives a feature vector per usable record.
func (p *Pipeline) prepare(records []models.FlightRecord) ([]sample, int) {
	out := make([]sample, 0, len(records))
	dropped := 0
	for _, r := range records {
		airline := features.NormalizeCode(r.Airline)
		origin := features.NormalizeCode(r.Origin)
		dest := features.NormalizeCode(r.Dest)
		if airline == "" || origin == "" || dest == "" || r.FlightDate.IsZero() ||
			r.CRSDepTime < 0 || r.CRSDepTime/100 > 23 || r.CRSDepTime%100 > 59 {
			dropped++
			continue
		}
		vec := features.Derive(features.Trip{
			Airline:   airline,
			Origin:    origin,
			Dest:      dest,
			Departure: r.ScheduledDeparture(p.Location),
		}, time.Time{})
		out = append(out, sample{vec: vec, delayed: r.Delayed})
	}
	return out, dropped
}

func importances(schema features.Schema, model *gbdt.Booster) []artifact.Importance {
	gains := model.Importance()
	total := 0.0
	for _, g := range gains {
		total += g
	}
	out := make([]artifact.Importance, len(gains))
	for i, g := range gains {
		if total > 0 {
			g /= total
		}
		out[i] = artifact.Importance{Feature: schema.Columns[i], Gain: g}
	}
	slices.SortStableFunc(out, func(a, b artifact.Importance) int {
		switch {
		case a.Gain > b.Gain:
			return -1
		case a.Gain < b.Gain:
			return 1
		}
		return 0
	})
	return out
}

func pick(labels []bool, idx []int) []bool {
	out := make([]bool, len(idx))
	for i, j := range idx {
		out[i] = labels[j]
	}
	return out
}

func pickIdx(base, pos []int) []int {
	out := make([]int, len(pos))
	for i, j := range pos {
		out[i] = base[j]
	}
	return out
}

func finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}
