// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package surrogate wraps the regression models that stand in for
// expensive ground-truth evaluations. Every model satisfies the same
// capability contract: fit on features and labels, predict with a
// per-prediction dispersion. Variants are resolved at configuration
// time, never by runtime type inspection.
// Implements: prd003-surrogate (R1-R5);
//
//	docs/ARCHITECTURE § Surrogate Models.
package surrogate

import (
	"fmt"

	"github.com/pdiddy/ionscreen/pkg/types"
)

// DefaultMinSamples is the fit threshold when the config leaves
// MinSamples unset.
const DefaultMinSamples = 10

// Prediction is a point estimate with a heteroscedastic dispersion.
// The acquisition ranking compares Sigma across dissimilar candidates,
// so a single global error bar would not do.
type Prediction struct {
	// Estimate is the predicted property value.
	Estimate float64

	// Sigma is the one-standard-deviation dispersion of the estimate.
	Sigma float64

	// OutOfDistribution marks inputs outside the training range. The
	// prediction does not fail; Sigma is inflated instead.
	OutOfDistribution bool
}

// Model is the surrogate capability contract.
type Model interface {
	// Fit trains the model. Returns InsufficientDataError below the
	// minimum sample count.
	Fit(features [][]float64, labels []float64) error

	// Predict returns the estimate and dispersion for one feature
	// vector. Valid only after a successful Fit.
	Predict(features []float64) (Prediction, error)
}

// InsufficientDataError reports a Fit call with too few samples.
// Fatal to that retraining cycle only; the scheduler keeps the
// previous model.
type InsufficientDataError struct {
	Got, Min int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient training data: %d samples, need %d", e.Got, e.Min)
}

// New builds a model of the configured kind.
func New(cfg types.SurrogateConfig) (Model, error) {
	switch cfg.Kind {
	case types.SurrogateForest, "":
		return NewForest(cfg), nil
	case types.SurrogateNeural:
		return NewNeuralEnsemble(cfg), nil
	default:
		return nil, fmt.Errorf("unknown surrogate kind %q: use forest or neural", cfg.Kind)
	}
}

// minSamples resolves the configured fit threshold.
func minSamples(cfg types.SurrogateConfig) int {
	if cfg.MinSamples > 0 {
		return cfg.MinSamples
	}
	return DefaultMinSamples
}

// oodInflation resolves the configured sigma multiplier for
// out-of-distribution inputs.
func oodInflation(cfg types.SurrogateConfig) float64 {
	if cfg.OODInflation > 0 {
		return cfg.OODInflation
	}
	return 3.0
}

// featureBounds tracks the per-dimension training range for
// out-of-distribution detection.
type featureBounds struct {
	min, max []float64
}

func newFeatureBounds(features [][]float64) featureBounds {
	dims := len(features[0])
	b := featureBounds{
		min: make([]float64, dims),
		max: make([]float64, dims),
	}
	copy(b.min, features[0])
	copy(b.max, features[0])
	for _, row := range features[1:] {
		for d, v := range row {
			if v < b.min[d] {
				b.min[d] = v
			}
			if v > b.max[d] {
				b.max[d] = v
			}
		}
	}
	return b
}

// outOfRange reports whether any component falls outside the training
// range, widened by a small relative margin.
func (b featureBounds) outOfRange(features []float64) bool {
	const margin = 0.05
	for d, v := range features {
		if d >= len(b.min) {
			return true
		}
		span := b.max[d] - b.min[d]
		pad := margin * span
		if span == 0 {
			pad = margin * (1 + absf(b.min[d]))
		}
		if v < b.min[d]-pad || v > b.max[d]+pad {
			return true
		}
	}
	return false
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func validateInput(features [][]float64, labels []float64, min int) error {
	if len(features) != len(labels) {
		return fmt.Errorf("feature/label length mismatch: %d vs %d", len(features), len(labels))
	}
	if len(features) < min {
		return &InsufficientDataError{Got: len(features), Min: min}
	}
	dims := len(features[0])
	for i, row := range features {
		if len(row) != dims {
			return fmt.Errorf("feature row %d: dimension %d, want %d", i, len(row), dims)
		}
	}
	return nil
}
