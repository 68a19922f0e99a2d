// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings for stages that talk to remote
// collaborators (the ground-truth evaluation service).
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "ionscreen/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// BVSEConfig holds settings for the bond-valence analysis stage.
// Per prd001-bvse-field R5.1-R5.4.
type BVSEConfig struct {
	// GridSpacing is the target sample spacing in Angstrom (default 0.1).
	GridSpacing float64 `json:"grid_spacing" yaml:"grid_spacing"`

	// Cutoff is the neighbor cutoff radius in Angstrom (default 5.0).
	Cutoff float64 `json:"cutoff" yaml:"cutoff"`

	// EnergyCeiling is the maximum passable site energy in eV for the
	// pathway search (default 3.0). Cells above it are impassable.
	EnergyCeiling float64 `json:"energy_ceiling" yaml:"energy_ceiling"`

	// SaturationBound marks grid cells as blocked (infeasible for
	// occupancy) above this energy in eV (default 10.0).
	SaturationBound float64 `json:"saturation_bound" yaml:"saturation_bound"`

	// ParamsFile optionally overrides the built-in bond-valence table
	// with a YAML file of (R0, B) entries.
	ParamsFile string `json:"params_file,omitempty" yaml:"params_file,omitempty"`

	// PerovskiteCalibration enables the per-structure R0 adjustment for
	// ABO3 host lattices (default true).
	PerovskiteCalibration bool `json:"perovskite_calibration" yaml:"perovskite_calibration"`

	// CalibrationTrim is the fraction of extreme bond lengths dropped
	// from each coordination shell before the R0 fit (default 0.1).
	CalibrationTrim float64 `json:"calibration_trim" yaml:"calibration_trim"`

	// Workers bounds parallel structure analysis in batch mode
	// (default: number of CPUs).
	Workers int `json:"workers" yaml:"workers"`
}

// SurrogateKind selects the surrogate model family at configuration time.
type SurrogateKind string

const (
	SurrogateForest SurrogateKind = "forest"
	SurrogateNeural SurrogateKind = "neural"
)

// SurrogateConfig holds settings for the surrogate predictor.
// Per prd003-surrogate R1.2, R4.1-R4.3.
type SurrogateConfig struct {
	// Kind selects the model family: forest or neural.
	Kind SurrogateKind `json:"kind" yaml:"kind"`

	// MinSamples is the minimum training-set size for Fit (default 10).
	MinSamples int `json:"min_samples" yaml:"min_samples"`

	// EnsembleSize is the number of ensemble members (default 20 trees
	// or 5 networks).
	EnsembleSize int `json:"ensemble_size" yaml:"ensemble_size"`

	// Seed makes training deterministic for a fixed dataset.
	Seed int64 `json:"seed" yaml:"seed"`

	// OODInflation multiplies sigma for out-of-distribution inputs
	// (default 3.0).
	OODInflation float64 `json:"ood_inflation" yaml:"ood_inflation"`
}

// SchedulerConfig holds settings for the active-learning loop.
// Per prd004-active-learning R5.1-R5.6.
type SchedulerConfig struct {
	// BatchSize is the number of candidates dispatched to ground truth
	// per cycle (default 4).
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// MaxCycles bounds the number of active-learning cycles (default 10).
	MaxCycles int `json:"max_cycles" yaml:"max_cycles"`

	// MaxRetries bounds ground-truth retries per candidate before
	// permanent exclusion (default 2).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// JobBudget is the wall-clock budget per ground-truth job; jobs
	// exceeding it are marked failed (default 30m).
	JobBudget time.Duration `json:"job_budget" yaml:"job_budget"`

	// Beta weights uncertainty in the upper-confidence-bound
	// acquisition score (default 2.0).
	Beta float64 `json:"beta" yaml:"beta"`

	// MinGain terminates the loop early when no candidate's acquisition
	// score exceeds it (default 1e-3).
	MinGain float64 `json:"min_gain" yaml:"min_gain"`
}

// PoolConfig holds settings for candidate-pool persistence.
type PoolConfig struct {
	// Dir is the base directory for pool state (contains index/).
	Dir string `json:"dir" yaml:"dir"`
}

// GroundTruthConfig holds settings for the remote ground-truth
// evaluation collaborator (a DFT/MD job service).
type GroundTruthConfig struct {
	HTTPConfig `yaml:",inline"`

	// BaseURL is the job service endpoint. Empty disables the remote
	// client; the screen command then requires a local evaluator.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// APIKey authenticates against the job service.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// PollInterval is the delay between result polls (default 10s).
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`

	// MaxRetries is the retry budget for rate-limited or busy responses.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// PipelineConfig groups all stage configurations.
type PipelineConfig struct {
	BVSE        BVSEConfig        `json:"bvse" yaml:"bvse"`
	Surrogate   SurrogateConfig   `json:"surrogate" yaml:"surrogate"`
	Scheduler   SchedulerConfig   `json:"scheduler" yaml:"scheduler"`
	Pool        PoolConfig        `json:"pool" yaml:"pool"`
	GroundTruth GroundTruthConfig `json:"ground_truth" yaml:"ground_truth"`
}
