// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// CandidateState tracks a candidate through the active-learning state
// machine. Per prd004-active-learning R1.1:
//
//	unscored → surrogate-scored → queued → confirmed (terminal)
//	                            ↘ failed (retry-eligible) → excluded (terminal)
type CandidateState string

const (
	StateUnscored  CandidateState = "unscored"
	StateScored    CandidateState = "surrogate-scored"
	StateQueued    CandidateState = "queued-for-ground-truth"
	StateConfirmed CandidateState = "ground-truth-confirmed"
	StateFailed    CandidateState = "ground-truth-failed"
	StateExcluded  CandidateState = "excluded"
)

// Property identifies a tracked material property.
type Property string

const (
	PropActivationEnergy Property = "activation_energy"
	PropConductivity     Property = "conductivity"
	PropFormationEnergy  Property = "formation_enthalpy"
)

// Provenance records which evaluator produced a belief.
type Provenance string

const (
	ProvenanceSurrogate   Provenance = "surrogate"
	ProvenanceGroundTruth Provenance = "ground-truth"
	ProvenanceBVSE        Provenance = "bvse"
)

// Belief is a point estimate with a heteroscedastic dispersion for one
// property of one candidate. Per prd004-active-learning R2.2.
type Belief struct {
	// Estimate is the current point estimate, in the property's unit.
	Estimate float64 `json:"estimate" yaml:"estimate"`

	// Sigma is the one-standard-deviation dispersion of the estimate.
	Sigma float64 `json:"sigma" yaml:"sigma"`

	// Provenance records which evaluator the estimate came from.
	Provenance Provenance `json:"provenance" yaml:"provenance"`
}

// CostClass buckets candidates by expected ground-truth evaluation cost.
type CostClass string

const (
	CostCheap     CostClass = "cheap"
	CostStandard  CostClass = "standard"
	CostExpensive CostClass = "expensive"
)

// Candidate is one material in the screening pool together with its
// belief state. Mutated only by the scheduler; never concurrently for
// the same ID. Per prd004-active-learning R1, R2.
type Candidate struct {
	// ID is the material identifier, unique within a pool.
	ID string `json:"id" yaml:"id"`

	// Formula is the reduced chemical formula used for descriptors.
	Formula string `json:"formula" yaml:"formula"`

	// MobileSpecies is the conducting ion, used to derive the
	// mobile-concentration descriptor.
	MobileSpecies string `json:"mobile_species,omitempty" yaml:"mobile_species,omitempty"`

	// State is the current state-machine position.
	State CandidateState `json:"state" yaml:"state"`

	// Beliefs maps each tracked property to its current belief.
	Beliefs map[Property]Belief `json:"beliefs" yaml:"beliefs"`

	// Features is the descriptor vector fed to the surrogate.
	Features []float64 `json:"features,omitempty" yaml:"features,omitempty,flow"`

	// Cost is the evaluation-cost class used as a dispatch hint.
	Cost CostClass `json:"cost" yaml:"cost"`

	// EvidenceCount is the number of ground-truth evaluations folded in.
	// It never decreases: confirmations are never undone.
	EvidenceCount int `json:"evidence_count" yaml:"evidence_count"`

	// Retries counts failed ground-truth attempts so far.
	Retries int `json:"retries" yaml:"retries"`

	// ExclusionReason is set when State is excluded; the candidate keeps
	// its last known beliefs for audit.
	ExclusionReason string `json:"exclusion_reason,omitempty" yaml:"exclusion_reason,omitempty"`

	// UpdatedAt is the time of the last state transition.
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Confirmed reports whether the candidate holds at least one
// ground-truth-confirmed belief.
func (c *Candidate) Confirmed() bool {
	return c.State == StateConfirmed || c.EvidenceCount > 0
}

// Clone returns a deep copy so callers can hand candidates across
// goroutine boundaries without sharing the Beliefs map.
func (c *Candidate) Clone() *Candidate {
	out := *c
	out.Beliefs = make(map[Property]Belief, len(c.Beliefs))
	for k, v := range c.Beliefs {
		out.Beliefs[k] = v
	}
	out.Features = append([]float64(nil), c.Features...)
	return &out
}

// EvaluatorKind selects which collaborator runs an EvaluationJob.
type EvaluatorKind string

const (
	EvaluatorSurrogate   EvaluatorKind = "surrogate"
	EvaluatorBVSE        EvaluatorKind = "bvse"
	EvaluatorGroundTruth EvaluatorKind = "ground-truth"
)

// EvaluationJob is a dispatch request for one candidate. It exists only
// between dispatch and completion; only its result survives, folded into
// the Candidate. Per prd004-active-learning R3.1.
type EvaluationJob struct {
	CandidateID string        `json:"candidate_id" yaml:"candidate_id"`
	Kind        EvaluatorKind `json:"kind" yaml:"kind"`
	Properties  []Property    `json:"properties" yaml:"properties,flow"`
	Priority    int           `json:"priority" yaml:"priority"`
}

// EvaluationResult is the asynchronous outcome of an EvaluationJob.
type EvaluationResult struct {
	CandidateID string               `json:"candidate_id" yaml:"candidate_id"`
	Values      map[Property]float64 `json:"values,omitempty" yaml:"values,omitempty"`

	// NoiseFloor is the evaluator's known measurement noise; confirmed
	// beliefs collapse their sigma to this value.
	NoiseFloor float64 `json:"noise_floor" yaml:"noise_floor"`

	// Err is non-nil when the evaluation failed or timed out.
	Err error `json:"-" yaml:"-"`
}
