// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scheduler

import (
	"context"
	"fmt"

	"github.com/pdiddy/ionscreen/internal/bvse"
	"github.com/pdiddy/ionscreen/pkg/types"
)

// bvseNoiseFloor is the empirical dispersion of the bond-valence
// barrier estimate against first-principles references, in eV.
const bvseNoiseFloor = 0.05

// BVSEEvaluator routes evaluation jobs back into the bond-valence
// pipeline. It serves as the ground-truth collaborator for runs
// without a remote DFT/MD service, and as the cheap re-entry path when
// a batch is sent through the physics estimator rather than out to the
// cluster.
type BVSEEvaluator struct {
	// Structures maps candidate IDs to their unit cells.
	Structures map[string]*types.Structure

	Cfg   types.BVSEConfig
	Table bvse.ParamTable
}

// Evaluate runs the BVSE pipeline for the job's candidate. An immobile
// framework is reported as a completed evaluation with a prohibitive
// activation energy, not a failure: immobility is a screening result.
func (e *BVSEEvaluator) Evaluate(ctx context.Context, job types.EvaluationJob) (types.EvaluationResult, error) {
	if err := ctx.Err(); err != nil {
		return types.EvaluationResult{}, err
	}

	s, ok := e.Structures[job.CandidateID]
	if !ok {
		return types.EvaluationResult{}, fmt.Errorf("no structure for candidate %s", job.CandidateID)
	}

	a, err := bvse.Analyze(s, e.Cfg, e.Table)
	if err != nil {
		return types.EvaluationResult{}, err
	}

	barrier := a.Barrier
	if a.Immobile {
		barrier = e.Cfg.EnergyCeiling
	}
	return types.EvaluationResult{
		CandidateID: job.CandidateID,
		Values: map[types.Property]float64{
			types.PropActivationEnergy: barrier,
		},
		NoiseFloor: bvseNoiseFloor,
	}, nil
}
