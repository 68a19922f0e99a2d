// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/pdiddy/ionscreen/pkg/types"
)

// GroundTruthEvaluator is the contract the scheduler requires from the
// expensive evaluation collaborator (a DFT/MD backend, possibly behind
// a remote job queue). Evaluate blocks until the job completes, fails,
// or the context ends; the scheduler wraps each call in its own
// goroutine and wall-clock budget, so implementations stay simple and
// synchronous. Per prd004-active-learning R3.2.
type GroundTruthEvaluator interface {
	Evaluate(ctx context.Context, job types.EvaluationJob) (types.EvaluationResult, error)
}

// EvaluationTimeoutError reports a ground-truth job that exceeded its
// wall-clock budget. Recoverable: the candidate re-enters the eligible
// pool until its retry budget runs out.
type EvaluationTimeoutError struct {
	CandidateID string
	Budget      time.Duration
}

func (e *EvaluationTimeoutError) Error() string {
	return fmt.Sprintf("ground-truth job for %s exceeded budget %s", e.CandidateID, e.Budget)
}

// completion carries one finished job back to the dispatch loop.
type completion struct {
	job    types.EvaluationJob
	result types.EvaluationResult
	err    error
}
