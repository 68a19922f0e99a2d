// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package scheduler runs the active-learning loop: it scores the
// candidate pool with the surrogate, ranks candidates by expected
// information gain, dispatches the top batch to the ground-truth
// collaborator, folds verified results back into the pool, and
// retrains the surrogate between cycles.
// Implements: prd004-active-learning (R1-R6);
//
//	docs/ARCHITECTURE § Active-Learning Loop.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/pdiddy/ionscreen/internal/features"
	"github.com/pdiddy/ionscreen/internal/pool"
	"github.com/pdiddy/ionscreen/internal/surrogate"
	"github.com/pdiddy/ionscreen/pkg/types"
)

const (
	defaultBatchSize  = 4
	defaultMaxCycles  = 10
	defaultMaxRetries = 2
	defaultJobBudget  = 30 * time.Minute
	defaultBeta       = 2.0
	defaultMinGain    = 1e-3
)

// Scheduler drives active-learning cycles over one candidate pool.
type Scheduler struct {
	cfg       types.SchedulerConfig
	model     *surrogate.MultiTask
	evaluator GroundTruthEvaluator
	w         io.Writer
}

// New builds a scheduler. The surrogate may be unfitted; the first
// retrain happens once enough confirmations accumulate.
func New(cfg types.SchedulerConfig, model *surrogate.MultiTask, evaluator GroundTruthEvaluator, w io.Writer) *Scheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxCycles <= 0 {
		cfg.MaxCycles = defaultMaxCycles
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.JobBudget <= 0 {
		cfg.JobBudget = defaultJobBudget
	}
	if cfg.Beta == 0 {
		cfg.Beta = defaultBeta
	}
	if cfg.MinGain <= 0 {
		cfg.MinGain = defaultMinGain
	}
	return &Scheduler{cfg: cfg, model: model, evaluator: evaluator, w: w}
}

// CycleReport summarizes one active-learning cycle.
type CycleReport struct {
	Cycle           int     `json:"cycle" yaml:"cycle"`
	Scored          int     `json:"scored" yaml:"scored"`
	Dispatched      int     `json:"dispatched" yaml:"dispatched"`
	Confirmed       int     `json:"confirmed" yaml:"confirmed"`
	Failed          int     `json:"failed" yaml:"failed"`
	Excluded        int     `json:"excluded" yaml:"excluded"`
	Retrained       bool    `json:"retrained" yaml:"retrained"`
	BestAcquisition float64 `json:"best_acquisition" yaml:"best_acquisition"`

	// Converged is set when no candidate's expected information gain
	// exceeds the minimum-gain threshold.
	Converged bool `json:"converged" yaml:"converged"`

	// Exhausted is set when no candidate remains eligible for
	// dispatch.
	Exhausted bool `json:"exhausted" yaml:"exhausted"`
}

// Run executes cycles until the cycle budget, convergence, or pool
// exhaustion. Per-candidate errors never abort a cycle; only shared
// infrastructure failures surface.
func (s *Scheduler) Run(ctx context.Context, p *pool.Pool) ([]CycleReport, error) {
	var reports []CycleReport
	for cycle := 1; cycle <= s.cfg.MaxCycles; cycle++ {
		report, err := s.RunCycle(ctx, p, cycle)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
		if report.Converged || report.Exhausted {
			break
		}
	}
	return reports, nil
}

// RunCycle executes one cycle: score, rank, dispatch, fold, retrain.
// Running a cycle over a pool with zero eligible candidates leaves the
// pool unchanged.
func (s *Scheduler) RunCycle(ctx context.Context, p *pool.Pool, cycle int) (CycleReport, error) {
	report := CycleReport{Cycle: cycle}

	if err := s.scoreCandidates(p, &report); err != nil {
		return report, err
	}

	ranked := s.rankEligible(p)
	if len(ranked) == 0 {
		report.Exhausted = true
		fmt.Fprintf(s.w, "cycle %d: pool exhausted\n", cycle)
		return report, nil
	}

	report.BestAcquisition = ranked[0].score

	// Convergence compares the uncertainty term against the threshold,
	// not the raw acquisition score: merit goes negative on any positive
	// barrier estimate, and a nominal pool would otherwise converge
	// before a single ground-truth job ran.
	var bestGain float64
	for _, rc := range ranked {
		if rc.gain > bestGain {
			bestGain = rc.gain
		}
	}
	if bestGain < s.cfg.MinGain {
		report.Converged = true
		fmt.Fprintf(s.w, "cycle %d: converged (best information gain %.4g below %.4g)\n",
			cycle, bestGain, s.cfg.MinGain)
		return report, nil
	}

	batch := ranked
	if len(batch) > s.cfg.BatchSize {
		batch = batch[:s.cfg.BatchSize]
	}

	completions := s.dispatch(ctx, p, batch, &report)
	s.fold(p, completions, &report)

	if report.Confirmed > 0 {
		if err := s.retrain(p, &report); err != nil {
			return report, err
		}
	}

	fmt.Fprintf(s.w, "cycle %d: scored %d, dispatched %d, confirmed %d, failed %d, excluded %d\n",
		cycle, report.Scored, report.Dispatched, report.Confirmed, report.Failed, report.Excluded)
	return report, nil
}

// scoreCandidates refreshes surrogate beliefs for every unscored or
// surrogate-scored candidate. Candidates whose formula cannot produce
// a descriptor vector are excluded with a recorded reason; they keep
// their last known state for audit.
func (s *Scheduler) scoreCandidates(p *pool.Pool, report *CycleReport) error {
	for _, c := range p.InStates(types.StateUnscored, types.StateScored) {
		if c.Features == nil {
			mobile := c.MobileSpecies
			if mobile == "" {
				mobile = "Li"
			}
			feats, err := features.Descriptors(c.Formula, mobile)
			if err != nil {
				excludeErr := p.Update(c.ID, func(c *types.Candidate) error {
					c.State = types.StateExcluded
					c.ExclusionReason = fmt.Sprintf("input error: %v", err)
					return nil
				})
				if excludeErr != nil {
					return excludeErr
				}
				report.Excluded++
				fmt.Fprintf(s.w, "excluded %s: %v\n", c.ID, err)
				continue
			}
			c.Features = feats
		}

		if !s.model.Fitted() {
			// No model yet: promote seeded candidates so the first
			// batch can rank on their prior beliefs.
			err := p.Update(c.ID, func(cand *types.Candidate) error {
				cand.Features = c.Features
				if len(cand.Beliefs) > 0 {
					cand.State = types.StateScored
				}
				return nil
			})
			if err != nil {
				return err
			}
			continue
		}

		preds, err := s.model.Predict(c.Features)
		if err != nil {
			return fmt.Errorf("scoring %s: %w", c.ID, err)
		}
		err = p.Update(c.ID, func(cand *types.Candidate) error {
			cand.Features = c.Features
			for prop, pred := range preds {
				cand.Beliefs[prop] = types.Belief{
					Estimate:   pred.Estimate,
					Sigma:      pred.Sigma,
					Provenance: types.ProvenanceSurrogate,
				}
			}
			cand.State = types.StateScored
			return nil
		})
		if err != nil {
			return err
		}
		report.Scored++
	}
	return nil
}

type rankedCandidate struct {
	id    string
	score float64
	gain  float64
}

// rankEligible orders surrogate-scored candidates by acquisition score
// descending, with ID order breaking ties deterministically. Queued
// candidates are never re-selected.
func (s *Scheduler) rankEligible(p *pool.Pool) []rankedCandidate {
	var ranked []rankedCandidate
	for _, c := range p.InStates(types.StateScored) {
		ranked = append(ranked, rankedCandidate{
			id:    c.ID,
			score: acquisitionScore(s.cfg, c),
			gain:  informationGain(s.cfg, c),
		})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].id < ranked[j].id
	})
	return ranked
}

// dispatch moves each batch candidate to the queued state and launches
// its ground-truth job. The queued transition happens under the pool
// lock before the job starts, so a candidate can never hold two
// outstanding jobs even under concurrent cycles.
func (s *Scheduler) dispatch(ctx context.Context, p *pool.Pool, batch []rankedCandidate, report *CycleReport) <-chan completion {
	results := make(chan completion, len(batch))
	launched := 0

	for i, rc := range batch {
		job := types.EvaluationJob{
			CandidateID: rc.id,
			Kind:        types.EvaluatorGroundTruth,
			Properties: []types.Property{
				types.PropActivationEnergy,
				types.PropConductivity,
				types.PropFormationEnergy,
			},
			Priority: len(batch) - i,
		}

		err := p.Update(rc.id, func(c *types.Candidate) error {
			if c.State != types.StateScored {
				return fmt.Errorf("candidate %s not eligible: state %s", c.ID, c.State)
			}
			c.State = types.StateQueued
			return nil
		})
		if err != nil {
			// Lost the race to another dispatcher; skip, don't fail.
			fmt.Fprintf(s.w, "skipped %s: %v\n", rc.id, err)
			continue
		}

		launched++
		report.Dispatched++
		go func(job types.EvaluationJob) {
			jobCtx, cancel := context.WithTimeout(ctx, s.cfg.JobBudget)
			defer cancel()

			result, err := s.evaluator.Evaluate(jobCtx, job)
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
				err = &EvaluationTimeoutError{CandidateID: job.CandidateID, Budget: s.cfg.JobBudget}
			}
			results <- completion{job: job, result: result, err: err}
		}(job)
	}

	return resultsAfter(results, launched)
}

// resultsAfter adapts a buffered completion channel into one that
// closes after n deliveries.
func resultsAfter(in chan completion, n int) <-chan completion {
	out := make(chan completion)
	go func() {
		defer close(out)
		for i := 0; i < n; i++ {
			out <- <-in
		}
	}()
	return out
}

// fold applies completions to the pool as they arrive. Confirmed
// values overwrite surrogate estimates, provenance flips to
// ground-truth, and the dispersion collapses to the evaluator's noise
// floor. Failures return the candidate to the eligible pool until its
// retry budget runs out, then exclude it with a recorded reason.
func (s *Scheduler) fold(p *pool.Pool, completions <-chan completion, report *CycleReport) {
	for comp := range completions {
		id := comp.job.CandidateID
		if comp.err != nil || comp.result.Err != nil {
			cause := comp.err
			if cause == nil {
				cause = comp.result.Err
			}
			s.foldFailure(p, id, cause, report)
			continue
		}

		err := p.Update(id, func(c *types.Candidate) error {
			for prop, value := range comp.result.Values {
				c.Beliefs[prop] = types.Belief{
					Estimate:   value,
					Sigma:      comp.result.NoiseFloor,
					Provenance: types.ProvenanceGroundTruth,
				}
			}
			c.State = types.StateConfirmed
			c.EvidenceCount++
			return nil
		})
		if err != nil {
			// A rejected confirmation must not strand the candidate in
			// the queued state; route it through the failure path so it
			// either re-enters the eligible pool or gets excluded.
			s.foldFailure(p, id, fmt.Errorf("folding result: %w", err), report)
			continue
		}
		report.Confirmed++
		fmt.Fprintf(s.w, "confirmed %s\n", id)
	}
}

func (s *Scheduler) foldFailure(p *pool.Pool, id string, cause error, report *CycleReport) {
	var excluded bool
	err := p.Update(id, func(c *types.Candidate) error {
		c.Retries++
		if c.Retries > s.cfg.MaxRetries {
			c.State = types.StateExcluded
			c.ExclusionReason = fmt.Sprintf("ground-truth failed %d times: %v", c.Retries, cause)
			excluded = true
			return nil
		}
		// Back to the eligible pool, never silently dropped.
		c.State = types.StateScored
		return nil
	})
	if err != nil {
		fmt.Fprintf(s.w, "warning: recording failure for %s: %v\n", id, err)
		return
	}
	if excluded {
		report.Excluded++
		fmt.Fprintf(s.w, "excluded %s after retries: %v\n", id, cause)
	} else {
		report.Failed++
		fmt.Fprintf(s.w, "failed   %s (will retry): %v\n", id, cause)
	}
}

// retrain refits the surrogate jointly on every ground-truth-confirmed
// candidate. Too little data is not fatal: the previous model stays
// active and the loop continues. Any other training failure aborts the
// cycle, since a corrupt shared model would poison all later ranking.
func (s *Scheduler) retrain(p *pool.Pool, report *CycleReport) error {
	var feats [][]float64
	labels := map[types.Property][]float64{}

	confirmed := p.InStates(types.StateConfirmed)
	for _, c := range confirmed {
		if c.Features == nil {
			continue
		}
		feats = append(feats, c.Features)
		for prop, b := range c.Beliefs {
			if b.Provenance == types.ProvenanceGroundTruth {
				labels[prop] = append(labels[prop], b.Estimate)
			}
		}
	}

	// Tasks must stay jointly fit over one sample set; drop any label
	// column that does not cover every confirmed sample.
	for prop, vals := range labels {
		if len(vals) != len(feats) {
			delete(labels, prop)
		}
	}
	if len(labels) == 0 {
		return nil
	}

	err := s.model.Fit(feats, labels)
	var insufficient *surrogate.InsufficientDataError
	if errors.As(err, &insufficient) {
		fmt.Fprintf(s.w, "retrain deferred: %v (keeping previous model)\n", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("surrogate retraining: %w", err)
	}
	report.Retrained = true
	return nil
}
