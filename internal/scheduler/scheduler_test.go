// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/ionscreen/internal/pool"
	"github.com/pdiddy/ionscreen/internal/surrogate"
	"github.com/pdiddy/ionscreen/pkg/types"
)

// fakeEvaluator is a scriptable ground-truth collaborator.
type fakeEvaluator struct {
	mu    sync.Mutex
	calls map[string]int

	fail    bool
	release chan struct{} // when set, Evaluate blocks until closed

	values func(id string) map[types.Property]float64
}

func newFakeEvaluator() *fakeEvaluator {
	return &fakeEvaluator{
		calls: map[string]int{},
		values: func(id string) map[types.Property]float64 {
			return map[types.Property]float64{
				types.PropActivationEnergy: 0.25,
				types.PropConductivity:     -3.0,
				types.PropFormationEnergy:  -1.2,
			}
		},
	}
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, job types.EvaluationJob) (types.EvaluationResult, error) {
	f.mu.Lock()
	f.calls[job.CandidateID]++
	f.mu.Unlock()

	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return types.EvaluationResult{}, ctx.Err()
		}
	}
	if f.fail {
		return types.EvaluationResult{}, fmt.Errorf("dft run diverged")
	}
	return types.EvaluationResult{
		CandidateID: job.CandidateID,
		Values:      f.values(job.CandidateID),
		NoiseFloor:  0.01,
	}, nil
}

func (f *fakeEvaluator) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func seededCandidate(id string, barrier, sigma float64) *types.Candidate {
	return &types.Candidate{
		ID:            id,
		Formula:       "Li7La3Zr2O12",
		MobileSpecies: "Li",
		State:         types.StateScored,
		Beliefs: map[types.Property]types.Belief{
			types.PropActivationEnergy: {Estimate: barrier, Sigma: sigma, Provenance: types.ProvenanceBVSE},
		},
	}
}

func newTestScheduler(cfg types.SchedulerConfig, ev GroundTruthEvaluator) *Scheduler {
	model := surrogate.NewMultiTask(types.SurrogateConfig{Seed: 1})
	return New(cfg, model, ev, &bytes.Buffer{})
}

func TestAcquisitionPrefersUncertainty(t *testing.T) {
	p := pool.New()
	// Equal point estimates; only the dispersion differs.
	require.NoError(t, p.Add(seededCandidate("c-low", 0.3, 0.01)))
	require.NoError(t, p.Add(seededCandidate("c-high", 0.3, 0.5)))
	require.NoError(t, p.Add(seededCandidate("c-mid", 0.3, 0.05)))

	s := newTestScheduler(types.SchedulerConfig{}, newFakeEvaluator())
	ranked := s.rankEligible(p)

	require.Len(t, ranked, 3)
	assert.Equal(t, "c-high", ranked[0].id)
	assert.Equal(t, "c-mid", ranked[1].id)
	assert.Equal(t, "c-low", ranked[2].id)
}

func TestAcquisitionDeterministicTieBreak(t *testing.T) {
	p := pool.New()
	require.NoError(t, p.Add(seededCandidate("b", 0.3, 0.1)))
	require.NoError(t, p.Add(seededCandidate("a", 0.3, 0.1)))
	require.NoError(t, p.Add(seededCandidate("c", 0.3, 0.1)))

	s := newTestScheduler(types.SchedulerConfig{}, newFakeEvaluator())
	for i := 0; i < 5; i++ {
		ranked := s.rankEligible(p)
		assert.Equal(t, "a", ranked[0].id)
		assert.Equal(t, "b", ranked[1].id)
		assert.Equal(t, "c", ranked[2].id)
	}
}

func TestMeritWeighsProperties(t *testing.T) {
	good := seededCandidate("good", 0.1, 0)
	good.Beliefs[types.PropConductivity] = types.Belief{Estimate: -2.0}
	bad := seededCandidate("bad", 0.9, 0)
	bad.Beliefs[types.PropConductivity] = types.Belief{Estimate: -5.0}

	assert.Greater(t, merit(good), merit(bad))
}

func TestRunCycleDispatchesDespiteNegativeScore(t *testing.T) {
	p := pool.New()
	// A positive barrier estimate makes the raw acquisition score
	// negative, but the remaining dispersion is far from resolved:
	// the cycle must dispatch, not declare convergence.
	require.NoError(t, p.Add(seededCandidate("nominal", 0.3, 0.05)))

	s := newTestScheduler(types.SchedulerConfig{BatchSize: 1}, newFakeEvaluator())
	report, err := s.RunCycle(context.Background(), p, 1)
	require.NoError(t, err)

	assert.False(t, report.Converged)
	assert.Equal(t, 1, report.Dispatched)
	assert.Negative(t, report.BestAcquisition)
}

func TestRunCycleConvergesWhenUncertaintyResolved(t *testing.T) {
	p := pool.New()
	require.NoError(t, p.Add(seededCandidate("sharp-a", 0.3, 1e-5)))
	require.NoError(t, p.Add(seededCandidate("sharp-b", 0.4, 1e-5)))

	s := newTestScheduler(types.SchedulerConfig{}, newFakeEvaluator())
	report, err := s.RunCycle(context.Background(), p, 1)
	require.NoError(t, err)

	assert.True(t, report.Converged)
	assert.Zero(t, report.Dispatched)
}

func TestRunCycleConfirmsBatch(t *testing.T) {
	p := pool.New()
	for i := 0; i < 6; i++ {
		require.NoError(t, p.Add(seededCandidate(fmt.Sprintf("c%d", i), 0.3, 0.05)))
	}

	ev := newFakeEvaluator()
	s := newTestScheduler(types.SchedulerConfig{BatchSize: 4}, ev)

	report, err := s.RunCycle(context.Background(), p, 1)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Dispatched)
	assert.Equal(t, 4, report.Confirmed)
	assert.Zero(t, report.Failed)

	confirmed := p.InStates(types.StateConfirmed)
	require.Len(t, confirmed, 4)
	for _, c := range confirmed {
		assert.Equal(t, 1, c.EvidenceCount)
		b := c.Beliefs[types.PropActivationEnergy]
		assert.Equal(t, types.ProvenanceGroundTruth, b.Provenance)
		assert.InDelta(t, 0.25, b.Estimate, 1e-12)
		assert.InDelta(t, 0.01, b.Sigma, 1e-12)
	}

	// The two losers of the ranking stay eligible.
	assert.Len(t, p.InStates(types.StateScored), 2)
}

func TestNoDuplicateOutstandingJobs(t *testing.T) {
	p := pool.New()
	require.NoError(t, p.Add(seededCandidate("c1", 0.3, 0.05)))

	ev := newFakeEvaluator()
	ev.release = make(chan struct{})
	s := newTestScheduler(types.SchedulerConfig{BatchSize: 1}, ev)

	batch := []rankedCandidate{{id: "c1", score: 1.0}}
	var report1, report2 CycleReport

	first := s.dispatch(context.Background(), p, batch, &report1)

	// A second dispatcher racing on the same candidate finds it already
	// queued and must not launch another job.
	second := s.dispatch(context.Background(), p, batch, &report2)
	for range second {
	}
	assert.Equal(t, 1, report1.Dispatched)
	assert.Zero(t, report2.Dispatched)

	close(ev.release)
	s.fold(p, first, &report1)

	assert.Equal(t, 1, ev.callCount("c1"))
	assert.Equal(t, 1, report1.Confirmed)
}

func TestRunCycleIdempotentWhenNoneEligible(t *testing.T) {
	p := pool.New()
	c := seededCandidate("done", 0.3, 0.05)
	c.State = types.StateConfirmed
	c.EvidenceCount = 1
	require.NoError(t, p.Add(c))

	before := p.Snapshot()

	s := newTestScheduler(types.SchedulerConfig{}, newFakeEvaluator())
	report, err := s.RunCycle(context.Background(), p, 1)
	require.NoError(t, err)

	assert.True(t, report.Exhausted)
	assert.Zero(t, report.Dispatched)
	assert.Equal(t, before, p.Snapshot())
}

func TestFailureRetriesThenExcludes(t *testing.T) {
	p := pool.New()
	require.NoError(t, p.Add(seededCandidate("flaky", 0.3, 0.05)))

	ev := newFakeEvaluator()
	ev.fail = true
	s := newTestScheduler(types.SchedulerConfig{BatchSize: 1, MaxRetries: 1}, ev)

	// First failure: back to the eligible pool.
	report, err := s.RunCycle(context.Background(), p, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Zero(t, report.Excluded)

	got, _ := p.Get("flaky")
	assert.Equal(t, types.StateScored, got.State)
	assert.Equal(t, 1, got.Retries)

	// Second failure exhausts the retry budget.
	report, err = s.RunCycle(context.Background(), p, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Excluded)

	got, _ = p.Get("flaky")
	assert.Equal(t, types.StateExcluded, got.State)
	assert.Contains(t, got.ExclusionReason, "dft run diverged")
}

func TestJobTimeout(t *testing.T) {
	p := pool.New()
	require.NoError(t, p.Add(seededCandidate("slow", 0.3, 0.05)))

	ev := newFakeEvaluator()
	ev.release = make(chan struct{}) // never closed: the job hangs
	defer close(ev.release)

	var buf bytes.Buffer
	model := surrogate.NewMultiTask(types.SurrogateConfig{Seed: 1})
	s := New(types.SchedulerConfig{BatchSize: 1, JobBudget: 20 * time.Millisecond}, model, ev, &buf)

	report, err := s.RunCycle(context.Background(), p, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Contains(t, buf.String(), "exceeded budget")

	got, _ := p.Get("slow")
	assert.Equal(t, types.StateScored, got.State)
}

func TestRunConfirmsAndRetrains(t *testing.T) {
	p := pool.New()
	for i := 0; i < 12; i++ {
		require.NoError(t, p.Add(seededCandidate(fmt.Sprintf("c%02d", i), 0.3, 0.05)))
	}

	ev := newFakeEvaluator()
	ev.values = func(id string) map[types.Property]float64 {
		// Distinct labels per candidate so retraining sees variation.
		return map[types.Property]float64{
			types.PropActivationEnergy: 0.1 + float64(id[len(id)-1]-'0')*0.02,
			types.PropConductivity:     -3.0,
			types.PropFormationEnergy:  -1.0,
		}
	}
	s := newTestScheduler(types.SchedulerConfig{BatchSize: 12, MaxCycles: 3}, ev)

	reports, err := s.Run(context.Background(), p)
	require.NoError(t, err)
	require.NotEmpty(t, reports)

	assert.Equal(t, 12, reports[0].Confirmed)
	assert.True(t, reports[0].Retrained)

	// Every candidate confirmed: the next cycle finds nothing to do.
	last := reports[len(reports)-1]
	assert.True(t, last.Exhausted)
}

func TestDescriptorsFollowMobileSpecies(t *testing.T) {
	p := pool.New()
	c := seededCandidate("na-host", 0.3, 0.05)
	c.Formula = "Na2ZrO3"
	c.MobileSpecies = "Na"
	require.NoError(t, p.Add(c))

	s := newTestScheduler(types.SchedulerConfig{}, newFakeEvaluator())
	var report CycleReport
	require.NoError(t, s.scoreCandidates(p, &report))

	got, ok := p.Get("na-host")
	require.True(t, ok)
	require.NotEmpty(t, got.Features)

	// Two sodium out of six atoms; a lithium-centric descriptor would
	// report zero mobile concentration for a sodium conductor.
	assert.InDelta(t, 2.0/6.0, got.Features[len(got.Features)-1], 1e-12)
}

func TestConfirmRejectionDoesNotStrandCandidate(t *testing.T) {
	p := pool.New()
	require.NoError(t, p.Add(seededCandidate("vetoed", 0.3, 0.05)))

	ev := newFakeEvaluator()
	ev.release = make(chan struct{})

	var buf bytes.Buffer
	model := surrogate.NewMultiTask(types.SurrogateConfig{Seed: 1})
	s := New(types.SchedulerConfig{BatchSize: 1}, model, ev, &buf)

	var report CycleReport
	completions := s.dispatch(context.Background(), p,
		[]rankedCandidate{{id: "vetoed", score: 1.0}}, &report)

	// An operator withdraws the candidate while its job is in flight;
	// the late confirmation is rejected by the pool and must not leave
	// the candidate parked in the queued state.
	require.NoError(t, p.Update("vetoed", func(c *types.Candidate) error {
		c.State = types.StateExcluded
		c.ExclusionReason = "withdrawn by operator"
		return nil
	}))

	close(ev.release)
	s.fold(p, completions, &report)

	assert.Zero(t, report.Confirmed)
	got, _ := p.Get("vetoed")
	assert.Equal(t, types.StateExcluded, got.State)
	assert.Contains(t, buf.String(), "vetoed")
}

func TestExcludesUnparseableFormula(t *testing.T) {
	p := pool.New()
	bad := &types.Candidate{ID: "garbled", Formula: "??", State: types.StateUnscored}
	require.NoError(t, p.Add(bad))

	s := newTestScheduler(types.SchedulerConfig{}, newFakeEvaluator())
	report, err := s.RunCycle(context.Background(), p, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Excluded)
	got, _ := p.Get("garbled")
	assert.Equal(t, types.StateExcluded, got.State)
	assert.Contains(t, got.ExclusionReason, "input error")
}
