// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scheduler

import (
	"github.com/pdiddy/ionscreen/pkg/types"
)

// Merit weights for the multi-objective score. Conductivity is the
// prize, activation energy the gatekeeper, formation enthalpy a
// stability tiebreaker.
const (
	conductivityWeight = 1.0
	activationWeight   = 1.0
	formationWeight    = 0.5
)

// merit collapses a candidate's beliefs into a scalar predicted value:
// higher conductivity and lower activation energy and formation
// enthalpy are better. Properties without a belief contribute zero, so
// candidates with sparse beliefs stay comparable.
func merit(c *types.Candidate) float64 {
	var m float64
	if b, ok := c.Beliefs[types.PropConductivity]; ok {
		m += conductivityWeight * b.Estimate
	}
	if b, ok := c.Beliefs[types.PropActivationEnergy]; ok {
		m -= activationWeight * b.Estimate
	}
	if b, ok := c.Beliefs[types.PropFormationEnergy]; ok {
		m -= formationWeight * b.Estimate
	}
	return m
}

// meanSigma averages the dispersion across all held beliefs. Zero for
// a candidate with no beliefs.
func meanSigma(c *types.Candidate) float64 {
	if len(c.Beliefs) == 0 {
		return 0
	}
	var sum float64
	for _, b := range c.Beliefs {
		sum += b.Sigma
	}
	return sum / float64(len(c.Beliefs))
}

// informationGain is the exploration term of the acquisition score:
// beta times the mean dispersion. Convergence keys on this term alone,
// because merit is negative for any candidate with a positive barrier
// estimate and would mask unresolved uncertainty behind an absolute
// threshold.
func informationGain(cfg types.SchedulerConfig, c *types.Candidate) float64 {
	return cfg.Beta * meanSigma(c)
}

// acquisitionScore is the upper-confidence-bound ranking used to pick
// the next ground-truth batch: predicted merit plus beta times the
// uncertainty, so the loop balances exploiting strong candidates
// against resolving uncertain ones. With equal point estimates the
// highest-dispersion candidate always ranks first.
// Per prd004-active-learning R2.1.
func acquisitionScore(cfg types.SchedulerConfig, c *types.Candidate) float64 {
	return merit(c) + informationGain(cfg, c)
}
