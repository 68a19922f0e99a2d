// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pool holds the candidate pool: the scheduler's belief state
// over every material under screening, with SQLite persistence so
// active-learning cycles can resume after interruption.
// Implements: prd005-candidate-pool (R1-R4);
//
//	docs/ARCHITECTURE § Candidate Pool.
package pool

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pdiddy/ionscreen/pkg/types"
)

// Pool maps candidate identifiers to their belief state. All access is
// serialized; each candidate's state transition is atomic. Completions
// for different candidates may proceed from different goroutines.
type Pool struct {
	mu         sync.Mutex
	candidates map[string]*types.Candidate
}

// New returns an empty pool.
func New() *Pool {
	return &Pool{candidates: map[string]*types.Candidate{}}
}

// Add inserts a candidate. Duplicate identifiers are rejected.
func (p *Pool) Add(c *types.Candidate) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.candidates[c.ID]; exists {
		return fmt.Errorf("duplicate candidate %s", c.ID)
	}
	clone := c.Clone()
	if clone.State == "" {
		clone.State = types.StateUnscored
	}
	if clone.Beliefs == nil {
		clone.Beliefs = map[types.Property]types.Belief{}
	}
	p.candidates[c.ID] = clone
	return nil
}

// Get returns a copy of a candidate, or false if absent.
func (p *Pool) Get(id string) (*types.Candidate, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.candidates[id]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// Len returns the number of candidates.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.candidates)
}

// IDs returns all candidate identifiers in sorted order.
func (p *Pool) IDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(p.candidates))
	for id := range p.candidates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns copies of all candidates in ID order.
func (p *Pool) Snapshot() []*types.Candidate {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*types.Candidate, 0, len(p.candidates))
	for _, c := range p.candidates {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Update applies fn to one candidate under the pool lock. The mutation
// is atomic: concurrent updates to the same candidate serialize, and a
// returned error leaves the candidate untouched. Three invariants are
// enforced regardless of fn: the evidence count never decreases, a
// ground-truth-confirmed candidate is never downgraded to a
// surrogate-only state, and an excluded candidate never re-enters the
// pool.
func (p *Pool) Update(id string, fn func(*types.Candidate) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cur, ok := p.candidates[id]
	if !ok {
		return fmt.Errorf("unknown candidate %s", id)
	}

	next := cur.Clone()
	if err := fn(next); err != nil {
		return err
	}

	if next.EvidenceCount < cur.EvidenceCount {
		return fmt.Errorf("candidate %s: evidence count may not decrease (%d -> %d)",
			id, cur.EvidenceCount, next.EvidenceCount)
	}
	if cur.State == types.StateConfirmed &&
		(next.State == types.StateScored || next.State == types.StateUnscored) {
		return fmt.Errorf("candidate %s: confirmed state may not be downgraded to %s",
			id, next.State)
	}
	if cur.State == types.StateExcluded && next.State != types.StateExcluded {
		return fmt.Errorf("candidate %s: excluded is terminal, may not move to %s",
			id, next.State)
	}

	next.UpdatedAt = time.Now().UTC()
	p.candidates[id] = next
	return nil
}

// InStates returns copies of all candidates currently in any of the
// given states, in ID order.
func (p *Pool) InStates(states ...types.CandidateState) []*types.Candidate {
	want := map[types.CandidateState]bool{}
	for _, s := range states {
		want[s] = true
	}

	var out []*types.Candidate
	for _, c := range p.Snapshot() {
		if want[c.State] {
			out = append(out, c)
		}
	}
	return out
}
