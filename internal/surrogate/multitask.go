// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package surrogate

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pdiddy/ionscreen/pkg/types"
)

// MultiTask predicts several properties from one shared feature
// representation. Refit is joint and atomic: either every task head is
// replaced by a model trained on the new dataset, or none is, so task
// outputs can never silently diverge into separately-fit sub-models.
// Per prd003-surrogate R3.1-R3.3.
type MultiTask struct {
	cfg types.SurrogateConfig

	mu    sync.RWMutex
	heads map[types.Property]Model
}

// NewMultiTask builds an untrained multi-task surrogate.
func NewMultiTask(cfg types.SurrogateConfig) *MultiTask {
	return &MultiTask{cfg: cfg}
}

// Fit retrains every task head on the shared features. The active
// heads are swapped transactionally after all tasks trained, so a
// concurrent Predict sees either the old model set or the new one,
// never a mixture.
func (m *MultiTask) Fit(features [][]float64, labels map[types.Property][]float64) error {
	if len(labels) == 0 {
		return fmt.Errorf("no task labels")
	}

	// Fixed task order keeps training deterministic for a fixed seed.
	props := make([]types.Property, 0, len(labels))
	for p := range labels {
		props = append(props, p)
	}
	sort.Slice(props, func(i, j int) bool { return props[i] < props[j] })

	fresh := make(map[types.Property]Model, len(labels))
	for _, prop := range props {
		model, err := New(m.cfg)
		if err != nil {
			return err
		}
		if err := model.Fit(features, labels[prop]); err != nil {
			return fmt.Errorf("task %s: %w", prop, err)
		}
		fresh[prop] = model
	}

	m.mu.Lock()
	m.heads = fresh
	m.mu.Unlock()
	return nil
}

// Predict returns per-task predictions for one feature vector.
func (m *MultiTask) Predict(features []float64) (map[types.Property]Prediction, error) {
	m.mu.RLock()
	heads := m.heads
	m.mu.RUnlock()

	if heads == nil {
		return nil, fmt.Errorf("multi-task surrogate not fitted")
	}

	out := make(map[types.Property]Prediction, len(heads))
	for prop, model := range heads {
		p, err := model.Predict(features)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", prop, err)
		}
		out[prop] = p
	}
	return out, nil
}

// Fitted reports whether a model set is active.
func (m *MultiTask) Fitted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.heads != nil
}
