// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pool

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/ionscreen/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(types.PoolConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := New()
	c1 := testCandidate("c1")
	c1.Features = []float64{1.5, 2.5}
	require.NoError(t, p.Add(c1))

	c2 := testCandidate("c2")
	c2.State = types.StateConfirmed
	c2.EvidenceCount = 3
	c2.Beliefs[types.PropConductivity] = types.Belief{
		Estimate: -2.1, Sigma: 0.2, Provenance: types.ProvenanceGroundTruth,
	}
	require.NoError(t, p.Add(c2))

	c3 := testCandidate("c3")
	c3.State = types.StateExcluded
	c3.ExclusionReason = "retry budget exhausted"
	c3.Retries = 3
	require.NoError(t, p.Add(c3))

	require.NoError(t, s.Save(ctx, p))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, loaded.Len())

	got1, ok := loaded.Get("c1")
	require.True(t, ok)
	assert.Equal(t, []float64{1.5, 2.5}, got1.Features)
	assert.Equal(t, c1.Formula, got1.Formula)
	assert.Equal(t, c1.MobileSpecies, got1.MobileSpecies)

	got2, ok := loaded.Get("c2")
	require.True(t, ok)
	assert.Equal(t, types.StateConfirmed, got2.State)
	assert.Equal(t, 3, got2.EvidenceCount)
	require.Len(t, got2.Beliefs, 2)
	assert.Equal(t, types.ProvenanceGroundTruth, got2.Beliefs[types.PropConductivity].Provenance)

	// Excluded candidates keep their audit trail.
	got3, ok := loaded.Get("c3")
	require.True(t, ok)
	assert.Equal(t, types.StateExcluded, got3.State)
	assert.Equal(t, "retry budget exhausted", got3.ExclusionReason)
	assert.Equal(t, 3, got3.Retries)
}

func TestLoadPreservesUpdatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := New()
	require.NoError(t, p.Add(testCandidate("c1")))
	require.NoError(t, p.Update("c1", func(c *types.Candidate) error {
		c.State = types.StateScored
		return nil
	}))
	before, _ := p.Get("c1")

	require.NoError(t, s.Save(ctx, p))
	time.Sleep(5 * time.Millisecond)

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	after, _ := loaded.Get("c1")
	assert.True(t, after.UpdatedAt.Equal(before.UpdatedAt),
		"persisted timestamp must survive the round trip")
}

func TestLoadEmptyDatabase(t *testing.T) {
	s := newTestStore(t)

	p, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, p.Len())
}

func TestSaveReplacesPreviousSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p1 := New()
	require.NoError(t, p1.Add(testCandidate("old")))
	require.NoError(t, s.Save(ctx, p1))

	p2 := New()
	require.NoError(t, p2.Add(testCandidate("new")))
	require.NoError(t, s.Save(ctx, p2))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())
	_, ok := loaded.Get("old")
	assert.False(t, ok)
	_, ok = loaded.Get("new")
	assert.True(t, ok)
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(types.PoolConfig{Dir: dir})
	require.NoError(t, err)
	defer s.Close()

	p := New()
	require.NoError(t, p.Add(testCandidate("c1")))

	require.NoError(t, s.ExportYAML(p))
	require.NoError(t, s.ExportJSON(p))

	yamlData, err := os.ReadFile(filepath.Join(dir, "index", "pool.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(yamlData), "c1")
	assert.Contains(t, string(yamlData), "bvse")

	jsonData, err := os.ReadFile(filepath.Join(dir, "index", "pool.json"))
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), `"id": "c1"`)
}
