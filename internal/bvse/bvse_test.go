// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package bvse

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/ionscreen/pkg/types"
)

// cubicLattice returns an a*a*a cubic cell.
func cubicLattice(a float64) [3][3]float64 {
	return [3][3]float64{{a, 0, 0}, {0, a, 0}, {0, 0, a}}
}

// rockSaltStructure is a minimal Li-O test cell: one mobile lithium at
// the origin and one oxygen at the body center.
func rockSaltStructure() *types.Structure {
	return &types.Structure{
		ID:      "test-LiO",
		Formula: "LiO",
		Lattice: cubicLattice(4.0),
		Sites: []types.Site{
			{Element: "Li", Oxidation: 1, Frac: [3]float64{0, 0, 0}},
			{Element: "O", Oxidation: -2, Frac: [3]float64{0.5, 0.5, 0.5}},
		},
		MobileSpecies: "Li",
	}
}

// perovskiteStructure is an idealized cubic SrTiO3 cell with a lithium
// probe declared mobile.
func perovskiteStructure() *types.Structure {
	return &types.Structure{
		ID:      "test-SrTiO3",
		Formula: "SrTiO3",
		Lattice: cubicLattice(3.905),
		Sites: []types.Site{
			{Element: "Li", Oxidation: 1, Frac: [3]float64{0.25, 0.25, 0.25}},
			{Element: "Sr", Oxidation: 2, Frac: [3]float64{0, 0, 0}},
			{Element: "Ti", Oxidation: 4, Frac: [3]float64{0.5, 0.5, 0.5}},
			{Element: "O", Oxidation: -2, Frac: [3]float64{0.5, 0.5, 0}},
			{Element: "O", Oxidation: -2, Frac: [3]float64{0.5, 0, 0.5}},
			{Element: "O", Oxidation: -2, Frac: [3]float64{0, 0.5, 0.5}},
		},
		MobileSpecies: "Li",
	}
}

func testConfig() types.BVSEConfig {
	return types.BVSEConfig{
		GridSpacing:     0.5,
		Cutoff:          5.0,
		EnergyCeiling:   3.0,
		SaturationBound: 10.0,
	}
}

func TestAnalyze(t *testing.T) {
	s := rockSaltStructure()
	cfg := testConfig()

	a, err := Analyze(s, cfg, DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, "test-LiO", a.ID)
	assert.Equal(t, 1, a.MobileSiteCount)
	assert.False(t, a.Immobile)
	require.NotNil(t, a.Pathway)
	assert.GreaterOrEqual(t, a.Barrier, 0.0)
	assert.InDelta(t, a.Pathway.Bottleneck-a.MinEnergy, a.Barrier, 1e-12)
}

func TestAnalyzeDeterministic(t *testing.T) {
	s := rockSaltStructure()
	cfg := testConfig()
	table := DefaultParams()

	a1, err := Analyze(s, cfg, table)
	require.NoError(t, err)
	a2, err := Analyze(s, cfg, table)
	require.NoError(t, err)

	assert.Equal(t, a1.Barrier, a2.Barrier)
	assert.Equal(t, a1.Pathway.Cells, a2.Pathway.Cells)
	assert.Equal(t, a1.Pathway.Axis, a2.Pathway.Axis)
}

func TestAnalyzeImmobileFramework(t *testing.T) {
	s := rockSaltStructure()
	cfg := testConfig()
	// A ceiling below every site energy leaves no passable cell.
	cfg.EnergyCeiling = 1e-12

	a, err := Analyze(s, cfg, DefaultParams())
	require.NoError(t, err)
	assert.True(t, a.Immobile)
	assert.Nil(t, a.Pathway)
	assert.Zero(t, a.Barrier)
}

func TestAnalyzeInvalidStructure(t *testing.T) {
	s := rockSaltStructure()
	s.MobileSpecies = ""

	_, err := Analyze(s, testConfig(), DefaultParams())
	var invalid *InvalidStructureError
	require.ErrorAs(t, err, &invalid)
}

func TestAnalyzeBatch(t *testing.T) {
	bad := rockSaltStructure()
	bad.ID = "test-bad"
	bad.MobileSpecies = ""

	structures := []*types.Structure{rockSaltStructure(), bad, perovskiteStructure()}

	var buf bytes.Buffer
	cfg := testConfig()
	cfg.Workers = 2

	analyses, failures, summary, err := AnalyzeBatch(context.Background(), structures, cfg, DefaultParams(), &buf)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total())
	assert.Equal(t, 2, summary.Analyzed)
	assert.Equal(t, 1, summary.Failed)

	// Output order follows input order; failures are not in the list.
	require.Len(t, analyses, 2)
	assert.Equal(t, "test-LiO", analyses[0].ID)
	assert.Equal(t, "test-SrTiO3", analyses[1].ID)

	require.Len(t, failures, 1)
	assert.Equal(t, "test-bad", failures[0].ID)
	var invalid *InvalidStructureError
	assert.ErrorAs(t, failures[0].Err, &invalid)

	assert.Contains(t, buf.String(), "test-bad")
}

func TestAnalyzeBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	structures := []*types.Structure{rockSaltStructure()}
	_, _, _, err := AnalyzeBatch(ctx, structures, testConfig(), DefaultParams(), &bytes.Buffer{})
	assert.True(t, errors.Is(err, context.Canceled))
}
