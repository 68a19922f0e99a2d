// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormula(t *testing.T) {
	tests := []struct {
		formula string
		want    map[string]int
	}{
		{"LiO", map[string]int{"Li": 1, "O": 1}},
		{"Li7La3Zr2O12", map[string]int{"Li": 7, "La": 3, "Zr": 2, "O": 12}},
		{"SrTiO3", map[string]int{"Sr": 1, "Ti": 1, "O": 3}},
		{"NaNbO3", map[string]int{"Na": 1, "Nb": 1, "O": 3}},
	}

	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			got, err := ParseFormula(tt.formula)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFormulaRejections(t *testing.T) {
	for _, formula := range []string{"", "123", "li2O", "Li0O", "Li2-O"} {
		t.Run(formula, func(t *testing.T) {
			_, err := ParseFormula(formula)
			assert.Error(t, err)
		})
	}
}

func TestDescriptorsLayout(t *testing.T) {
	v, err := Descriptors("Li7La3Zr2O12", "Li")
	require.NoError(t, err)
	assert.Len(t, v, len(Names()))

	// Mobile concentration is the final component.
	assert.InDelta(t, 7.0/24.0, v[len(v)-1], 1e-12)
}

func TestDescriptorsValues(t *testing.T) {
	v, err := Descriptors("SrTiO3", "Li")
	require.NoError(t, err)

	// avg radius: (2.15 + 1.47 + 3*0.66) / 5
	assert.InDelta(t, (2.15+1.47+3*0.66)/5, v[0], 1e-12)
	// A and B site counts from the composition.
	assert.Equal(t, 1.0, v[4])
	assert.Equal(t, 1.0, v[5])
	// 3 anions, 5 atoms, no mobile lithium.
	assert.Equal(t, 3.0, v[6])
	assert.Equal(t, 5.0, v[7])
	assert.Zero(t, v[8])
}

func TestDescriptorsDeterministic(t *testing.T) {
	first, err := Descriptors("Li7La3Zr2O12", "Li")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		v, err := Descriptors("Li7La3Zr2O12", "Li")
		require.NoError(t, err)
		assert.Equal(t, first, v)
	}
}

func TestDescriptorsUnknownElements(t *testing.T) {
	// Wholly unknown chemistry cannot produce a vector.
	_, err := Descriptors("UPu3", "Li")
	assert.Error(t, err)

	// A partially known formula still yields one; unknowns count only
	// toward the atom total.
	v, err := Descriptors("LiW2O4", "Li")
	require.NoError(t, err)
	assert.Equal(t, 7.0, v[7])
}
