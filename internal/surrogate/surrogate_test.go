// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package surrogate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/ionscreen/pkg/types"
)

// linearDataset samples y = 2*x0 - x1 on a small grid, enough to clear
// the fit threshold with structure a tree can learn.
func linearDataset() ([][]float64, []float64) {
	var x [][]float64
	var y []float64
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			a, b := float64(i), float64(j)
			x = append(x, []float64{a, b})
			y = append(y, 2*a-b)
		}
	}
	return x, y
}

func forestConfig() types.SurrogateConfig {
	return types.SurrogateConfig{Kind: types.SurrogateForest, Seed: 7}
}

func TestNew(t *testing.T) {
	m, err := New(forestConfig())
	require.NoError(t, err)
	assert.IsType(t, &Forest{}, m)

	m, err = New(types.SurrogateConfig{Kind: types.SurrogateNeural})
	require.NoError(t, err)
	assert.IsType(t, &NeuralEnsemble{}, m)

	// Unset kind defaults to the forest.
	m, err = New(types.SurrogateConfig{})
	require.NoError(t, err)
	assert.IsType(t, &Forest{}, m)

	_, err = New(types.SurrogateConfig{Kind: "gaussian"})
	assert.Error(t, err)
}

func TestFitInsufficientData(t *testing.T) {
	m := NewForest(forestConfig())

	x := [][]float64{{1, 2}, {3, 4}}
	err := m.Fit(x, []float64{1, 2})

	var insufficient *InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 2, insufficient.Got)
	assert.Equal(t, DefaultMinSamples, insufficient.Min)

	// An unfitted model refuses to predict.
	_, err = m.Predict([]float64{1, 2})
	assert.Error(t, err)
}

func TestFitInputValidation(t *testing.T) {
	m := NewForest(forestConfig())
	x, y := linearDataset()

	assert.Error(t, m.Fit(x, y[:len(y)-1]))

	ragged := append([][]float64{}, x...)
	ragged[3] = []float64{1}
	assert.Error(t, m.Fit(ragged, y))
}

func TestForestPredicts(t *testing.T) {
	m := NewForest(forestConfig())
	x, y := linearDataset()
	require.NoError(t, m.Fit(x, y))

	p, err := m.Predict([]float64{3, 2})
	require.NoError(t, err)
	assert.InDelta(t, 4.0, p.Estimate, 1.0)
	assert.Positive(t, p.Sigma)
	assert.False(t, p.OutOfDistribution)
}

func TestForestDeterministicForSeed(t *testing.T) {
	x, y := linearDataset()

	m1 := NewForest(forestConfig())
	require.NoError(t, m1.Fit(x, y))
	m2 := NewForest(forestConfig())
	require.NoError(t, m2.Fit(x, y))

	for _, probe := range [][]float64{{0, 0}, {2.5, 1.5}, {5, 5}} {
		p1, err := m1.Predict(probe)
		require.NoError(t, err)
		p2, err := m2.Predict(probe)
		require.NoError(t, err)
		assert.Equal(t, p1, p2)
	}
}

func TestHeteroscedasticSigma(t *testing.T) {
	// Dense cluster near the origin plus a handful of far points: the
	// ensemble should disagree more where the data is sparse.
	var x [][]float64
	var y []float64
	for i := 0; i < 20; i++ {
		v := float64(i) * 0.05
		x = append(x, []float64{v, v})
		y = append(y, v)
	}
	x = append(x, []float64{8, 8}, []float64{9, 9}, []float64{10, 10})
	y = append(y, 3.0, 7.0, 5.0)

	m := NewForest(forestConfig())
	require.NoError(t, m.Fit(x, y))

	dense, err := m.Predict([]float64{0.5, 0.5})
	require.NoError(t, err)
	sparse, err := m.Predict([]float64{9.5, 9.5})
	require.NoError(t, err)

	assert.Greater(t, sparse.Sigma, dense.Sigma)
}

func TestOutOfDistributionInflation(t *testing.T) {
	x, y := linearDataset()
	m := NewForest(forestConfig())
	require.NoError(t, m.Fit(x, y))

	inside, err := m.Predict([]float64{2, 2})
	require.NoError(t, err)
	assert.False(t, inside.OutOfDistribution)

	outside, err := m.Predict([]float64{50, 2})
	require.NoError(t, err)
	assert.True(t, outside.OutOfDistribution)

	// The estimate is still served; only the dispersion grows.
	assert.GreaterOrEqual(t, outside.Sigma, 3.0*sigmaFloor)
}

func TestNeuralEnsemble(t *testing.T) {
	x, y := linearDataset()

	m := NewNeuralEnsemble(types.SurrogateConfig{
		Kind: types.SurrogateNeural,
		Seed: 3,
	})
	require.NoError(t, m.Fit(x, y))

	p, err := m.Predict([]float64{3, 2})
	require.NoError(t, err)
	assert.InDelta(t, 4.0, p.Estimate, 1.5)
	assert.Positive(t, p.Sigma)

	out, err := m.Predict([]float64{100, 100})
	require.NoError(t, err)
	assert.True(t, out.OutOfDistribution)
}

func TestNeuralInsufficientData(t *testing.T) {
	m := NewNeuralEnsemble(types.SurrogateConfig{Kind: types.SurrogateNeural})
	err := m.Fit([][]float64{{1}}, []float64{1})

	var insufficient *InsufficientDataError
	assert.ErrorAs(t, err, &insufficient)
}

func TestMultiTaskJointRefit(t *testing.T) {
	x, y := linearDataset()
	negated := make([]float64, len(y))
	for i, v := range y {
		negated[i] = -v
	}

	mt := NewMultiTask(forestConfig())
	assert.False(t, mt.Fitted())

	labels := map[types.Property][]float64{
		types.PropActivationEnergy: y,
		types.PropConductivity:     negated,
	}
	require.NoError(t, mt.Fit(x, labels))
	assert.True(t, mt.Fitted())

	preds, err := mt.Predict([]float64{3, 2})
	require.NoError(t, err)
	require.Len(t, preds, 2)
	assert.InDelta(t, preds[types.PropActivationEnergy].Estimate,
		-preds[types.PropConductivity].Estimate, 1e-9)
}

func TestMultiTaskFitFailureKeepsOldModel(t *testing.T) {
	x, y := linearDataset()
	mt := NewMultiTask(forestConfig())
	require.NoError(t, mt.Fit(x, map[types.Property][]float64{
		types.PropActivationEnergy: y,
	}))

	// A refit below the sample threshold must not disturb the serving
	// model.
	err := mt.Fit(x[:2], map[types.Property][]float64{
		types.PropActivationEnergy: y[:2],
	})
	var insufficient *InsufficientDataError
	require.ErrorAs(t, err, &insufficient)

	preds, err := mt.Predict([]float64{3, 2})
	require.NoError(t, err)
	assert.Contains(t, preds, types.PropActivationEnergy)
}

func TestMultiTaskUnfittedPredict(t *testing.T) {
	mt := NewMultiTask(forestConfig())
	_, err := mt.Predict([]float64{1, 2})
	assert.Error(t, err)
}
