// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package surrogate

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/pdiddy/ionscreen/pkg/types"
)

const (
	defaultNetCount = 5
	hiddenWidth     = 16
	trainEpochs     = 300
	learningRate    = 0.01
)

// NeuralEnsemble is a deep ensemble of small feed-forward regressors
// (one tanh hidden layer) trained with Adam from independent random
// initializations. Member disagreement provides the heteroscedastic
// dispersion.
type NeuralEnsemble struct {
	cfg    types.SurrogateConfig
	nets   []*mlp
	bounds featureBounds
	norm   normalizer
	fitted bool
}

// NewNeuralEnsemble builds an untrained ensemble.
func NewNeuralEnsemble(cfg types.SurrogateConfig) *NeuralEnsemble {
	return &NeuralEnsemble{cfg: cfg}
}

// Fit standardizes the dataset and trains every member to convergence.
// Deterministic for a fixed dataset and seed.
func (e *NeuralEnsemble) Fit(features [][]float64, labels []float64) error {
	if err := validateInput(features, labels, minSamples(e.cfg)); err != nil {
		return err
	}

	e.norm = fitNormalizer(features, labels)
	x := e.norm.transformX(features)
	y := e.norm.transformY(labels)

	count := e.cfg.EnsembleSize
	if count <= 0 {
		count = defaultNetCount
	}

	e.nets = make([]*mlp, count)
	for i := 0; i < count; i++ {
		rng := rand.New(rand.NewSource(e.cfg.Seed + int64(i)*7919))
		net := newMLP(len(features[0]), hiddenWidth, rng)
		net.train(x, y, trainEpochs, learningRate)
		e.nets[i] = net
	}
	e.bounds = newFeatureBounds(features)
	e.fitted = true
	return nil
}

// Predict returns the ensemble mean and spread in label units.
func (e *NeuralEnsemble) Predict(features []float64) (Prediction, error) {
	if !e.fitted {
		return Prediction{}, fmt.Errorf("neural ensemble not fitted")
	}

	x := e.norm.transformRow(features)
	outs := make([]float64, len(e.nets))
	var sum float64
	for i, net := range e.nets {
		outs[i] = net.forward(x)
		sum += outs[i]
	}
	meanZ := sum / float64(len(outs))

	var varZ float64
	for _, v := range outs {
		d := v - meanZ
		varZ += d * d
	}
	sigmaZ := math.Sqrt(varZ / float64(len(outs)))

	p := Prediction{
		Estimate: e.norm.inverseY(meanZ),
		Sigma:    sigmaZ*e.norm.yStd + sigmaFloor,
	}
	if e.bounds.outOfRange(features) {
		p.OutOfDistribution = true
		p.Sigma *= oodInflation(e.cfg)
	}
	return p, nil
}

// normalizer standardizes features and labels to zero mean and unit
// variance; constant columns map to zero.
type normalizer struct {
	xMean, xStd []float64
	yMean, yStd float64
}

func fitNormalizer(features [][]float64, labels []float64) normalizer {
	dims := len(features[0])
	n := normalizer{
		xMean: make([]float64, dims),
		xStd:  make([]float64, dims),
	}
	for d := 0; d < dims; d++ {
		col := make([]float64, len(features))
		for i, row := range features {
			col[i] = row[d]
		}
		n.xMean[d] = mean(col)
		n.xStd[d] = math.Sqrt(variance(col))
		if n.xStd[d] == 0 {
			n.xStd[d] = 1
		}
	}
	n.yMean = mean(labels)
	n.yStd = math.Sqrt(variance(labels))
	if n.yStd == 0 {
		n.yStd = 1
	}
	return n
}

func (n normalizer) transformRow(row []float64) []float64 {
	out := make([]float64, len(row))
	for d, v := range row {
		if d < len(n.xMean) {
			out[d] = (v - n.xMean[d]) / n.xStd[d]
		}
	}
	return out
}

func (n normalizer) transformX(features [][]float64) [][]float64 {
	out := make([][]float64, len(features))
	for i, row := range features {
		out[i] = n.transformRow(row)
	}
	return out
}

func (n normalizer) transformY(labels []float64) []float64 {
	out := make([]float64, len(labels))
	for i, v := range labels {
		out[i] = (v - n.yMean) / n.yStd
	}
	return out
}

func (n normalizer) inverseY(z float64) float64 {
	return z*n.yStd + n.yMean
}

// mlp is a one-hidden-layer tanh regressor with a linear output unit.
type mlp struct {
	in, hidden int

	// w1[h][d], b1[h]: input to hidden. w2[h], b2: hidden to output.
	w1 [][]float64
	b1 []float64
	w2 []float64
	b2 float64
}

func newMLP(in, hidden int, rng *rand.Rand) *mlp {
	m := &mlp{
		in:     in,
		hidden: hidden,
		w1:     make([][]float64, hidden),
		b1:     make([]float64, hidden),
		w2:     make([]float64, hidden),
	}
	scale := 1.0 / math.Sqrt(float64(in))
	for h := 0; h < hidden; h++ {
		m.w1[h] = make([]float64, in)
		for d := 0; d < in; d++ {
			m.w1[h][d] = rng.NormFloat64() * scale
		}
		m.w2[h] = rng.NormFloat64() / math.Sqrt(float64(hidden))
	}
	return m
}

func (m *mlp) forward(x []float64) float64 {
	out := m.b2
	for h := 0; h < m.hidden; h++ {
		a := m.b1[h]
		for d := 0; d < m.in; d++ {
			a += m.w1[h][d] * x[d]
		}
		out += m.w2[h] * math.Tanh(a)
	}
	return out
}

// train runs full-batch Adam on the mean squared error. Shuffling is
// unnecessary at these dataset sizes.
func (m *mlp) train(x [][]float64, y []float64, epochs int, lr float64) {
	nParams := m.hidden*m.in + m.hidden + m.hidden + 1
	opt := newAdam(lr, nParams)
	grads := make([]float64, nParams)

	for epoch := 0; epoch < epochs; epoch++ {
		for i := range grads {
			grads[i] = 0
		}
		invN := 1.0 / float64(len(x))

		for s, row := range x {
			// Forward pass keeping the hidden activations.
			act := make([]float64, m.hidden)
			out := m.b2
			for h := 0; h < m.hidden; h++ {
				a := m.b1[h]
				for d := 0; d < m.in; d++ {
					a += m.w1[h][d] * row[d]
				}
				act[h] = math.Tanh(a)
				out += m.w2[h] * act[h]
			}

			// Backprop of d(MSE)/d(out).
			dOut := 2 * (out - y[s]) * invN
			g := grads
			idx := 0
			for h := 0; h < m.hidden; h++ {
				dHidden := dOut * m.w2[h] * (1 - act[h]*act[h])
				for d := 0; d < m.in; d++ {
					g[idx] += dHidden * row[d]
					idx++
				}
			}
			for h := 0; h < m.hidden; h++ {
				g[idx] += dOut * m.w2[h] * (1 - act[h]*act[h])
				idx++
			}
			for h := 0; h < m.hidden; h++ {
				g[idx] += dOut * act[h]
				idx++
			}
			g[idx] += dOut
		}

		params := m.flatten()
		opt.update(params, grads)
		m.unflatten(params)
	}
}

func (m *mlp) flatten() []float64 {
	out := make([]float64, 0, m.hidden*m.in+2*m.hidden+1)
	for h := 0; h < m.hidden; h++ {
		out = append(out, m.w1[h]...)
	}
	out = append(out, m.b1...)
	out = append(out, m.w2...)
	out = append(out, m.b2)
	return out
}

func (m *mlp) unflatten(params []float64) {
	idx := 0
	for h := 0; h < m.hidden; h++ {
		copy(m.w1[h], params[idx:idx+m.in])
		idx += m.in
	}
	copy(m.b1, params[idx:idx+m.hidden])
	idx += m.hidden
	copy(m.w2, params[idx:idx+m.hidden])
	idx += m.hidden
	m.b2 = params[idx]
}

// adam is the Adam update rule with bias correction.
type adam struct {
	lr, beta1, beta2, eps float64
	m, v                  []float64
	step                  int
}

func newAdam(lr float64, n int) *adam {
	return &adam{
		lr:    lr,
		beta1: 0.9,
		beta2: 0.999,
		eps:   1e-8,
		m:     make([]float64, n),
		v:     make([]float64, n),
	}
}

func (a *adam) update(params, grads []float64) {
	a.step++
	for i := range params {
		g := grads[i]
		a.m[i] = a.beta1*a.m[i] + (1-a.beta1)*g
		a.v[i] = a.beta2*a.v[i] + (1-a.beta2)*g*g

		mHat := a.m[i] / (1 - math.Pow(a.beta1, float64(a.step)))
		vHat := a.v[i] / (1 - math.Pow(a.beta2, float64(a.step)))

		params[i] -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
	}
}
