// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package surrogate

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/pdiddy/ionscreen/pkg/types"
)

const (
	defaultTreeCount = 20
	maxTreeDepth     = 8
	minLeafSize      = 2

	// sigmaFloor keeps the dispersion strictly positive so acquisition
	// scores stay ordered even when all trees agree.
	sigmaFloor = 1e-6
)

// Forest is a bagged ensemble of variance-splitting regression trees.
// The estimate is the tree mean; the dispersion is the spread across
// trees, which grows where the training data is sparse.
type Forest struct {
	cfg    types.SurrogateConfig
	trees  []*treeNode
	bounds featureBounds
	fitted bool
}

// NewForest builds an untrained forest. Training is deterministic for
// a fixed dataset and seed.
func NewForest(cfg types.SurrogateConfig) *Forest {
	return &Forest{cfg: cfg}
}

// Fit trains the ensemble on bootstrap resamples of the dataset.
func (f *Forest) Fit(features [][]float64, labels []float64) error {
	if err := validateInput(features, labels, minSamples(f.cfg)); err != nil {
		return err
	}

	count := f.cfg.EnsembleSize
	if count <= 0 {
		count = defaultTreeCount
	}

	f.trees = make([]*treeNode, count)
	for t := 0; t < count; t++ {
		rng := rand.New(rand.NewSource(f.cfg.Seed + int64(t)))
		sampleX, sampleY := bootstrap(features, labels, rng)
		f.trees[t] = buildTree(sampleX, sampleY, 0)
	}
	f.bounds = newFeatureBounds(features)
	f.fitted = true
	return nil
}

// Predict returns the ensemble mean and spread. Out-of-distribution
// inputs do not fail; their sigma is inflated.
func (f *Forest) Predict(features []float64) (Prediction, error) {
	if !f.fitted {
		return Prediction{}, fmt.Errorf("forest not fitted")
	}

	outs := make([]float64, len(f.trees))
	var sum float64
	for i, t := range f.trees {
		outs[i] = t.eval(features)
		sum += outs[i]
	}
	mean := sum / float64(len(outs))

	var variance float64
	for _, v := range outs {
		d := v - mean
		variance += d * d
	}
	sigma := math.Sqrt(variance/float64(len(outs))) + sigmaFloor

	p := Prediction{Estimate: mean, Sigma: sigma}
	if f.bounds.outOfRange(features) {
		p.OutOfDistribution = true
		p.Sigma *= oodInflation(f.cfg)
	}
	return p, nil
}

func bootstrap(features [][]float64, labels []float64, rng *rand.Rand) ([][]float64, []float64) {
	n := len(features)
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		j := rng.Intn(n)
		x[i] = features[j]
		y[i] = labels[j]
	}
	return x, y
}

// treeNode is one node of a binary regression tree. Leaves carry the
// mean label of their partition.
type treeNode struct {
	dim       int
	threshold float64
	left      *treeNode
	right     *treeNode
	value     float64
	leaf      bool
}

func (n *treeNode) eval(features []float64) float64 {
	for !n.leaf {
		if features[n.dim] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

// buildTree grows a tree by greedy variance reduction, stopping at the
// depth limit, the minimum leaf size, or a pure partition.
func buildTree(features [][]float64, labels []float64, depth int) *treeNode {
	if depth >= maxTreeDepth || len(labels) < 2*minLeafSize || isConstant(labels) {
		return &treeNode{leaf: true, value: mean(labels)}
	}

	dim, threshold, ok := bestSplit(features, labels)
	if !ok {
		return &treeNode{leaf: true, value: mean(labels)}
	}

	var lx, rx [][]float64
	var ly, ry []float64
	for i, row := range features {
		if row[dim] <= threshold {
			lx = append(lx, row)
			ly = append(ly, labels[i])
		} else {
			rx = append(rx, row)
			ry = append(ry, labels[i])
		}
	}
	if len(ly) < minLeafSize || len(ry) < minLeafSize {
		return &treeNode{leaf: true, value: mean(labels)}
	}

	return &treeNode{
		dim:       dim,
		threshold: threshold,
		left:      buildTree(lx, ly, depth+1),
		right:     buildTree(rx, ry, depth+1),
	}
}

// bestSplit scans every dimension for the threshold minimizing the
// weighted label variance of the two partitions. Candidate thresholds
// are midpoints between consecutive sorted feature values.
func bestSplit(features [][]float64, labels []float64) (dim int, threshold float64, ok bool) {
	bestScore := math.Inf(1)
	dims := len(features[0])

	for d := 0; d < dims; d++ {
		values := make([]float64, len(features))
		for i, row := range features {
			values[i] = row[d]
		}
		sort.Float64s(values)

		for i := 1; i < len(values); i++ {
			if values[i] == values[i-1] {
				continue
			}
			t := (values[i] + values[i-1]) / 2

			var ly, ry []float64
			for j, row := range features {
				if row[d] <= t {
					ly = append(ly, labels[j])
				} else {
					ry = append(ry, labels[j])
				}
			}
			if len(ly) < minLeafSize || len(ry) < minLeafSize {
				continue
			}
			score := float64(len(ly))*variance(ly) + float64(len(ry))*variance(ry)
			if score < bestScore {
				bestScore = score
				dim = d
				threshold = t
				ok = true
			}
		}
	}
	return dim, threshold, ok
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func variance(values []float64) float64 {
	m := mean(values)
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return sum / float64(len(values))
}

func isConstant(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}
