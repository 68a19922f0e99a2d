// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package bvse

import (
	"container/heap"
)

// Pathway is an ordered route of grid cells from a mobile site to its
// periodic image. Consecutive cells are grid-adjacent; the barrier is
// invariant under reversed traversal. Per prd002-pathway-search R1.1.
type Pathway struct {
	// Cells holds the route in base-grid coordinates (wrapped), from
	// the start site to the cell congruent with it one period away.
	Cells [][3]int

	// Bottleneck is the maximum site energy along the route, in eV.
	Bottleneck float64

	// Barrier is the activation-energy estimate: Bottleneck minus the
	// global minimum site energy, in eV.
	Barrier float64

	// Axis is the lattice direction (0, 1, 2) the route percolates
	// along.
	Axis int
}

// Hops returns the number of grid steps along the route.
func (p *Pathway) Hops() int { return len(p.Cells) - 1 }

// pathNode is a priority-queue entry for the bottleneck search.
type pathNode struct {
	idx        int
	bottleneck float64
	hops       int
}

// pathHeap orders nodes by bottleneck, then hop count, then linear cell
// index. The full ordering makes tie-breaking, and therefore the
// reported pathway, reproducible across runs. Per prd002-pathway-search
// R2.2.
type pathHeap []pathNode

func (h pathHeap) Len() int { return len(h) }
func (h pathHeap) Less(a, b int) bool {
	if h[a].bottleneck != h[b].bottleneck {
		return h[a].bottleneck < h[b].bottleneck
	}
	if h[a].hops != h[b].hops {
		return h[a].hops < h[b].hops
	}
	return h[a].idx < h[b].idx
}
func (h pathHeap) Swap(a, b int)       { h[a], h[b] = h[b], h[a] }
func (h *pathHeap) Push(x any)         { *h = append(*h, x.(pathNode)) }
func (h *pathHeap) Pop() any           { old := *h; n := len(old); v := old[n-1]; *h = old[:n-1]; return v }

// searchAxis finds the minimum-bottleneck route from start to its
// periodic image along one axis, or reports that none exists below the
// ceiling. The grid is doubled along the axis so the periodic image
// becomes an ordinary target node; the other two axes wrap. Edge weight
// between adjacent cells is the larger endpoint energy, so the route
// metric is the maximum site energy along the path, minimized by a
// Dijkstra variant ordered by bottleneck instead of cumulative sum.
// O(N log N) in grid cells. Per prd002-pathway-search R2.1-R2.4.
func searchAxis(eg *EnergyGrid, start [3]int, axis int, ceiling float64) (*Pathway, bool) {
	base := [3]int{eg.Nx, eg.Ny, eg.Nz}
	dims := base
	dims[axis] *= 2

	total := dims[0] * dims[1] * dims[2]
	index := func(c [3]int) int { return (c[0]*dims[1]+c[1])*dims[2] + c[2] }
	wrap := func(c [3]int) (int, int, int) {
		w := c
		w[axis] %= base[axis]
		return w[0], w[1], w[2]
	}
	passable := func(c [3]int) (float64, bool) {
		i, j, k := wrap(c)
		if eg.BlockedAt(i, j, k) {
			return 0, false
		}
		e := eg.At(i, j, k)
		return e, e <= ceiling
	}

	startE, ok := passable(start)
	if !ok {
		return nil, false
	}
	target := start
	target[axis] += base[axis]

	const unvisited = -1.0
	best := make([]float64, total)
	hops := make([]int, total)
	prev := make([]int, total)
	for i := range best {
		best[i] = unvisited
		prev[i] = -1
	}

	startIdx := index(start)
	best[startIdx] = startE
	h := &pathHeap{{idx: startIdx, bottleneck: startE, hops: 0}}
	heap.Init(h)

	targetIdx := index(target)
	done := make([]bool, total)

	for h.Len() > 0 {
		cur := heap.Pop(h).(pathNode)
		if done[cur.idx] {
			continue
		}
		done[cur.idx] = true
		if cur.idx == targetIdx {
			return reconstruct(eg, prev, dims, base, axis, startIdx, targetIdx, cur.bottleneck), true
		}

		c := unindex(cur.idx, dims)
		for d := 0; d < 3; d++ {
			for _, step := range [2]int{-1, 1} {
				n := c
				n[d] += step
				if d == axis {
					// The doubled axis does not wrap: percolation
					// must cross the full period.
					if n[d] < 0 || n[d] >= dims[d] {
						continue
					}
				} else {
					n[d] = (n[d] + dims[d]) % dims[d]
				}

				e, ok := passable(n)
				if !ok {
					continue
				}
				nIdx := index(n)
				if done[nIdx] {
					continue
				}
				bn := cur.bottleneck
				if e > bn {
					bn = e
				}
				nh := cur.hops + 1
				if best[nIdx] == unvisited || bn < best[nIdx] ||
					(bn == best[nIdx] && nh < hops[nIdx]) {
					best[nIdx] = bn
					hops[nIdx] = nh
					prev[nIdx] = cur.idx
					heap.Push(h, pathNode{idx: nIdx, bottleneck: bn, hops: nh})
				}
			}
		}
	}
	return nil, false
}

func unindex(idx int, dims [3]int) [3]int {
	k := idx % dims[2]
	j := (idx / dims[2]) % dims[1]
	i := idx / (dims[1] * dims[2])
	return [3]int{i, j, k}
}

func reconstruct(eg *EnergyGrid, prev []int, dims, base [3]int, axis, startIdx, targetIdx int, bottleneck float64) *Pathway {
	var cells [][3]int
	for idx := targetIdx; idx != -1; idx = prev[idx] {
		c := unindex(idx, dims)
		c[axis] %= base[axis]
		cells = append(cells, c)
		if idx == startIdx {
			break
		}
	}
	// Reverse so the route runs start to periodic image.
	for l, r := 0, len(cells)-1; l < r; l, r = l+1, r-1 {
		cells[l], cells[r] = cells[r], cells[l]
	}
	return &Pathway{
		Cells:      cells,
		Bottleneck: bottleneck,
		Barrier:    bottleneck - eg.Min,
		Axis:       axis,
	}
}

// FindPercolationPath searches all three lattice directions from every
// mobile-ion start cell and returns the overall minimum-bottleneck
// route. Ties prefer the shorter route, then the lower axis. Returns
// NoPercolatingPathError when no route below the ceiling exists.
func FindPercolationPath(eg *EnergyGrid, structureID string, startCells [][3]int, ceiling float64) (*Pathway, error) {
	var bestPath *Pathway
	for _, start := range startCells {
		for axis := 0; axis < 3; axis++ {
			p, ok := searchAxis(eg, start, axis, ceiling)
			if !ok {
				continue
			}
			if bestPath == nil || betterPathway(p, bestPath) {
				bestPath = p
			}
		}
	}
	if bestPath == nil {
		return nil, &NoPercolatingPathError{ID: structureID, Ceiling: ceiling}
	}
	return bestPath, nil
}

func betterPathway(a, b *Pathway) bool {
	if a.Bottleneck != b.Bottleneck {
		return a.Bottleneck < b.Bottleneck
	}
	if a.Hops() != b.Hops() {
		return a.Hops() < b.Hops()
	}
	return a.Axis < b.Axis
}
