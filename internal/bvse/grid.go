// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package bvse

import (
	"math"

	"github.com/pdiddy/ionscreen/pkg/types"
)

// minCellVolume rejects degenerate lattices, in cubic Angstrom.
const minCellVolume = 1e-6

// Grid is a deterministic 3-D sampling of a unit cell in fractional
// coordinates, with periodic wraparound. Pure function of the input
// structure and spacing. Per prd001-bvse-field R1.1-R1.2.
type Grid struct {
	// Nx, Ny, Nz are the sample counts along each lattice vector.
	Nx, Ny, Nz int

	// Spacing is the requested target spacing in Angstrom.
	Spacing float64
}

// BuildGrid discretizes the unit cell at the target spacing (Angstrom).
// Sample i along axis d sits at fractional coordinate i/N_d, so the
// grid covers [0, 1) with periodic wraparound.
func BuildGrid(s *types.Structure, spacing float64) (Grid, error) {
	if s.MobileSpecies == "" {
		return Grid{}, &InvalidStructureError{ID: s.ID, Reason: "no mobile-ion species declared"}
	}
	if s.Volume() < minCellVolume {
		return Grid{}, &InvalidStructureError{ID: s.ID, Reason: "zero-volume lattice"}
	}
	if spacing <= 0 {
		return Grid{}, &InvalidStructureError{ID: s.ID, Reason: "non-positive grid spacing"}
	}

	lengths := s.CellLengths()
	dims := [3]int{}
	for d := 0; d < 3; d++ {
		n := int(math.Round(lengths[d] / spacing))
		if n < 2 {
			n = 2
		}
		dims[d] = n
	}
	return Grid{Nx: dims[0], Ny: dims[1], Nz: dims[2], Spacing: spacing}, nil
}

// Len returns the total number of grid cells.
func (g Grid) Len() int { return g.Nx * g.Ny * g.Nz }

// Index maps cell coordinates to a linear index in row-major
// (x, y, z) order.
func (g Grid) Index(i, j, k int) int {
	return (i*g.Ny+j)*g.Nz + k
}

// Cell is the inverse of Index.
func (g Grid) Cell(idx int) (i, j, k int) {
	k = idx % g.Nz
	j = (idx / g.Nz) % g.Ny
	i = idx / (g.Ny * g.Nz)
	return
}

// Frac returns the fractional coordinates of a cell.
func (g Grid) Frac(i, j, k int) [3]float64 {
	return [3]float64{
		float64(i) / float64(g.Nx),
		float64(j) / float64(g.Ny),
		float64(k) / float64(g.Nz),
	}
}

// Nearest returns the grid cell closest to a fractional coordinate,
// wrapping periodically.
func (g Grid) Nearest(frac [3]float64) (i, j, k int) {
	dims := [3]int{g.Nx, g.Ny, g.Nz}
	var cell [3]int
	for d := 0; d < 3; d++ {
		f := frac[d] - math.Floor(frac[d])
		c := int(math.Round(f * float64(dims[d])))
		cell[d] = ((c % dims[d]) + dims[d]) % dims[d]
	}
	return cell[0], cell[1], cell[2]
}

// EnergyGrid is the scalar bond-valence site-energy field over a Grid.
// Created by Evaluate and read-only afterwards. Values are finite;
// cells above the saturation bound are marked blocked.
type EnergyGrid struct {
	Grid

	// Energies holds the site energy per cell in eV, indexed by
	// Grid.Index. Values are capped at the saturation bound.
	Energies []float64

	// Blocked marks cells infeasible for occupancy.
	Blocked []bool

	// Min is the global minimum site energy over unblocked cells.
	Min float64
}

// At returns the site energy of a cell.
func (e *EnergyGrid) At(i, j, k int) float64 {
	return e.Energies[e.Index(i, j, k)]
}

// BlockedAt reports whether a cell is infeasible for occupancy.
func (e *EnergyGrid) BlockedAt(i, j, k int) bool {
	return e.Blocked[e.Index(i, j, k)]
}
