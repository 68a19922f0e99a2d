// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package bvse

import (
	"errors"
	"time"

	"github.com/pdiddy/ionscreen/pkg/types"
)

// qualifyingBarrier is the screening verdict threshold in eV: barriers
// at or below it mark a candidate worth surrogate ranking.
const qualifyingBarrier = 0.5

// Analysis is the per-structure outcome of the BVSE pipeline.
type Analysis struct {
	ID            string `json:"id" yaml:"id"`
	Formula       string `json:"formula" yaml:"formula"`
	MobileSpecies string `json:"mobile_species" yaml:"mobile_species"`

	// Barrier is the activation-energy estimate in eV. Zero when the
	// structure is immobile.
	Barrier float64 `json:"barrier" yaml:"barrier"`

	// Pathway is the minimum-bottleneck percolating route, nil for an
	// immobile framework.
	Pathway *Pathway `json:"-" yaml:"-"`

	// MinEnergy is the global minimum site energy in eV.
	MinEnergy float64 `json:"min_energy" yaml:"min_energy"`

	// MobileSiteCount is the number of mobile-ion sites in the cell.
	MobileSiteCount int `json:"mobile_site_count" yaml:"mobile_site_count"`

	// Immobile marks a framework with no percolating route below the
	// energy ceiling. A legitimate screening outcome.
	Immobile bool `json:"immobile" yaml:"immobile"`

	// Qualified marks a candidate whose barrier clears the screening
	// threshold.
	Qualified bool `json:"qualified" yaml:"qualified"`

	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`
}

// ComputeActivationEnergy runs the full pipeline for one structure:
// grid build, optional perovskite calibration, field evaluation, and
// pathway search. Pure function of its inputs. Per prd002-pathway-search
// R4.1; docs/ARCHITECTURE § BVSE Pipeline.
func ComputeActivationEnergy(s *types.Structure, cfg types.BVSEConfig, table ParamTable) (*Pathway, error) {
	grid, err := BuildGrid(s, cfg.GridSpacing)
	if err != nil {
		return nil, err
	}

	if cfg.PerovskiteCalibration {
		table = CalibrateR0(s, table, cfg.CalibrationTrim)
	}

	eg, err := Evaluate(s, grid, cfg, table)
	if err != nil {
		return nil, err
	}

	starts := startCells(s, grid)
	if len(starts) == 0 {
		return nil, &InvalidStructureError{ID: s.ID, Reason: "no mobile-ion sites in cell"}
	}
	return FindPercolationPath(eg, s.ID, starts, cfg.EnergyCeiling)
}

// Analyze wraps ComputeActivationEnergy with the screening verdict. An
// immobile framework is recorded, not an error; structural and
// parameter errors propagate.
func Analyze(s *types.Structure, cfg types.BVSEConfig, table ParamTable) (*Analysis, error) {
	start := time.Now()
	a := &Analysis{
		ID:              s.ID,
		Formula:         s.Formula,
		MobileSpecies:   s.MobileSpecies,
		MobileSiteCount: len(s.MobileSites()),
	}

	path, err := ComputeActivationEnergy(s, cfg, table)
	a.Elapsed = time.Since(start)

	var noPath *NoPercolatingPathError
	switch {
	case errors.As(err, &noPath):
		a.Immobile = true
		return a, nil
	case err != nil:
		return nil, err
	}

	a.Pathway = path
	a.Barrier = path.Barrier
	a.MinEnergy = path.Bottleneck - path.Barrier
	a.Qualified = path.Barrier <= qualifyingBarrier
	return a, nil
}

// startCells maps each mobile-ion site to its nearest grid cell,
// deduplicated, preserving atom-list order.
func startCells(s *types.Structure, grid Grid) [][3]int {
	seen := map[int]bool{}
	var cells [][3]int
	for _, frac := range s.MobileSites() {
		i, j, k := grid.Nearest(frac)
		idx := grid.Index(i, j, k)
		if seen[idx] {
			continue
		}
		seen[idx] = true
		cells = append(cells, [3]int{i, j, k})
	}
	return cells
}
