// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package bvse

import (
	"fmt"
	"math"
	"sort"

	"github.com/pdiddy/ionscreen/pkg/types"
)

const (
	// coulombK is e^2/(4*pi*eps0) in eV*Angstrom.
	coulombK = 14.3996

	// screeningLength damps the cation-cation repulsion, in Angstrom.
	screeningLength = 1.0

	// minPairDistance clamps pathological near-zero separations.
	minPairDistance = 1e-3
)

// ionImage is one periodic image of a framework ion, precomputed in
// Cartesian coordinates.
type ionImage struct {
	cart   [3]float64
	params BondParams // mobile-anion pair, anion images only
	charge float64    // formal charge, cation images only
}

// Evaluate computes the bond-valence mismatch energy at every grid
// point: the squared deviation of the bond-valence sum over anion
// neighbors from the mobile ion's ideal valence, plus a screened
// Coulomb repulsion from framework cations. Cells above the saturation
// bound are marked blocked. Re-running on identical input yields
// bit-identical energies. Per prd001-bvse-field R2.1-R2.5.
func Evaluate(s *types.Structure, grid Grid, cfg types.BVSEConfig, table ParamTable) (*EnergyGrid, error) {
	if err := validatePairCoverage(s, table); err != nil {
		return nil, err
	}

	mobileQ := mobileValence(s)
	anions, cations := frameworkImages(s, cfg.Cutoff, table)

	cutoff2 := cfg.Cutoff * cfg.Cutoff
	eg := &EnergyGrid{
		Grid:     grid,
		Energies: make([]float64, grid.Len()),
		Blocked:  make([]bool, grid.Len()),
	}

	minE := math.Inf(1)
	for i := 0; i < grid.Nx; i++ {
		for j := 0; j < grid.Ny; j++ {
			for k := 0; k < grid.Nz; k++ {
				cart := s.Cartesian(grid.Frac(i, j, k))

				var bvSum, repulsion float64
				for _, a := range anions {
					r2 := dist2(cart, a.cart)
					if r2 > cutoff2 {
						continue
					}
					r := math.Max(math.Sqrt(r2), minPairDistance)
					bvSum += math.Exp((a.params.R0 - r) / a.params.B)
				}
				for _, c := range cations {
					r2 := dist2(cart, c.cart)
					if r2 > cutoff2 {
						continue
					}
					r := math.Max(math.Sqrt(r2), minPairDistance)
					repulsion += coulombK * mobileQ * c.charge / r * math.Exp(-r/screeningLength)
				}

				mismatch := bvSum - mobileQ
				energy := mismatch*mismatch + repulsion

				idx := grid.Index(i, j, k)
				if energy > cfg.SaturationBound {
					eg.Blocked[idx] = true
					energy = cfg.SaturationBound
				}
				eg.Energies[idx] = energy
				if !eg.Blocked[idx] && energy < minE {
					minE = energy
				}
			}
		}
	}

	if math.IsInf(minE, 1) {
		minE = cfg.SaturationBound
	}
	eg.Min = minE
	return eg, nil
}

// validatePairCoverage checks that every (cation, anion) species pair
// in the structure has tabulated parameters, in sorted order so the
// first missing pair reported is deterministic. A site with no
// oxidation state is rejected outright: it belongs to neither set, and
// an unclassified anion would silently read zero-value parameters.
func validatePairCoverage(s *types.Structure, table ParamTable) error {
	cationSet := map[string]bool{}
	anionSet := map[string]bool{}
	for _, site := range s.Sites {
		switch {
		case site.Oxidation > 0:
			cationSet[site.Element] = true
		case site.Oxidation < 0:
			anionSet[site.Element] = true
		default:
			return &InvalidStructureError{
				ID:     s.ID,
				Reason: fmt.Sprintf("site %s has no oxidation state", site.Element),
			}
		}
	}

	cations := sortedKeys(cationSet)
	anions := sortedKeys(anionSet)
	for _, c := range cations {
		for _, a := range anions {
			key := PairKey(c, a)
			if _, ok := table[key]; !ok {
				return &MissingParameterError{Pair: key}
			}
		}
	}
	return nil
}

// mobileValence returns the ideal bond-valence sum for the mobile ion:
// the absolute formal charge of its sites, defaulting to +1.
func mobileValence(s *types.Structure) float64 {
	for _, site := range s.Sites {
		if site.Element == s.MobileSpecies && site.Oxidation != 0 {
			return math.Abs(float64(site.Oxidation))
		}
	}
	return 1.0
}

// frameworkImages expands every framework site over the periodic images
// reachable within the cutoff. Mobile sites are excluded: the landscape
// describes a single probe ion against the rigid framework.
func frameworkImages(s *types.Structure, cutoff float64, table ParamTable) (anions, cations []ionImage) {
	lengths := s.CellLengths()
	var shells [3]int
	for d := 0; d < 3; d++ {
		shells[d] = int(math.Ceil(cutoff / lengths[d]))
	}

	for _, site := range s.Sites {
		if site.Element == s.MobileSpecies {
			continue
		}
		for si := -shells[0]; si <= shells[0]+1; si++ {
			for sj := -shells[1]; sj <= shells[1]+1; sj++ {
				for sk := -shells[2]; sk <= shells[2]+1; sk++ {
					frac := [3]float64{
						site.Frac[0] + float64(si),
						site.Frac[1] + float64(sj),
						site.Frac[2] + float64(sk),
					}
					img := ionImage{cart: s.Cartesian(frac)}
					if site.Oxidation < 0 {
						img.params = table[PairKey(s.MobileSpecies, site.Element)]
						anions = append(anions, img)
					} else {
						img.charge = float64(site.Oxidation)
						cations = append(cations, img)
					}
				}
			}
		}
	}
	return anions, cations
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func dist2(a, b [3]float64) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return dx*dx + dy*dy + dz*dz
}
