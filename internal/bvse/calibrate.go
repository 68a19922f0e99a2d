// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package bvse

import (
	"math"
	"sort"

	"github.com/pdiddy/ionscreen/pkg/types"
)

// firstShellCutoff bounds the coordination shell used for the R0 fit,
// in Angstrom.
const firstShellCutoff = 3.2

// aSiteElements and bSiteElements classify perovskite ABO3 occupants.
var (
	aSiteElements = map[string]bool{"Li": true, "Na": true, "K": true, "La": true, "Sr": true, "Ba": true, "Ca": true}
	bSiteElements = map[string]bool{"Ti": true, "Zr": true, "Nb": true, "Ta": true, "Sn": true, "Ge": true, "Hf": true, "Al": true}
)

// DetectPerovskite reports whether the host lattice is of the ABO3
// family: one A-site cation, one B-site cation, and oxygen in a 1:1:3
// ratio, ignoring the mobile species when it is not the A occupant.
func DetectPerovskite(s *types.Structure) (aElem, bElem string, ok bool) {
	counts := map[string]int{}
	for _, site := range s.Sites {
		counts[site.Element]++
	}

	oxygen := counts["O"]
	if oxygen == 0 {
		return "", "", false
	}

	var aCands, bCands []string
	for elem, n := range counts {
		switch {
		case aSiteElements[elem] && n*3 == oxygen:
			aCands = append(aCands, elem)
		case bSiteElements[elem] && n*3 == oxygen:
			bCands = append(bCands, elem)
		}
	}

	aElem = pickOccupant(aCands, s.MobileSpecies)
	bElem = pickOccupant(bCands, s.MobileSpecies)
	if aElem == "" || bElem == "" {
		return "", "", false
	}
	return aElem, bElem, true
}

// pickOccupant resolves a site's occupant from the candidates. A mobile
// probe doped into the lattice competes with the true framework cation;
// the framework one wins. Two framework candidates are ambiguous.
func pickOccupant(cands []string, mobile string) string {
	switch len(cands) {
	case 1:
		return cands[0]
	case 2:
		if cands[0] == mobile {
			return cands[1]
		}
		if cands[1] == mobile {
			return cands[0]
		}
	}
	return ""
}

// CalibrateR0 adjusts the A-O and B-O parameters of an ABO3 structure
// so the mean bond-valence sum over the observed first coordination
// shells matches the formal valence, reducing the systematic bias of a
// universal R0 constant. The fit is closed-form: for softness B, the
// site valence is exp(R0/B) * sum(exp(-r/B)), so matching the mean
// shell sum S gives R0' = B * ln(V_formal / S). The trim fraction drops
// the extreme bond lengths from each shell before the fit, making it
// robust to split or distorted sites. Returns an adjusted copy of the
// table; the input is never mutated. Per prd001-bvse-field R3.1-R3.3.
func CalibrateR0(s *types.Structure, table ParamTable, trim float64) ParamTable {
	aElem, bElem, ok := DetectPerovskite(s)
	if !ok {
		return table
	}

	out := table.Clone()
	for _, elem := range []string{aElem, bElem} {
		key := PairKey(elem, "O")
		params, found := out[key]
		if !found {
			continue
		}
		formal := formalValence(s, elem)
		if formal <= 0 {
			continue
		}

		meanSum := meanShellSum(s, elem, params.B, trim)
		if meanSum <= 0 {
			continue
		}
		params.R0 = params.B * math.Log(formal/meanSum)
		out[key] = params
	}
	return out
}

// meanShellSum averages sum(exp(-r/B)) over the first-shell X-O bond
// lengths of every X site, after trimming the given fraction of extreme
// lengths from each shell.
func meanShellSum(s *types.Structure, elem string, b, trim float64) float64 {
	var sums []float64
	for _, site := range s.Sites {
		if site.Element != elem {
			continue
		}
		lengths := shellBondLengths(s, site.Frac)
		lengths = trimLengths(lengths, trim)
		if len(lengths) == 0 {
			continue
		}
		var sum float64
		for _, r := range lengths {
			sum += math.Exp(-r / b)
		}
		sums = append(sums, sum)
	}
	if len(sums) == 0 {
		return 0
	}
	var total float64
	for _, v := range sums {
		total += v
	}
	return total / float64(len(sums))
}

// shellBondLengths collects X-O distances over every periodic image
// within the first-shell cutoff, sorted ascending. Coordination shells
// straddle the cell boundary, so each oxygen site can contribute
// several bonds; keeping only its nearest image would undercount the
// shell and bias the fitted R0 low.
func shellBondLengths(s *types.Structure, from [3]float64) []float64 {
	cell := s.CellLengths()
	var shells [3]int
	for d := 0; d < 3; d++ {
		shells[d] = int(math.Ceil(firstShellCutoff / cell[d]))
	}
	origin := s.Cartesian(from)

	var lengths []float64
	for _, site := range s.Sites {
		if site.Element != "O" {
			continue
		}
		for si := -shells[0]; si <= shells[0]+1; si++ {
			for sj := -shells[1]; sj <= shells[1]+1; sj++ {
				for sk := -shells[2]; sk <= shells[2]+1; sk++ {
					img := [3]float64{
						site.Frac[0] + float64(si),
						site.Frac[1] + float64(sj),
						site.Frac[2] + float64(sk),
					}
					r := math.Sqrt(dist2(origin, s.Cartesian(img)))
					if r > 0 && r <= firstShellCutoff {
						lengths = append(lengths, r)
					}
				}
			}
		}
	}
	sort.Float64s(lengths)
	return lengths
}

func trimLengths(lengths []float64, trim float64) []float64 {
	if trim <= 0 || len(lengths) < 3 {
		return lengths
	}
	drop := int(float64(len(lengths)) * trim)
	if drop*2 >= len(lengths) {
		return lengths
	}
	return lengths[drop : len(lengths)-drop]
}

func formalValence(s *types.Structure, elem string) float64 {
	for _, site := range s.Sites {
		if site.Element == elem && site.Oxidation > 0 {
			return float64(site.Oxidation)
		}
	}
	return 0
}
