// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package features derives the surrogate's descriptor vector from a
// material's chemical composition: radius and electronegativity
// statistics, perovskite tolerance factor, and site occupancy counts.
// Implements: prd003-surrogate (R2);
//
//	docs/ARCHITECTURE § Descriptors.
package features

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
)

// elementProps holds the per-element constants the descriptors need.
type elementProps struct {
	radius            float64 // atomic radius, Angstrom
	electronegativity float64 // Pauling scale
	valence           int
}

var elementTable = map[string]elementProps{
	"Li": {radius: 1.52, electronegativity: 0.98, valence: 1},
	"Na": {radius: 1.86, electronegativity: 0.93, valence: 1},
	"K":  {radius: 2.27, electronegativity: 0.82, valence: 1},
	"La": {radius: 1.87, electronegativity: 1.10, valence: 3},
	"Sr": {radius: 2.15, electronegativity: 0.95, valence: 2},
	"Ba": {radius: 2.22, electronegativity: 0.89, valence: 2},
	"Ca": {radius: 1.97, electronegativity: 1.00, valence: 2},
	"Ti": {radius: 1.47, electronegativity: 1.54, valence: 4},
	"Zr": {radius: 1.60, electronegativity: 1.33, valence: 4},
	"Nb": {radius: 1.46, electronegativity: 1.60, valence: 5},
	"Ta": {radius: 1.46, electronegativity: 1.50, valence: 5},
	"Sn": {radius: 1.40, electronegativity: 1.96, valence: 4},
	"Ge": {radius: 1.22, electronegativity: 2.01, valence: 4},
	"O":  {radius: 0.66, electronegativity: 3.44, valence: -2},
	"F":  {radius: 0.57, electronegativity: 3.98, valence: -1},
}

// aSiteElements and bSiteElements partition perovskite ABO3 occupants
// for the site-count descriptors.
var (
	aSiteElements = []string{"Li", "Na", "K", "La", "Sr", "Ba", "Ca"}
	bSiteElements = []string{"Ti", "Zr", "Nb", "Ta", "Sn", "Ge"}
)

var formulaPattern = regexp.MustCompile(`([A-Z][a-z]?)(\d*)`)

// ParseFormula decomposes a reduced formula like "Li7La3Zr2O12" into
// element counts. Unknown or empty formulas are an error.
func ParseFormula(formula string) (map[string]int, error) {
	if formula == "" {
		return nil, fmt.Errorf("empty formula")
	}

	composition := map[string]int{}
	consumed := 0
	for _, m := range formulaPattern.FindAllStringSubmatch(formula, -1) {
		if m[0] == "" {
			continue
		}
		count := 1
		if m[2] != "" {
			var err error
			count, err = strconv.Atoi(m[2])
			if err != nil || count == 0 {
				return nil, fmt.Errorf("formula %q: bad count %q", formula, m[2])
			}
		}
		composition[m[1]] += count
		consumed += len(m[0])
	}
	if consumed != len(formula) || len(composition) == 0 {
		return nil, fmt.Errorf("formula %q: unparseable", formula)
	}
	return composition, nil
}

// Names lists the descriptor vector components in order. The surrogate
// trains and predicts against this fixed layout.
func Names() []string {
	return []string{
		"avg_atomic_radius",
		"avg_electronegativity",
		"electronegativity_variance",
		"tolerance_factor",
		"a_site_count",
		"b_site_count",
		"anion_count",
		"total_atoms",
		"mobile_concentration",
	}
}

// Descriptors computes the fixed-layout feature vector for a formula.
// Elements absent from the property table contribute only to the atom
// count; the vector stays comparable across chemistries.
func Descriptors(formula, mobileSpecies string) ([]float64, error) {
	composition, err := ParseFormula(formula)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, n := range composition {
		total += n
	}

	// Sorted element order keeps the float accumulation, and therefore
	// the vector, bit-identical across runs.
	elems := make([]string, 0, len(composition))
	for elem := range composition {
		elems = append(elems, elem)
	}
	sort.Strings(elems)

	var radiusSum, enSum float64
	var known int
	for _, elem := range elems {
		p, ok := elementTable[elem]
		if !ok {
			continue
		}
		n := composition[elem]
		radiusSum += p.radius * float64(n)
		enSum += p.electronegativity * float64(n)
		known += n
	}
	if known == 0 {
		return nil, fmt.Errorf("formula %q: no known elements", formula)
	}
	avgRadius := radiusSum / float64(known)
	avgEN := enSum / float64(known)

	var enVar float64
	for _, elem := range elems {
		p, ok := elementTable[elem]
		if !ok {
			continue
		}
		d := p.electronegativity - avgEN
		enVar += d * d * float64(composition[elem])
	}
	enVar /= float64(known)

	aCount := siteCount(composition, aSiteElements)
	bCount := siteCount(composition, bSiteElements)
	anions := composition["O"] + composition["F"]

	// Goldschmidt tolerance factor for ABO3-like hosts; neutral 1.0 when
	// there is no anion sublattice to measure against.
	tolerance := 1.0
	if composition["O"] > 0 {
		rO := elementTable["O"].radius
		rB := 1.5
		tolerance = (avgRadius + rO) / (math.Sqrt2 * (rB + rO))
	}

	return []float64{
		avgRadius,
		avgEN,
		enVar,
		tolerance,
		float64(aCount),
		float64(bCount),
		float64(anions),
		float64(total),
		float64(composition[mobileSpecies]) / float64(total),
	}, nil
}

func siteCount(composition map[string]int, elems []string) int {
	n := 0
	for _, e := range elems {
		n += composition[e]
	}
	return n
}
