// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "math"

// Site is one atom in the space-group-expanded atom list of a unit cell.
type Site struct {
	// Element is the chemical symbol (e.g. "Li", "O", "Zr").
	Element string `json:"element" yaml:"element"`

	// Oxidation is the formal oxidation state in electron units
	// (e.g. +1 for Li, -2 for O).
	Oxidation int `json:"oxidation" yaml:"oxidation"`

	// Frac holds the fractional coordinates in [0, 1).
	Frac [3]float64 `json:"frac" yaml:"frac,flow"`
}

// Structure is an immutable description of a crystal unit cell: lattice
// vectors, the expanded atom list, and the declared mobile species.
// Per prd001-bvse-field R1.1. Core components treat it as read-only.
type Structure struct {
	// ID identifies the material (e.g. an "mp-..." accession or a slug).
	ID string `json:"id" yaml:"id"`

	// Formula is the reduced chemical formula (e.g. "Li7La3Zr2O12").
	Formula string `json:"formula" yaml:"formula"`

	// Lattice holds the three lattice vectors as rows, in Angstrom.
	Lattice [3][3]float64 `json:"lattice" yaml:"lattice,flow"`

	// Sites is the full expanded atom list.
	Sites []Site `json:"sites" yaml:"sites"`

	// MobileSpecies is the conducting ion (e.g. "Li"). Sites of this
	// element are treated as mobile; all other sites form the framework.
	MobileSpecies string `json:"mobile_species" yaml:"mobile_species"`
}

// Volume returns the unit-cell volume in cubic Angstrom (the absolute
// value of the lattice determinant).
func (s *Structure) Volume() float64 {
	a, b, c := s.Lattice[0], s.Lattice[1], s.Lattice[2]
	det := a[0]*(b[1]*c[2]-b[2]*c[1]) -
		a[1]*(b[0]*c[2]-b[2]*c[0]) +
		a[2]*(b[0]*c[1]-b[1]*c[0])
	return math.Abs(det)
}

// CellLengths returns the lengths of the three lattice vectors in Angstrom.
func (s *Structure) CellLengths() [3]float64 {
	var l [3]float64
	for i := 0; i < 3; i++ {
		v := s.Lattice[i]
		l[i] = math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	}
	return l
}

// Cartesian converts fractional coordinates to Cartesian Angstrom
// coordinates using the lattice vectors.
func (s *Structure) Cartesian(frac [3]float64) [3]float64 {
	var cart [3]float64
	for i := 0; i < 3; i++ {
		cart[i] = frac[0]*s.Lattice[0][i] + frac[1]*s.Lattice[1][i] + frac[2]*s.Lattice[2][i]
	}
	return cart
}

// MobileSites returns the fractional coordinates of all sites of the
// declared mobile species, in atom-list order.
func (s *Structure) MobileSites() [][3]float64 {
	var out [][3]float64
	for _, site := range s.Sites {
		if site.Element == s.MobileSpecies {
			out = append(out, site.Frac)
		}
	}
	return out
}
