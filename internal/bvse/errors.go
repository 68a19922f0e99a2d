// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package bvse

import "fmt"

// InvalidStructureError reports a structure the pipeline cannot use:
// zero-volume lattice, no declared mobile species, or a site missing
// its oxidation state. Fatal for that candidate only.
// Per prd001-bvse-field R1.3.
type InvalidStructureError struct {
	ID     string
	Reason string
}

func (e *InvalidStructureError) Error() string {
	return fmt.Sprintf("invalid structure %s: %s", e.ID, e.Reason)
}

// MissingParameterError reports a species pair absent from the
// bond-valence table. It must propagate: silently defaulting would
// corrupt the whole energy landscape. Per prd001-bvse-field R2.4.
type MissingParameterError struct {
	Pair string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("no bond-valence parameters for pair %s", e.Pair)
}

// NoPercolatingPathError reports that no route below the energy ceiling
// connects a mobile site to its periodic image. This is a legitimate
// screening outcome (an immobile framework), not a bug.
type NoPercolatingPathError struct {
	ID      string
	Ceiling float64
}

func (e *NoPercolatingPathError) Error() string {
	return fmt.Sprintf("structure %s: no percolating path below %.3f eV", e.ID, e.Ceiling)
}
