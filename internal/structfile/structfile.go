// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package structfile reads and writes crystal-structure YAML files.
// A structure file holds one or more unit cells in the expanded-site
// representation; the screening pipeline treats it as its sole input
// format. Implements: prd001-bvse-field R1.2.
package structfile

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/ionscreen/pkg/types"
)

// File is the on-disk representation of a set of candidate structures.
type File struct {
	Structures []*types.Structure `yaml:"structures"`
}

// Read loads a structure file from disk and validates each entry.
func Read(path string) ([]*types.Structure, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading structure file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing structure file: %w", err)
	}

	// A file may also hold a single bare structure at the top level.
	if len(f.Structures) == 0 {
		var single types.Structure
		if err := yaml.Unmarshal(data, &single); err == nil && single.ID != "" {
			f.Structures = []*types.Structure{&single}
		}
	}

	if len(f.Structures) == 0 {
		return nil, fmt.Errorf("structure file %s holds no structures", path)
	}

	seen := make(map[string]bool, len(f.Structures))
	for i, s := range f.Structures {
		if err := validate(s); err != nil {
			return nil, fmt.Errorf("structure %d in %s: %w", i, path, err)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("structure file %s: duplicate ID %s", path, s.ID)
		}
		seen[s.ID] = true
	}
	return f.Structures, nil
}

func validate(s *types.Structure) error {
	if s.ID == "" {
		return fmt.Errorf("missing id")
	}
	if s.MobileSpecies == "" {
		return fmt.Errorf("%s: missing mobile_species", s.ID)
	}
	if len(s.Sites) == 0 {
		return fmt.Errorf("%s: empty site list", s.ID)
	}
	for i, site := range s.Sites {
		// A site without an oxidation state cannot be classified as
		// cation or anion, which would let it slip past the
		// bond-valence parameter check downstream.
		if site.Oxidation == 0 {
			return fmt.Errorf("%s: site %d (%s): missing oxidation state", s.ID, i, site.Element)
		}
	}
	return nil
}

// Report is the on-disk summary of a batch screening run.
type Report struct {
	Generated time.Time        `yaml:"generated"`
	Config    types.BVSEConfig `yaml:"config"`
	Results   []ReportEntry    `yaml:"results"`
	Summary   ReportSummary    `yaml:"summary"`
}

// ReportEntry is one structure's screening outcome.
type ReportEntry struct {
	ID        string  `yaml:"id"`
	Formula   string  `yaml:"formula,omitempty"`
	Barrier   float64 `yaml:"barrier"`
	Immobile  bool    `yaml:"immobile"`
	Qualified bool    `yaml:"qualified"`
	Error     string  `yaml:"error,omitempty"`
}

// ReportSummary stores batch counts for the report footer.
type ReportSummary struct {
	Analyzed  int `yaml:"analyzed"`
	Qualified int `yaml:"qualified"`
	Immobile  int `yaml:"immobile"`
	Failed    int `yaml:"failed"`
}

// WriteReport saves a screening report to a YAML file.
func WriteReport(path string, report *Report) error {
	report.Generated = time.Now()
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
