// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/ionscreen/internal/bvse"
	"github.com/pdiddy/ionscreen/internal/structfile"
	"github.com/pdiddy/ionscreen/pkg/types"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <structure-file>",
	Short: "Estimate the migration barrier for one structure",
	Long: `Analyze runs the bond-valence pipeline for a single structure: it
builds the site grid, evaluates the mismatch field, and searches for the
minimum-bottleneck percolating pathway. The barrier estimate and pathway
bottleneck are printed to stdout.

When the file holds several structures, --id selects one; otherwise the
first entry is analyzed.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	addBVSEFlags(analyzeCmd)
	analyzeCmd.Flags().String("id", "", "structure ID to analyze (default: first in file)")
	analyzeCmd.Flags().Bool("json", false, "output the analysis as JSON")

	rootCmd.AddCommand(analyzeCmd)
}

// addBVSEFlags registers the bond-valence tuning flags shared by the
// analyze, screen, and run commands.
func addBVSEFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("grid-spacing", 0.1, "grid sample spacing in Angstrom")
	cmd.Flags().Float64("cutoff", 5.0, "neighbor cutoff radius in Angstrom")
	cmd.Flags().Float64("ceiling", 3.0, "maximum passable site energy in eV")
	cmd.Flags().Float64("saturation", 10.0, "site energy above which cells are blocked, in eV")
	cmd.Flags().String("params", "", "YAML file overriding the built-in bond-valence table")
	cmd.Flags().Bool("no-calibration", false, "disable the perovskite R0 calibration")
	cmd.Flags().Float64("calibration-trim", 0.1, "fraction of extreme bond lengths trimmed before the R0 fit")
}

// bvseConfig assembles a BVSEConfig from the shared flags.
func bvseConfig(cmd *cobra.Command) types.BVSEConfig {
	spacing, _ := cmd.Flags().GetFloat64("grid-spacing")
	cutoff, _ := cmd.Flags().GetFloat64("cutoff")
	ceiling, _ := cmd.Flags().GetFloat64("ceiling")
	saturation, _ := cmd.Flags().GetFloat64("saturation")
	params, _ := cmd.Flags().GetString("params")
	noCal, _ := cmd.Flags().GetBool("no-calibration")
	trim, _ := cmd.Flags().GetFloat64("calibration-trim")

	return types.BVSEConfig{
		GridSpacing:           spacing,
		Cutoff:                cutoff,
		EnergyCeiling:         ceiling,
		SaturationBound:       saturation,
		ParamsFile:            params,
		PerovskiteCalibration: !noCal,
		CalibrationTrim:       trim,
	}
}

// paramTable loads the bond-valence table, applying any override file.
func paramTable(cfg types.BVSEConfig) (bvse.ParamTable, error) {
	if cfg.ParamsFile == "" {
		return bvse.DefaultParams(), nil
	}
	return bvse.LoadParams(cfg.ParamsFile)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	structures, err := structfile.Read(args[0])
	if err != nil {
		return err
	}

	id, _ := cmd.Flags().GetString("id")
	target := structures[0]
	if id != "" {
		target = nil
		for _, s := range structures {
			if s.ID == id {
				target = s
				break
			}
		}
		if target == nil {
			return fmt.Errorf("structure %s not found in %s", id, args[0])
		}
	}

	cfg := bvseConfig(cmd)
	table, err := paramTable(cfg)
	if err != nil {
		return err
	}

	a, err := bvse.Analyze(target, cfg, table)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(a)
	}

	fmt.Printf("%s (%s)\n", a.ID, a.Formula)
	if a.Immobile {
		fmt.Printf("  immobile: no percolating pathway below %.2f eV\n", cfg.EnergyCeiling)
		return nil
	}
	fmt.Printf("  barrier:      %.3f eV\n", a.Barrier)
	fmt.Printf("  min energy:   %.3f eV\n", a.MinEnergy)
	fmt.Printf("  mobile sites: %d\n", a.MobileSiteCount)
	if a.Pathway != nil {
		fmt.Printf("  pathway:      axis %d, %d hops, bottleneck %.3f eV\n",
			a.Pathway.Axis, a.Pathway.Hops(), a.Pathway.Bottleneck)
	}
	if a.Qualified {
		fmt.Println("  qualified for ground-truth follow-up")
	}
	return nil
}
