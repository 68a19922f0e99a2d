// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/ionscreen/internal/bvse"
	"github.com/pdiddy/ionscreen/internal/pool"
	"github.com/pdiddy/ionscreen/internal/structfile"
	"github.com/pdiddy/ionscreen/pkg/types"
)

var screenCmd = &cobra.Command{
	Use:   "screen <structure-file>",
	Short: "Screen a batch of structures for ionic conduction",
	Long: `Screen runs the bond-valence pipeline over every structure in the
file on a bounded worker pool. Structure-level failures are reported and
the batch continues. Results are printed in input order and can be saved
as a YAML report.

With --seed-pool, structures that qualify are added to the candidate
pool as unscored candidates carrying their barrier estimate, ready for
the active-learning loop.`,
	Args: cobra.ExactArgs(1),
	RunE: runScreen,
}

func init() {
	addBVSEFlags(screenCmd)
	screenCmd.Flags().Int("workers", 0, "parallel analysis workers (default: number of CPUs)")
	screenCmd.Flags().String("report", "", "write a YAML screening report to this path")
	screenCmd.Flags().Bool("seed-pool", false, "add qualifying structures to the candidate pool")
	screenCmd.Flags().String("pool-dir", "pool", "base directory for pool state (contains index/)")

	rootCmd.AddCommand(screenCmd)
}

func runScreen(cmd *cobra.Command, args []string) error {
	structures, err := structfile.Read(args[0])
	if err != nil {
		return err
	}

	cfg := bvseConfig(cmd)
	cfg.Workers, _ = cmd.Flags().GetInt("workers")
	table, err := paramTable(cfg)
	if err != nil {
		return err
	}

	analyses, failures, summary, err := bvse.AnalyzeBatch(context.Background(), structures, cfg, table, os.Stdout)
	if err != nil {
		return err
	}

	fmt.Printf("\nScreened %d structures: %d qualified, %d immobile, %d failed\n",
		summary.Total(), summary.Qualified, summary.Immobile, summary.Failed)

	if reportPath, _ := cmd.Flags().GetString("report"); reportPath != "" {
		if err := writeScreenReport(reportPath, cfg, analyses, failures, summary); err != nil {
			return err
		}
		fmt.Printf("Report written to %s\n", reportPath)
	}

	if seed, _ := cmd.Flags().GetBool("seed-pool"); seed {
		poolDir, _ := cmd.Flags().GetString("pool-dir")
		added, err := seedPool(cmd.Context(), poolDir, analyses)
		if err != nil {
			return err
		}
		fmt.Printf("Seeded %d candidates into %s\n", added, poolDir)
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d structure(s) failed screening", summary.Failed)
	}
	return nil
}

func writeScreenReport(path string, cfg types.BVSEConfig, analyses []*bvse.Analysis, failures []bvse.BatchFailure, summary bvse.BatchSummary) error {
	report := &structfile.Report{
		Config: cfg,
		Summary: structfile.ReportSummary{
			Analyzed:  summary.Analyzed,
			Qualified: summary.Qualified,
			Immobile:  summary.Immobile,
			Failed:    summary.Failed,
		},
	}
	for _, a := range analyses {
		if a == nil {
			continue
		}
		report.Results = append(report.Results, structfile.ReportEntry{
			ID:        a.ID,
			Formula:   a.Formula,
			Barrier:   a.Barrier,
			Immobile:  a.Immobile,
			Qualified: a.Qualified,
		})
	}
	for _, f := range failures {
		report.Results = append(report.Results, structfile.ReportEntry{
			ID:    f.ID,
			Error: f.Err.Error(),
		})
	}
	return structfile.WriteReport(path, report)
}

// seedPool adds qualifying analyses to the persistent candidate pool.
// Candidates already present are left untouched.
func seedPool(ctx context.Context, poolDir string, analyses []*bvse.Analysis) (int, error) {
	store, err := pool.NewStore(types.PoolConfig{Dir: poolDir})
	if err != nil {
		return 0, err
	}
	defer store.Close()

	p, err := store.Load(ctx)
	if err != nil {
		return 0, err
	}

	added := 0
	for _, a := range analyses {
		if a == nil || !a.Qualified {
			continue
		}
		if _, ok := p.Get(a.ID); ok {
			continue
		}
		c := &types.Candidate{
			ID:            a.ID,
			Formula:       a.Formula,
			MobileSpecies: a.MobileSpecies,
			State:         types.StateUnscored,
			Cost:          types.CostStandard,
			Beliefs: map[types.Property]types.Belief{
				types.PropActivationEnergy: {
					Estimate:   a.Barrier,
					Sigma:      0.05,
					Provenance: types.ProvenanceBVSE,
				},
			},
		}
		if err := p.Add(c); err != nil {
			return added, err
		}
		added++
	}

	if err := store.Save(ctx, p); err != nil {
		return added, err
	}
	return added, nil
}
