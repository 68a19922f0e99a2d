// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/ionscreen/internal/pool"
	"github.com/pdiddy/ionscreen/pkg/types"
)

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Inspect and export the candidate pool",
	Long: `Pool manages the persistent candidate pool built by screen and
mutated by the active-learning loop. Use subcommands to list candidates,
show one in full, or export the pool.`,
}

// --- list subcommand ---

var poolListCmd = &cobra.Command{
	Use:   "list",
	Short: "List candidates and their belief state",
	RunE:  runPoolList,
}

func runPoolList(cmd *cobra.Command, args []string) error {
	p, closeStore, err := openPool(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	candidates := p.Snapshot()
	if stateFilter, _ := cmd.Flags().GetString("state"); stateFilter != "" {
		filtered := candidates[:0]
		for _, c := range candidates {
			if string(c.State) == stateFilter {
				filtered = append(filtered, c)
			}
		}
		candidates = filtered
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(candidates)
	}

	if len(candidates) == 0 {
		fmt.Println("No candidates found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-20s  %-24s  %-10s  %-8s  %-8s  %s\n",
		"ID", "State", "Barrier", "Sigma", "Evidence", "Formula")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 90))

	for _, c := range candidates {
		barrier, sigma := "-", "-"
		if b, ok := c.Beliefs[types.PropActivationEnergy]; ok {
			barrier = fmt.Sprintf("%.3f", b.Estimate)
			sigma = fmt.Sprintf("%.3f", b.Sigma)
		}
		id := c.ID
		if len(id) > 20 {
			id = id[:17] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-20s  %-24s  %-10s  %-8s  %-8d  %s\n",
			id, c.State, barrier, sigma, c.EvidenceCount, c.Formula)
	}

	fmt.Fprintf(os.Stdout, "\n%d candidates\n", len(candidates))
	return nil
}

// --- show subcommand ---

var poolShowCmd = &cobra.Command{
	Use:   "show <candidate-id>",
	Short: "Show one candidate's full belief record",
	Args:  cobra.ExactArgs(1),
	RunE:  runPoolShow,
}

func runPoolShow(cmd *cobra.Command, args []string) error {
	p, closeStore, err := openPool(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	c, ok := p.Get(args[0])
	if !ok {
		return fmt.Errorf("candidate %s not found", args[0])
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}

// --- export subcommand ---

var poolExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the candidate pool to YAML or JSON",
	Long: `Export writes the full pool to pool/index/pool.yaml or pool.json.
The export preserves belief provenance and exclusion reasons so a run
can be audited offline.`,
	RunE: runPoolExport,
}

func runPoolExport(cmd *cobra.Command, args []string) error {
	poolDir, _ := cmd.Flags().GetString("pool-dir")
	store, err := pool.NewStore(types.PoolConfig{Dir: poolDir})
	if err != nil {
		return err
	}
	defer store.Close()

	p, err := store.Load(context.Background())
	if err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "yaml", "":
		if err := store.ExportYAML(p); err != nil {
			return err
		}
		fmt.Printf("Exported to %s/index/pool.yaml\n", poolDir)
	case "json":
		if err := store.ExportJSON(p); err != nil {
			return err
		}
		fmt.Printf("Exported to %s/index/pool.json\n", poolDir)
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}

	return nil
}

// --- shared helpers ---

func openPool(cmd *cobra.Command) (*pool.Pool, func(), error) {
	poolDir, _ := cmd.Flags().GetString("pool-dir")
	store, err := pool.NewStore(types.PoolConfig{Dir: poolDir})
	if err != nil {
		return nil, nil, err
	}
	p, err := store.Load(context.Background())
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return p, func() { store.Close() }, nil
}

func init() {
	// Shared flags on the parent command, inherited by subcommands.
	poolCmd.PersistentFlags().String("pool-dir", "pool", "base directory for pool state (contains index/)")

	// List flags.
	poolListCmd.Flags().String("state", "", "filter by state: unscored, surrogate-scored, queued-for-ground-truth, ground-truth-confirmed, ground-truth-failed, excluded")
	poolListCmd.Flags().Bool("json", false, "output candidates as JSON")

	// Export flags.
	poolExportCmd.Flags().String("format", "yaml", "export format: yaml or json")

	// Wire subcommands.
	poolCmd.AddCommand(poolListCmd)
	poolCmd.AddCommand(poolShowCmd)
	poolCmd.AddCommand(poolExportCmd)

	rootCmd.AddCommand(poolCmd)
}
