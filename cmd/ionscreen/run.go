// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/ionscreen/internal/pool"
	"github.com/pdiddy/ionscreen/internal/scheduler"
	"github.com/pdiddy/ionscreen/internal/structfile"
	"github.com/pdiddy/ionscreen/internal/surrogate"
	"github.com/pdiddy/ionscreen/pkg/types"
)

const defaultHTTPTimeout = 60 * time.Second

var runCmd = &cobra.Command{
	Use:   "run <structure-file>",
	Short: "Run the active-learning screening loop",
	Long: `Run drives the active-learning loop over the candidate pool: score
candidates with the surrogate, dispatch the most informative batch to
ground truth, fold results back, and retrain. The loop stops at the
cycle budget, on convergence, or when the pool is exhausted.

Ground truth is the remote DFT/MD job service when --base-url (or the
jobservice-api-key secret plus a configured endpoint) is set; otherwise
jobs are routed through the local bond-valence estimator using the
structures in the file.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	addBVSEFlags(runCmd)
	runCmd.Flags().String("pool-dir", "pool", "base directory for pool state (contains index/)")
	runCmd.Flags().Int("batch-size", 0, "candidates dispatched per cycle (default 4)")
	runCmd.Flags().Int("cycles", 0, "maximum active-learning cycles (default 10)")
	runCmd.Flags().Int("max-retries", 0, "ground-truth retries before exclusion (default 2)")
	runCmd.Flags().Duration("job-budget", 0, "wall-clock budget per ground-truth job (default 30m)")
	runCmd.Flags().Float64("beta", 0, "uncertainty weight in the acquisition score (default 2.0)")
	runCmd.Flags().Float64("min-gain", 0, "acquisition threshold for early termination (default 1e-3)")
	runCmd.Flags().String("model", "forest", "surrogate model family: forest or neural")
	runCmd.Flags().Int("ensemble-size", 0, "surrogate ensemble members (default 20 trees or 5 networks)")
	runCmd.Flags().Int64("seed", 1, "surrogate training seed")
	runCmd.Flags().String("base-url", "", "ground-truth job service endpoint (empty: local estimator)")
	runCmd.Flags().String("api-key", "", "job service API key (default: jobservice-api-key secret)")
	runCmd.Flags().Duration("poll-interval", 0, "delay between job service polls (default 10s)")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	poolDir, _ := cmd.Flags().GetString("pool-dir")
	store, err := pool.NewStore(types.PoolConfig{Dir: poolDir})
	if err != nil {
		return err
	}
	defer store.Close()

	p, err := store.Load(ctx)
	if err != nil {
		return err
	}
	if p.Len() == 0 {
		return fmt.Errorf("candidate pool in %s is empty: run screen --seed-pool first", poolDir)
	}

	model := surrogate.NewMultiTask(surrogateConfigFromFlags(cmd))

	evaluator, err := groundTruthFromFlags(cmd, args[0])
	if err != nil {
		return err
	}

	sched := scheduler.New(schedulerConfigFromFlags(cmd), model, evaluator, os.Stdout)

	reports, runErr := sched.Run(ctx, p)

	// Persist whatever the loop accomplished, even on a failed cycle.
	if err := store.Save(ctx, p); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}

	confirmed := 0
	for _, r := range reports {
		confirmed += r.Confirmed
	}
	fmt.Printf("\nCompleted %d cycle(s): %d candidates confirmed\n", len(reports), confirmed)
	if n := len(reports); n > 0 {
		last := reports[n-1]
		switch {
		case last.Converged:
			fmt.Println("Stopped: converged (no candidate clears the acquisition threshold)")
		case last.Exhausted:
			fmt.Println("Stopped: pool exhausted")
		default:
			fmt.Println("Stopped: cycle budget reached")
		}
	}
	return nil
}

func schedulerConfigFromFlags(cmd *cobra.Command) types.SchedulerConfig {
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	cycles, _ := cmd.Flags().GetInt("cycles")
	maxRetries, _ := cmd.Flags().GetInt("max-retries")
	jobBudget, _ := cmd.Flags().GetDuration("job-budget")
	beta, _ := cmd.Flags().GetFloat64("beta")
	minGain, _ := cmd.Flags().GetFloat64("min-gain")

	return types.SchedulerConfig{
		BatchSize:  batchSize,
		MaxCycles:  cycles,
		MaxRetries: maxRetries,
		JobBudget:  jobBudget,
		Beta:       beta,
		MinGain:    minGain,
	}
}

func surrogateConfigFromFlags(cmd *cobra.Command) types.SurrogateConfig {
	kind, _ := cmd.Flags().GetString("model")
	ensembleSize, _ := cmd.Flags().GetInt("ensemble-size")
	seed, _ := cmd.Flags().GetInt64("seed")

	return types.SurrogateConfig{
		Kind:         types.SurrogateKind(kind),
		EnsembleSize: ensembleSize,
		Seed:         seed,
	}
}

// groundTruthFromFlags selects the ground-truth collaborator: the remote
// job service when an endpoint is configured, the local bond-valence
// estimator otherwise.
func groundTruthFromFlags(cmd *cobra.Command, structPath string) (scheduler.GroundTruthEvaluator, error) {
	baseURL, _ := cmd.Flags().GetString("base-url")
	if baseURL != "" {
		apiKey, _ := cmd.Flags().GetString("api-key")
		pollInterval, _ := cmd.Flags().GetDuration("poll-interval")
		return scheduler.NewRemoteEvaluator(types.GroundTruthConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   defaultHTTPTimeout,
				UserAgent: "ionscreen/" + version,
			},
			BaseURL:      baseURL,
			APIKey:       secretDefault("jobservice-api-key", apiKey),
			PollInterval: pollInterval,
		})
	}

	structures, err := structfile.Read(structPath)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*types.Structure, len(structures))
	for _, s := range structures {
		byID[s.ID] = s
	}

	cfg := bvseConfig(cmd)
	table, err := paramTable(cfg)
	if err != nil {
		return nil, err
	}
	return &scheduler.BVSEEvaluator{Structures: byID, Cfg: cfg, Table: table}, nil
}
