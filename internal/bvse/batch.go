// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package bvse

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/ionscreen/pkg/types"
)

// BatchSummary holds counts from a batch screening run.
type BatchSummary struct {
	Analyzed  int
	Qualified int
	Immobile  int
	Failed    int
}

// Total returns the number of structures processed.
func (s BatchSummary) Total() int {
	return s.Analyzed + s.Failed
}

// BatchFailure records a structure the pipeline rejected. Per-candidate
// errors never abort the batch.
type BatchFailure struct {
	ID  string
	Err error
}

// AnalyzeBatch screens structures in parallel on a bounded worker pool.
// Structure-level failures (invalid input, missing parameters) are
// recorded and the batch continues; only context cancellation aborts.
// Output order follows input order regardless of completion order.
func AnalyzeBatch(ctx context.Context, structures []*types.Structure, cfg types.BVSEConfig, table ParamTable, w io.Writer) ([]*Analysis, []BatchFailure, BatchSummary, error) {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]*Analysis, len(structures))
	errs := make([]error, len(structures))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var mu sync.Mutex
	for i, s := range structures {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			a, err := Analyze(s, cfg, table)
			if err != nil {
				errs[i] = err
				mu.Lock()
				fmt.Fprintf(w, "failed   %s: %v\n", s.ID, err)
				mu.Unlock()
				return nil
			}
			results[i] = a

			mu.Lock()
			switch {
			case a.Immobile:
				fmt.Fprintf(w, "immobile %s\n", s.ID)
			case a.Qualified:
				fmt.Fprintf(w, "passed   %s (Ea %.3f eV)\n", s.ID, a.Barrier)
			default:
				fmt.Fprintf(w, "rejected %s (Ea %.3f eV)\n", s.ID, a.Barrier)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, BatchSummary{}, err
	}

	var summary BatchSummary
	var out []*Analysis
	var failures []BatchFailure
	for i := range structures {
		if errs[i] != nil {
			failures = append(failures, BatchFailure{ID: structures[i].ID, Err: errs[i]})
			summary.Failed++
			continue
		}
		a := results[i]
		out = append(out, a)
		summary.Analyzed++
		if a.Immobile {
			summary.Immobile++
		} else if a.Qualified {
			summary.Qualified++
		}
	}

	fmt.Fprintf(w, "\nanalyzed: %d, qualified: %d, immobile: %d, failed: %d\n",
		summary.Analyzed, summary.Qualified, summary.Immobile, summary.Failed)
	return out, failures, summary, nil
}
