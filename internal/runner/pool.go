package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/averros/ecoscen/internal/engine"
	"github.com/averros/ecoscen/internal/results"
	"github.com/averros/ecoscen/internal/scenario"
	"github.com/averros/ecoscen/internal/telemetry"
)

// PoolConfig configures a batch execution across one or more workers.
type PoolConfig struct {
	// Factory opens engine handles.
	Factory engine.Factory
	// ModelPath is the source model file. With more than one worker,
	// each worker opens a private copy.
	ModelPath string
	// Workers is the number of concurrent engine handles. Values below
	// one run the batch on a single handle; the count is capped at the
	// batch size.
	Workers int
	// WorkDir receives the per-worker model copies. Every copy is
	// removed when its worker finishes. Empty means a temporary
	// directory that is removed when the batch finishes.
	WorkDir string
	// Exec is the per-executor configuration.
	Exec Config
}

// workerReport carries one worker's outcome back to the merger.
type workerReport struct {
	worker  int
	set     *results.Set
	rowErrs []*RowError
	err     error
}

// RunBatch executes every row of the batch and returns the merged
// result set in the batch's original row order, plus the per-row
// failures. Each worker gets a contiguous partition of the batch and a
// private copy of the model file, deleted when the worker finishes.
// Worker-level errors (a handle that cannot open, a model that cannot
// be copied) abort the batch; row failures do not. On an aborted batch
// the rows completed before the abort are still returned, unordered,
// alongside the error.
func RunBatch(ctx context.Context, cfg PoolConfig, batch *scenario.Batch) (*results.Set, []*RowError, error) {
	start := time.Now()
	log := cfg.Exec.logger()

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > batch.Len() {
		workers = batch.Len()
	}
	if batch.Len() == 0 {
		return results.NewSet(cfg.Exec.Variables), nil, nil
	}

	if workers == 1 {
		set, rowErrs, err := runPartition(ctx, cfg, cfg.ModelPath, batch)
		if err != nil {
			return set, rowErrs, err
		}
		if err := orderSet(set, batch, rowErrs); err != nil {
			return nil, nil, err
		}
		telemetry.BatchFinished(time.Since(start).Seconds())
		return set, rowErrs, nil
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		dir, err := os.MkdirTemp("", "ecoscen-models-")
		if err != nil {
			return nil, nil, fmt.Errorf("create model copy dir: %w", err)
		}
		defer os.RemoveAll(dir)
		workDir = dir
	}

	parts := batch.Partition(workers)
	log.Info("executing batch",
		"scenarios", batch.Len(), "workers", len(parts), "model", cfg.ModelPath)

	reports := make(chan workerReport, len(parts))
	var wg sync.WaitGroup
	for i, part := range parts {
		modelCopy, err := copyModel(cfg.ModelPath, workDir, i)
		if err != nil {
			// Workers already started keep running; their reports are
			// drained below.
			reports <- workerReport{worker: i, err: err}
			break
		}
		wg.Add(1)
		go func(worker int, part *scenario.Batch, modelPath string) {
			defer wg.Done()
			defer os.Remove(modelPath)
			telemetry.WorkerStarted()
			defer telemetry.WorkerStopped()
			set, rowErrs, err := runPartition(ctx, cfg, modelPath, part)
			reports <- workerReport{worker: worker, set: set, rowErrs: rowErrs, err: err}
		}(i, part, modelCopy)
	}
	wg.Wait()
	close(reports)

	collected := make([]workerReport, 0, len(parts))
	for rep := range reports {
		collected = append(collected, rep)
	}
	sort.Slice(collected, func(i, j int) bool { return collected[i].worker < collected[j].worker })

	merged := results.NewSet(cfg.Exec.Variables)
	var rowErrs []*RowError
	var errs []error
	for _, rep := range collected {
		if rep.err != nil {
			errs = append(errs, fmt.Errorf("worker %d: %w", rep.worker, rep.err))
			continue
		}
		if err := merged.Merge(rep.set); err != nil {
			errs = append(errs, fmt.Errorf("worker %d: %w", rep.worker, err))
			continue
		}
		rowErrs = append(rowErrs, rep.rowErrs...)
	}
	if len(errs) > 0 {
		return merged, rowErrs, errors.Join(errs...)
	}

	if err := orderSet(merged, batch, rowErrs); err != nil {
		return nil, nil, err
	}
	telemetry.BatchFinished(time.Since(start).Seconds())
	log.Info("batch finished",
		"scenarios", batch.Len(), "failed", len(rowErrs),
		"duration", time.Since(start))
	return merged, rowErrs, nil
}

func runPartition(ctx context.Context, cfg PoolConfig, modelPath string, part *scenario.Batch) (*results.Set, []*RowError, error) {
	eng, err := cfg.Factory.Open(ctx, modelPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open engine for %s: %w", modelPath, err)
	}
	exec, err := NewExecutor(eng, cfg.Exec)
	if err != nil {
		eng.Close()
		return nil, nil, err
	}
	defer exec.Close()
	return exec.Execute(ctx, part)
}

// orderSet restores the batch's row order over the merged set, skipping
// the scenarios that failed.
func orderSet(set *results.Set, batch *scenario.Batch, rowErrs []*RowError) error {
	failed := make(map[string]bool, len(rowErrs))
	for _, re := range rowErrs {
		failed[re.ScenarioID] = true
	}
	order := make([]string, 0, batch.Len())
	for _, id := range batch.IDs {
		if !failed[id] {
			order = append(order, id)
		}
	}
	return set.Reorder(order)
}
