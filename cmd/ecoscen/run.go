package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/averros/ecoscen/internal/config"
	"github.com/averros/ecoscen/internal/model"
	"github.com/averros/ecoscen/internal/params"
	"github.com/averros/ecoscen/internal/results"
	"github.com/averros/ecoscen/internal/runner"
	"github.com/averros/ecoscen/internal/scenario"
	"github.com/averros/ecoscen/internal/store"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a scenario batch against a model",
		Long: `Run every scenario of a CSV table through the model and journal the
outcome.

Examples:
  ecoscen run --model baltic.ewemdb --scenarios batch.csv
  ecoscen run --model baltic.ewemdb --scenarios batch.csv --workers 8 \
      --set env_decay_r=0.05 --vars Biomass,Concentration`,
		RunE: func(cmd *cobra.Command, args []string) error {
			modelPath, _ := cmd.Flags().GetString("model")
			scenarioPath, _ := cmd.Flags().GetString("scenarios")
			workers, _ := cmd.Flags().GetInt("workers")
			varNames, _ := cmd.Flags().GetStringSlice("vars")
			constants, _ := cmd.Flags().GetStringSlice("set")
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := config.NewLogger(os.Stderr, cfg.LogLevel)
			if workers < 1 {
				workers = cfg.Workers
			}

			factory, err := hostFactory(cmd, cfg.EngineCmd)
			if err != nil {
				return err
			}
			factory.Logger = logger

			ctx := context.Background()
			reg, err := probeRegistry(ctx, factory, modelPath)
			if err != nil {
				return err
			}

			header, ids, rows, err := readScenarioCSV(scenarioPath)
			if err != nil {
				return err
			}
			batch, err := scenario.Build(reg, header, ids, rows)
			if err != nil {
				return err
			}

			mgr := params.NewManager(reg)
			slots := make([]int, len(batch.Columns))
			for i := range slots {
				slots[i] = i
			}
			if err := mgr.SetVariable(batch.Columns, slots); err != nil {
				return err
			}
			if err := applyConstantFlags(mgr, constants); err != nil {
				return err
			}

			variables, err := resolveVariables(varNames)
			if err != nil {
				return err
			}

			journal, err := store.NewSQLiteStore(cfg.DBPath)
			if err != nil {
				return err
			}
			defer journal.Close()

			run := &model.Run{
				ID:        model.NewID(),
				Status:    model.StatusPending,
				ModelPath: modelPath,
				Workers:   workers,
				Scenarios: batch.Len(),
				CreatedAt: time.Now().UTC(),
			}
			if err := journal.CreateRun(ctx, run); err != nil {
				return err
			}
			if err := journal.UpdateRunStatus(ctx, run.ID, model.StatusRunning); err != nil {
				return err
			}

			start := time.Now()
			set, rowErrs, execErr := runner.RunBatch(ctx, runner.PoolConfig{
				Factory:   factory,
				ModelPath: modelPath,
				Workers:   workers,
				WorkDir:   cfg.WorkDir,
				Exec: runner.Config{
					Manager:   mgr,
					Variables: variables,
					Logger:    logger,
				},
			}, batch)

			dur := int(time.Since(start).Milliseconds())
			run.DurationMS = &dur
			recordOutcome(run, batch.Len(), set, execErr)
			now := time.Now().UTC()
			run.FinishedAt = &now
			if err := journal.UpdateRun(ctx, run); err != nil {
				logger.Error("journal run", "error", err)
			}
			for _, re := range rowErrs {
				if err := journal.InsertRowFailure(ctx, run.ID, re.ScenarioID, string(re.Kind), re.Err.Error()); err != nil {
					logger.Error("journal row failure", "error", err)
				}
			}
			if execErr != nil {
				return execErr
			}

			return printRunSummary(os.Stdout, jsonOut, run, set, rowErrs)
		},
	}

	cmd.Flags().String("model", "", "Model database file (required)")
	cmd.Flags().String("scenarios", "", "Scenario CSV table (required)")
	cmd.Flags().Int("workers", 0, "Concurrent engine handles (default from config)")
	cmd.Flags().StringSlice("vars", nil, "Output variables to extract (default all builtins)")
	cmd.Flags().StringSlice("set", nil, "Constant parameter as name=value, repeatable")
	cmd.MarkFlagRequired("model")
	cmd.MarkFlagRequired("scenarios")

	return cmd
}

// recordOutcome fills the run record's status and row counts. Every row
// that produced no result counts as failed, whether it failed on its own
// or the batch aborted around it.
func recordOutcome(run *model.Run, scenarios int, set *results.Set, execErr error) {
	if set != nil {
		run.Completed = set.Len()
	}
	run.Failed = scenarios - run.Completed
	if execErr != nil {
		run.Status = model.StatusFailed
		run.Error = execErr.Error()
		return
	}
	run.Status = model.StatusCompleted
}

// applyConstantFlags parses repeated name=value flags into the manager.
func applyConstantFlags(mgr *params.Manager, flags []string) error {
	if len(flags) == 0 {
		return nil
	}
	names := make([]string, 0, len(flags))
	values := make([]float64, 0, len(flags))
	for _, f := range flags {
		name, value, ok := strings.Cut(f, "=")
		if !ok {
			return fmt.Errorf("--set %q: want name=value", f)
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("--set %q: %w", f, err)
		}
		names = append(names, name)
		values = append(values, v)
	}
	return mgr.SetConstant(names, values)
}

// resolveVariables maps variable names to builtin definitions. Empty
// means every builtin.
func resolveVariables(names []string) ([]results.VariableDef, error) {
	if len(names) == 0 {
		return results.Builtins(), nil
	}
	defs := make([]results.VariableDef, 0, len(names))
	for _, name := range names {
		def, ok := results.LookupBuiltin(name)
		if !ok {
			return nil, fmt.Errorf("unknown output variable %q", name)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

type runSummary struct {
	RunID     string            `json:"run_id"`
	Status    string            `json:"status"`
	Scenarios int               `json:"scenarios"`
	Completed int               `json:"completed"`
	Failed    int               `json:"failed"`
	Variables map[string][]int  `json:"variables"`
	Failures  map[string]string `json:"failures,omitempty"`
}

func printRunSummary(w *os.File, jsonOut bool, run *model.Run, set *results.Set, rowErrs []*runner.RowError) error {
	summary := runSummary{
		RunID:     run.ID,
		Status:    run.Status,
		Scenarios: run.Scenarios,
		Completed: run.Completed,
		Failed:    run.Failed,
		Variables: make(map[string][]int),
	}
	for _, def := range set.Variables() {
		a, _ := set.Array(def.Name)
		shape := append([]int{len(a.Scenarios)}, a.Shape...)
		summary.Variables[def.Name] = shape
	}
	if len(rowErrs) > 0 {
		summary.Failures = make(map[string]string, len(rowErrs))
		for _, re := range rowErrs {
			summary.Failures[re.ScenarioID] = re.Err.Error()
		}
	}

	if jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	fmt.Fprintf(w, "run %s: %s, %d/%d scenarios completed\n",
		run.ID, run.Status, run.Completed, run.Scenarios)
	for _, def := range set.Variables() {
		fmt.Fprintf(w, "  %-24s %v\n", def.Name, summary.Variables[def.Name])
	}
	for _, re := range rowErrs {
		fmt.Fprintf(w, "  failed %s (%s): %v\n", re.ScenarioID, re.Kind, re.Err)
	}
	return nil
}
