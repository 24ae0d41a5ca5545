// Package runner drives scenario batches through engine handles: a
// sequential executor owns one handle, and a pool fans a batch out
// across several executors with private model copies.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/averros/ecoscen/internal/engine"
	"github.com/averros/ecoscen/internal/params"
	"github.com/averros/ecoscen/internal/results"
	"github.com/averros/ecoscen/internal/scenario"
	"github.com/averros/ecoscen/internal/telemetry"
)

// RowErrorKind names the phase in which a scenario row failed.
type RowErrorKind string

const (
	RowApply   RowErrorKind = "apply"
	RowRun     RowErrorKind = "run"
	RowExtract RowErrorKind = "extract"
)

// RowError is one failed scenario row. Row failures do not abort the
// batch; they are collected and reported alongside the merged results.
type RowError struct {
	ScenarioID string
	Kind       RowErrorKind
	Err        error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("scenario %q: %s: %v", e.ScenarioID, e.Kind, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Config carries everything an executor needs besides the engine
// handle itself.
type Config struct {
	// Manager holds the resolved constant and variable parameter
	// bindings. It is read-only during execution and may be shared
	// across executors.
	Manager *params.Manager
	// Variables are the outputs to extract after each scenario run.
	Variables []results.VariableDef
	// Subs are the sub-models to run per scenario, in order. Empty
	// means Ecosim then Ecotracer.
	Subs []engine.SubModel
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

func (c Config) subs() []engine.SubModel {
	if len(c.Subs) > 0 {
		return c.Subs
	}
	return []engine.SubModel{engine.Ecosim, engine.Ecotracer}
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Executor runs scenario rows one at a time against a single engine
// handle, gating every call on the handle's capability state. Not safe
// for concurrent use; a handle has exactly one driver.
type Executor struct {
	eng   engine.Engine
	state *engine.CapabilityState
	cfg   Config
	log   *slog.Logger

	constantsApplied bool
}

// NewExecutor wraps an open engine handle. Opening a handle loads the
// model, so every sub-model starts in the loaded state.
func NewExecutor(eng engine.Engine, cfg Config) (*Executor, error) {
	state := engine.NewCapabilityState()
	for _, sub := range engine.SubModels {
		if err := state.Apply(engine.TransLoaded, sub); err != nil {
			return nil, err
		}
	}
	return &Executor{
		eng:   eng,
		state: state,
		cfg:   cfg,
		log:   cfg.logger(),
	}, nil
}

// State exposes the capability record, for inspection.
func (x *Executor) State() *engine.CapabilityState { return x.state }

// Execute drives every row of the batch through the handle: constants
// once, then per row the variable parameters, the configured sub-model
// runs, and one extract per output variable. Failed rows are skipped
// and collected; only context cancellation aborts the batch, and the
// rows finished before the cancellation are returned with the error.
func (x *Executor) Execute(ctx context.Context, batch *scenario.Batch) (*results.Set, []*RowError, error) {
	set := results.NewSet(x.cfg.Variables)
	if err := x.applyConstants(); err != nil {
		return nil, nil, err
	}

	var rowErrs []*RowError
	for i, id := range batch.IDs {
		select {
		case <-ctx.Done():
			return set, rowErrs, ctx.Err()
		default:
		}
		start := time.Now()
		if err := x.runRow(set, id, batch.Rows[i]); err != nil {
			telemetry.ScenarioFailed(time.Since(start).Seconds())
			x.log.Warn("scenario failed",
				"scenario", err.ScenarioID, "phase", string(err.Kind), "error", err.Err)
			rowErrs = append(rowErrs, err)
			continue
		}
		telemetry.ScenarioCompleted(time.Since(start).Seconds())
		x.log.Debug("scenario completed", "scenario", id)
	}
	return set, rowErrs, nil
}

func (x *Executor) applyConstants() error {
	if x.constantsApplied {
		return nil
	}
	for _, sub := range x.cfg.subs() {
		if !x.state.Can(engine.OpSetParam, sub) {
			return &engine.StateError{Op: engine.OpSetParam, Sub: sub, State: x.state.Sub(sub)}
		}
	}
	if err := x.cfg.Manager.ApplyConstant(x.eng); err != nil {
		return fmt.Errorf("apply constant parameters: %w", err)
	}
	for _, sub := range x.cfg.subs() {
		if err := x.state.Apply(engine.TransModified, sub); err != nil {
			return err
		}
	}
	x.constantsApplied = true
	return nil
}

func (x *Executor) runRow(set *results.Set, id string, row []float64) *RowError {
	fail := func(kind RowErrorKind, err error) *RowError {
		set.Discard()
		return &RowError{ScenarioID: id, Kind: kind, Err: err}
	}

	subs := x.cfg.subs()
	for _, sub := range subs {
		if !x.state.Can(engine.OpSetParam, sub) {
			return fail(RowApply, &engine.StateError{Op: engine.OpSetParam, Sub: sub, State: x.state.Sub(sub)})
		}
	}
	if err := x.cfg.Manager.ApplyVariable(x.eng, row); err != nil {
		return fail(RowApply, err)
	}
	for _, sub := range subs {
		if err := x.state.Apply(engine.TransModified, sub); err != nil {
			return fail(RowApply, err)
		}
	}

	for _, sub := range subs {
		if err := x.state.Apply(engine.TransRunStart, sub); err != nil {
			return fail(RowRun, err)
		}
		if err := x.eng.Run(sub); err != nil {
			if serr := x.state.Apply(engine.TransRunFail, sub); serr != nil {
				return fail(RowRun, serr)
			}
			return fail(RowRun, err)
		}
		if err := x.state.Apply(engine.TransRunDone, sub); err != nil {
			return fail(RowRun, err)
		}
	}

	for _, sub := range subs {
		if !x.state.Can(engine.OpExtract, sub) {
			return fail(RowExtract, &engine.StateError{Op: engine.OpExtract, Sub: sub, State: x.state.Sub(sub)})
		}
	}
	for _, def := range x.cfg.Variables {
		ex, err := x.eng.Extract(def.Name)
		if err != nil {
			return fail(RowExtract, err)
		}
		if err := set.Stage(ex); err != nil {
			return fail(RowExtract, err)
		}
	}
	if err := set.Commit(id); err != nil {
		return fail(RowExtract, err)
	}
	return nil
}

// Close releases the engine handle. The executor is unusable afterward.
func (x *Executor) Close() error {
	for _, sub := range engine.SubModels {
		if err := x.state.Apply(engine.TransClosed, sub); err != nil {
			return err
		}
	}
	return x.eng.Close()
}
