package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/averros/ecoscen/internal/engine"
	"github.com/averros/ecoscen/internal/model"
	"github.com/averros/ecoscen/internal/params"
	"github.com/averros/ecoscen/internal/results"
	"github.com/averros/ecoscen/internal/scenario"
)

func TestReadScenarioCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.csv")
	doc := strings.Join([]string{
		"scenario,env_init_c,init_c_1_Cod",
		"base,0.1,1.5",
		"warm,0.2,1.6",
	}, "\n") + "\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	header, ids, rows, err := readScenarioCSV(path)
	if err != nil {
		t.Fatalf("readScenarioCSV: %v", err)
	}
	if len(header) != 3 || header[0] != "scenario" {
		t.Fatalf("header = %v", header)
	}
	if len(ids) != 2 || ids[1] != "warm" {
		t.Fatalf("ids = %v", ids)
	}
	if rows[1][1] != 1.6 {
		t.Fatalf("rows = %v", rows)
	}
}

func TestReadScenarioCSVRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.csv")
	doc := "scenario,env_init_c\nbase,not-a-number\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if _, _, _, err := readScenarioCSV(path); err == nil {
		t.Fatal("readScenarioCSV accepted a non-numeric value")
	}
}

func TestWriteScenarioCSVRoundTrip(t *testing.T) {
	reg, err := params.NewRegistry([]string{"Cod", "Herring"}, params.DefaultFamilies()...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	batch, err := scenario.EmptyTemplate(reg, []string{"env_init_c"}, []string{"init_c"}, 2)
	if err != nil {
		t.Fatalf("EmptyTemplate: %v", err)
	}

	var buf bytes.Buffer
	if err := writeScenarioCSV(&buf, batch); err != nil {
		t.Fatalf("writeScenarioCSV: %v", err)
	}

	path := filepath.Join(t.TempDir(), "template.csv")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	header, ids, rows, err := readScenarioCSV(path)
	if err != nil {
		t.Fatalf("readScenarioCSV: %v", err)
	}
	if _, err := scenario.Build(reg, header, ids, rows); err != nil {
		t.Fatalf("template does not round-trip: %v", err)
	}
}

func TestApplyConstantFlags(t *testing.T) {
	reg, err := params.NewRegistry([]string{"Cod"}, params.DefaultFamilies()...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	mgr := params.NewManager(reg)
	if err := applyConstantFlags(mgr, []string{"env_decay_r=0.05", "init_c_1_Cod=2"}); err != nil {
		t.Fatalf("applyConstantFlags: %v", err)
	}
	if mgr.ConstantCount() != 2 {
		t.Fatalf("ConstantCount = %d, want 2", mgr.ConstantCount())
	}

	if err := applyConstantFlags(mgr, []string{"no-equals"}); err == nil {
		t.Error("accepted flag without =")
	}
	if err := applyConstantFlags(mgr, []string{"env_decay_r=x"}); err == nil {
		t.Error("accepted non-numeric value")
	}
}

// setWithScenarios builds a result set holding n committed rows of one
// time-only variable.
func setWithScenarios(t *testing.T, n int) *results.Set {
	t.Helper()
	fib, ok := results.LookupBuiltin("FIB")
	if !ok {
		t.Fatal("FIB is not a builtin")
	}
	s := results.NewSet([]results.VariableDef{fib})
	for i := 0; i < n; i++ {
		ex := engine.Extract{Variable: "FIB", Shape: []int{2}, Data: []float64{float64(i), float64(i) + 1}}
		if err := s.Stage(ex); err != nil {
			t.Fatalf("Stage: %v", err)
		}
		if err := s.Commit(strings.Repeat("s", i+1)); err != nil {
			t.Fatalf("Commit: %v", err)
		}
	}
	return s
}

func TestRecordOutcome(t *testing.T) {
	run := &model.Run{}
	recordOutcome(run, 5, setWithScenarios(t, 4), nil)
	if run.Status != model.StatusCompleted || run.Completed != 4 || run.Failed != 1 {
		t.Fatalf("clean run = %+v, want completed 4/1", run)
	}

	// An aborted batch still credits the rows that finished; only the
	// rest count as failed.
	run = &model.Run{}
	recordOutcome(run, 5, setWithScenarios(t, 3), errors.New("worker 1: license server unreachable"))
	if run.Status != model.StatusFailed || run.Completed != 3 || run.Failed != 2 {
		t.Fatalf("aborted run = %+v, want completed 3, failed 2", run)
	}
	if run.Error == "" {
		t.Fatal("aborted run lost its error text")
	}

	run = &model.Run{}
	recordOutcome(run, 5, nil, errors.New("create model copy dir: permission denied"))
	if run.Completed != 0 || run.Failed != 5 {
		t.Fatalf("run without results = %+v, want failed 5", run)
	}
}

func TestResolveVariables(t *testing.T) {
	defs, err := resolveVariables(nil)
	if err != nil {
		t.Fatalf("resolveVariables(nil): %v", err)
	}
	if len(defs) == 0 {
		t.Fatal("no default variables")
	}

	defs, err = resolveVariables([]string{"Biomass", "FIB"})
	if err != nil {
		t.Fatalf("resolveVariables: %v", err)
	}
	if len(defs) != 2 || defs[0].Name != "Biomass" {
		t.Fatalf("defs = %v", defs)
	}

	if _, err := resolveVariables([]string{"Bogus"}); err == nil {
		t.Error("accepted unknown variable")
	}
}
