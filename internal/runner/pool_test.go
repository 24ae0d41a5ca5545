package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/averros/ecoscen/internal/engine"
	"github.com/averros/ecoscen/internal/enginetest"
	"github.com/averros/ecoscen/internal/params"
	"github.com/averros/ecoscen/internal/results"
	"github.com/averros/ecoscen/internal/scenario"
)

var poolGroups = []string{"Phytoplankton", "Zooplankton", "Herring", "Cod"}

const poolTimesteps = 5

func testVariables(t *testing.T) []results.VariableDef {
	t.Helper()
	bio, ok := results.LookupBuiltin("Biomass")
	if !ok {
		t.Fatal("Biomass is not a builtin")
	}
	fib, ok := results.LookupBuiltin("FIB")
	if !ok {
		t.Fatal("FIB is not a builtin")
	}
	return []results.VariableDef{bio, fib}
}

// testBatch builds an n-scenario batch varying env_init_c and one
// init_c group parameter, plus the manager bound to its columns.
func testBatch(t *testing.T, n int) (*scenario.Batch, *params.Manager) {
	t.Helper()
	reg, err := params.NewRegistry(poolGroups, params.DefaultFamilies()...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	header := []string{"scenario", "env_init_c", "init_c_3_Herring"}
	ids := make([]string, n)
	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		ids[i] = fmt.Sprintf("s%d", i)
		rows[i] = []float64{0.1 * float64(i+1), 1.0 + float64(i)}
	}
	batch, err := scenario.Build(reg, header, ids, rows)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	mgr := params.NewManager(reg)
	slots := make([]int, len(batch.Columns))
	for i := range slots {
		slots[i] = i
	}
	if err := mgr.SetVariable(batch.Columns, slots); err != nil {
		t.Fatalf("SetVariable: %v", err)
	}
	if err := mgr.SetConstant([]string{"env_decay_r"}, []float64{0.05}); err != nil {
		t.Fatalf("SetConstant: %v", err)
	}
	return batch, mgr
}

// writeModel creates a model file the pool can copy.
func writeModel(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "baltic.ewemdb")
	if err := os.WriteFile(path, []byte("model bytes"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return path
}

func poolConfig(t *testing.T, mgr *params.Manager, workers int) PoolConfig {
	t.Helper()
	return PoolConfig{
		Factory:   &enginetest.Factory{Groups: poolGroups, Timesteps: poolTimesteps},
		ModelPath: writeModel(t),
		Workers:   workers,
		Exec: Config{
			Manager:   mgr,
			Variables: testVariables(t),
		},
	}
}

func TestPoolMatchesSequential(t *testing.T) {
	batch, mgr := testBatch(t, 6)

	seq, seqErrs, err := RunBatch(context.Background(), poolConfig(t, mgr, 1), batch)
	if err != nil {
		t.Fatalf("sequential RunBatch: %v", err)
	}
	if len(seqErrs) != 0 {
		t.Fatalf("sequential row errors: %v", seqErrs)
	}

	par, parErrs, err := RunBatch(context.Background(), poolConfig(t, mgr, 3), batch)
	if err != nil {
		t.Fatalf("parallel RunBatch: %v", err)
	}
	if len(parErrs) != 0 {
		t.Fatalf("parallel row errors: %v", parErrs)
	}

	for _, def := range testVariables(t) {
		a, _ := seq.Array(def.Name)
		b, _ := par.Array(def.Name)
		if len(a.Data) != len(b.Data) {
			t.Fatalf("%s: %d values sequential, %d parallel", def.Name, len(a.Data), len(b.Data))
		}
		for i := range a.Data {
			if a.Data[i] != b.Data[i] {
				t.Fatalf("%s: value %d differs: %v sequential, %v parallel",
					def.Name, i, a.Data[i], b.Data[i])
			}
		}
	}
}

func TestRowOrderPreservedAcrossWorkerCounts(t *testing.T) {
	batch, mgr := testBatch(t, 7)
	for _, workers := range []int{1, 2, 3, 7, 12, 0} {
		set, rowErrs, err := RunBatch(context.Background(), poolConfig(t, mgr, workers), batch)
		if err != nil {
			t.Fatalf("workers=%d: %v", workers, err)
		}
		if len(rowErrs) != 0 {
			t.Fatalf("workers=%d: row errors %v", workers, rowErrs)
		}
		a, _ := set.Array("FIB")
		for i, id := range batch.IDs {
			if a.Scenarios[i] != id {
				t.Fatalf("workers=%d: scenario order %v, want %v", workers, a.Scenarios, batch.IDs)
			}
		}
	}
}

func TestFailedRowIsCollectedNotFatal(t *testing.T) {
	batch, mgr := testBatch(t, 5)

	cfg := poolConfig(t, mgr, 2)
	// Partitioning is contiguous: worker 1 starts at scenario s3. Its
	// first ecosim run fails; the remaining rows still execute.
	cfg.Factory = &enginetest.Factory{
		Groups:    poolGroups,
		Timesteps: poolTimesteps,
		Configure: func(f *enginetest.Fake) {
			if !strings.Contains(f.ModelPath(), "worker_1") {
				return
			}
			failed := false
			f.RunErr = func(sub engine.SubModel) error {
				if sub == engine.Ecosim && !failed {
					failed = true
					return errors.New("solver diverged")
				}
				return nil
			}
		},
	}

	set, rowErrs, err := RunBatch(context.Background(), cfg, batch)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if len(rowErrs) != 1 {
		t.Fatalf("got %d row errors, want 1: %v", len(rowErrs), rowErrs)
	}
	re := rowErrs[0]
	if re.ScenarioID != "s3" || re.Kind != RowRun {
		t.Fatalf("row error = %v, want scenario s3 in run phase", re)
	}
	if set.Len() != 4 {
		t.Fatalf("set has %d scenarios, want 4", set.Len())
	}
	a, _ := set.Array("FIB")
	want := []string{"s0", "s1", "s2", "s4"}
	for i, id := range want {
		if a.Scenarios[i] != id {
			t.Fatalf("scenario order %v, want %v", a.Scenarios, want)
		}
	}
}

func TestWorkersGetPrivateModelCopies(t *testing.T) {
	batch, mgr := testBatch(t, 6)
	cfg := poolConfig(t, mgr, 3)
	cfg.WorkDir = t.TempDir()

	// The copies are gone once the batch finishes, so their contents
	// are captured while the handles open.
	var mu sync.Mutex
	contents := make(map[string]string)
	cfg.Factory = &enginetest.Factory{
		Groups:    poolGroups,
		Timesteps: poolTimesteps,
		Configure: func(f *enginetest.Fake) {
			data, err := os.ReadFile(f.ModelPath())
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				contents[f.ModelPath()] = "unreadable: " + err.Error()
				return
			}
			contents[f.ModelPath()] = string(data)
		},
	}

	if _, _, err := RunBatch(context.Background(), cfg, batch); err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	if len(contents) != 3 {
		t.Fatalf("opened %d distinct copies, want 3: %v", len(contents), contents)
	}
	src, _ := os.ReadFile(cfg.ModelPath)
	for p, got := range contents {
		if p == cfg.ModelPath {
			t.Fatalf("worker opened the source model %s", p)
		}
		if got != string(src) {
			t.Fatalf("copy %s differs from source: %q", p, got)
		}
		if filepath.Ext(p) != ".ewemdb" {
			t.Fatalf("copy %s lost the model extension", p)
		}
	}
}

func TestModelCopiesRemovedAfterBatch(t *testing.T) {
	batch, mgr := testBatch(t, 6)
	cfg := poolConfig(t, mgr, 3)
	cfg.WorkDir = t.TempDir()
	factory := cfg.Factory.(*enginetest.Factory)

	if _, _, err := RunBatch(context.Background(), cfg, batch); err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	for _, p := range factory.OpenedPaths() {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("model copy %s still exists after the batch", p)
		}
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		t.Fatalf("source model removed: %v", err)
	}
	entries, err := os.ReadDir(cfg.WorkDir)
	if err != nil {
		t.Fatalf("read work dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("work dir holds %d leftover files after the batch", len(entries))
	}
}

func TestSingleWorkerOpensSourceDirectly(t *testing.T) {
	batch, mgr := testBatch(t, 3)
	cfg := poolConfig(t, mgr, 1)
	factory := cfg.Factory.(*enginetest.Factory)

	if _, _, err := RunBatch(context.Background(), cfg, batch); err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	paths := factory.OpenedPaths()
	if len(paths) != 1 || paths[0] != cfg.ModelPath {
		t.Fatalf("opened %v, want just the source model", paths)
	}
}

// splitFactory hands differently sized models to successive opens, so
// worker outputs cannot be merged.
type splitFactory struct {
	timesteps int

	mu    sync.Mutex
	opens int
}

func (s *splitFactory) Open(ctx context.Context, modelPath string) (engine.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	groups := poolGroups
	if s.opens > 1 {
		groups = append(poolGroups, "Seals")
	}
	return enginetest.New(groups, s.timesteps), nil
}

func TestMergeShapeMismatchAborts(t *testing.T) {
	batch, mgr := testBatch(t, 4)
	cfg := poolConfig(t, mgr, 2)
	cfg.Factory = &splitFactory{timesteps: poolTimesteps}

	_, _, err := RunBatch(context.Background(), cfg, batch)
	var aerr *results.AggregationError
	if !errors.As(err, &aerr) {
		t.Fatalf("RunBatch = %v, want *results.AggregationError", err)
	}
}

func TestFactoryOpenErrorAborts(t *testing.T) {
	batch, mgr := testBatch(t, 4)
	cfg := poolConfig(t, mgr, 2)
	cfg.Factory = &enginetest.Factory{
		Groups:    poolGroups,
		Timesteps: poolTimesteps,
		OpenErr: func(modelPath string) error {
			if strings.Contains(modelPath, "worker_1") {
				return errors.New("license server unreachable")
			}
			return nil
		},
	}

	set, rowErrs, err := RunBatch(context.Background(), cfg, batch)
	if err == nil {
		t.Fatal("RunBatch succeeded with a failing worker")
	}
	// Worker 0's half of the batch finished before the abort and is
	// still reported.
	if set == nil || set.Len() != 2 {
		t.Fatalf("aborted batch returned %v, want the 2 finished scenarios", set)
	}
	if len(rowErrs) != 0 {
		t.Fatalf("row errors = %v, want none", rowErrs)
	}
}
