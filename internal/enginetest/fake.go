// Package enginetest provides an in-memory engine.Engine for tests. The
// fake reproduces the simulation core's observable conventions — padded
// raw extracts, one-based group indices, exclusive single-handle use —
// without any numerics: extract values are a deterministic function of
// the parameters in effect, so tests can tell scenarios apart.
package enginetest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/averros/ecoscen/internal/engine"
)

// PadSentinel fills the unused padding slots of raw extracts. Tests use
// it to prove trimming removed exactly the padded slices.
const PadSentinel = -999.0

type scalarKey struct {
	id    engine.ParamID
	group int
}

type pairKey struct {
	id         engine.ParamID
	prey, pred int
}

// Fake is an in-memory Engine. Like the real core it must not be driven
// concurrently; the mutex exists only to make misuse detectable, not to
// make the fake concurrent-safe.
type Fake struct {
	mu        sync.Mutex
	modelPath string
	groups    []string
	timesteps int

	scalars  map[scalarKey]float64
	pairs    map[pairKey]float64
	vectors  map[engine.ParamID][]float64
	shapes   map[engine.ParamID]int
	forcings []string
	ran      map[engine.SubModel]int
	ops      []string
	closed   bool

	// Failure hooks, nil for success.
	RunErr     func(sub engine.SubModel) error
	SetErr     func(id engine.ParamID, group int, value float64) error
	ExtractErr func(variable string) error
}

// New creates a fake engine for a model with the given functional groups
// and simulated timesteps.
func New(groups []string, timesteps int) *Fake {
	f := &Fake{
		groups:    append([]string(nil), groups...),
		timesteps: timesteps,
		scalars:   make(map[scalarKey]float64),
		pairs:     make(map[pairKey]float64),
		vectors:   make(map[engine.ParamID][]float64),
		shapes:    make(map[engine.ParamID]int),
		ran:       make(map[engine.SubModel]int),
	}
	// Forcing shapes carry the engine's unused leading slot.
	f.shapes["tracer.env.forcing_shape"] = timesteps + 1
	return f
}

// SetShape declares the engine shape for an array-valued parameter.
func (f *Fake) SetShape(id engine.ParamID, n int) {
	f.shapes[id] = n
}

// ModelPath returns the path this fake was opened with, if any.
func (f *Fake) ModelPath() string { return f.modelPath }

// Ops returns the ordered engine-call log.
func (f *Fake) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

// RunCount returns how many times a sub-model ran.
func (f *Fake) RunCount(sub engine.SubModel) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ran[sub]
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Vector returns the last vector written for id.
func (f *Fake) Vector(id engine.ParamID) []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float64(nil), f.vectors[id]...)
}

func (f *Fake) log(format string, args ...any) {
	f.ops = append(f.ops, fmt.Sprintf(format, args...))
}

func (f *Fake) checkOpen(op string) error {
	if f.closed {
		return &engine.EngineError{Op: engine.Op(op), Status: "handle closed"}
	}
	return nil
}

// SetParam implements engine.Engine.
func (f *Fake) SetParam(id engine.ParamID, group int, value float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkOpen("set_param"); err != nil {
		return err
	}
	if f.SetErr != nil {
		if err := f.SetErr(id, group, value); err != nil {
			return err
		}
	}
	if group < 0 || group > len(f.groups) {
		return &engine.EngineError{Op: engine.OpSetParam, Status: fmt.Sprintf("group %d out of range", group)}
	}
	f.scalars[scalarKey{id, group}] = value
	f.log("set %s[%d]=%g", id, group, value)
	return nil
}

// GetParam implements engine.Engine.
func (f *Fake) GetParam(id engine.ParamID, group int) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkOpen("get_param"); err != nil {
		return 0, err
	}
	v, ok := f.scalars[scalarKey{id, group}]
	if !ok {
		return 0, &engine.EngineError{Op: engine.OpGetParam, Status: fmt.Sprintf("%s[%d] never set", id, group)}
	}
	return v, nil
}

// SetPairParam implements engine.Engine.
func (f *Fake) SetPairParam(id engine.ParamID, prey, pred int, value float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkOpen("set_pair"); err != nil {
		return err
	}
	if prey < 1 || prey > len(f.groups) || pred < 1 || pred > len(f.groups) {
		return &engine.EngineError{Op: engine.OpSetPair, Status: fmt.Sprintf("pair (%d,%d) out of range", prey, pred)}
	}
	f.pairs[pairKey{id, prey, pred}] = value
	f.log("setpair %s[%d,%d]=%g", id, prey, pred, value)
	return nil
}

// SetVector implements engine.Engine.
func (f *Fake) SetVector(id engine.ParamID, values []float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkOpen("set_vector"); err != nil {
		return err
	}
	want, ok := f.shapes[id]
	if !ok {
		return &engine.EngineError{Op: engine.OpSetVector, Status: fmt.Sprintf("no declared shape for %s", id)}
	}
	if len(values) != want {
		return &engine.EngineError{Op: engine.OpSetVector, Status: fmt.Sprintf("vector %s: got %d values, want %d", id, len(values), want)}
	}
	f.vectors[id] = append([]float64(nil), values...)
	f.log("setvec %s len=%d", id, len(values))
	return nil
}

// VectorShape implements engine.Engine.
func (f *Fake) VectorShape(id engine.ParamID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want, ok := f.shapes[id]
	if !ok {
		return 0, &engine.EngineError{Op: engine.OpVectorShape, Status: fmt.Sprintf("no declared shape for %s", id)}
	}
	return want, nil
}

// AddForcingFunction implements engine.Engine. Indices are one-based, as
// in the core's shape manager.
func (f *Fake) AddForcingFunction(name string, values []float64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkOpen("add_forcing"); err != nil {
		return 0, err
	}
	f.forcings = append(f.forcings, name)
	f.log("forcing %s len=%d", name, len(values))
	return len(f.forcings), nil
}

// Run implements engine.Engine.
func (f *Fake) Run(sub engine.SubModel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkOpen("run"); err != nil {
		return err
	}
	if f.RunErr != nil {
		if err := f.RunErr(sub); err != nil {
			return err
		}
	}
	f.ran[sub]++
	f.log("run %s", sub)
	return nil
}

// paramSum folds every parameter in effect into one number so extract
// values differ whenever any applied parameter differs. Keys are summed
// in sorted order: float addition is not associative, and map iteration
// order must not leak into extract values.
func (f *Fake) paramSum() float64 {
	skeys := make([]scalarKey, 0, len(f.scalars))
	for k := range f.scalars {
		skeys = append(skeys, k)
	}
	sort.Slice(skeys, func(i, j int) bool {
		if skeys[i].id != skeys[j].id {
			return skeys[i].id < skeys[j].id
		}
		return skeys[i].group < skeys[j].group
	})
	pkeys := make([]pairKey, 0, len(f.pairs))
	for k := range f.pairs {
		pkeys = append(pkeys, k)
	}
	sort.Slice(pkeys, func(i, j int) bool {
		if pkeys[i].id != pkeys[j].id {
			return pkeys[i].id < pkeys[j].id
		}
		if pkeys[i].prey != pkeys[j].prey {
			return pkeys[i].prey < pkeys[j].prey
		}
		return pkeys[i].pred < pkeys[j].pred
	})
	vkeys := make([]engine.ParamID, 0, len(f.vectors))
	for k := range f.vectors {
		vkeys = append(vkeys, k)
	}
	sort.Slice(vkeys, func(i, j int) bool { return vkeys[i] < vkeys[j] })

	var sum float64
	for _, k := range skeys {
		sum += f.scalars[k] * float64(1+k.group)
	}
	for _, k := range pkeys {
		sum += f.pairs[k] * float64(k.prey*31+k.pred)
	}
	for _, k := range vkeys {
		for i, v := range f.vectors[k] {
			sum += v * float64(i+1) * 1e-3
		}
	}
	return sum
}

// Extract implements engine.Engine. Raw shapes follow the core's padding
// conventions per variable family; padded slots hold PadSentinel.
func (f *Fake) Extract(variable string) (engine.Extract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkOpen("extract"); err != nil {
		return engine.Extract{}, err
	}
	if f.ExtractErr != nil {
		if err := f.ExtractErr(variable); err != nil {
			return engine.Extract{}, err
		}
	}

	nG, nT := len(f.groups), f.timesteps
	sum := f.paramSum()
	salt := float64(len(variable))

	var shape []int
	var pad func(coords []int) bool
	switch variable {
	case "Concentration", "Concentration Biomass":
		// (environment + groups + trailing pad) x (leading pad + time).
		shape = []int{nG + 2, nT + 1}
		pad = func(c []int) bool { return c[0] == nG+1 || c[1] == 0 }
	case "Biomass", "Catch", "Consumption Biomass", "Mortality", "Trophic Level":
		// (leading pad + groups) x time.
		shape = []int{nG + 1, nT}
		pad = func(c []int) bool { return c[0] == 0 }
	case "Trophic Level Catch", "FIB", "KemptonsQ", "Shannon Diversity":
		shape = []int{nT}
		pad = func(c []int) bool { return false }
	default:
		return engine.Extract{}, &engine.EngineError{Op: engine.OpExtract, Status: fmt.Sprintf("unknown variable %q", variable)}
	}

	ext := engine.Extract{Variable: variable, Shape: shape}
	ext.Data = make([]float64, ext.Len())
	coords := make([]int, len(shape))
	for i := range ext.Data {
		rem := i
		for d := len(shape) - 1; d >= 0; d-- {
			coords[d] = rem % shape[d]
			rem /= shape[d]
		}
		if pad(coords) {
			ext.Data[i] = PadSentinel
			continue
		}
		v := sum + salt
		for d, c := range coords {
			v += float64(c) / float64(10*(d+1))
		}
		ext.Data[i] = v
	}
	return ext, nil
}

// Groups implements engine.Engine.
func (f *Fake) Groups() []string {
	return append([]string(nil), f.groups...)
}

// Timesteps implements engine.Engine.
func (f *Fake) Timesteps() int { return f.timesteps }

// Close implements engine.Engine.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return &engine.EngineError{Op: engine.OpClose, Status: "already closed"}
	}
	f.closed = true
	f.log("close")
	return nil
}

var _ engine.Engine = (*Fake)(nil)

// Factory opens Fakes and records the model paths it was asked for, so
// tests can assert every worker received its own copy.
type Factory struct {
	Groups    []string
	Timesteps int

	// Configure, when non-nil, is called with every newly opened fake.
	Configure func(f *Fake)
	// OpenErr, when non-nil, can reject an open.
	OpenErr func(modelPath string) error

	mu     sync.Mutex
	opened []string
	fakes  []*Fake
}

// Open implements engine.Factory.
func (fc *Factory) Open(_ context.Context, modelPath string) (engine.Engine, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.OpenErr != nil {
		if err := fc.OpenErr(modelPath); err != nil {
			return nil, err
		}
	}
	f := New(fc.Groups, fc.Timesteps)
	f.modelPath = modelPath
	if fc.Configure != nil {
		fc.Configure(f)
	}
	fc.opened = append(fc.opened, modelPath)
	fc.fakes = append(fc.fakes, f)
	return f, nil
}

// OpenedPaths returns every model path handed to Open, in order.
func (fc *Factory) OpenedPaths() []string {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return append([]string(nil), fc.opened...)
}

// Engines returns every fake opened so far.
func (fc *Factory) Engines() []*Fake {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return append([]*Fake(nil), fc.fakes...)
}

var _ engine.Factory = (*Factory)(nil)
