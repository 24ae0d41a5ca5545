package results

import (
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/arrow/tensor"

	"github.com/averros/ecoscen/internal/engine"
)

// Array is the dense output of one variable across every collected
// scenario. Data is laid out scenario-major: the values for scenario i
// occupy Data[i*stride : (i+1)*stride] in row-major order over Shape.
type Array struct {
	Def       VariableDef
	Shape     []int // per-scenario shape, scenario axis excluded
	Scenarios []string
	Data      []float64
}

func (a *Array) stride() int { return product(a.Shape) }

// Set accumulates trimmed per-scenario extracts for a fixed list of
// variables. A scenario's extracts are staged one variable at a time
// and become visible only on Commit, so a scenario that fails midway
// leaves no partial rows behind.
type Set struct {
	defs   []VariableDef
	arrays map[string]*Array
	staged map[string]stagedExtract
}

type stagedExtract struct {
	shape []int
	data  []float64
}

// NewSet builds an empty result set for the given variables.
func NewSet(defs []VariableDef) *Set {
	s := &Set{
		defs:   defs,
		arrays: make(map[string]*Array, len(defs)),
		staged: make(map[string]stagedExtract, len(defs)),
	}
	for _, def := range defs {
		s.arrays[def.Name] = &Array{Def: def}
	}
	return s
}

// Variables returns the variable definitions in collection order.
func (s *Set) Variables() []VariableDef { return s.defs }

// Len returns the number of committed scenarios.
func (s *Set) Len() int {
	if len(s.defs) == 0 {
		return 0
	}
	return len(s.arrays[s.defs[0].Name].Scenarios)
}

// Array returns the collected array for a variable.
func (s *Set) Array(variable string) (*Array, bool) {
	a, ok := s.arrays[variable]
	return a, ok
}

// Stage trims a raw extract and holds it for the scenario currently
// being collected. The variable must belong to the set.
func (s *Set) Stage(ex engine.Extract) error {
	a, ok := s.arrays[ex.Variable]
	if !ok {
		return &TrimError{Variable: ex.Variable, Msg: "not a collected variable"}
	}
	shape, data, err := a.Def.Trim(ex)
	if err != nil {
		return err
	}
	if a.Shape != nil && !shapeEqual(a.Shape, shape) {
		return &AggregationError{Variable: ex.Variable,
			Msg: fmt.Sprintf("shape %v where earlier scenarios produced %v", shape, a.Shape)}
	}
	s.staged[ex.Variable] = stagedExtract{shape: shape, data: data}
	return nil
}

// Discard drops any staged extracts without committing them.
func (s *Set) Discard() {
	clear(s.staged)
}

// Commit appends the staged extracts as one scenario row. Every
// variable of the set must have been staged since the last Commit or
// Discard.
func (s *Set) Commit(scenarioID string) error {
	for _, def := range s.defs {
		if _, ok := s.staged[def.Name]; !ok {
			return &AggregationError{Variable: def.Name,
				Msg: fmt.Sprintf("not staged for scenario %q", scenarioID)}
		}
	}
	for _, def := range s.defs {
		st := s.staged[def.Name]
		a := s.arrays[def.Name]
		if a.Shape == nil {
			a.Shape = st.shape
		}
		a.Scenarios = append(a.Scenarios, scenarioID)
		a.Data = append(a.Data, st.data...)
	}
	clear(s.staged)
	return nil
}

// Merge appends every scenario of other onto s. Both sets must collect
// the same variables with the same per-scenario shapes.
func (s *Set) Merge(other *Set) error {
	if len(other.defs) != len(s.defs) {
		return &AggregationError{Msg: fmt.Sprintf("%d variables merged into %d", len(other.defs), len(s.defs))}
	}
	for i, def := range s.defs {
		if other.defs[i].Name != def.Name {
			return &AggregationError{Variable: def.Name,
				Msg: fmt.Sprintf("merged set collects %q at position %d", other.defs[i].Name, i)}
		}
	}
	if other.Len() == 0 {
		return nil
	}
	for _, def := range s.defs {
		a, b := s.arrays[def.Name], other.arrays[def.Name]
		if a.Shape != nil && !shapeEqual(a.Shape, b.Shape) {
			return &AggregationError{Variable: def.Name,
				Msg: fmt.Sprintf("shape %v merged into %v", b.Shape, a.Shape)}
		}
	}
	for _, def := range s.defs {
		a, b := s.arrays[def.Name], other.arrays[def.Name]
		if a.Shape == nil {
			a.Shape = b.Shape
		}
		a.Scenarios = append(a.Scenarios, b.Scenarios...)
		a.Data = append(a.Data, b.Data...)
	}
	return nil
}

// Reorder rearranges the scenario axis of every array to match the
// given identifier order. The order must name exactly the committed
// scenarios.
func (s *Set) Reorder(order []string) error {
	if len(order) != s.Len() {
		return &AggregationError{Msg: fmt.Sprintf("%d identifiers for %d scenarios", len(order), s.Len())}
	}
	if s.Len() == 0 {
		return nil
	}
	pos := make(map[string]int, s.Len())
	for i, id := range s.arrays[s.defs[0].Name].Scenarios {
		pos[id] = i
	}
	perm := make([]int, len(order))
	for i, id := range order {
		p, ok := pos[id]
		if !ok {
			return &AggregationError{Msg: fmt.Sprintf("scenario %q not collected", id)}
		}
		perm[i] = p
	}
	for _, def := range s.defs {
		a := s.arrays[def.Name]
		stride := a.stride()
		data := make([]float64, len(a.Data))
		ids := make([]string, len(a.Scenarios))
		for i, p := range perm {
			copy(data[i*stride:(i+1)*stride], a.Data[p*stride:(p+1)*stride])
			ids[i] = a.Scenarios[p]
		}
		a.Data = data
		a.Scenarios = ids
	}
	return nil
}

// Tensor exposes a variable's collected data as an Arrow tensor with a
// leading scenario axis. The tensor shares the set's backing storage.
func (s *Set) Tensor(variable string) (*tensor.Float64, error) {
	a, ok := s.arrays[variable]
	if !ok {
		return nil, &AggregationError{Variable: variable, Msg: "not a collected variable"}
	}
	shape := make([]int64, 0, len(a.Shape)+1)
	names := make([]string, 0, len(a.Shape)+1)
	shape = append(shape, int64(len(a.Scenarios)))
	names = append(names, "scenario")
	for i, d := range a.Shape {
		shape = append(shape, int64(d))
		names = append(names, a.Def.Dims[i])
	}

	buf := memory.NewBufferBytes(arrow.Float64Traits.CastToBytes(a.Data))
	ad := array.NewData(arrow.PrimitiveTypes.Float64, len(a.Data), []*memory.Buffer{nil, buf}, nil, 0, 0)
	defer ad.Release()
	return tensor.New(ad, shape, nil, names).(*tensor.Float64), nil
}

// At reads one value of a variable by scenario index and per-axis
// coordinates.
func (a *Array) At(scenario int, coord ...int) float64 {
	idx := 0
	for d, c := range coord {
		idx = idx*a.Shape[d] + c
	}
	return a.Data[scenario*a.stride()+idx]
}

func shapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
