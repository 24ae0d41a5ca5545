// Package results collects per-scenario simulation output into dense
// (scenario, group, time) arrays, trimming the padding rows and columns
// the simulation core emits around each variable.
package results

import (
	"fmt"

	"github.com/averros/ecoscen/internal/engine"
)

// DropFlag says which edge of an output axis carries padding that must
// be removed before aggregation.
type DropFlag int

const (
	DropNone DropFlag = iota
	DropFirst
	DropLast
)

func (d DropFlag) String() string {
	switch d {
	case DropFirst:
		return "first"
	case DropLast:
		return "last"
	default:
		return "none"
	}
}

// VariableDef describes one extractable output variable: its logical
// axis names and, per axis, which padding edge to trim from the raw
// extract.
type VariableDef struct {
	Name string
	Dims []string
	Drop []DropFlag
}

// Builtins lists the output variables the simulation core is known to
// produce, with the padding each carries.
func Builtins() []VariableDef {
	concDrop := []DropFlag{DropLast, DropFirst}
	groupDrop := []DropFlag{DropFirst, DropNone}
	timeOnly := []DropFlag{DropNone}

	defs := []VariableDef{
		{Name: "Concentration", Dims: []string{"env_group", "time"}, Drop: concDrop},
		{Name: "Concentration Biomass", Dims: []string{"env_group", "time"}, Drop: concDrop},
	}
	for _, name := range []string{"Biomass", "Catch", "Consumption Biomass", "Mortality", "Trophic Level"} {
		defs = append(defs, VariableDef{Name: name, Dims: []string{"group", "time"}, Drop: groupDrop})
	}
	for _, name := range []string{"Trophic Level Catch", "FIB", "KemptonsQ", "Shannon Diversity"} {
		defs = append(defs, VariableDef{Name: name, Dims: []string{"time"}, Drop: timeOnly})
	}
	return defs
}

// LookupBuiltin finds a builtin variable definition by name.
func LookupBuiltin(name string) (VariableDef, bool) {
	for _, def := range Builtins() {
		if def.Name == name {
			return def, true
		}
	}
	return VariableDef{}, false
}

// TrimError reports a raw extract whose shape does not fit the variable
// definition it was extracted for.
type TrimError struct {
	Variable string
	Msg      string
}

func (e *TrimError) Error() string {
	return fmt.Sprintf("results: %s: %s", e.Variable, e.Msg)
}

// Trim removes the padding edges named by the definition from a raw
// extract and returns the trimmed shape and data. The raw rank must
// match the definition's.
func (def VariableDef) Trim(ex engine.Extract) ([]int, []float64, error) {
	if len(ex.Shape) != len(def.Dims) {
		return nil, nil, &TrimError{Variable: def.Name,
			Msg: fmt.Sprintf("rank %d extract for rank %d variable", len(ex.Shape), len(def.Dims))}
	}
	if got, want := len(ex.Data), ex.Len(); got != want {
		return nil, nil, &TrimError{Variable: def.Name,
			Msg: fmt.Sprintf("%d values for shape %v", got, ex.Shape)}
	}

	shape := make([]int, len(ex.Shape))
	offset := make([]int, len(ex.Shape))
	for d, n := range ex.Shape {
		shape[d] = n
		if def.Drop[d] != DropNone {
			shape[d] = n - 1
			if shape[d] < 1 {
				return nil, nil, &TrimError{Variable: def.Name,
					Msg: fmt.Sprintf("axis %d too short to trim: shape %v", d, ex.Shape)}
			}
		}
		if def.Drop[d] == DropFirst {
			offset[d] = 1
		}
	}

	out := make([]float64, 0, product(shape))
	idx := make([]int, len(shape))
	for {
		src := 0
		for d := range idx {
			src = src*ex.Shape[d] + idx[d] + offset[d]
		}
		out = append(out, ex.Data[src])
		d := len(idx) - 1
		for d >= 0 {
			idx[d]++
			if idx[d] < shape[d] {
				break
			}
			idx[d] = 0
			d--
		}
		if d < 0 {
			break
		}
	}
	return shape, out, nil
}

func product(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
