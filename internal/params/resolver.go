package params

import (
	"fmt"
	"strings"

	"github.com/averros/ecoscen/internal/engine"
)

// Binding is a resolved parameter: the spec plus the engine indices a
// setter call needs. Bindings are resolved once and reused across
// scenario rows; applying one performs no string parsing.
type Binding struct {
	Spec Spec
	Name string
	// Group is a one-based functional group index, 0 for environmental
	// parameters.
	Group int
	// Prey and Pred address a vulnerability cell; both zero otherwise.
	Prey, Pred int
}

// Apply writes a scalar value through the binding.
func (b Binding) Apply(e engine.Engine, value float64) error {
	switch b.Spec.Target {
	case Vulnerability:
		return e.SetPairParam(b.Spec.Setter, b.Prey, b.Pred, value)
	case Group:
		return e.SetParam(b.Spec.Setter, b.Group, value)
	default:
		return e.SetParam(b.Spec.Setter, 0, value)
	}
}

// ReadBack reads the current engine value for the binding. Vulnerability
// cells are not readable through the scalar getter.
func (b Binding) ReadBack(e engine.Engine) (float64, error) {
	if b.Spec.Target == Vulnerability {
		return 0, fmt.Errorf("params: %q: vulnerability cells have no scalar getter", b.Name)
	}
	return e.GetParam(b.Spec.Setter, b.Group)
}

// ApplyVector corrects and writes an array-valued parameter. The input is
// the natural zero-based sequence; correction inserts the engine's unused
// placeholder slot and the result must match the engine's declared shape
// exactly.
func (b Binding) ApplyVector(e engine.Engine, values []float64) error {
	if !b.Spec.ArrayValued {
		return shapeErr(b.Name, "not an array-valued parameter")
	}
	want, err := e.VectorShape(b.Spec.Setter)
	if err != nil {
		return err
	}
	corrected, err := CorrectVector(b.Spec, values, want)
	if err != nil {
		return err
	}
	return e.SetVector(b.Spec.Setter, corrected)
}

// CorrectVector reconciles a zero-based external vector with the engine's
// declared shape for the parameter. For one-based parameters the
// configured placeholder is inserted at the unused slot; the corrected
// length must equal engineShape exactly. Feeding an already-corrected
// vector back through fails the length check rather than silently
// double-padding.
func CorrectVector(sp Spec, values []float64, engineShape int) ([]float64, error) {
	if !sp.ArrayValued {
		return nil, shapeErr(sp.Prefix, "not an array-valued parameter")
	}
	switch sp.Pad {
	case PadNone:
		if len(values) != engineShape {
			return nil, shapeErr(sp.Prefix, fmt.Sprintf("got %d values, engine shape is %d", len(values), engineShape))
		}
		return append([]float64(nil), values...), nil
	case PadPrepend:
		if len(values)+1 != engineShape {
			return nil, shapeErr(sp.Prefix, fmt.Sprintf("got %d values, engine shape is %d (one padding slot)", len(values), engineShape))
		}
		out := make([]float64, 0, engineShape)
		out = append(out, sp.PadValue)
		return append(out, values...), nil
	case PadAppend:
		if len(values)+1 != engineShape {
			return nil, shapeErr(sp.Prefix, fmt.Sprintf("got %d values, engine shape is %d (one padding slot)", len(values), engineShape))
		}
		out := make([]float64, 0, engineShape)
		out = append(out, values...)
		return append(out, sp.PadValue), nil
	default:
		return nil, shapeErr(sp.Prefix, fmt.Sprintf("unknown padding policy %d", sp.Pad))
	}
}

// Resolve turns a semantic parameter name into a Binding. Group-scoped
// names split as <prefix>_<index>_<groupName>; the trailing group name is
// advisory only, the index is authoritative. Environmental names resolve
// flat.
func (r *Registry) Resolve(name string) (Binding, error) {
	if sp, ok := r.byEnv[name]; ok {
		return Binding{Spec: sp, Name: name}, nil
	}
	if r.vuln != nil && strings.HasPrefix(name, vulnPrefix+"_") {
		return r.resolveVuln(name)
	}

	// Longest registered prefix wins so that prefixes that extend other
	// prefixes cannot shadow each other.
	var best string
	for prefix := range r.byPrefix {
		if strings.HasPrefix(name, prefix+"_") && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return Binding{}, unknownParam(name, "no registered prefix or environmental parameter matches")
	}
	idx, _, ok := r.groupIndexAt(name[len(best)+1:])
	if !ok {
		return Binding{}, unknownParam(name, fmt.Sprintf("expected a %d-digit group index after %q", r.width, best))
	}
	return Binding{Spec: r.byPrefix[best], Name: name, Group: idx}, nil
}

// ResolveGroup resolves a (prefix, one-based group index) pair directly,
// bypassing name formatting.
func (r *Registry) ResolveGroup(prefix string, group int) (Binding, error) {
	sp, ok := r.byPrefix[prefix]
	if !ok {
		return Binding{}, unknownParam(prefix, "not a registered group-parameter prefix")
	}
	if group < 1 || group > len(r.groups) {
		return Binding{}, unknownParam(prefix, fmt.Sprintf("group index %d out of range [1,%d]", group, len(r.groups)))
	}
	name, _ := r.GroupParamName(prefix, group)
	return Binding{Spec: sp, Name: name, Group: group}, nil
}

func (r *Registry) resolveVuln(name string) (Binding, error) {
	rest := name[len(vulnPrefix)+1:]
	prey, rest, ok := r.groupIndexAt(rest)
	if !ok {
		return Binding{}, unknownParam(name, "expected prey group index after vuln prefix")
	}
	// Skip the advisory prey name: scan for the next position where a
	// valid padded index token follows an underscore boundary.
	for i := 0; i <= len(rest)-r.width; i++ {
		if i > 0 && rest[i-1] != '_' {
			continue
		}
		pred, _, ok := r.groupIndexAt(rest[i:])
		if !ok {
			continue
		}
		// The prey name segment before the predator token must match the
		// prey index, when present.
		if i > 0 && rest[:i-1] != r.groups[prey-1] {
			continue
		}
		return Binding{Spec: *r.vuln, Name: name, Prey: prey, Pred: pred}, nil
	}
	return Binding{}, unknownParam(name, "expected predator group index in vulnerability name")
}
