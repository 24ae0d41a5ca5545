package engine

import "context"

// SubModel identifies one of the simulation core's cooperating stages.
type SubModel int

// Sub-models in dependency order: the mass-balance baseline feeds the
// time-dynamic simulation, which feeds the contaminant tracer.
const (
	Ecopath SubModel = iota
	Ecosim
	Ecotracer
)

// SubModels lists all sub-models in dependency order.
var SubModels = []SubModel{Ecopath, Ecosim, Ecotracer}

// String returns the sub-model name.
func (s SubModel) String() string {
	switch s {
	case Ecopath:
		return "ecopath"
	case Ecosim:
		return "ecosim"
	case Ecotracer:
		return "ecotracer"
	default:
		return "unknown"
	}
}

// Dependents returns the sub-models downstream of s. Modifying a
// sub-model's parameters invalidates any completed runs of its dependents.
func (s SubModel) Dependents() []SubModel {
	switch s {
	case Ecopath:
		return []SubModel{Ecosim, Ecotracer}
	case Ecosim:
		return []SubModel{Ecotracer}
	default:
		return nil
	}
}

// ParamID names a typed parameter slot inside the simulation core. IDs are
// engine-defined; the params package maps semantic names onto them.
type ParamID string

// Extract is the core's native output for one variable after a run: a
// multi-axis numeric array in row-major order. Axis sizes follow the
// engine's own padding convention; trimming is the caller's concern.
type Extract struct {
	Variable string
	Shape    []int
	Data     []float64
}

// Len returns the number of elements the shape describes.
func (e Extract) Len() int {
	n := 1
	for _, d := range e.Shape {
		n *= d
	}
	return n
}

// Engine is one loaded model instance. A handle is exclusively owned by a
// single executor at a time and must be closed on every exit path.
// Implementations are not safe for concurrent use; the core itself is not
// re-entrant.
type Engine interface {
	// SetParam writes a scalar parameter. group is the engine's one-based
	// functional group index, or 0 for environmental parameters.
	SetParam(id ParamID, group int, value float64) error

	// GetParam reads back a scalar parameter.
	GetParam(id ParamID, group int) (float64, error)

	// SetPairParam writes a parameter addressed by a (prey, predator)
	// index pair, such as a vulnerability coefficient. Both indices are
	// one-based.
	SetPairParam(id ParamID, prey, pred int, value float64) error

	// SetVector writes an array-valued parameter. The value slice must
	// already match the engine's declared shape for id, padding included.
	SetVector(id ParamID, values []float64) error

	// VectorShape reports the engine's declared length for an array-valued
	// parameter, padding slot included.
	VectorShape(id ParamID) (int, error)

	// AddForcingFunction registers a time-indexed forcing vector and
	// returns its one-based index in the core's shape manager.
	AddForcingFunction(name string, values []float64) (int, error)

	// Run executes one sub-model. Upstream sub-models must have run first.
	Run(sub SubModel) error

	// Extract pulls the raw array for one output variable.
	Extract(variable string) (Extract, error)

	// Groups returns the functional group names of the loaded model, in
	// the engine's one-based order.
	Groups() []string

	// Timesteps returns the number of time-dynamic steps the model is
	// configured to simulate.
	Timesteps() int

	// Close releases the handle and the model resource it owns.
	Close() error
}

// Factory opens engine handles. Each Open must yield a handle with
// exclusive ownership of the model file at path; callers that need several
// live handles must supply distinct copies of the model resource.
type Factory interface {
	Open(ctx context.Context, modelPath string) (Engine, error)
}
