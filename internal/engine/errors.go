package engine

import "fmt"

// Op names a gated engine operation for state checks and error reporting.
type Op string

const (
	OpLoad        Op = "load"
	OpSetParam    Op = "set_param"
	OpGetParam    Op = "get_param"
	OpSetPair     Op = "set_pair"
	OpSetVector   Op = "set_vector"
	OpVectorShape Op = "vector_shape"
	OpAddForcing  Op = "add_forcing"
	OpRun         Op = "run"
	OpExtract     Op = "extract"
	OpClose       Op = "close"
)

// StateError reports an operation attempted from a lifecycle state that
// does not permit it. The failed transition leaves state unchanged.
type StateError struct {
	Op    Op
	Sub   SubModel
	State Flags
}

func (e *StateError) Error() string {
	return fmt.Sprintf("engine: %s not legal for %s in state %s", e.Op, e.Sub, e.State)
}

// EngineError reports a failure from the simulation core itself: a load
// that did not produce a usable model, a run that diverged, or a rejected
// parameter write. Status carries the core's reported status text.
type EngineError struct {
	Op     Op
	Status string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine: %s failed: %s", e.Op, e.Status)
}
