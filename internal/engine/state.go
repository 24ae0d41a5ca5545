package engine

import "fmt"

// Flags is the readiness record for one sub-model. The zero value is the
// state before any model has been loaded.
type Flags struct {
	CanLoad        bool
	HasInitialized bool
	HasLoaded      bool
	HasRun         bool
	IsRunning      bool
	IsModified     bool
}

func (f Flags) String() string {
	return fmt.Sprintf("{loaded=%t run=%t running=%t modified=%t}",
		f.HasLoaded, f.HasRun, f.IsRunning, f.IsModified)
}

// Transition is a state change applied to a CapabilityState after the
// corresponding engine call succeeds.
type Transition int

const (
	// TransLoaded records a successful model/scenario load for a sub-model.
	TransLoaded Transition = iota
	// TransRunStart marks a sub-model as running.
	TransRunStart
	// TransRunDone records a successful run completion.
	TransRunDone
	// TransRunFail clears the running flag after a failed run without
	// recording completion.
	TransRunFail
	// TransModified records a successful parameter write. Dependent
	// sub-models lose their HasRun flag: running with stale upstream
	// parameters is disallowed.
	TransModified
	// TransClosed resets a sub-model to its unloaded state.
	TransClosed
)

func (t Transition) String() string {
	switch t {
	case TransLoaded:
		return "loaded"
	case TransRunStart:
		return "run_start"
	case TransRunDone:
		return "run_done"
	case TransRunFail:
		return "run_fail"
	case TransModified:
		return "modified"
	case TransClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CapabilityState tracks per-sub-model readiness for one engine handle.
// It is pure data plus transition rules: the executor consults it before
// every engine call and applies transitions after successful ones. It is
// created when a model is loaded and discarded when the handle closes.
// Not safe for concurrent use; a handle has exactly one driver.
type CapabilityState struct {
	subs [3]Flags
}

// NewCapabilityState returns the state for a freshly constructed handle:
// every sub-model may load, nothing has loaded or run.
func NewCapabilityState() *CapabilityState {
	var cs CapabilityState
	for i := range cs.subs {
		cs.subs[i].CanLoad = true
	}
	return &cs
}

// Sub returns a copy of the flags for one sub-model.
func (cs *CapabilityState) Sub(sub SubModel) Flags {
	return cs.subs[sub]
}

// Can reports whether op is legal for sub in the current state.
func (cs *CapabilityState) Can(op Op, sub SubModel) bool {
	f := cs.subs[sub]
	switch op {
	case OpLoad:
		return f.CanLoad && !f.IsRunning
	case OpSetParam, OpGetParam, OpSetPair, OpSetVector, OpVectorShape, OpAddForcing:
		return f.HasLoaded && !f.IsRunning
	case OpRun:
		return f.HasLoaded && !f.IsRunning
	case OpExtract:
		return f.HasRun && !f.IsRunning
	case OpClose:
		return !f.IsRunning
	default:
		return false
	}
}

// Apply mutates the record for one transition. A disallowed transition
// returns a StateError and leaves the record unchanged.
func (cs *CapabilityState) Apply(t Transition, sub SubModel) error {
	f := cs.subs[sub]
	switch t {
	case TransLoaded:
		if !cs.Can(OpLoad, sub) {
			return &StateError{Op: OpLoad, Sub: sub, State: f}
		}
		f.HasInitialized = true
		f.HasLoaded = true
	case TransRunStart:
		if !cs.Can(OpRun, sub) {
			return &StateError{Op: OpRun, Sub: sub, State: f}
		}
		f.IsRunning = true
	case TransRunDone:
		if !f.IsRunning {
			return &StateError{Op: OpRun, Sub: sub, State: f}
		}
		f.IsRunning = false
		f.HasRun = true
		f.IsModified = false
	case TransRunFail:
		if !f.IsRunning {
			return &StateError{Op: OpRun, Sub: sub, State: f}
		}
		f.IsRunning = false
	case TransModified:
		if !cs.Can(OpSetParam, sub) {
			return &StateError{Op: OpSetParam, Sub: sub, State: f}
		}
		f.IsModified = true
		f.HasRun = false
	case TransClosed:
		if f.IsRunning {
			return &StateError{Op: OpClose, Sub: sub, State: f}
		}
		f = Flags{CanLoad: true}
	default:
		return &StateError{Op: Op(fmt.Sprintf("transition(%d)", t)), Sub: sub, State: f}
	}
	cs.subs[sub] = f

	// A parameter write invalidates completed runs downstream.
	if t == TransModified {
		for _, dep := range sub.Dependents() {
			cs.subs[dep].HasRun = false
		}
	}
	return nil
}
