package engine

import (
	"errors"
	"testing"
)

func TestNewCapabilityState(t *testing.T) {
	cs := NewCapabilityState()
	for _, sub := range SubModels {
		f := cs.Sub(sub)
		if !f.CanLoad {
			t.Errorf("%s: CanLoad = false, want true", sub)
		}
		if f.HasLoaded || f.HasRun || f.IsRunning || f.IsModified {
			t.Errorf("%s: fresh state has set flags: %s", sub, f)
		}
	}
}

func TestRunRequiresLoad(t *testing.T) {
	cs := NewCapabilityState()

	if cs.Can(OpRun, Ecosim) {
		t.Fatal("run legal before load")
	}

	err := cs.Apply(TransRunStart, Ecosim)
	var se *StateError
	if !errors.As(err, &se) {
		t.Fatalf("Apply(TransRunStart) = %v, want StateError", err)
	}
	if se.Op != OpRun || se.Sub != Ecosim {
		t.Errorf("StateError = {%s %s}, want {run ecosim}", se.Op, se.Sub)
	}
	// Failed transition must leave state unchanged.
	if cs.Sub(Ecosim).IsRunning {
		t.Error("failed transition mutated state")
	}
}

func TestRunLifecycle(t *testing.T) {
	cs := NewCapabilityState()
	if err := cs.Apply(TransLoaded, Ecosim); err != nil {
		t.Fatalf("Apply(TransLoaded): %v", err)
	}
	if !cs.Can(OpRun, Ecosim) {
		t.Fatal("run not legal after load")
	}
	if err := cs.Apply(TransRunStart, Ecosim); err != nil {
		t.Fatalf("Apply(TransRunStart): %v", err)
	}
	if !cs.Sub(Ecosim).IsRunning {
		t.Error("IsRunning not set")
	}
	// No second run, no parameter writes while running.
	if cs.Can(OpRun, Ecosim) {
		t.Error("run legal while running")
	}
	if cs.Can(OpSetParam, Ecosim) {
		t.Error("set_param legal while running")
	}
	if err := cs.Apply(TransRunDone, Ecosim); err != nil {
		t.Fatalf("Apply(TransRunDone): %v", err)
	}
	f := cs.Sub(Ecosim)
	if f.IsRunning || !f.HasRun {
		t.Errorf("after run: %s, want run=true running=false", f)
	}
	if !cs.Can(OpExtract, Ecosim) {
		t.Error("extract not legal after run")
	}
}

func TestRunFailClearsRunningOnly(t *testing.T) {
	cs := NewCapabilityState()
	if err := cs.Apply(TransLoaded, Ecosim); err != nil {
		t.Fatal(err)
	}
	if err := cs.Apply(TransRunStart, Ecosim); err != nil {
		t.Fatal(err)
	}
	if err := cs.Apply(TransRunFail, Ecosim); err != nil {
		t.Fatalf("Apply(TransRunFail): %v", err)
	}
	f := cs.Sub(Ecosim)
	if f.IsRunning {
		t.Error("IsRunning survives a failed run")
	}
	if f.HasRun {
		t.Error("failed run recorded as completed")
	}
	if !cs.Can(OpRun, Ecosim) {
		t.Error("run not legal after a failed run")
	}
	// Without a running flag there is nothing to fail.
	if err := cs.Apply(TransRunFail, Ecosim); err == nil {
		t.Error("run_fail legal while not running")
	}
}

func TestModifiedInvalidatesDependents(t *testing.T) {
	cs := NewCapabilityState()
	for _, sub := range SubModels {
		if err := cs.Apply(TransLoaded, sub); err != nil {
			t.Fatalf("load %s: %v", sub, err)
		}
		if err := cs.Apply(TransRunStart, sub); err != nil {
			t.Fatalf("run start %s: %v", sub, err)
		}
		if err := cs.Apply(TransRunDone, sub); err != nil {
			t.Fatalf("run done %s: %v", sub, err)
		}
	}

	if err := cs.Apply(TransModified, Ecosim); err != nil {
		t.Fatalf("Apply(TransModified): %v", err)
	}
	if !cs.Sub(Ecosim).IsModified {
		t.Error("IsModified not set")
	}
	if cs.Sub(Ecosim).HasRun {
		t.Error("modified sub-model keeps HasRun")
	}
	if cs.Sub(Ecotracer).HasRun {
		t.Error("dependent keeps HasRun after upstream modification")
	}
	// Upstream is untouched.
	if !cs.Sub(Ecopath).HasRun {
		t.Error("upstream HasRun cleared by downstream modification")
	}
}

func TestRunDoneClearsModified(t *testing.T) {
	cs := NewCapabilityState()
	if err := cs.Apply(TransLoaded, Ecotracer); err != nil {
		t.Fatal(err)
	}
	if err := cs.Apply(TransModified, Ecotracer); err != nil {
		t.Fatal(err)
	}
	if err := cs.Apply(TransRunStart, Ecotracer); err != nil {
		t.Fatal(err)
	}
	if err := cs.Apply(TransRunDone, Ecotracer); err != nil {
		t.Fatal(err)
	}
	if cs.Sub(Ecotracer).IsModified {
		t.Error("IsModified survives a successful run")
	}
}

func TestClosedResets(t *testing.T) {
	cs := NewCapabilityState()
	if err := cs.Apply(TransLoaded, Ecopath); err != nil {
		t.Fatal(err)
	}
	if err := cs.Apply(TransClosed, Ecopath); err != nil {
		t.Fatal(err)
	}
	f := cs.Sub(Ecopath)
	if f.HasLoaded || f.HasRun || f.IsModified {
		t.Errorf("after close: %s, want clean state", f)
	}
	if !f.CanLoad {
		t.Error("CanLoad false after close")
	}
}
