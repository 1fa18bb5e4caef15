package dispatch

import (
	"context"
	"errors"
	"testing"
)

// nopModel is a minimal ModelHandle for lifecycle tests.
type nopModel struct {
	unloaded bool
}

func (m *nopModel) Generate(_ context.Context, prompt string, _ GenerationParams) (GenerationOutput, error) {
	return GenerationOutput{Text: prompt, TokenCount: 1}, nil
}

func (m *nopModel) Unload() error {
	m.unloaded = true
	return nil
}

func TestLifecycle_HappyPath(t *testing.T) {
	l := newLifecycle()
	if l.Status() != StatusUnloaded {
		t.Fatalf("new lifecycle should be unloaded, got %q", l.Status())
	}

	if err := l.BeginLoad(); err != nil {
		t.Fatalf("BeginLoad from unloaded: %v", err)
	}
	if l.Status() != StatusLoading {
		t.Errorf("expected loading, got %q", l.Status())
	}

	model := &nopModel{}
	l.CompleteLoad(model, nil)
	if l.Status() != StatusReady {
		t.Errorf("expected ready, got %q", l.Status())
	}

	handle, err := l.Handle()
	if err != nil {
		t.Fatalf("Handle after ready: %v", err)
	}
	if handle != model {
		t.Error("Handle returned a different model")
	}

	if err := l.Unload(); err != nil {
		t.Fatalf("Unload: %v", err)
	}
	if l.Status() != StatusUnloaded {
		t.Errorf("expected unloaded after Unload, got %q", l.Status())
	}
	if !model.unloaded {
		t.Error("model handle was not released")
	}
}

// TestLifecycle_BeginLoadRejected verifies BeginLoad fails from Loading and
// Ready with AlreadyLoadingError carrying the offending state.
func TestLifecycle_BeginLoadRejected(t *testing.T) {
	l := newLifecycle()
	if err := l.BeginLoad(); err != nil {
		t.Fatalf("BeginLoad: %v", err)
	}

	err := l.BeginLoad()
	var alreadyLoading *AlreadyLoadingError
	if !errors.As(err, &alreadyLoading) {
		t.Fatalf("expected AlreadyLoadingError, got %v", err)
	}
	if alreadyLoading.Status != StatusLoading {
		t.Errorf("expected state loading in error, got %q", alreadyLoading.Status)
	}

	l.CompleteLoad(&nopModel{}, nil)
	if err := l.BeginLoad(); err == nil {
		t.Error("BeginLoad from ready must fail")
	}
}

// TestLifecycle_LoadFailure verifies Loading -> Error stores the reason and
// that a new load attempt is permitted from Error.
func TestLifecycle_LoadFailure(t *testing.T) {
	l := newLifecycle()
	if err := l.BeginLoad(); err != nil {
		t.Fatalf("BeginLoad: %v", err)
	}

	l.CompleteLoad(nil, errors.New("weights corrupt"))
	if l.Status() != StatusError {
		t.Fatalf("expected error state, got %q", l.Status())
	}

	// Inference fails fast with the current state, no blocking wait
	_, err := l.Handle()
	var notReady *ModelNotReadyError
	if !errors.As(err, &notReady) {
		t.Fatalf("expected ModelNotReadyError, got %v", err)
	}
	if notReady.Status != StatusError {
		t.Errorf("expected state error in ModelNotReadyError, got %q", notReady.Status)
	}

	// Error -> Loading is a permitted retry path
	if err := l.BeginLoad(); err != nil {
		t.Errorf("BeginLoad from error state should succeed: %v", err)
	}
}

func TestLifecycle_UnloadOutsideReadyIsNoop(t *testing.T) {
	l := newLifecycle()
	if err := l.Unload(); err != nil {
		t.Errorf("Unload from unloaded should be a no-op, got %v", err)
	}
	if l.Status() != StatusUnloaded {
		t.Errorf("state changed by no-op unload: %q", l.Status())
	}

	l.BeginLoad()
	if err := l.Unload(); err != nil {
		t.Errorf("Unload from loading should be a no-op, got %v", err)
	}
	if l.Status() != StatusLoading {
		t.Errorf("no-op unload must not leave loading state, got %q", l.Status())
	}
}

// TestLifecycle_StaleCompletionIgnored verifies a CompleteLoad outside
// Loading does not clobber the current state.
func TestLifecycle_StaleCompletionIgnored(t *testing.T) {
	l := newLifecycle()
	l.CompleteLoad(&nopModel{}, nil)
	if l.Status() != StatusUnloaded {
		t.Errorf("completion without BeginLoad must be ignored, got %q", l.Status())
	}
}
