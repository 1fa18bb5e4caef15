package dispatch

import (
	"errors"
	"fmt"
	"time"
)

// errNilLoader guards NewDispatcher against a missing loader.
var errNilLoader = errors.New("model loader must not be nil")

// AlreadyLoadingError is returned by BeginLoad when the lifecycle is not in a
// state that permits starting a load (i.e. not Unloaded or Error).
type AlreadyLoadingError struct {
	Status ModelStatus // state at the time of the rejected transition
}

func (e *AlreadyLoadingError) Error() string {
	return fmt.Sprintf("cannot begin load from state %q", e.Status)
}

// ModelNotReadyError is returned by inference calls while the lifecycle is
// anything other than Ready. Always recoverable: retry after a load succeeds.
type ModelNotReadyError struct {
	Status ModelStatus // state observed at dispatch time
}

func (e *ModelNotReadyError) Error() string {
	return fmt.Sprintf("model not ready: state is %q", e.Status)
}

// TimeoutError is returned when a generation call exceeds the configured
// deadline. The deadline is measured from the moment the model is invoked.
// A single timeout does not change lifecycle state.
type TimeoutError struct {
	Timeout time.Duration // the configured per-request deadline
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("generation exceeded deadline of %v", e.Timeout)
}

// InferenceError wraps any non-timeout failure raised by the model runtime.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// LoadError wraps a model initialization failure. The lifecycle transitions
// to Error and all inference calls fail fast with ModelNotReadyError until a
// new load attempt succeeds.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("model load failed: %v", e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
