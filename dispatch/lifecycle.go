// Tracks whether a model handle is absent, being acquired, ready, or failed.
// Every inference call checks this state first and fails fast when the model
// is not Ready — there is no blocking wait on a load in progress.

package dispatch

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// ModelStatus is the lifecycle state of the dispatcher's model handle.
type ModelStatus string

const (
	StatusUnloaded ModelStatus = "unloaded"
	StatusLoading  ModelStatus = "loading"
	StatusReady    ModelStatus = "ready"
	StatusError    ModelStatus = "error"
)

// lifecycle is the state machine guarding the model handle. Permitted
// transitions: Unloaded/Error -> Loading -> Ready|Error, Ready -> Unloaded.
// There is no direct path to Ready that skips Loading.
type lifecycle struct {
	mu      sync.RWMutex
	status  ModelStatus
	handle  ModelHandle
	loadErr error // failure reason while in StatusError
}

func newLifecycle() *lifecycle {
	return &lifecycle{status: StatusUnloaded}
}

// Status returns the current state.
func (l *lifecycle) Status() ModelStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

// Handle returns the model handle when Ready, or a ModelNotReadyError
// carrying the current state.
func (l *lifecycle) Handle() (ModelHandle, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.status != StatusReady {
		return nil, &ModelNotReadyError{Status: l.status}
	}
	return l.handle, nil
}

// BeginLoad transitions to Loading. Fails with AlreadyLoadingError unless the
// current state is Unloaded or Error.
func (l *lifecycle) BeginLoad() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status != StatusUnloaded && l.status != StatusError {
		return &AlreadyLoadingError{Status: l.status}
	}
	l.status = StatusLoading
	l.loadErr = nil
	logrus.Info("model load started")
	return nil
}

// CompleteLoad finishes a load attempt: from Loading to Ready (storing the
// handle) or to Error (storing the failure reason). Calls outside Loading are
// ignored so a racing Unload cannot be clobbered by a stale completion.
func (l *lifecycle) CompleteLoad(handle ModelHandle, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status != StatusLoading {
		logrus.Warnf("ignoring load completion in state %q", l.status)
		return
	}
	if err != nil {
		l.status = StatusError
		l.loadErr = err
		logrus.Errorf("model load failed: %v", err)
		return
	}
	l.status = StatusReady
	l.handle = handle
	logrus.Info("model ready")
}

// Unload releases the handle and transitions Ready -> Unloaded. A no-op from
// every other state. Returns the handle's Unload error, if any.
func (l *lifecycle) Unload() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status != StatusReady {
		return nil
	}
	handle := l.handle
	l.handle = nil
	l.status = StatusUnloaded
	logrus.Info("model unloaded")
	if handle != nil {
		return handle.Unload()
	}
	return nil
}
