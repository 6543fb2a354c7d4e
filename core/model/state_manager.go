package model

import (
	"sync"

	"github.com/YuminosukeSato/sbikde/pkg/errors"
)

// StateManager manages the fitted state of a model in a thread-safe manner.
// Queries hold the read lock for their whole duration and Fit holds the write
// lock, so a concurrent re-fit never tears a read.
type StateManager struct {
	mu     sync.RWMutex
	fitted bool

	nFeatures int
	nSamples  int
}

// NewStateManager creates a new StateManager instance.
func NewStateManager() *StateManager {
	return &StateManager{}
}

// IsFitted returns whether the model has been fitted.
func (s *StateManager) IsFitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fitted
}

// GetDimensions returns the number of features and samples seen during fitting.
func (s *StateManager) GetDimensions() (nFeatures, nSamples int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nFeatures, s.nSamples
}

// MarkFitted records a successful fit. Call only from inside WithStateMut.
func (s *StateManager) MarkFitted(nFeatures, nSamples int) {
	s.fitted = true
	s.nFeatures = nFeatures
	s.nSamples = nSamples
}

// ResetLocked clears the fitted state. Call only from inside WithStateMut.
func (s *StateManager) ResetLocked() {
	s.fitted = false
	s.nFeatures = 0
	s.nSamples = 0
}

// WithState executes fn with the state locked for reading. It returns a
// NotFittedError naming modelName and method without calling fn when the
// model has not been fitted.
func (s *StateManager) WithState(modelName, method string, fn func() error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.fitted {
		return errors.NewNotFittedError(modelName, method)
	}
	return fn()
}

// WithStateMut executes fn with the state locked for writing.
func (s *StateManager) WithStateMut(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}
