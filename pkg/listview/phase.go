package listview

import (
	"errors"
	"fmt"
)

// Phase is the load state of a list.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseSuccess
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseSuccess:
		return "success"
	case PhaseError:
		return "error"
	default:
		return "idle"
	}
}

// ErrIllegalTransition is returned for a transition the machine forbids.
var ErrIllegalTransition = errors.New("listview: illegal phase transition")

// Machine tracks the load phase of a list:
//
//	idle -> loading -> success | error
//	success -> loading (refetch)
//	error -> loading (manual retry only)
type Machine struct {
	phase Phase
	err   error
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase { return m.phase }

// Err returns the error of the last failed load.
func (m *Machine) Err() error { return m.err }

// Load enters loading from idle or success. It is a no-op while loading.
func (m *Machine) Load() error {
	switch m.phase {
	case PhaseIdle, PhaseSuccess:
		m.phase = PhaseLoading
		return nil
	case PhaseLoading:
		return nil
	default:
		return fmt.Errorf("%w: %s -> loading requires a retry", ErrIllegalTransition, m.phase)
	}
}

// Retry re-enters loading after an error.
func (m *Machine) Retry() error {
	if m.phase != PhaseError {
		return fmt.Errorf("%w: retry from %s", ErrIllegalTransition, m.phase)
	}
	m.phase, m.err = PhaseLoading, nil
	return nil
}

// Resolve ends a load with its outcome.
func (m *Machine) Resolve(err error) error {
	if m.phase != PhaseLoading {
		return fmt.Errorf("%w: resolve from %s", ErrIllegalTransition, m.phase)
	}
	if err != nil {
		m.phase, m.err = PhaseError, err
		return nil
	}
	m.phase, m.err = PhaseSuccess, nil
	return nil
}

// Reset returns the machine to idle.
func (m *Machine) Reset() {
	m.phase, m.err = PhaseIdle, nil
}
