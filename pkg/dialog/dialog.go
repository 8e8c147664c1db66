// Package dialog tracks which modal a resource screen has open and which
// record it is bound to.
//
// At most one modal is open at a time. Create carries no record; edit, view
// and delete always carry one with an identifier.
package dialog

import (
	"errors"
	"sync"
)

// Mode identifies the open modal.
type Mode int

const (
	ModeNone Mode = iota
	ModeCreate
	ModeEdit
	ModeView
	ModeDelete
)

func (m Mode) String() string {
	switch m {
	case ModeCreate:
		return "create"
	case ModeEdit:
		return "edit"
	case ModeView:
		return "view"
	case ModeDelete:
		return "delete"
	default:
		return "none"
	}
}

// RequiresSelection reports whether the mode is bound to a record.
func (m Mode) RequiresSelection() bool {
	return m == ModeEdit || m == ModeView || m == ModeDelete
}

// ErrNoSelection is returned when a record-bound modal is opened without a
// record identifier.
var ErrNoSelection = errors.New("dialog: record with an id is required")

// Entity is anything a modal can be bound to.
type Entity interface {
	EntityID() string
}

// State is an immutable snapshot of the controller.
type State[T Entity] struct {
	mode     Mode
	selected T
	bound    bool
}

// Mode returns the open modal, ModeNone when closed.
func (s State[T]) Mode() Mode { return s.mode }

// Selected returns the bound record. ok is false in create and none modes.
func (s State[T]) Selected() (T, bool) { return s.selected, s.bound }

// IsOpen reports whether any modal is open.
func (s State[T]) IsOpen() bool { return s.mode != ModeNone }

// Is reports whether the given modal is the open one.
func (s State[T]) Is(m Mode) bool { return s.mode == m }

// Controller owns the dialog state of one screen. It is safe for concurrent
// use.
type Controller[T Entity] struct {
	mu       sync.Mutex
	state    State[T]
	onChange func(State[T])
}

// New returns a closed controller. onChange, when non-nil, is called with
// every new state after the lock is released.
func New[T Entity](onChange func(State[T])) *Controller[T] {
	return &Controller[T]{onChange: onChange}
}

// State returns the current snapshot.
func (c *Controller[T]) State() State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OpenCreate opens the create modal with no bound record.
func (c *Controller[T]) OpenCreate() {
	c.set(State[T]{mode: ModeCreate})
}

// OpenEdit opens the edit modal bound to e.
func (c *Controller[T]) OpenEdit(e T) error { return c.open(ModeEdit, e) }

// OpenView opens the read-only modal bound to e.
func (c *Controller[T]) OpenView(e T) error { return c.open(ModeView, e) }

// OpenDelete opens the delete confirmation bound to e.
func (c *Controller[T]) OpenDelete(e T) error { return c.open(ModeDelete, e) }

// Close closes whatever modal is open and clears the selection. Requests
// already in flight are not affected.
func (c *Controller[T]) Close() {
	c.set(State[T]{})
}

func (c *Controller[T]) open(m Mode, e T) error {
	if e.EntityID() == "" {
		return ErrNoSelection
	}
	c.set(State[T]{mode: m, selected: e, bound: true})
	return nil
}

func (c *Controller[T]) set(s State[T]) {
	c.mu.Lock()
	c.state = s
	fn := c.onChange
	c.mu.Unlock()

	if fn != nil {
		fn(s)
	}
}
