package form

import (
	"context"
	"maps"
	"sync"
)

// State is the editable state of one open form: raw input, the current
// errors and the submit-in-flight flag.
type State struct {
	mu      sync.Mutex
	schema  *Schema
	values  map[string]string
	errors  Errors
	pending bool
}

// NewState returns a form seeded with schema defaults overlaid by initial.
func NewState(schema *Schema, initial map[string]string) *State {
	st := &State{schema: schema}
	st.Reset(initial)
	return st
}

// Schema returns the schema the form validates against.
func (st *State) Schema() *Schema { return st.schema }

// Reset discards input and errors and reseeds the form.
func (st *State) Reset(initial map[string]string) {
	values := st.schema.Defaults()
	maps.Copy(values, initial)

	st.mu.Lock()
	defer st.mu.Unlock()
	st.values = values
	st.errors = nil
	st.pending = false
}

// Set stores raw input for name and revalidates that field. It returns the
// field's error message, "" when valid.
func (st *State) Set(name, raw string) string {
	_, msg := st.schema.ValidateField(name, raw)

	st.mu.Lock()
	defer st.mu.Unlock()
	st.values[name] = raw
	st.errors = st.errors.without(name)
	if msg != "" {
		st.errors = append(st.errors, FieldError{Field: name, Message: msg})
	}
	return msg
}

// Value returns the raw input of name.
func (st *State) Value(name string) string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.values[name]
}

// Raw returns a copy of all raw input.
func (st *State) Raw() map[string]string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return maps.Clone(st.values)
}

// Errors returns the current field errors.
func (st *State) Errors() Errors {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append(Errors(nil), st.errors...)
}

// Validate runs the full schema and replaces the stored errors. ok is true
// when there are none.
func (st *State) Validate(ctx context.Context) (Values, bool, error) {
	raw := st.Raw()
	values, errs, err := st.schema.Validate(ctx, raw)
	if err != nil {
		return nil, false, err
	}

	st.mu.Lock()
	st.errors = errs
	st.mu.Unlock()
	return values, len(errs) == 0, nil
}

// Begin marks a submit in flight. It returns false when one already is, so
// the caller drops the duplicate submit.
func (st *State) Begin() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.pending {
		return false
	}
	st.pending = true
	return true
}

// End clears the in-flight flag.
func (st *State) End() {
	st.mu.Lock()
	st.pending = false
	st.mu.Unlock()
}

// Pending reports whether a submit is in flight.
func (st *State) Pending() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.pending
}

// SetError records an externally produced failure for name, such as a
// server-side validation message.
func (st *State) SetError(name, msg string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.errors = append(st.errors.without(name), FieldError{Field: name, Message: msg})
}
