package form

import (
	"context"
	"time"

	"github.com/MCT-Salman/invocca/pkg/capacity"
)

// Values holds coerced field values keyed by field name.
type Values map[string]any

// String returns a text value or "".
func (v Values) String(name string) string {
	s, _ := v[name].(string)
	return s
}

// Int returns an integer value or 0.
func (v Values) Int(name string) int {
	n, _ := v[name].(int)
	return n
}

// Float returns a decimal value or 0.
func (v Values) Float(name string) float64 {
	n, _ := v[name].(float64)
	return n
}

// Bool returns a boolean value or false.
func (v Values) Bool(name string) bool {
	b, _ := v[name].(bool)
	return b
}

// Time returns a time value or the zero time.
func (v Values) Time(name string) time.Time {
	t, _ := v[name].(time.Time)
	return t
}

// FieldError is a validation failure attached to one field.
type FieldError struct {
	Field   string
	Message string
}

// Errors are field failures in schema order.
type Errors []FieldError

// Has reports whether field failed.
func (e Errors) Has(field string) bool {
	return e.Get(field) != ""
}

// Get returns the message for field or "".
func (e Errors) Get(field string) string {
	for _, fe := range e {
		if fe.Field == field {
			return fe.Message
		}
	}
	return ""
}

// First returns the first failure, the one surfaced as a toast.
func (e Errors) First() (FieldError, bool) {
	if len(e) == 0 {
		return FieldError{}, false
	}
	return e[0], true
}

func (e Errors) without(field string) Errors {
	out := e[:0:0]
	for _, fe := range e {
		if fe.Field != field {
			out = append(out, fe)
		}
	}
	return out
}

// SnapshotFunc loads the live capacity numbers for the values being
// submitted.
type SnapshotFunc func(ctx context.Context, v Values) (capacity.Snapshot, error)

// GuestCeiling rejects field when its count does not fit the parent's
// ceiling. snapshot is called at submit time so the check runs against live
// sibling data.
func GuestCeiling(field string, snapshot SnapshotFunc) Refinement {
	return Refinement{
		Field: field,
		Check: func(ctx context.Context, v Values) (string, error) {
			snap, err := snapshot(ctx, v)
			if err != nil {
				return "", err
			}
			if err := capacity.Check(snap, v.Int(field)); err != nil {
				return err.Error(), nil
			}
			return "", nil
		},
	}
}
