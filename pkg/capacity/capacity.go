// Package capacity implements the guest-count ceiling shared by the form
// validator and the API store: the sum of a numeric field across sibling
// records must not exceed a ceiling carried by their parent.
package capacity

import (
	"errors"
	"fmt"
)

// ErrExceeded is matched by every *ExceededError.
var ErrExceeded = errors.New("capacity exceeded")

// Snapshot is the state a candidate count is checked against.
//
// Used is the sum over every record currently attached to the parent,
// including the record being edited. Previous is the count the edited record
// holds today and is zero on create.
type Snapshot struct {
	Ceiling  int
	Used     int
	Previous int
}

// Remaining is the largest count the candidate may carry. It never goes
// below zero.
func (s Snapshot) Remaining() int {
	r := s.Ceiling - s.Used + s.Previous
	if r < 0 {
		return 0
	}
	return r
}

// Allows reports whether n fits: Used - Previous + n <= Ceiling.
func (s Snapshot) Allows(n int) bool {
	return s.Used-s.Previous+n <= s.Ceiling
}

// ExceededError carries the numbers behind a rejected count.
type ExceededError struct {
	Snapshot  Snapshot
	Requested int
}

func (e *ExceededError) Error() string {
	return Message(e.Snapshot.Remaining())
}

// Is makes errors.Is(err, ErrExceeded) hold.
func (e *ExceededError) Is(target error) bool {
	return target == ErrExceeded
}

// Check returns an *ExceededError when n does not fit in s.
func Check(s Snapshot, n int) error {
	if s.Allows(n) {
		return nil
	}
	return &ExceededError{Snapshot: s, Requested: n}
}

// Message is the user-facing text for a rejected count.
func Message(remaining int) string {
	if remaining <= 0 {
		return "the event is fully booked: no more guests can be invited"
	}
	return fmt.Sprintf("number of people exceeds the remaining capacity: maximum allowed is %d", remaining)
}

// Sum adds count(item) over items, skipping those for which skip returns true.
// A nil skip keeps every item.
func Sum[T any](items []T, count func(T) int, skip func(T) bool) int {
	total := 0
	for _, item := range items {
		if skip != nil && skip(item) {
			continue
		}
		total += count(item)
	}
	return total
}
