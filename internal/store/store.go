// Package store defines persistence contracts for the invocca API.
package store

import (
	"context"
	"errors"

	"github.com/MCT-Salman/invocca/internal/model"
	"github.com/MCT-Salman/invocca/pkg/types"
)

var (
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrConflict is returned when a write would violate a uniqueness
	// constraint.
	ErrConflict = errors.New("resource conflict")

	// ErrReference is returned when a write points at a parent record that
	// does not exist.
	ErrReference = errors.New("referenced resource does not exist")

	// ErrInUse is returned when deleting a record other records still
	// point at.
	ErrInUse = errors.New("resource is still referenced")

	// ErrBelowBooked is returned when an event's guest capacity would drop
	// below the guests already invited.
	ErrBelowBooked = errors.New("guest capacity is below the guests already invited")

	// ErrInvalidFilter is returned for a list filter the table does not
	// support.
	ErrInvalidFilter = errors.New("unsupported filter")
)

// ListOptions controls pagination and equality filtering for list
// queries. Filter keys are the API field names (hallID, status, ...).
type ListOptions struct {
	Limit   int
	Offset  int
	Filters map[string]string
}

// Table is the CRUD contract shared by every resource collection.
type Table[S any] interface {
	// List returns a page of records, newest first, and the total number
	// of records matching the filters.
	List(ctx context.Context, opts ListOptions) ([]model.Record[S], int, error)

	// Get returns ErrNotFound if the record does not exist.
	Get(ctx context.Context, id string) (model.Record[S], error)

	// Create assigns ID and timestamps when unset.
	Create(ctx context.Context, rec model.Record[S]) (model.Record[S], error)

	// Update replaces the spec of an existing record and bumps UpdatedAt.
	Update(ctx context.Context, rec model.Record[S]) (model.Record[S], error)

	Delete(ctx context.Context, id string) error
}

// Store is the persistence surface of the API.
//
// Invitation writes re-check the event's guest ceiling against the live
// sum of sibling invitations atomically with the write and fail with an
// error matching capacity.ErrExceeded. Event updates fail with
// ErrBelowBooked when guestCapacity drops under the invited guests.
type Store interface {
	// Ping checks database connectivity. Used by the readiness check.
	Ping(ctx context.Context) error

	Halls() Table[types.Hall]
	Services() Table[types.Service]
	Events() Table[types.Event]
	Invitations() Table[types.Invitation]
	Templates() Table[types.Template]
	Reports() Table[types.Report]
	Ratings() Table[types.Rating]

	// Dashboard aggregates counts visible within scope.
	Dashboard(ctx context.Context, scope model.Scope) (types.Dashboard, error)
}
