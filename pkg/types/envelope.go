// Package types defines the wire format of the invocca API. It is shared by
// the API server, the client SDK and the console.
package types

import "time"

// APIVersion is the apiVersion stamped on every envelope.
const APIVersion = "invocca/v1"

// Resource is the standard envelope for a single API resource.
type Resource[T any] struct {
	Kind       string           `json:"kind"`
	APIVersion string           `json:"apiVersion"`
	Metadata   ResourceMetadata `json:"metadata"`
	Spec       T                `json:"spec"`
}

// EntityID returns the resource identifier.
func (r Resource[T]) EntityID() string {
	return r.Metadata.ID
}

// ResourceMetadata carries identity and audit fields common to all resources.
type ResourceMetadata struct {
	ID        string    `json:"id"`
	ETag      string    `json:"etag,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ResourceList is the standard envelope for a page of resources.
type ResourceList[T any] struct {
	Kind       string       `json:"kind"`
	APIVersion string       `json:"apiVersion"`
	Metadata   ListMetadata `json:"metadata"`
	Items      []T          `json:"items"`
}

// ListMetadata carries pagination information for list responses.
type ListMetadata struct {
	TotalCount int `json:"totalCount"`
	Limit      int `json:"limit"`
	Offset     int `json:"offset"`
}

// ProblemDetail is an RFC 9457 problem document.
type ProblemDetail struct {
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Status   int               `json:"status"`
	Detail   string            `json:"detail,omitempty"`
	Instance string            `json:"instance,omitempty"`
	Errors   []ValidationError `json:"errors,omitempty"`
}

// ValidationError is a single field-level validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Change actions published on the change feed.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// Change describes a committed mutation. It is delivered over the
// /api/v1/changes websocket and mirrors the NATS change event subject
// invocca.<resource>.<action>.
type Change struct {
	Resource string    `json:"resource"`
	Action   string    `json:"action"`
	ID       string    `json:"id"`
	At       time.Time `json:"at"`
}
