// Package model holds the persisted form of invocca resources.
package model

import (
	"fmt"
	"time"
)

// Record is a stored resource: server-assigned identity and timestamps
// around the client-visible spec.
type Record[S any] struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Spec      S
}

// ETag returns the weak entity tag for the record's current revision.
func (r Record[S]) ETag() string {
	return ComputeETag(r.ID, r.UpdatedAt)
}

// ComputeETag produces a weak ETag from the resource ID and its last
// modification timestamp.
func ComputeETag(id string, updatedAt time.Time) string {
	return fmt.Sprintf(`W/"%s-%d"`, id, updatedAt.UnixNano())
}

// Scope narrows dashboard figures to what a caller may see. Empty fields
// mean unrestricted.
type Scope struct {
	ClientID  string
	ManagerID string
}
