// Package events defines the change events invocca publishes after every
// committed mutation, and the publishers that carry them.
package events

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MCT-Salman/invocca/pkg/types"
)

const (
	// JSONDataContentType is the content type of event payloads.
	JSONDataContentType = "application/json"

	specVersion = "1.0"
	// SubjectPrefix roots every change subject: invocca.<resource>.<action>.
	SubjectPrefix = "invocca"
	// Source identifies the API as the event producer.
	Source = "invocca-api"
)

var (
	readEventRandom = rand.Read
	marshalChange   = json.Marshal
)

// Event is a CloudEvents-shaped envelope.
type Event struct {
	SpecVersion     string          `json:"specversion"`
	ID              string          `json:"id"`
	Source          string          `json:"source"`
	Type            string          `json:"type"`
	Subject         string          `json:"subject,omitempty"`
	Time            time.Time       `json:"time"`
	DataContentType string          `json:"datacontenttype,omitempty"`
	Data            json.RawMessage `json:"data,omitempty"`
}

// Publisher delivers events to some transport.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event Event) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Noop discards events.
type Noop struct{}

// Publish does nothing.
func (Noop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every publisher, joining their errors.
type Multi []Publisher

// Publish delivers to all publishers even when some fail.
func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ChangeType returns the event type and subject for a change.
func ChangeType(resource, action string) string {
	return SubjectPrefix + "." + resource + "." + action
}

// NewChangeEvent wraps a committed mutation.
func NewChangeEvent(change types.Change) (Event, error) {
	change.Resource = strings.TrimSpace(change.Resource)
	change.Action = strings.TrimSpace(change.Action)
	change.ID = strings.TrimSpace(change.ID)
	switch {
	case change.Resource == "":
		return Event{}, errors.New("change resource is required")
	case change.Action == "":
		return Event{}, errors.New("change action is required")
	case change.ID == "":
		return Event{}, errors.New("change id is required")
	}
	if change.At.IsZero() {
		change.At = time.Now().UTC()
	}

	id, err := newEventID()
	if err != nil {
		return Event{}, err
	}
	data, err := marshalChange(change)
	if err != nil {
		return Event{}, fmt.Errorf("marshaling change payload: %w", err)
	}

	return Event{
		SpecVersion:     specVersion,
		ID:              id,
		Source:          Source,
		Type:            ChangeType(change.Resource, change.Action),
		Subject:         change.ID,
		Time:            change.At,
		DataContentType: JSONDataContentType,
		Data:            data,
	}, nil
}

// DecodeChange extracts the change carried by event.
func DecodeChange(event Event) (types.Change, error) {
	var change types.Change
	if err := json.Unmarshal(event.Data, &change); err != nil {
		return types.Change{}, fmt.Errorf("decoding change %s: %w", event.ID, err)
	}
	return change, nil
}

func newEventID() (string, error) {
	var id [16]byte
	if _, err := readEventRandom(id[:]); err != nil {
		return "", fmt.Errorf("generating event id: %w", err)
	}
	return "evt-" + hex.EncodeToString(id[:]), nil
}
