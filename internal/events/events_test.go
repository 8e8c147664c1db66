package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MCT-Salman/invocca/pkg/types"
)

func TestNewChangeEvent(t *testing.T) {
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	ev, err := NewChangeEvent(types.Change{
		Resource: types.ResourceInvitations,
		Action:   types.ActionCreated,
		ID:       "inv-1",
		At:       at,
	})
	require.NoError(t, err)

	assert.Equal(t, "invocca.invitations.created", ev.Type)
	assert.Equal(t, "inv-1", ev.Subject)
	assert.Equal(t, Source, ev.Source)
	assert.Equal(t, JSONDataContentType, ev.DataContentType)
	assert.Regexp(t, `^evt-[0-9a-f]{32}$`, ev.ID)

	change, err := DecodeChange(ev)
	require.NoError(t, err)
	assert.Equal(t, types.ResourceInvitations, change.Resource)
	assert.Equal(t, "inv-1", change.ID)
	assert.True(t, at.Equal(change.At))
}

func TestNewChangeEvent_Validation(t *testing.T) {
	tests := []struct {
		name   string
		change types.Change
		want   string
	}{
		{name: "resource", change: types.Change{Action: "created", ID: "x"}, want: "resource"},
		{name: "action", change: types.Change{Resource: "halls", ID: "x"}, want: "action"},
		{name: "id", change: types.Change{Resource: "halls", Action: "created", ID: "  "}, want: "id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChangeEvent(tt.change)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewChangeEvent_RandomFailure(t *testing.T) {
	orig := readEventRandom
	t.Cleanup(func() { readEventRandom = orig })
	readEventRandom = func([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

	_, err := NewChangeEvent(types.Change{Resource: "halls", Action: "created", ID: "h-1"})
	assert.ErrorContains(t, err, "generating event id")
}

func TestMulti(t *testing.T) {
	var got []string
	record := func(name string, err error) Publisher {
		return PublisherFunc(func(_ context.Context, ev Event) error {
			got = append(got, name+":"+ev.Type)
			return err
		})
	}

	m := Multi{record("a", nil), nil, record("b", errors.New("down")), record("c", nil), Noop{}}
	err := m.Publish(context.Background(), Event{Type: "invocca.halls.updated"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
	assert.Equal(t, []string{
		"a:invocca.halls.updated",
		"b:invocca.halls.updated",
		"c:invocca.halls.updated",
	}, got)
}
