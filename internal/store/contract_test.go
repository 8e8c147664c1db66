package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MCT-Salman/invocca/internal/model"
	"github.com/MCT-Salman/invocca/pkg/capacity"
	"github.com/MCT-Salman/invocca/pkg/types"
)

// runContract exercises behaviour every Store implementation shares.
func runContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("hall CRUD", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		created, err := st.Halls().Create(ctx, model.Record[types.Hall]{Spec: types.Hall{
			Name: "Rose Hall", Location: "Damascus", Capacity: 200, PricePerHour: 50, ManagerID: "m-1", Active: true,
		}})
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.False(t, created.CreatedAt.IsZero())

		got, err := st.Halls().Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.Spec, got.Spec)

		got.Spec.Active = false
		updated, err := st.Halls().Update(ctx, got)
		require.NoError(t, err)
		assert.False(t, updated.Spec.Active)
		assert.NotEqual(t, created.ETag(), updated.ETag())

		require.NoError(t, st.Halls().Delete(ctx, created.ID))
		_, err = st.Halls().Get(ctx, created.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, st.Halls().Delete(ctx, created.ID), ErrNotFound)
	})

	t.Run("update missing", func(t *testing.T) {
		st := newStore(t)
		_, err := st.Templates().Update(context.Background(), model.Record[types.Template]{ID: "nope"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list filters and pages", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		for i, active := range []bool{true, false, true, true} {
			_, err := st.Halls().Create(ctx, model.Record[types.Hall]{Spec: types.Hall{
				Name: "Hall " + string(rune('A'+i)), Capacity: 10, Active: active,
			}})
			require.NoError(t, err)
		}

		items, total, err := st.Halls().List(ctx, ListOptions{Limit: 2, Filters: map[string]string{"active": "true"}})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, items, 2)
		assert.Equal(t, "Hall D", items[0].Spec.Name)

		items, _, err = st.Halls().List(ctx, ListOptions{Limit: 2, Offset: 2, Filters: map[string]string{"active": "true"}})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "Hall A", items[0].Spec.Name)

		_, _, err = st.Halls().List(ctx, ListOptions{Filters: map[string]string{"colour": "red"}})
		assert.ErrorIs(t, err, ErrInvalidFilter)
	})

	t.Run("duplicate hall name", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		_, err := st.Halls().Create(ctx, model.Record[types.Hall]{Spec: types.Hall{Name: "Jasmine", Capacity: 10}})
		require.NoError(t, err)
		_, err = st.Halls().Create(ctx, model.Record[types.Hall]{Spec: types.Hall{Name: "jasmine", Capacity: 10}})
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("missing parent", func(t *testing.T) {
		st := newStore(t)
		_, err := st.Services().Create(context.Background(), model.Record[types.Service]{Spec: types.Service{
			HallID: "ghost", Name: "Catering",
		}})
		assert.ErrorIs(t, err, ErrReference)

		_, err = st.Invitations().Create(context.Background(), model.Record[types.Invitation]{Spec: types.Invitation{
			EventID: "ghost", GuestName: "Sam", NumOfPeople: 1, Code: "INV-GHOST",
		}})
		assert.ErrorIs(t, err, ErrReference)
	})

	t.Run("guest ceiling", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		event := seedEvent(t, st, 10)

		first, err := st.Invitations().Create(ctx, invitation(event.ID, "INV-1", 8))
		require.NoError(t, err)

		_, err = st.Invitations().Create(ctx, invitation(event.ID, "INV-2", 3))
		require.ErrorIs(t, err, capacity.ErrExceeded)
		assert.Equal(t, "number of people exceeds the remaining capacity: maximum allowed is 2", err.Error())

		_, err = st.Invitations().Create(ctx, invitation(event.ID, "INV-2", 2))
		require.NoError(t, err)

		// Editing keeps the record's own previous count available.
		first.Spec.NumOfPeople = 8
		_, err = st.Invitations().Update(ctx, first)
		require.NoError(t, err)

		first.Spec.NumOfPeople = 9
		_, err = st.Invitations().Update(ctx, first)
		require.ErrorIs(t, err, capacity.ErrExceeded)

		_, err = st.Invitations().Create(ctx, invitation(event.ID, "INV-3", 1))
		require.ErrorIs(t, err, capacity.ErrExceeded)
		assert.Contains(t, err.Error(), "fully booked")
	})

	t.Run("event capacity below booked", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		event := seedEvent(t, st, 10)

		_, err := st.Invitations().Create(ctx, invitation(event.ID, "INV-1", 6))
		require.NoError(t, err)

		event.Spec.GuestCapacity = 5
		_, err = st.Events().Update(ctx, event)
		assert.ErrorIs(t, err, ErrBelowBooked)

		event.Spec.GuestCapacity = 6
		_, err = st.Events().Update(ctx, event)
		assert.NoError(t, err)
	})

	t.Run("hall in use and event cascade", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		event := seedEvent(t, st, 10)

		inv, err := st.Invitations().Create(ctx, invitation(event.ID, "INV-1", 2))
		require.NoError(t, err)

		assert.ErrorIs(t, st.Halls().Delete(ctx, event.Spec.HallID), ErrInUse)

		require.NoError(t, st.Events().Delete(ctx, event.ID))
		_, err = st.Invitations().Get(ctx, inv.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("dashboard", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		event := seedEvent(t, st, 10)

		_, err := st.Invitations().Create(ctx, invitation(event.ID, "INV-1", 3))
		require.NoError(t, err)
		_, err = st.Invitations().Create(ctx, invitation(event.ID, "INV-2", 4))
		require.NoError(t, err)
		_, err = st.Ratings().Create(ctx, model.Record[types.Rating]{Spec: types.Rating{
			HallID: event.Spec.HallID, ClientID: "c-1", Score: 4,
		}})
		require.NoError(t, err)
		_, err = st.Ratings().Create(ctx, model.Record[types.Rating]{Spec: types.Rating{
			HallID: event.Spec.HallID, ClientID: "c-2", Score: 5,
		}})
		require.NoError(t, err)
		_, err = st.Reports().Create(ctx, model.Record[types.Report]{Spec: types.Report{
			HallID: event.Spec.HallID, Title: "Broken AC", Status: types.ReportStatusOpen,
		}})
		require.NoError(t, err)

		dash, err := st.Dashboard(ctx, model.Scope{})
		require.NoError(t, err)
		assert.Equal(t, 1, dash.Halls)
		assert.Equal(t, 1, dash.ActiveHalls)
		assert.Equal(t, map[string]int{types.EventStatusPending: 1}, dash.Events)
		assert.Equal(t, 2, dash.Invitations)
		assert.Equal(t, 7, dash.Guests)
		assert.Equal(t, 1, dash.OpenReports)
		assert.Equal(t, 2, dash.Ratings)
		assert.InDelta(t, 4.5, dash.AverageRating, 0.001)

		scoped, err := st.Dashboard(ctx, model.Scope{ClientID: "someone-else"})
		require.NoError(t, err)
		assert.Equal(t, 0, scoped.Invitations)
		assert.Equal(t, 0, scoped.Ratings)
		assert.Empty(t, scoped.Events)
	})
}

func seedEvent(t *testing.T, st Store, guestCapacity int) model.Record[types.Event] {
	t.Helper()
	ctx := context.Background()

	hall, err := st.Halls().Create(ctx, model.Record[types.Hall]{Spec: types.Hall{
		Name: "Seed Hall", Capacity: 100, ManagerID: "m-1", Active: true,
	}})
	require.NoError(t, err)

	start := time.Date(2026, 11, 1, 18, 0, 0, 0, time.UTC)
	event, err := st.Events().Create(ctx, model.Record[types.Event]{Spec: types.Event{
		HallID:        hall.ID,
		ClientID:      "c-1",
		Name:          "Wedding",
		StartsAt:      start,
		EndsAt:        start.Add(4 * time.Hour),
		GuestCapacity: guestCapacity,
		Status:        types.EventStatusPending,
	}})
	require.NoError(t, err)
	return event
}

func invitation(eventID, code string, people int) model.Record[types.Invitation] {
	return model.Record[types.Invitation]{Spec: types.Invitation{
		EventID:     eventID,
		GuestName:   "Guest " + code,
		NumOfPeople: people,
		Code:        code,
	}}
}
