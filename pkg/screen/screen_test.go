package screen

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MCT-Salman/invocca/pkg/capacity"
	"github.com/MCT-Salman/invocca/pkg/client"
	"github.com/MCT-Salman/invocca/pkg/crud"
	"github.com/MCT-Salman/invocca/pkg/dialog"
	"github.com/MCT-Salman/invocca/pkg/form"
	"github.com/MCT-Salman/invocca/pkg/listview"
	"github.com/MCT-Salman/invocca/pkg/notify"
	"github.com/MCT-Salman/invocca/pkg/query"
	"github.com/MCT-Salman/invocca/pkg/types"
)

type invitation struct {
	ID        string
	Guest     string
	People    int
	Confirmed bool
}

func (i invitation) EntityID() string { return i.ID }

type memInvitations struct {
	mu      sync.Mutex
	rows    []invitation
	next    int
	fetches atomic.Int32
	failErr error
	block   chan struct{}
}

func (m *memInvitations) list(ctx context.Context) ([]invitation, error) {
	m.fetches.Add(1)
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]invitation(nil), m.rows...), nil
}

func (m *memInvitations) Create(_ context.Context, p invitation) (invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return invitation{}, m.failErr
	}
	m.next++
	p.ID = "i-" + strconv.Itoa(m.next)
	m.rows = append(m.rows, p)
	return p, nil
}

func (m *memInvitations) Update(_ context.Context, id string, p invitation) (invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return invitation{}, m.failErr
	}
	for i := range m.rows {
		if m.rows[i].ID == id {
			p.ID = id
			m.rows[i] = p
			return p, nil
		}
	}
	return invitation{}, errors.New("not found")
}

func (m *memInvitations) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return errors.New("not found")
}

func (m *memInvitations) used() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return capacity.Sum(m.rows, func(i invitation) int { return i.People }, nil)
}

const ceiling = 10

func newInvitationScreen(store *memInvitations, n notify.Notifier) *Screen[invitation, invitation] {
	return New(Config[invitation, invitation]{
		Title:    "Invitations",
		Key:      query.Key{"invitations", "event", "e-1"},
		Cache:    query.NewCache(),
		Fetch:    store.list,
		Resource: store,
		Notifier: n,
		Messages: crud.DefaultMessages("Invitation"),
		Schema: func(selected *invitation) *form.Schema {
			previous := 0
			if selected != nil {
				previous = selected.People
			}
			return form.NewSchema(
				form.String("guestName", "Guest name", form.Required()),
				form.Int("numOfPeople", "Number of people", form.Required(), form.Min(1), form.Default("1")),
			).Refine(form.GuestCeiling("numOfPeople", func(context.Context, form.Values) (capacity.Snapshot, error) {
				return capacity.Snapshot{Ceiling: ceiling, Used: store.used(), Previous: previous}, nil
			}))
		},
		Values: func(i invitation) map[string]string {
			return map[string]string{"guestName": i.Guest, "numOfPeople": strconv.Itoa(i.People)}
		},
		Payload: func(v form.Values, _ *invitation) (invitation, error) {
			return invitation{Guest: v.String("guestName"), People: v.Int("numOfPeople")}, nil
		},
		Columns: []listview.Column[invitation]{
			{Title: "Guest", Value: func(i invitation) string { return i.Guest }},
			{Title: "People", Value: func(i invitation) string { return strconv.Itoa(i.People) }},
		},
	})
}

func mounted(t *testing.T, store *memInvitations, n notify.Notifier) *Screen[invitation, invitation] {
	t.Helper()
	s := newInvitationScreen(store, n)
	s.Mount(context.Background())
	t.Cleanup(s.Unmount)
	require.NoError(t, s.Load())
	return s
}

func TestLoadShowsRows(t *testing.T) {
	store := &memInvitations{rows: []invitation{{ID: "i-0", Guest: "Sara", People: 8}}}
	s := newInvitationScreen(store, nil)

	assert.ErrorIs(t, s.Load(), ErrNotMounted)
	s.Mount(context.Background())
	defer s.Unmount()

	assert.Equal(t, listview.FrameLoading, s.Frame().Kind)
	require.NoError(t, s.Load())
	f := s.Frame()
	assert.Equal(t, listview.FrameRows, f.Kind)
	assert.Len(t, f.Rows, 1)

	require.NoError(t, s.Load())
	assert.EqualValues(t, 1, store.fetches.Load())
}

func TestCreateOverCeilingStaysOpen(t *testing.T) {
	store := &memInvitations{rows: []invitation{{ID: "i-0", Guest: "Sara", People: 8}}}
	q := &notify.Queue{}
	s := mounted(t, store, q)

	s.OpenCreate()
	_, err := s.SetField("guestName", "Lina")
	require.NoError(t, err)
	_, _ = s.SetField("numOfPeople", "3")

	res := s.Submit()
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrInvalid)
	assert.True(t, s.Dialog().Is(dialog.ModeCreate))
	assert.Contains(t, s.Form().Errors().Get("numOfPeople"), "maximum allowed is 2")
	assert.Equal(t, "Lina", s.Form().Value("guestName"))

	got := q.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, notify.LevelWarning, got[0].Level)

	_, _ = s.SetField("numOfPeople", "2")
	res = s.Submit()
	require.True(t, res.Success)
	assert.False(t, s.Dialog().IsOpen())
	assert.Nil(t, s.Form())
	assert.Len(t, s.Frame().Rows, 2)
	assert.EqualValues(t, 2, store.fetches.Load())

	got = q.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, "Invitation created successfully", got[0].Message)
}

func TestEditAllowsSameCount(t *testing.T) {
	store := &memInvitations{rows: []invitation{
		{ID: "i-0", Guest: "Sara", People: 6},
		{ID: "i-1", Guest: "Omar", People: 4},
	}}
	s := mounted(t, store, nil)

	s.List().MoveCursor(1)
	require.NoError(t, s.List().Invoke("e"))
	sel, ok := s.Dialog().Selected()
	require.True(t, ok)
	assert.Equal(t, "i-1", sel.ID)
	assert.Equal(t, "4", s.Form().Value("numOfPeople"))

	_, _ = s.SetField("guestName", "Omar K.")
	res := s.Submit()
	require.True(t, res.Success)
	assert.Equal(t, "Omar K.", res.Data.Guest)
	assert.False(t, s.Dialog().IsOpen())
	assert.EqualValues(t, 2, store.fetches.Load())
	assert.Equal(t, []invitation{
		{ID: "i-0", Guest: "Sara", People: 6},
		{ID: "i-1", Guest: "Omar K.", People: 4},
	}, s.Frame().Rows)

	s.OpenCreate()
	_, ok = s.Dialog().Selected()
	assert.False(t, ok)
}

func TestServerErrorKeepsDialogAndMapsFieldErrors(t *testing.T) {
	store := &memInvitations{failErr: &client.APIError{
		StatusCode: http.StatusUnprocessableEntity,
		Problem: types.ProblemDetail{
			Status: http.StatusUnprocessableEntity,
			Detail: "request validation failed",
			Errors: []types.ValidationError{{Field: "numOfPeople", Message: "maximum allowed is 1"}},
		},
	}}
	q := &notify.Queue{}
	s := mounted(t, store, q)

	s.OpenCreate()
	_, _ = s.SetField("guestName", "Lina")
	_, _ = s.SetField("numOfPeople", "2")

	res := s.Submit()
	assert.False(t, res.Success)
	assert.True(t, s.Dialog().Is(dialog.ModeCreate))
	assert.Equal(t, "maximum allowed is 1", s.Form().Errors().Get("numOfPeople"))
	assert.Equal(t, "2", s.Form().Value("numOfPeople"))

	got := q.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, notify.LevelError, got[0].Level)
	assert.Equal(t, "request validation failed", got[0].Message)
}

func TestConfirmDelete(t *testing.T) {
	store := &memInvitations{rows: []invitation{{ID: "i-0", Guest: "Sara", People: 2}}}
	s := mounted(t, store, nil)

	assert.ErrorIs(t, s.ConfirmDelete().Err, ErrWrongDialog)

	require.NoError(t, s.List().Invoke("d"))
	res := s.ConfirmDelete()
	require.True(t, res.Success)
	assert.False(t, s.Dialog().IsOpen())
	assert.Equal(t, listview.FrameEmpty, s.Frame().Kind)
}

func TestToggleRow(t *testing.T) {
	store := &memInvitations{rows: []invitation{
		{ID: "i-0", Guest: "Sara", People: 2},
		{ID: "i-1", Guest: "Omar", People: 3},
	}}
	q := &notify.Queue{}
	s := newInvitationScreen(store, q)
	assert.False(t, s.CanToggle())
	assert.ErrorIs(t, s.ToggleRow(invitation{ID: "i-0"}).Err, ErrNoToggle)

	s = New(func() Config[invitation, invitation] {
		cfg := s.cfg
		cfg.Toggle = &Toggle[invitation]{
			Label: "confirm",
			Patch: func(ctx context.Context, row invitation) (invitation, error) {
				row.Confirmed = !row.Confirmed
				return store.Update(ctx, row.ID, row)
			},
			Message: func(i invitation) string {
				if i.Confirmed {
					return i.Guest + " confirmed"
				}
				return i.Guest + " unconfirmed"
			},
		}
		return cfg
	}())
	require.True(t, s.CanToggle())
	assert.ErrorIs(t, s.ToggleRow(invitation{ID: "i-0"}).Err, ErrNotMounted)

	s.Mount(context.Background())
	defer s.Unmount()
	require.NoError(t, s.Load())
	actions := s.List().Actions()
	require.Len(t, actions, 4)
	assert.Equal(t, "t", actions[3].Key)
	assert.Equal(t, "confirm", actions[3].Label)

	s.List().MoveCursor(1)
	require.NoError(t, s.List().Invoke("t"))
	assert.False(t, s.Dialog().IsOpen())
	assert.EqualValues(t, 2, store.fetches.Load())
	assert.Equal(t, []invitation{
		{ID: "i-0", Guest: "Sara", People: 2},
		{ID: "i-1", Guest: "Omar", People: 3, Confirmed: true},
	}, s.Frame().Rows)

	got := q.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, notify.LevelSuccess, got[0].Level)
	assert.Equal(t, "Omar confirmed", got[0].Message)

	res := s.ToggleRow(s.Frame().Rows[1])
	require.True(t, res.Success)
	assert.False(t, res.Data.Confirmed)
	assert.Equal(t, "Omar unconfirmed", q.Drain()[0].Message)
}

func TestSubmitRequiresFormDialog(t *testing.T) {
	store := &memInvitations{rows: []invitation{{ID: "i-0", Guest: "Sara", People: 2}}}
	s := mounted(t, store, nil)

	require.NoError(t, s.List().Invoke("v"))
	assert.ErrorIs(t, s.Submit().Err, ErrWrongDialog)
	_, err := s.SetField("guestName", "x")
	assert.ErrorIs(t, err, ErrWrongDialog)
}

func TestUnmountDropsInFlightLoad(t *testing.T) {
	store := &memInvitations{rows: []invitation{{ID: "i-0", Guest: "Sara", People: 2}}, block: make(chan struct{})}
	s := newInvitationScreen(store, nil)
	s.Mount(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Load() }()

	require.Eventually(t, func() bool { return store.fetches.Load() == 1 }, time.Second, time.Millisecond)
	s.Unmount()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("load did not return after unmount")
	}
	assert.Zero(t, s.List().Len())
}

func TestErrorPhaseNeedsRetry(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	s := New(Config[invitation, invitation]{
		Title: "Invitations",
		Key:   query.Key{"invitations"},
		Cache: query.NewCache(query.WithStaleTime(0)),
		Fetch: func(context.Context) ([]invitation, error) {
			calls++
			if calls == 1 {
				return nil, boom
			}
			return []invitation{{ID: "i-1"}}, nil
		},
		Resource: &memInvitations{},
		Schema:   func(*invitation) *form.Schema { return form.NewSchema() },
	})
	s.Mount(context.Background())
	defer s.Unmount()

	assert.ErrorIs(t, s.Load(), boom)
	assert.Equal(t, listview.FrameError, s.Frame().Kind)
	assert.ErrorIs(t, s.Load(), listview.ErrIllegalTransition)

	require.NoError(t, s.Retry())
	assert.Equal(t, listview.FrameRows, s.Frame().Kind)
}

func TestBoundary(t *testing.T) {
	var b Boundary
	calls := 0
	render := func() string {
		calls++
		if calls == 1 {
			panic("nil row")
		}
		return "ok"
	}

	out := b.Render(render, DefaultFallback)
	assert.Contains(t, out, "nil row")
	_, failed := b.Failed()
	assert.True(t, failed)

	assert.Contains(t, b.Render(render, DefaultFallback), "retry")
	assert.Equal(t, 1, calls)

	b.Reset()
	assert.Equal(t, "ok", b.Render(render, DefaultFallback))
}

func TestScope(t *testing.T) {
	s := NewScope(context.Background())
	assert.True(t, s.Do(func() {}))
	s.End()
	s.End()
	assert.False(t, s.Alive())
	assert.False(t, s.Do(func() { t.Fatal("ran after end") }))
	assert.ErrorIs(t, s.Context().Err(), context.Canceled)
}
