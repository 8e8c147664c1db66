package crud

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MCT-Salman/invocca/pkg/client"
	"github.com/MCT-Salman/invocca/pkg/notify"
	"github.com/MCT-Salman/invocca/pkg/query"
	"github.com/MCT-Salman/invocca/pkg/types"
)

type hall struct {
	ID   string
	Name string
}

func newFixture(res Resource[hall, string]) (*Orchestrator[hall, string], *query.Cache, *notify.Queue) {
	cache := query.NewCache()
	cache.Set(query.Key{"halls"}, []hall{{ID: "h-1", Name: "Rose"}})
	cache.Set(query.Key{"halls", "active"}, []hall{})
	cache.Set(query.Key{"events"}, []string{})
	q := &notify.Queue{}
	o := New(res, cache, q,
		WithKeys(query.Key{"halls"}),
		WithMessages(DefaultMessages("Hall")),
		WithTitle("Halls"),
	)
	return o, cache, q
}

func okResource() Funcs[hall, string] {
	return Funcs[hall, string]{
		CreateFunc: func(_ context.Context, name string) (hall, error) { return hall{ID: "h-2", Name: name}, nil },
		UpdateFunc: func(_ context.Context, id, name string) (hall, error) { return hall{ID: id, Name: name}, nil },
		DeleteFunc: func(context.Context, string) error { return nil },
	}
}

func failingResource(err error) Funcs[hall, string] {
	return Funcs[hall, string]{
		CreateFunc: func(context.Context, string) (hall, error) { return hall{}, err },
		UpdateFunc: func(context.Context, string, string) (hall, error) { return hall{}, err },
		DeleteFunc: func(context.Context, string) error { return err },
	}
}

func stale(c *query.Cache, key query.Key) bool {
	e, _ := c.Get(key)
	return e.Stale
}

func TestCreateSuccessInvalidatesAndNotifies(t *testing.T) {
	o, cache, q := newFixture(okResource())

	res := o.Create(context.Background(), "Lotus")
	require.True(t, res.Success)
	assert.NoError(t, res.Err)
	assert.Equal(t, "Lotus", res.Data.Name)

	assert.True(t, stale(cache, query.Key{"halls"}))
	assert.True(t, stale(cache, query.Key{"halls", "active"}))
	assert.False(t, stale(cache, query.Key{"events"}))

	got := q.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, notify.LevelSuccess, got[0].Level)
	assert.Equal(t, "Hall created successfully", got[0].Message)
	assert.Equal(t, "Halls", got[0].Title)
}

func TestUpdateAndDeleteMessages(t *testing.T) {
	o, _, q := newFixture(okResource())

	require.True(t, o.Update(context.Background(), "h-1", "Renamed").Success)
	require.True(t, o.Delete(context.Background(), "h-1", WithMessage("Gone")).Success)
	require.True(t, o.Delete(context.Background(), "h-1", Quiet()).Success)

	got := q.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, "Hall updated successfully", got[0].Message)
	assert.Equal(t, "Gone", got[1].Message)
}

type hallStore struct {
	mu      sync.Mutex
	names   map[string]string
	fetches int
	started chan struct{}
	release chan struct{}
}

func (s *hallStore) list(ctx context.Context) ([]hall, error) {
	s.mu.Lock()
	s.fetches++
	snapshot := []hall{{ID: "h-1", Name: s.names["h-1"]}}
	started, release := s.started, s.release
	s.started, s.release = nil, nil
	s.mu.Unlock()
	if started != nil {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return snapshot, nil
}

func (s *hallStore) resource() Funcs[hall, string] {
	return Funcs[hall, string]{
		UpdateFunc: func(_ context.Context, id, name string) (hall, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.names[id] = name
			return hall{ID: id, Name: name}, nil
		},
	}
}

func TestFetchAfterUpdateReturnsNewValue(t *testing.T) {
	store := &hallStore{names: map[string]string{"h-1": "Rose"}}
	cache := query.NewCache()
	binding := query.Bind(cache, query.Key{"halls"}, store.list)
	o := New(store.resource(), cache, nil, WithKeys(query.Key{"halls"}))
	ctx := context.Background()

	rows, err := binding.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Rose", rows[0].Name)

	require.True(t, o.Update(ctx, "h-1", "Lotus").Success)
	rows, err = binding.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []hall{{ID: "h-1", Name: "Lotus"}}, rows)
	assert.Equal(t, 2, store.fetches)
}

func TestFetchAfterUpdateDoesNotReuseEarlierLoad(t *testing.T) {
	store := &hallStore{
		names:   map[string]string{"h-1": "Rose"},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	started, release := store.started, store.release
	cache := query.NewCache()
	binding := query.Bind(cache, query.Key{"halls"}, store.list)
	o := New(store.resource(), cache, nil, WithKeys(query.Key{"halls"}))
	ctx := context.Background()

	early := make(chan []hall, 1)
	go func() {
		rows, _ := binding.Fetch(ctx)
		early <- rows
	}()
	<-started

	require.True(t, o.Update(ctx, "h-1", "Lotus").Success)
	rows, err := binding.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Lotus", rows[0].Name)

	close(release)
	assert.Equal(t, "Rose", (<-early)[0].Name)

	rows, err = binding.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Lotus", rows[0].Name)
	assert.Equal(t, 2, store.fetches)
}

func TestApply(t *testing.T) {
	o, cache, q := newFixture(okResource())

	res := o.Apply(context.Background(), func(context.Context) (hall, error) {
		return hall{ID: "h-1", Name: "Rose"}, nil
	}, func(h hall) string { return h.Name + " deactivated" })
	require.True(t, res.Success)
	assert.True(t, stale(cache, query.Key{"halls"}))

	require.True(t, o.Apply(context.Background(), func(context.Context) (hall, error) {
		return hall{ID: "h-1"}, nil
	}, nil).Success)
	res = o.Apply(context.Background(), func(context.Context) (hall, error) {
		return hall{}, errors.New("boom")
	}, nil)
	assert.False(t, res.Success)

	got := q.Drain()
	require.Len(t, got, 3)
	assert.Equal(t, "Rose deactivated", got[0].Message)
	assert.Equal(t, "Hall updated successfully", got[1].Message)
	assert.Equal(t, FallbackMessage, got[2].Message)
}

func TestServerErrorSurfacesMessageWithoutInvalidating(t *testing.T) {
	apiErr := &client.APIError{
		StatusCode: http.StatusConflict,
		Problem:    types.ProblemDetail{Status: http.StatusConflict, Title: "Conflict", Detail: "hall name already taken"},
	}
	o, cache, q := newFixture(failingResource(apiErr))

	res := o.Create(context.Background(), "Rose")
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, apiErr)

	assert.False(t, stale(cache, query.Key{"halls"}))

	got := q.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, notify.LevelError, got[0].Level)
	assert.Equal(t, "hall name already taken", got[0].Message)
}

func TestUnknownErrorUsesFallback(t *testing.T) {
	o, _, q := newFixture(failingResource(errors.New("dial tcp: connection refused")))

	res := o.Update(context.Background(), "h-1", "Rose")
	assert.False(t, res.Success)

	got := q.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, FallbackMessage, got[0].Message)
}

func TestCanceledCallIsSilent(t *testing.T) {
	o, _, q := newFixture(failingResource(context.Canceled))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := o.Delete(ctx, "h-1")
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Zero(t, q.Len())
}

func TestPendingDuringCall(t *testing.T) {
	release := make(chan struct{})
	var o *Orchestrator[hall, string]
	var sawPending bool
	res := Funcs[hall, string]{
		CreateFunc: func(context.Context, string) (hall, error) {
			sawPending = o.Pending()
			close(release)
			return hall{}, nil
		},
	}
	o = New[hall, string](res, nil, nil)

	assert.False(t, o.Pending())
	require.True(t, o.Create(context.Background(), "x").Success)
	<-release
	assert.True(t, sawPending)
	assert.False(t, o.Pending())
}

func TestMessage(t *testing.T) {
	assert.Equal(t, FallbackMessage, Message(errors.New("boom")))
	wrapped := errors.Join(errors.New("ctx"), &client.APIError{StatusCode: 500, Problem: types.ProblemDetail{Title: "Internal Server Error"}})
	assert.Equal(t, "Internal Server Error", Message(wrapped))
	assert.Equal(t, FallbackMessage, Message(&client.APIError{StatusCode: http.StatusBadGateway}))
}

func TestProxyErrorPageUsesFallback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html><head><title>502 Bad Gateway</title></head><body><center>nginx</center></body></html>"))
	}))
	defer ts.Close()

	c, err := client.New(client.Config{BaseURL: ts.URL, MaxRetries: -1})
	require.NoError(t, err)
	halls := Funcs[string, types.Hall]{
		CreateFunc: func(ctx context.Context, h types.Hall) (string, error) {
			created, err := c.Halls().Create(ctx, h)
			if err != nil {
				return "", err
			}
			return created.Metadata.ID, nil
		},
	}
	q := &notify.Queue{}
	o := New[string, types.Hall](halls, nil, q, WithMessages(DefaultMessages("Hall")))

	res := o.Create(context.Background(), types.Hall{Name: "Rose", Capacity: 10})
	require.False(t, res.Success)
	assert.Equal(t, http.StatusBadGateway, client.StatusCode(res.Err))

	got := q.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, FallbackMessage, got[0].Message)
	assert.NotContains(t, got[0].Message, "nginx")
}
