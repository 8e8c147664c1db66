package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func counter(calls *atomic.Int32, data any) Fetcher {
	return func(context.Context) (any, error) {
		calls.Add(1)
		return data, nil
	}
}

func TestFetchServesFreshData(t *testing.T) {
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	c := NewCache(WithClock(clk.Now))
	key := Key{"halls"}
	var calls atomic.Int32

	v, err := c.Fetch(context.Background(), key, counter(&calls, []string{"a"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, v)

	clk.Advance(4 * time.Minute)
	_, err = c.Fetch(context.Background(), key, counter(&calls, []string{"b"}))
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())

	clk.Advance(time.Minute)
	v, err = c.Fetch(context.Background(), key, counter(&calls, []string{"b"}))
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, []string{"b"}, v)
}

func TestConcurrentFetchesShareOneCall(t *testing.T) {
	c := NewCache()
	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]any, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.Fetch(context.Background(), Key{"events"}, fetch)
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	e, ok := c.Get(Key{"events"})
	require.True(t, ok)
	assert.Equal(t, StatusLoading, e.Status)
	assert.True(t, e.Fetching)

	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for _, r := range results {
		assert.Equal(t, 42, r)
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	c := NewCache()
	key := Key{"invitations"}
	var calls atomic.Int32

	_, err := c.Fetch(context.Background(), key, counter(&calls, 1))
	require.NoError(t, err)

	c.Invalidate(key)
	c.Invalidate(key)
	e, _ := c.Get(key)
	assert.True(t, e.Stale)
	assert.Equal(t, StatusSuccess, e.Status)

	_, err = c.Fetch(context.Background(), key, counter(&calls, 2))
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())

	e, _ = c.Get(key)
	assert.False(t, e.Stale)
	assert.Equal(t, 2, e.Data)
}

func TestInvalidateUnknownKeyIsNoop(t *testing.T) {
	c := NewCache()
	c.Invalidate(Key{"nothing"})
	assert.Empty(t, c.Keys())
	assert.Zero(t, c.InvalidatePrefix(Key{"nothing"}))
}

func TestInvalidatePrefix(t *testing.T) {
	c := NewCache()
	c.Set(Key{"invitations"}, 1)
	c.Set(Key{"invitations", "event", "e-1"}, 2)
	c.Set(Key{"events"}, 3)

	assert.Equal(t, 2, c.InvalidatePrefix(Key{"invitations"}))

	e, _ := c.Get(Key{"invitations", "event", "e-1"})
	assert.True(t, e.Stale)
	e, _ = c.Get(Key{"events"})
	assert.False(t, e.Stale)
}

func TestFailedFetchKeepsPreviousData(t *testing.T) {
	c := NewCache(WithStaleTime(0))
	key := Key{"halls"}
	boom := errors.New("boom")

	_, err := c.Fetch(context.Background(), key, func(context.Context) (any, error) { return "old", nil })
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), key, func(context.Context) (any, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	e, _ := c.Get(key)
	assert.Equal(t, StatusError, e.Status)
	assert.Equal(t, "old", e.Data)
	assert.ErrorIs(t, e.Err, boom)
}

func TestCanceledFetchRecordsNothing(t *testing.T) {
	c := NewCache()
	key := Key{"halls"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Fetch(ctx, key, func(ctx context.Context) (any, error) { return nil, ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)

	e, _ := c.Get(key)
	assert.Equal(t, StatusIdle, e.Status)
	assert.NoError(t, e.Err)
}

func TestInvalidateDuringFetchLeavesEntryStale(t *testing.T) {
	c := NewCache()
	key := Key{"events"}
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Fetch(context.Background(), key, func(context.Context) (any, error) {
			close(started)
			<-release
			return "pre-mutation", nil
		})
	}()

	<-started
	c.Invalidate(key)
	close(release)
	<-done

	e, _ := c.Get(key)
	assert.Equal(t, "pre-mutation", e.Data)
	assert.True(t, e.Stale)
}

func TestFetchAfterInvalidateDoesNotJoinEarlierCall(t *testing.T) {
	c := NewCache()
	key := Key{"invitations", "event", "e-1"}
	var version, calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(context.Context) (any, error) {
		v := version.Load()
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		return v, nil
	}

	first := make(chan any, 1)
	go func() {
		v, _ := c.Fetch(context.Background(), key, fetch)
		first <- v
	}()
	<-started

	version.Store(1)
	c.Invalidate(key)
	v, err := c.Fetch(context.Background(), key, fetch)
	require.NoError(t, err)
	assert.EqualValues(t, 1, v)

	close(release)
	assert.EqualValues(t, 0, <-first)

	e, _ := c.Get(key)
	assert.EqualValues(t, 1, e.Data, "an older call must not overwrite newer data")
	assert.False(t, e.Stale)
	assert.False(t, e.Fetching)
	assert.EqualValues(t, 2, calls.Load())
}

func TestCallerCancelDoesNotCancelSharedFetch(t *testing.T) {
	c := NewCache()
	key := Key{"events"}
	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(ctx context.Context) (any, error) {
		calls.Add(1)
		select {
		case <-release:
			return "rows", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	waiters := func() int {
		c.mu.Lock()
		defer c.mu.Unlock()
		n := 0
		for _, f := range c.flights {
			n += f.waiters
		}
		return n
	}

	ctx, cancel := context.WithCancel(context.Background())
	canceled := make(chan error, 1)
	go func() {
		_, err := c.Fetch(ctx, key, fetch)
		canceled <- err
	}()
	kept := make(chan any, 1)
	go func() {
		v, _ := c.Fetch(context.Background(), key, fetch)
		kept <- v
	}()
	require.Eventually(t, func() bool { return waiters() == 2 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-canceled, context.Canceled)

	close(release)
	assert.Equal(t, "rows", <-kept)
	assert.EqualValues(t, 1, calls.Load())
}

func TestLastCallerLeavingCancelsFetch(t *testing.T) {
	c := NewCache()
	key := Key{"halls"}
	ctx, cancel := context.WithCancel(context.Background())
	fetchCanceled := make(chan struct{})
	started := make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := c.Fetch(ctx, key, func(ctx context.Context) (any, error) {
			close(started)
			<-ctx.Done()
			close(fetchCanceled)
			return nil, ctx.Err()
		})
		done <- err
	}()
	<-started
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	select {
	case <-fetchCanceled:
	case <-time.After(time.Second):
		t.Fatal("fetch kept running after its only caller left")
	}
	require.Eventually(t, func() bool {
		e, _ := c.Get(key)
		return !e.Fetching && e.Status == StatusIdle
	}, time.Second, time.Millisecond)
}

func TestSubscribe(t *testing.T) {
	c := NewCache()
	var got []string
	unsubscribe := c.Subscribe(Key{"halls"}, func(k Key) { got = append(got, k.String()) })

	c.Set(Key{"halls"}, 1)
	c.Set(Key{"events"}, 1)
	c.Invalidate(Key{"halls"})
	unsubscribe()
	c.Invalidate(Key{"halls"})

	assert.Equal(t, []string{"halls", "halls"}, got)
}

func TestKeyHasPrefix(t *testing.T) {
	assert.True(t, Key{"a", "b"}.HasPrefix(Key{"a"}))
	assert.True(t, Key{"a"}.HasPrefix(nil))
	assert.False(t, Key{"a"}.HasPrefix(Key{"a", "b"}))
	assert.False(t, Key{"ab"}.HasPrefix(Key{"a"}))
}

func TestBinding(t *testing.T) {
	c := NewCache()
	var calls atomic.Int32
	b := Bind(c, Key{"halls"}, func(context.Context) ([]string, error) {
		calls.Add(1)
		return []string{"Rose", "Lotus"}, nil
	})

	assert.Equal(t, StatusIdle, b.Snapshot().Status)

	got, err := b.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Rose", "Lotus"}, got)

	snap := b.Snapshot()
	assert.Equal(t, StatusSuccess, snap.Status)
	assert.True(t, snap.HasData)
	assert.Len(t, snap.Data, 2)

	_, err = b.Refetch(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())

	changed := 0
	stop := b.Subscribe(func() { changed++ })
	defer stop()
	b.Invalidate()
	assert.Equal(t, 1, changed)
}
