// Package query is a keyed read-through cache for server data.
//
// Entries are identified by hierarchical keys such as {"invitations"} or
// {"invitations", "event", "e-1"}. A fetch for a key that is fresh returns
// the cached data; otherwise the fetcher runs, and concurrent fetches for the
// same key share one call. Mutations invalidate keys (or key prefixes) so the
// next fetch goes back to the server.
package query

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultStaleTime is how long fetched data is served without refetching.
const DefaultStaleTime = 5 * time.Minute

// Key identifies a cache entry.
type Key []string

// String returns the canonical form of k.
func (k Key) String() string {
	return strings.Join(k, "/")
}

// HasPrefix reports whether k starts with every element of prefix.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	return slices.Equal(k[:len(prefix)], prefix)
}

// Status is the lifecycle state of an entry.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

// Entry is a point-in-time view of a cache entry.
type Entry struct {
	Key       Key
	Data      any
	HasData   bool
	Status    Status
	Err       error
	Fetching  bool
	Stale     bool
	UpdatedAt time.Time
}

// Fetcher loads the data for a key.
type Fetcher func(ctx context.Context) (any, error)

type entry struct {
	key       Key
	data      any
	hasData   bool
	status    Status
	err       error
	inflight  int
	stale     bool
	gen       uint64
	dataGen   uint64
	updatedAt time.Time
}

// flight is one shared fetcher call. Its context is canceled once every
// caller waiting on it has returned.
type flight struct {
	fid     string
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

type listener struct {
	prefix Key
	fn     func(Key)
}

// Cache is safe for concurrent use.
type Cache struct {
	mu        sync.Mutex
	entries   map[string]*entry
	listeners map[int]listener
	nextID    int
	group     singleflight.Group
	flights   map[string]*flight
	nextSeq   uint64
	staleTime time.Duration
	now       func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithStaleTime sets how long fetched data stays fresh. Zero makes every
// fetch go to the server.
func WithStaleTime(d time.Duration) Option {
	return func(c *Cache) { c.staleTime = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// NewCache returns an empty cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		entries:   make(map[string]*entry),
		listeners: make(map[int]listener),
		flights:   make(map[string]*flight),
		staleTime: DefaultStaleTime,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StaleTime returns how long fetched data stays fresh.
func (c *Cache) StaleTime() time.Duration { return c.staleTime }

// Get returns the entry for key.
func (c *Cache) Get(key Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok {
		return Entry{Key: key}, false
	}
	return c.snapshotLocked(e), true
}

// Set stores data for key as a successful, fresh fetch.
func (c *Cache) Set(key Key, data any) {
	c.mu.Lock()
	e := c.entryLocked(key)
	e.gen++
	e.dataGen = e.gen
	e.data, e.hasData, e.err = data, true, nil
	e.status, e.stale, e.updatedAt = StatusSuccess, false, c.now()
	c.mu.Unlock()
	c.emit(key)
}

// Fetch returns the cached data for key when it is fresh, and otherwise
// calls fn. Concurrent fetches of one key and generation share a single fn
// call; a fetch issued after Invalidate never joins a call started before
// it. Each caller waits on its own ctx, and the shared call is canceled only
// when every caller has gone. A failed fetch keeps any previous data and
// records the error; a canceled fetch records nothing.
func (c *Cache) Fetch(ctx context.Context, key Key, fn Fetcher) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := key.String()

	c.mu.Lock()
	e := c.entryLocked(key)
	if e.status == StatusSuccess && !c.staleLocked(e) {
		data := e.data
		c.mu.Unlock()
		return data, nil
	}
	gen := e.gen
	f := c.joinLocked(ctx, id+"#"+strconv.FormatUint(gen, 10))
	c.mu.Unlock()

	ch := c.group.DoChan(f.id, func() (any, error) {
		c.mu.Lock()
		e := c.entryLocked(key)
		e.inflight++
		if !e.hasData {
			e.status = StatusLoading
		}
		c.mu.Unlock()
		c.emit(key)

		data, err := fn(f.ctx)
		c.finish(key, gen, data, err)
		c.mu.Lock()
		c.dropLocked(f)
		c.mu.Unlock()
		return data, err
	})

	defer c.leave(f)
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// joinLocked registers a waiter on the flight for fid, starting a new one
// when none is running.
func (c *Cache) joinLocked(ctx context.Context, fid string) *flight {
	f, ok := c.flights[fid]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		c.nextSeq++
		f = &flight{fid: fid, id: fid + "#" + strconv.FormatUint(c.nextSeq, 10), ctx: fctx, cancel: cancel}
		c.flights[fid] = f
	}
	f.waiters++
	return f
}

func (c *Cache) leave(f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	c.dropLocked(f)
}

func (c *Cache) dropLocked(f *flight) {
	if c.flights[f.fid] == f {
		delete(c.flights, f.fid)
	}
}

func (c *Cache) finish(key Key, gen uint64, data any, err error) {
	c.mu.Lock()
	e, ok := c.entries[key.String()]
	if !ok {
		c.mu.Unlock()
		return
	}
	e.inflight--
	switch {
	case err == nil:
		if gen < e.dataGen {
			// A newer fetch or Set already stored later data.
			break
		}
		e.data, e.hasData, e.err = data, true, nil
		e.status, e.updatedAt = StatusSuccess, c.now()
		e.dataGen = gen
		e.stale = e.gen != gen
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		if !e.hasData && e.status == StatusLoading && e.inflight == 0 {
			e.status = StatusIdle
		}
	default:
		e.status, e.err = StatusError, err
	}
	c.mu.Unlock()
	c.emit(key)
}

// Invalidate marks the entry for key stale so the next fetch goes to the
// server. It is a no-op for unknown keys and safe to repeat.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	e, ok := c.entries[key.String()]
	if ok {
		e.stale = true
		e.gen++
	}
	c.mu.Unlock()
	if ok {
		c.emit(key)
	}
}

// InvalidatePrefix marks every entry whose key starts with prefix stale and
// returns how many were marked.
func (c *Cache) InvalidatePrefix(prefix Key) int {
	c.mu.Lock()
	var hit []Key
	for _, e := range c.entries {
		if e.key.HasPrefix(prefix) {
			e.stale = true
			e.gen++
			hit = append(hit, e.key)
		}
	}
	c.mu.Unlock()

	for _, k := range hit {
		c.emit(k)
	}
	return len(hit)
}

// Remove drops the entry for key.
func (c *Cache) Remove(key Key) {
	c.mu.Lock()
	delete(c.entries, key.String())
	c.mu.Unlock()
}

// Keys returns the keys of every entry.
func (c *Cache) Keys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Key, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, slices.Clone(e.key))
	}
	slices.SortFunc(out, func(a, b Key) int { return strings.Compare(a.String(), b.String()) })
	return out
}

// Subscribe calls fn with the key of every entry under prefix that changes
// (fetch started, fetch finished, invalidated). fn runs on the goroutine
// that caused the change and must not block. The returned func unsubscribes.
func (c *Cache) Subscribe(prefix Key, fn func(Key)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = listener{prefix: slices.Clone(prefix), fn: fn}
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Cache) emit(key Key) {
	c.mu.Lock()
	var fns []func(Key)
	for _, l := range c.listeners {
		if key.HasPrefix(l.prefix) {
			fns = append(fns, l.fn)
		}
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(key)
	}
}

func (c *Cache) entryLocked(key Key) *entry {
	id := key.String()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{key: slices.Clone(key)}
		c.entries[id] = e
	}
	return e
}

func (c *Cache) staleLocked(e *entry) bool {
	return e.stale || c.now().Sub(e.updatedAt) >= c.staleTime
}

func (c *Cache) snapshotLocked(e *entry) Entry {
	return Entry{
		Key:       slices.Clone(e.key),
		Data:      e.data,
		HasData:   e.hasData,
		Status:    e.status,
		Err:       e.err,
		Fetching:  e.inflight > 0,
		Stale:     e.hasData && c.staleLocked(e),
		UpdatedAt: e.updatedAt,
	}
}
