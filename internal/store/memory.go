package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MCT-Salman/invocca/internal/model"
	"github.com/MCT-Salman/invocca/pkg/capacity"
	"github.com/MCT-Salman/invocca/pkg/types"
)

// MemoryStore is an in-process Store for dev mode and tests. All tables
// share one lock so cross-table checks are atomic with the write.
type MemoryStore struct {
	mu    sync.RWMutex
	clock func() time.Time

	halls       *memTable[types.Hall]
	services    *memTable[types.Service]
	events      *memTable[types.Event]
	invitations *memTable[types.Invitation]
	templates   *memTable[types.Template]
	reports     *memTable[types.Report]
	ratings     *memTable[types.Rating]
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{clock: now}
	s.halls = newMemTable(s, hallTable)
	s.services = newMemTable(s, serviceTable)
	s.events = newMemTable(s, eventTable)
	s.invitations = newMemTable(s, invitationTable)
	s.templates = newMemTable(s, templateTable)
	s.reports = newMemTable(s, reportTable)
	s.ratings = newMemTable(s, ratingTable)

	s.services.check = requireHall(s, func(v types.Service) string { return v.HallID })
	s.reports.check = requireHall(s, func(v types.Report) string { return v.HallID })
	s.ratings.check = requireHall(s, func(v types.Rating) string { return v.HallID })
	eventHall := requireHall(s, func(v types.Event) string { return v.HallID })
	s.events.check = func(rec model.Record[types.Event], updating bool) error {
		if err := eventHall(rec, updating); err != nil {
			return err
		}
		if updating {
			return s.eventCapacity(rec)
		}
		return nil
	}
	s.invitations.check = func(rec model.Record[types.Invitation], _ bool) error {
		return s.guestCeiling(rec)
	}

	s.halls.same = func(a, b types.Hall) bool { return strings.EqualFold(a.Name, b.Name) }
	s.invitations.same = func(a, b types.Invitation) bool { return a.Code != "" && a.Code == b.Code }
	s.ratings.same = func(a, b types.Rating) bool { return a.HallID == b.HallID && a.ClientID == b.ClientID }

	s.halls.inUse = func(id string) bool {
		return s.services.anyMatch(func(v types.Service) bool { return v.HallID == id }) ||
			s.events.anyMatch(func(v types.Event) bool { return v.HallID == id }) ||
			s.reports.anyMatch(func(v types.Report) bool { return v.HallID == id }) ||
			s.ratings.anyMatch(func(v types.Rating) bool { return v.HallID == id })
	}
	s.events.onDelete = func(id string) {
		s.invitations.deleteWhere(func(v types.Invitation) bool { return v.EventID == id })
	}
	return s
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Halls() Table[types.Hall]             { return s.halls }
func (s *MemoryStore) Services() Table[types.Service]       { return s.services }
func (s *MemoryStore) Events() Table[types.Event]           { return s.events }
func (s *MemoryStore) Invitations() Table[types.Invitation] { return s.invitations }
func (s *MemoryStore) Templates() Table[types.Template]     { return s.templates }
func (s *MemoryStore) Reports() Table[types.Report]         { return s.reports }
func (s *MemoryStore) Ratings() Table[types.Rating]         { return s.ratings }

func requireHall[S any](s *MemoryStore, hallID func(S) string) func(model.Record[S], bool) error {
	return func(rec model.Record[S], _ bool) error {
		id := hallID(rec.Spec)
		if _, ok := s.halls.rows[id]; !ok {
			return fmt.Errorf("%w: hall %q", ErrReference, id)
		}
		return nil
	}
}

// guestCeiling mirrors the postgres check. Caller holds s.mu.
func (s *MemoryStore) guestCeiling(rec model.Record[types.Invitation]) error {
	event, ok := s.events.rows[rec.Spec.EventID]
	if !ok {
		return fmt.Errorf("%w: event %q", ErrReference, rec.Spec.EventID)
	}
	snap := capacity.Snapshot{Ceiling: event.Spec.GuestCapacity}
	for _, inv := range s.invitations.rows {
		if inv.Spec.EventID != rec.Spec.EventID {
			continue
		}
		snap.Used += inv.Spec.NumOfPeople
		if inv.ID == rec.ID {
			snap.Previous = inv.Spec.NumOfPeople
		}
	}
	return capacity.Check(snap, rec.Spec.NumOfPeople)
}

func (s *MemoryStore) eventCapacity(rec model.Record[types.Event]) error {
	booked := 0
	for _, inv := range s.invitations.rows {
		if inv.Spec.EventID == rec.ID {
			booked += inv.Spec.NumOfPeople
		}
	}
	if rec.Spec.GuestCapacity < booked {
		return fmt.Errorf("%w: %d guests already invited", ErrBelowBooked, booked)
	}
	return nil
}

// Dashboard aggregates counts visible within scope.
func (s *MemoryStore) Dashboard(_ context.Context, scope model.Scope) (types.Dashboard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dash := types.Dashboard{Events: map[string]int{}}
	managed := func(hallID string) bool {
		if scope.ManagerID == "" {
			return true
		}
		h, ok := s.halls.rows[hallID]
		return ok && h.Spec.ManagerID == scope.ManagerID
	}

	for _, h := range s.halls.rows {
		if !managed(h.ID) {
			continue
		}
		dash.Halls++
		if h.Spec.Active {
			dash.ActiveHalls++
		}
	}

	visible := map[string]bool{}
	for _, e := range s.events.rows {
		if !managed(e.Spec.HallID) || (scope.ClientID != "" && e.Spec.ClientID != scope.ClientID) {
			continue
		}
		visible[e.ID] = true
		dash.Events[e.Spec.Status]++
	}
	for _, inv := range s.invitations.rows {
		if visible[inv.Spec.EventID] {
			dash.Invitations++
			dash.Guests += inv.Spec.NumOfPeople
		}
	}
	for _, r := range s.reports.rows {
		if managed(r.Spec.HallID) && r.Spec.Status == types.ReportStatusOpen {
			dash.OpenReports++
		}
	}
	total := 0
	for _, r := range s.ratings.rows {
		if !managed(r.Spec.HallID) || (scope.ClientID != "" && r.Spec.ClientID != scope.ClientID) {
			continue
		}
		dash.Ratings++
		total += r.Spec.Score
	}
	if dash.Ratings > 0 {
		dash.AverageRating = float64(total) / float64(dash.Ratings)
	}
	return dash, nil
}

// memTable is a map-backed Table guarded by the owning store's lock.
type memTable[S any] struct {
	store *MemoryStore
	def   tableDef[S]
	rows  map[string]model.Record[S]
	seq   map[string]uint64
	next  uint64

	check    func(rec model.Record[S], updating bool) error
	same     func(a, b S) bool
	inUse    func(id string) bool
	onDelete func(id string)
}

func newMemTable[S any](s *MemoryStore, def tableDef[S]) *memTable[S] {
	return &memTable[S]{
		store: s,
		def:   def,
		rows:  map[string]model.Record[S]{},
		seq:   map[string]uint64{},
	}
}

// List returns records newest first.
func (t *memTable[S]) List(_ context.Context, opts ListOptions) ([]model.Record[S], int, error) {
	fields := make([]field[S], 0, len(opts.Filters))
	for key := range opts.Filters {
		f, ok := t.def.filterField(key)
		if !ok {
			return nil, 0, fmt.Errorf("%w: %s", ErrInvalidFilter, key)
		}
		fields = append(fields, f)
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	matched := make([]model.Record[S], 0, len(t.rows))
	for _, rec := range t.rows {
		ok := true
		for _, f := range fields {
			if !matches(f.ref(&rec.Spec), opts.Filters[f.filter]) {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, rec)
		}
	}
	slices.SortFunc(matched, func(a, b model.Record[S]) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		// Insertion order breaks timestamp ties, newest first.
		return cmp.Compare(t.seq[b.ID], t.seq[a.ID])
	})

	total := len(matched)
	start := min(max(opts.Offset, 0), total)
	end := total
	if opts.Limit > 0 {
		end = min(start+opts.Limit, total)
	}
	return slices.Clone(matched[start:end]), total, nil
}

// Get retrieves a single record by ID.
func (t *memTable[S]) Get(_ context.Context, id string) (model.Record[S], error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	rec, ok := t.rows[id]
	if !ok {
		return model.Record[S]{}, ErrNotFound
	}
	return rec, nil
}

// Create inserts rec, assigning an ID and timestamps.
func (t *memTable[S]) Create(_ context.Context, rec model.Record[S]) (model.Record[S], error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	if strings.TrimSpace(rec.ID) == "" {
		rec.ID = uuid.NewString()
	}
	if _, exists := t.rows[rec.ID]; exists {
		return model.Record[S]{}, fmt.Errorf("%w: %s %q", ErrConflict, t.def.resource, rec.ID)
	}
	if err := t.unique(rec); err != nil {
		return model.Record[S]{}, err
	}
	if t.check != nil {
		if err := t.check(rec, false); err != nil {
			return model.Record[S]{}, err
		}
	}

	ts := t.store.clock()
	rec.CreatedAt, rec.UpdatedAt = ts, ts
	t.next++
	t.seq[rec.ID] = t.next
	t.rows[rec.ID] = rec
	return rec, nil
}

// Update replaces the spec of an existing record.
func (t *memTable[S]) Update(_ context.Context, rec model.Record[S]) (model.Record[S], error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	current, ok := t.rows[rec.ID]
	if !ok {
		return model.Record[S]{}, ErrNotFound
	}
	if err := t.unique(rec); err != nil {
		return model.Record[S]{}, err
	}
	if t.check != nil {
		if err := t.check(rec, true); err != nil {
			return model.Record[S]{}, err
		}
	}

	rec.CreatedAt = current.CreatedAt
	rec.UpdatedAt = t.store.clock()
	if !rec.UpdatedAt.After(current.UpdatedAt) {
		// Keep ETags distinct when the clock has not advanced.
		rec.UpdatedAt = current.UpdatedAt.Add(time.Microsecond)
	}
	t.rows[rec.ID] = rec
	return rec, nil
}

// Delete removes a record by ID.
func (t *memTable[S]) Delete(_ context.Context, id string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	if _, ok := t.rows[id]; !ok {
		return ErrNotFound
	}
	if t.inUse != nil && t.inUse(id) {
		return fmt.Errorf("%w: %s %q", ErrInUse, t.def.resource, id)
	}
	delete(t.rows, id)
	delete(t.seq, id)
	if t.onDelete != nil {
		t.onDelete(id)
	}
	return nil
}

// unique mirrors the unique indexes of the postgres schema.
func (t *memTable[S]) unique(rec model.Record[S]) error {
	if t.same == nil {
		return nil
	}
	for id, other := range t.rows {
		if id != rec.ID && t.same(rec.Spec, other.Spec) {
			return fmt.Errorf("%w: %s duplicates %q", ErrConflict, t.def.resource, id)
		}
	}
	return nil
}

// anyMatch reports whether some record satisfies match. Caller holds the lock.
func (t *memTable[S]) anyMatch(match func(S) bool) bool {
	for _, rec := range t.rows {
		if match(rec.Spec) {
			return true
		}
	}
	return false
}

// deleteWhere removes matching records. Caller holds the lock.
func (t *memTable[S]) deleteWhere(match func(S) bool) {
	for id, rec := range t.rows {
		if match(rec.Spec) {
			delete(t.rows, id)
			delete(t.seq, id)
		}
	}
}
