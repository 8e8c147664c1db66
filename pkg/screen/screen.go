// Package screen composes the pieces of a resource management page: a
// cached list, the dialog controller, the open form, the list layout and
// the CRUD orchestrator. Every admin, manager, client and employee page is
// one Screen configured for its resource.
package screen

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/MCT-Salman/invocca/pkg/crud"
	"github.com/MCT-Salman/invocca/pkg/dialog"
	"github.com/MCT-Salman/invocca/pkg/form"
	"github.com/MCT-Salman/invocca/pkg/listview"
	"github.com/MCT-Salman/invocca/pkg/notify"
	"github.com/MCT-Salman/invocca/pkg/query"
	"github.com/MCT-Salman/invocca/pkg/types"
)

var (
	// ErrNotMounted is returned by operations on an unmounted screen.
	ErrNotMounted = errors.New("screen: not mounted")
	// ErrPending is returned when a submit is already in flight.
	ErrPending = errors.New("screen: submit already in progress")
	// ErrInvalid is returned when the form failed validation.
	ErrInvalid = errors.New("screen: form has errors")
	// ErrWrongDialog is returned when the open dialog does not accept the
	// operation.
	ErrWrongDialog = errors.New("screen: operation not allowed in current dialog")
	// ErrNoToggle is returned when the screen has no toggle action.
	ErrNoToggle = errors.New("screen: no toggle action")
)

// Toggle is a row action that flips one flag of a record through a partial
// update, such as a hall's active state.
type Toggle[T any] struct {
	// Label names the action in the row hints.
	Label string
	// Patch sends the flipped flag for row and returns the stored record.
	Patch func(ctx context.Context, row T) (T, error)
	// Message builds the success text from the stored record. Nil uses the
	// Updated message.
	Message func(updated T) string
}

// Config describes one resource screen.
type Config[T dialog.Entity, P any] struct {
	// Title is the page title, also used on notifications.
	Title string
	// Key is the cache key of the list.
	Key query.Key
	// Invalidate lists extra key prefixes to invalidate after mutations.
	Invalidate []query.Key
	Cache      *query.Cache
	Fetch      func(ctx context.Context) ([]T, error)
	Resource   crud.Resource[T, P]
	Notifier   notify.Notifier
	Messages   crud.Messages
	// Schema returns the form schema. selected is nil on create.
	Schema func(selected *T) *form.Schema
	// Values seeds the form from a record on edit and view.
	Values func(T) map[string]string
	// Payload builds the request payload from validated values. selected is
	// nil on create.
	Payload   func(v form.Values, selected *T) (P, error)
	Columns   []listview.Column[T]
	CardTitle func(T) string
	// Toggle, when set, is bound to row action t.
	Toggle   *Toggle[T]
	PageSize int
	// Breakpoint is the width below which cards replace the table.
	Breakpoint int
	Logger     zerolog.Logger
}

// Screen is safe for concurrent use.
type Screen[T dialog.Entity, P any] struct {
	cfg      Config[T, P]
	binding  *query.Binding[[]T]
	dialog   *dialog.Controller[T]
	list     *listview.List[T]
	orch     *crud.Orchestrator[T, P]
	notifier notify.Notifier
	boundary Boundary

	mu      sync.Mutex
	scope   *Scope
	machine listview.Machine
	form    *form.State
}

// New builds a screen. Row actions e, v and d open the edit, view and
// delete dialogs; t runs the toggle when one is configured.
func New[T dialog.Entity, P any](cfg Config[T, P]) *Screen[T, P] {
	if cfg.Cache == nil {
		cfg.Cache = query.NewCache()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.Discard
	}
	if cfg.Messages == (crud.Messages{}) {
		cfg.Messages = crud.DefaultMessages("Record")
	}

	s := &Screen[T, P]{cfg: cfg, notifier: notifier}
	s.binding = query.Bind(cfg.Cache, cfg.Key, cfg.Fetch)
	s.dialog = dialog.New[T](nil)
	s.orch = crud.New(cfg.Resource, cfg.Cache, notifier,
		crud.WithKeys(append([]query.Key{cfg.Key}, cfg.Invalidate...)...),
		crud.WithMessages(cfg.Messages),
		crud.WithTitle(cfg.Title),
		crud.WithLogger(cfg.Logger),
	)
	actions := []listview.Action[T]{
		{Key: "e", Label: "edit", Run: s.OpenEdit},
		{Key: "v", Label: "view", Run: s.OpenView},
		{Key: "d", Label: "delete", Run: s.OpenDelete},
	}
	if cfg.Toggle != nil {
		actions = append(actions, listview.Action[T]{
			Key:   "t",
			Label: cfg.Toggle.Label,
			Run:   func(row T) error { return s.ToggleRow(row).Err },
		})
	}
	s.list = listview.New(listview.Config[T]{
		Columns:    cfg.Columns,
		CardTitle:  cfg.CardTitle,
		PageSize:   cfg.PageSize,
		Breakpoint: cfg.Breakpoint,
		Actions:    actions,
	})
	return s
}

// Title returns the page title.
func (s *Screen[T, P]) Title() string { return s.cfg.Title }

// Key returns the list cache key.
func (s *Screen[T, P]) Key() query.Key { return s.cfg.Key }

// List returns the list layout.
func (s *Screen[T, P]) List() *listview.List[T] { return s.list }

// Dialog returns the current dialog state.
func (s *Screen[T, P]) Dialog() dialog.State[T] { return s.dialog.State() }

// Form returns the open form, nil when no create or edit dialog is open.
func (s *Screen[T, P]) Form() *form.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.form
}

// Boundary returns the render boundary of the page.
func (s *Screen[T, P]) Boundary() *Boundary { return &s.boundary }

// Mount starts the screen lifetime under parent.
func (s *Screen[T, P]) Mount(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scope != nil {
		s.scope.End()
	}
	s.scope = NewScope(parent)
	s.machine.Reset()
}

// Unmount ends the lifetime. Requests in flight are canceled and their
// results are dropped.
func (s *Screen[T, P]) Unmount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scope != nil {
		s.scope.End()
		s.scope = nil
	}
	s.dialog.Close()
	s.form = nil
}

// Subscribe calls fn when the list's cache entry changes, for example after
// an invalidation from another screen.
func (s *Screen[T, P]) Subscribe(fn func()) func() {
	return s.binding.Subscribe(fn)
}

// Stale reports whether the cached list needs a reload.
func (s *Screen[T, P]) Stale() bool {
	return s.binding.Snapshot().Stale
}

// Load fetches the list, serving fresh cache data when available.
func (s *Screen[T, P]) Load() error {
	return s.load(s.machine.Load)
}

// Retry reloads after a failed load.
func (s *Screen[T, P]) Retry() error {
	return s.load(s.machine.Retry)
}

func (s *Screen[T, P]) load(enter func() error) error {
	s.mu.Lock()
	scope := s.scope
	if scope == nil {
		s.mu.Unlock()
		return ErrNotMounted
	}
	if err := enter(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	rows, err := s.binding.Fetch(scope.Context())

	s.mu.Lock()
	defer s.mu.Unlock()
	if !scope.Alive() {
		return context.Canceled
	}
	if err == nil {
		s.list.SetRows(rows)
	}
	if s.machine.Phase() == listview.PhaseLoading {
		_ = s.machine.Resolve(err)
	}
	return err
}

// Phase returns the list load phase.
func (s *Screen[T, P]) Phase() listview.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Phase()
}

// Frame resolves what the list shows now.
func (s *Screen[T, P]) Frame() listview.Frame[T] {
	s.mu.Lock()
	phase, err := s.machine.Phase(), s.machine.Err()
	s.mu.Unlock()
	return s.list.Frame(phase, err)
}

// OpenCreate opens an empty create form.
func (s *Screen[T, P]) OpenCreate() {
	s.dialog.OpenCreate()
	s.setForm(form.NewState(s.cfg.Schema(nil), nil))
}

// OpenEdit opens the edit form seeded from row.
func (s *Screen[T, P]) OpenEdit(row T) error {
	if err := s.dialog.OpenEdit(row); err != nil {
		return err
	}
	s.setForm(form.NewState(s.cfg.Schema(&row), s.values(row)))
	return nil
}

// OpenView opens the read-only dialog for row.
func (s *Screen[T, P]) OpenView(row T) error {
	if err := s.dialog.OpenView(row); err != nil {
		return err
	}
	s.setForm(nil)
	return nil
}

// OpenDelete opens the delete confirmation for row.
func (s *Screen[T, P]) OpenDelete(row T) error {
	if err := s.dialog.OpenDelete(row); err != nil {
		return err
	}
	s.setForm(nil)
	return nil
}

// Close closes the dialog. A submit already in flight still completes.
func (s *Screen[T, P]) Close() {
	s.dialog.Close()
	s.setForm(nil)
}

// SetField updates one form input and returns its validation message.
func (s *Screen[T, P]) SetField(name, raw string) (string, error) {
	f := s.Form()
	if f == nil {
		return "", ErrWrongDialog
	}
	return f.Set(name, raw), nil
}

// Submit validates the open form and creates or updates the record. On
// success the dialog closes and the list reloads; on failure the dialog
// stays open with the form input intact.
func (s *Screen[T, P]) Submit() crud.Result[T] {
	state := s.dialog.State()
	f := s.Form()
	if f == nil || !(state.Is(dialog.ModeCreate) || state.Is(dialog.ModeEdit)) {
		return crud.Result[T]{Err: ErrWrongDialog}
	}
	scope, err := s.liveScope()
	if err != nil {
		return crud.Result[T]{Err: err}
	}
	if !f.Begin() {
		return crud.Result[T]{Err: ErrPending}
	}
	defer f.End()

	ctx := scope.Context()
	values, ok, err := f.Validate(ctx)
	if err != nil {
		if scope.Alive() {
			s.notifier.Notify(notify.Notification{Level: notify.LevelError, Title: s.cfg.Title, Message: crud.Message(err)})
		}
		return crud.Result[T]{Err: err}
	}
	if !ok {
		if first, has := f.Errors().First(); has {
			s.notifier.Notify(notify.Notification{Level: notify.LevelWarning, Title: s.cfg.Title, Message: first.Message})
		}
		return crud.Result[T]{Err: ErrInvalid}
	}

	var selected *T
	if row, bound := state.Selected(); bound {
		selected = &row
	}
	payload, err := s.cfg.Payload(values, selected)
	if err != nil {
		s.notifier.Notify(notify.Notification{Level: notify.LevelWarning, Title: s.cfg.Title, Message: err.Error()})
		return crud.Result[T]{Err: err}
	}

	var res crud.Result[T]
	if selected == nil {
		res = s.orch.Create(ctx, payload)
	} else {
		res = s.orch.Update(ctx, (*selected).EntityID(), payload)
	}

	scope.Do(func() {
		if !res.Success {
			applyFieldErrors(f, res.Err)
			return
		}
		if s.Form() == f {
			s.Close()
		}
	})
	if res.Success {
		_ = s.Load()
	}
	return res
}

// ConfirmDelete deletes the record bound to the delete dialog.
func (s *Screen[T, P]) ConfirmDelete() crud.Result[T] {
	state := s.dialog.State()
	row, bound := state.Selected()
	if !state.Is(dialog.ModeDelete) || !bound {
		return crud.Result[T]{Err: ErrWrongDialog}
	}
	scope, err := s.liveScope()
	if err != nil {
		return crud.Result[T]{Err: err}
	}

	res := s.orch.Delete(scope.Context(), row.EntityID())
	if res.Success {
		scope.Do(func() {
			if sel, ok := s.dialog.State().Selected(); ok && sel.EntityID() == row.EntityID() {
				s.Close()
			}
		})
		_ = s.Load()
	}
	return res
}

// CanToggle reports whether the screen has a toggle action.
func (s *Screen[T, P]) CanToggle() bool { return s.cfg.Toggle != nil }

// ToggleRow runs the toggle for row through the orchestrator and reloads
// the list on success. No dialog is involved.
func (s *Screen[T, P]) ToggleRow(row T) crud.Result[T] {
	t := s.cfg.Toggle
	if t == nil {
		return crud.Result[T]{Err: ErrNoToggle}
	}
	scope, err := s.liveScope()
	if err != nil {
		return crud.Result[T]{Err: err}
	}

	res := s.orch.Apply(scope.Context(), func(ctx context.Context) (T, error) {
		return t.Patch(ctx, row)
	}, t.Message)
	if res.Success {
		_ = s.Load()
	}
	return res
}

// Pending reports whether a mutation is in flight.
func (s *Screen[T, P]) Pending() bool { return s.orch.Pending() }

func (s *Screen[T, P]) liveScope() (*Scope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scope == nil || !s.scope.Alive() {
		return nil, ErrNotMounted
	}
	return s.scope, nil
}

func (s *Screen[T, P]) setForm(f *form.State) {
	s.mu.Lock()
	s.form = f
	s.mu.Unlock()
}

func (s *Screen[T, P]) values(row T) map[string]string {
	if s.cfg.Values == nil {
		return nil
	}
	return s.cfg.Values(row)
}

// fieldErrorer is implemented by SDK errors carrying field failures.
type fieldErrorer interface {
	FieldErrors() []types.ValidationError
}

// applyFieldErrors copies server-side field failures into the form so they
// render next to their inputs.
func applyFieldErrors(f *form.State, err error) {
	var fe fieldErrorer
	if !errors.As(err, &fe) {
		return
	}
	for _, v := range fe.FieldErrors() {
		if _, ok := f.Schema().Field(v.Field); ok {
			f.SetError(v.Field, v.Message)
		}
	}
}
