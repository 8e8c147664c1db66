// Package listview lays out a resource list for a terminal: a table on wide
// screens, stacked cards on narrow ones, client-side pagination, and
// explicit loading, error and empty states.
package listview

import (
	"errors"
	"sync"
)

const (
	defaultPageSize   = 10
	defaultBreakpoint = 80
	defaultEmptyText  = "No records found"
)

// ErrNoRow is returned when an action is invoked with no row under the
// cursor.
var ErrNoRow = errors.New("listview: no row selected")

// ErrUnknownAction is returned for an action key with no binding.
var ErrUnknownAction = errors.New("listview: unknown action")

// Layout is how rows are drawn.
type Layout int

const (
	LayoutTable Layout = iota
	LayoutCards
)

func (l Layout) String() string {
	if l == LayoutCards {
		return "cards"
	}
	return "table"
}

// Column renders one attribute of a row.
type Column[T any] struct {
	Title string
	Value func(T) string
}

// Action is a per-row command bound to a key.
type Action[T any] struct {
	Key   string
	Label string
	Run   func(T) error
}

// Config describes a list.
type Config[T any] struct {
	Columns    []Column[T]
	CardTitle  func(T) string
	Actions    []Action[T]
	PageSize   int
	Breakpoint int
	EmptyText  string
}

// List holds rows, the current page, the cursor and the viewport width. It
// is safe for concurrent use.
type List[T any] struct {
	mu     sync.Mutex
	cfg    Config[T]
	rows   []T
	page   int
	cursor int
	width  int
}

// New returns an empty list.
func New[T any](cfg Config[T]) *List[T] {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.Breakpoint <= 0 {
		cfg.Breakpoint = defaultBreakpoint
	}
	if cfg.EmptyText == "" {
		cfg.EmptyText = defaultEmptyText
	}
	return &List[T]{cfg: cfg, width: cfg.Breakpoint}
}

// SetRows replaces the rows and keeps the page and cursor in range.
func (l *List[T]) SetRows(rows []T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows = rows
	l.clampLocked()
}

// Len returns the number of rows.
func (l *List[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rows)
}

// SetWidth records the viewport width.
func (l *List[T]) SetWidth(w int) {
	l.mu.Lock()
	l.width = w
	l.mu.Unlock()
}

// Layout picks table or cards from the viewport width.
func (l *List[T]) Layout() Layout {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.layoutLocked()
}

func (l *List[T]) layoutLocked() Layout {
	if l.width < l.cfg.Breakpoint {
		return LayoutCards
	}
	return LayoutTable
}

// Pages returns the page count, at least 1.
func (l *List[T]) Pages() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pagesLocked()
}

func (l *List[T]) pagesLocked() int {
	n := (len(l.rows) + l.cfg.PageSize - 1) / l.cfg.PageSize
	if n < 1 {
		return 1
	}
	return n
}

// Page returns the zero-based current page.
func (l *List[T]) Page() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.page
}

// SetPage moves to page p, clamped to the valid range.
func (l *List[T]) SetPage(p int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.page = p
	l.cursor = 0
	l.clampLocked()
}

// NextPage advances one page.
func (l *List[T]) NextPage() { l.SetPage(l.Page() + 1) }

// PrevPage goes back one page.
func (l *List[T]) PrevPage() { l.SetPage(l.Page() - 1) }

// Visible returns the rows of the current page.
func (l *List[T]) Visible() []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.visibleLocked()
}

func (l *List[T]) visibleLocked() []T {
	start := l.page * l.cfg.PageSize
	if start >= len(l.rows) {
		return nil
	}
	end := min(start+l.cfg.PageSize, len(l.rows))
	return l.rows[start:end]
}

// MoveCursor moves the cursor within the current page.
func (l *List[T]) MoveCursor(delta int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cursor += delta
	l.clampLocked()
}

// Cursor returns the cursor index within the current page.
func (l *List[T]) Cursor() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor
}

// Selected returns the row under the cursor.
func (l *List[T]) Selected() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var zero T
	visible := l.visibleLocked()
	if l.cursor < 0 || l.cursor >= len(visible) {
		return zero, false
	}
	return visible[l.cursor], true
}

// Actions returns the row actions.
func (l *List[T]) Actions() []Action[T] {
	return l.cfg.Actions
}

// Invoke runs the action bound to key on the row under the cursor.
func (l *List[T]) Invoke(key string) error {
	var action *Action[T]
	for i := range l.cfg.Actions {
		if l.cfg.Actions[i].Key == key {
			action = &l.cfg.Actions[i]
			break
		}
	}
	if action == nil {
		return ErrUnknownAction
	}
	row, ok := l.Selected()
	if !ok {
		return ErrNoRow
	}
	return action.Run(row)
}

func (l *List[T]) clampLocked() {
	l.page = max(0, min(l.page, l.pagesLocked()-1))
	visible := len(l.visibleLocked())
	l.cursor = max(0, min(l.cursor, visible-1))
}

// FrameKind is what a list shows for a given phase and row set.
type FrameKind int

const (
	FrameLoading FrameKind = iota
	FrameError
	FrameEmpty
	FrameRows
)

func (k FrameKind) String() string {
	switch k {
	case FrameError:
		return "error"
	case FrameEmpty:
		return "empty"
	case FrameRows:
		return "rows"
	default:
		return "loading"
	}
}

// Frame is everything needed to draw the list once.
type Frame[T any] struct {
	Kind       FrameKind
	Layout     Layout
	Rows       []T
	Cursor     int
	Page       int
	Pages      int
	Total      int
	Refreshing bool
	Err        error
	EmptyText  string
}

// Frame resolves what to draw. A list that is idle or loading with no rows
// shows the loading state, never the empty state; loading with rows already
// present keeps them on screen and flags the refresh.
func (l *List[T]) Frame(phase Phase, err error) Frame[T] {
	l.mu.Lock()
	defer l.mu.Unlock()

	f := Frame[T]{
		Layout:    l.layoutLocked(),
		Page:      l.page,
		Pages:     l.pagesLocked(),
		Total:     len(l.rows),
		Cursor:    l.cursor,
		EmptyText: l.cfg.EmptyText,
	}
	switch {
	case phase == PhaseError:
		f.Kind, f.Err = FrameError, err
	case phase == PhaseIdle || phase == PhaseLoading:
		if len(l.rows) == 0 {
			f.Kind = FrameLoading
			return f
		}
		f.Kind, f.Refreshing = FrameRows, true
		f.Rows = l.visibleLocked()
	case len(l.rows) == 0:
		f.Kind = FrameEmpty
	default:
		f.Kind = FrameRows
		f.Rows = l.visibleLocked()
	}
	return f
}
