package screen

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Scope is the lifetime of a mounted screen. Its context is canceled on End
// and callbacks guarded by Do are dropped afterwards.
type Scope struct {
	ctx    context.Context
	cancel context.CancelFunc
	alive  atomic.Bool
}

// NewScope starts a scope under parent.
func NewScope(parent context.Context) *Scope {
	ctx, cancel := context.WithCancel(parent)
	s := &Scope{ctx: ctx, cancel: cancel}
	s.alive.Store(true)
	return s
}

// Context returns the scope context.
func (s *Scope) Context() context.Context { return s.ctx }

// Alive reports whether the scope has not ended.
func (s *Scope) Alive() bool { return s.alive.Load() && s.ctx.Err() == nil }

// End cancels the scope. It is safe to call more than once.
func (s *Scope) End() {
	s.alive.Store(false)
	s.cancel()
}

// Do runs fn only while the scope is alive and reports whether it ran.
func (s *Scope) Do(fn func()) bool {
	if !s.Alive() {
		return false
	}
	fn()
	return true
}

// Boundary contains panics raised while rendering. After a panic it keeps
// showing the fallback until Reset.
type Boundary struct {
	mu      sync.Mutex
	failure any
}

// Render returns fn's output, or fallback's when fn panics now or panicked
// earlier.
func (b *Boundary) Render(fn func() string, fallback func(failure any) string) (out string) {
	b.mu.Lock()
	failure := b.failure
	b.mu.Unlock()
	if failure != nil {
		return fallback(failure)
	}

	defer func() {
		if r := recover(); r != nil {
			b.mu.Lock()
			b.failure = r
			b.mu.Unlock()
			out = fallback(r)
		}
	}()
	return fn()
}

// Failed returns the recorded panic value.
func (b *Boundary) Failed() (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failure, b.failure != nil
}

// Reset clears the recorded panic so the next Render retries.
func (b *Boundary) Reset() {
	b.mu.Lock()
	b.failure = nil
	b.mu.Unlock()
}

// DefaultFallback is the text shown by a failed boundary.
func DefaultFallback(failure any) string {
	return fmt.Sprintf("Something went wrong while drawing this page (%v).\nPress r to retry.", failure)
}
