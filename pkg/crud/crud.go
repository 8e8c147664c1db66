// Package crud runs create, update and delete calls for a resource screen.
// A successful mutation invalidates the screen's cache keys and raises a
// success notification; a failed one raises an error notification carrying
// the server's message. Callers always get a Result and never an unhandled
// error.
package crud

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/MCT-Salman/invocca/pkg/notify"
	"github.com/MCT-Salman/invocca/pkg/query"
)

// FallbackMessage is shown when a failure carries no server message.
const FallbackMessage = "Something went wrong. Please try again."

// Creator creates a record from a payload.
type Creator[T, P any] interface {
	Create(ctx context.Context, payload P) (T, error)
}

// Updater replaces record id with a payload.
type Updater[T, P any] interface {
	Update(ctx context.Context, id string, payload P) (T, error)
}

// Deleter removes record id.
type Deleter interface {
	Delete(ctx context.Context, id string) error
}

// Resource is the mutation surface the orchestrator drives.
type Resource[T, P any] interface {
	Creator[T, P]
	Updater[T, P]
	Deleter
}

// Funcs adapts plain functions to Resource.
type Funcs[T, P any] struct {
	CreateFunc func(ctx context.Context, payload P) (T, error)
	UpdateFunc func(ctx context.Context, id string, payload P) (T, error)
	DeleteFunc func(ctx context.Context, id string) error
}

func (f Funcs[T, P]) Create(ctx context.Context, payload P) (T, error) {
	return f.CreateFunc(ctx, payload)
}

func (f Funcs[T, P]) Update(ctx context.Context, id string, payload P) (T, error) {
	return f.UpdateFunc(ctx, id, payload)
}

func (f Funcs[T, P]) Delete(ctx context.Context, id string) error {
	return f.DeleteFunc(ctx, id)
}

// Result is the outcome of one mutation.
type Result[T any] struct {
	Success bool
	Data    T
	Err     error
}

// Messages are the success texts per action.
type Messages struct {
	Created string
	Updated string
	Deleted string
}

// DefaultMessages returns success texts for a resource noun such as "Hall".
func DefaultMessages(noun string) Messages {
	return Messages{
		Created: noun + " created successfully",
		Updated: noun + " updated successfully",
		Deleted: noun + " deleted successfully",
	}
}

type config struct {
	keys     []query.Key
	messages Messages
	title    string
	logger   zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*config)

// WithKeys sets the cache key prefixes invalidated after every successful
// mutation.
func WithKeys(keys ...query.Key) Option {
	return func(c *config) { c.keys = append(c.keys, keys...) }
}

// WithMessages overrides the default success texts.
func WithMessages(m Messages) Option {
	return func(c *config) { c.messages = m }
}

// WithTitle sets the notification title.
func WithTitle(title string) Option {
	return func(c *config) { c.title = title }
}

// WithLogger logs every mutation outcome.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// Orchestrator is safe for concurrent use.
type Orchestrator[T, P any] struct {
	res      Resource[T, P]
	cache    *query.Cache
	notifier notify.Notifier
	cfg      config
	inflight atomic.Int32
}

// New returns an orchestrator for res. cache and notifier may be nil.
func New[T, P any](res Resource[T, P], cache *query.Cache, notifier notify.Notifier, opts ...Option) *Orchestrator[T, P] {
	cfg := config{messages: DefaultMessages("Record"), logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if notifier == nil {
		notifier = notify.Discard
	}
	return &Orchestrator[T, P]{res: res, cache: cache, notifier: notifier, cfg: cfg}
}

// CallOption tweaks a single call.
type CallOption func(*call)

type call struct {
	message string
	quiet   bool
}

// WithMessage replaces the success text of one call.
func WithMessage(msg string) CallOption {
	return func(c *call) { c.message = msg }
}

// Quiet suppresses the success notification of one call.
func Quiet() CallOption {
	return func(c *call) { c.quiet = true }
}

// Pending reports whether any mutation is in flight.
func (o *Orchestrator[T, P]) Pending() bool {
	return o.inflight.Load() > 0
}

// Create creates a record.
func (o *Orchestrator[T, P]) Create(ctx context.Context, payload P, opts ...CallOption) Result[T] {
	return o.run(ctx, "create", text[T](o.cfg.messages.Created), opts, func() (T, error) {
		return o.res.Create(ctx, payload)
	})
}

// Update replaces record id.
func (o *Orchestrator[T, P]) Update(ctx context.Context, id string, payload P, opts ...CallOption) Result[T] {
	return o.run(ctx, "update", text[T](o.cfg.messages.Updated), opts, func() (T, error) {
		return o.res.Update(ctx, id, payload)
	})
}

// Apply runs a custom mutation, such as a partial patch of one field, with
// the invalidation and notifications of Update. message builds the success
// text from the result; nil uses the Updated text.
func (o *Orchestrator[T, P]) Apply(ctx context.Context, fn func(ctx context.Context) (T, error), message func(T) string, opts ...CallOption) Result[T] {
	if message == nil {
		message = text[T](o.cfg.messages.Updated)
	}
	return o.run(ctx, "update", message, opts, func() (T, error) {
		return fn(ctx)
	})
}

// Delete removes record id.
func (o *Orchestrator[T, P]) Delete(ctx context.Context, id string, opts ...CallOption) Result[T] {
	return o.run(ctx, "delete", text[T](o.cfg.messages.Deleted), opts, func() (T, error) {
		var zero T
		return zero, o.res.Delete(ctx, id)
	})
}

func text[T any](s string) func(T) string {
	return func(T) string { return s }
}

func (o *Orchestrator[T, P]) run(ctx context.Context, action string, success func(T) string, opts []CallOption, fn func() (T, error)) Result[T] {
	var c call
	for _, opt := range opts {
		opt(&c)
	}

	o.inflight.Add(1)
	defer o.inflight.Add(-1)

	data, err := fn()
	if err != nil {
		if ctx.Err() != nil {
			o.cfg.logger.Debug().Str("action", action).Err(err).Msg("mutation abandoned")
			return Result[T]{Err: err}
		}
		msg := Message(err)
		o.cfg.logger.Warn().Str("action", action).Err(err).Msg("mutation failed")
		o.notifier.Notify(notify.Notification{Level: notify.LevelError, Title: o.cfg.title, Message: msg})
		return Result[T]{Err: err}
	}

	if o.cache != nil {
		for _, k := range o.cfg.keys {
			o.cache.InvalidatePrefix(k)
		}
	}
	o.cfg.logger.Info().Str("action", action).Msg("mutation succeeded")
	if !c.quiet {
		msg := c.message
		if msg == "" {
			msg = success(data)
		}
		o.notifier.Notify(notify.Notification{Level: notify.LevelSuccess, Title: o.cfg.title, Message: msg})
	}
	return Result[T]{Success: true, Data: data}
}

// serverMessenger is implemented by SDK errors that carry a server message.
type serverMessenger interface {
	ServerMessage() string
}

// Message extracts the server's message from err, or FallbackMessage.
func Message(err error) string {
	var sm serverMessenger
	if errors.As(err, &sm) {
		if msg := sm.ServerMessage(); msg != "" {
			return msg
		}
	}
	return FallbackMessage
}
