// Package console is the interactive terminal front end of invocca. Each
// tab is a resource screen; the change feed keeps cached lists fresh across
// sessions.
package console

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/MCT-Salman/invocca/pkg/client"
	"github.com/MCT-Salman/invocca/pkg/notify"
	"github.com/MCT-Salman/invocca/pkg/query"
	"github.com/MCT-Salman/invocca/pkg/types"
)

const (
	defaultPageSize = 10
	watchRetryDelay = 3 * time.Second
)

// Options configures Run.
type Options struct {
	Client *client.Client
	// Role selects the pages shown. The API enforces permissions either way.
	Role    string
	Subject string
	// EventID scopes the invitations page. Clients need it to list
	// invitations.
	EventID  string
	PageSize int
	// StaleTime is how long cached lists stay fresh; zero uses
	// query.DefaultStaleTime. The change feed invalidates lists sooner.
	StaleTime time.Duration
	Logger    zerolog.Logger
}

// Run starts the console and blocks until the user quits or ctx ends.
func Run(ctx context.Context, opts Options, progOpts ...tea.ProgramOption) error {
	if opts.Client == nil {
		return errors.New("console: client is required")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m, changes := build(ctx, opts)
	go watch(ctx, opts.Client, changes, opts.Logger)

	progOpts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, progOpts...)
	if _, err := tea.NewProgram(m, progOpts...).Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running console: %w", err)
	}
	return nil
}

// build wires the cache, notifications and pages for opts.
func build(ctx context.Context, opts Options) (Model, chan types.Change) {
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.StaleTime <= 0 {
		opts.StaleTime = query.DefaultStaleTime
	}

	cache := query.NewCache(query.WithStaleTime(opts.StaleTime))
	queue := &notify.Queue{}
	d := deps{
		client:   opts.Client,
		cache:    cache,
		notifier: notify.Multi(queue, notify.LogNotifier{Logger: opts.Logger.With().Str("component", "notify").Logger()}),
		logger:   opts.Logger,
		pageSize: opts.PageSize,
	}

	dashboard := query.Bind(cache, query.Key{"dashboard"}, func(ctx context.Context) (types.Dashboard, error) {
		res, err := opts.Client.Dashboard(ctx)
		if err != nil {
			return types.Dashboard{}, err
		}
		return res.Spec, nil
	})

	who := opts.Role
	if opts.Subject != "" {
		who = opts.Subject + " (" + opts.Role + ")"
	}
	changes := make(chan types.Change, 64)
	return newModel(ctx, pagesFor(opts.Role, d, opts.EventID), cache, queue, dashboard, changes, who), changes
}

// watch follows the change feed until ctx ends, reconnecting after drops.
// The channel is closed on return.
func watch(ctx context.Context, c *client.Client, out chan<- types.Change, logger zerolog.Logger) {
	defer close(out)
	for {
		err := c.Watch(ctx, func(ch types.Change) {
			select {
			case out <- ch:
			case <-ctx.Done():
			}
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Debug().Err(err).Msg("change feed dropped; reconnecting")
		}
		select {
		case <-time.After(watchRetryDelay):
		case <-ctx.Done():
			return
		}
	}
}
