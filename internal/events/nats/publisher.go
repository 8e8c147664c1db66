// Package nats publishes invocca change events to NATS JetStream.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/MCT-Salman/invocca/internal/events"
)

const defaultPublishTimeout = 5 * time.Second

// StreamConfig names the stream and the subjects it captures.
type StreamConfig struct {
	Name     string
	Subjects []string
}

// Config configures NewPublisher.
type Config struct {
	URL            string
	Name           string
	Stream         StreamConfig
	PublishTimeout time.Duration
}

// Publisher implements events.Publisher on a JetStream stream.
type Publisher struct {
	conn    *natsgo.Conn
	js      jetstream.JetStream
	timeout time.Duration
}

// NewPublisher connects and ensures the stream exists.
func NewPublisher(ctx context.Context, cfg Config) (*Publisher, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("nats: URL is required")
	}
	if cfg.Stream.Name == "" || len(cfg.Stream.Subjects) == 0 {
		return nil, errors.New("nats: stream name and subjects are required")
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}

	logger := log.With().Str("component", "nats-publisher").Logger()
	conn, err := natsgo.Connect(cfg.URL,
		natsgo.Name(cfg.Name),
		natsgo.MaxReconnects(-1),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("disconnected from NATS")
			}
		}),
		natsgo.ReconnectHandler(func(c *natsgo.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("reconnected to NATS")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}
	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.Stream.Name,
		Subjects: cfg.Stream.Subjects,
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ensuring stream %s: %w", cfg.Stream.Name, err)
	}

	return &Publisher{conn: conn, js: js, timeout: cfg.PublishTimeout}, nil
}

// Publish sends event on the subject named by its type. The event ID is
// used for JetStream de-duplication.
func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event %s: %w", event.ID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if _, err := p.js.Publish(ctx, event.Type, data, jetstream.WithMsgID(event.ID)); err != nil {
		return fmt.Errorf("publishing %s: %w", event.Type, err)
	}
	return nil
}

// Close drains the connection.
func (p *Publisher) Close() error {
	return p.conn.Drain()
}
