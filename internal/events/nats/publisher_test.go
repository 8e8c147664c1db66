package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	natssrv "github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MCT-Salman/invocca/internal/events"
	"github.com/MCT-Salman/invocca/pkg/types"
)

func startEmbeddedNATS(t *testing.T) string {
	t.Helper()

	srv, err := natssrv.NewServer(&natssrv.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	})
	require.NoError(t, err)

	go srv.Start()
	require.True(t, srv.ReadyForConnections(10*time.Second), "nats server did not become ready")

	t.Cleanup(func() {
		srv.Shutdown()
		srv.WaitForShutdown()
	})

	return fmt.Sprintf("nats://%s", srv.Addr().String())
}

func TestPublisher_PublishesToStream(t *testing.T) {
	url := startEmbeddedNATS(t)
	ctx := context.Background()

	pub, err := NewPublisher(ctx, Config{
		URL:  url,
		Name: "invocca-test",
		Stream: StreamConfig{
			Name:     "INVOCCA",
			Subjects: []string{"invocca.>"},
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	ev, err := events.NewChangeEvent(types.Change{
		Resource: types.ResourceEvents,
		Action:   types.ActionUpdated,
		ID:       "ev-1",
	})
	require.NoError(t, err)
	require.NoError(t, pub.Publish(ctx, ev))
	// Same ID: de-duplicated by JetStream.
	require.NoError(t, pub.Publish(ctx, ev))

	conn, err := natsgo.Connect(url)
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	js, err := jetstream.New(conn)
	require.NoError(t, err)

	stream, err := js.Stream(ctx, "INVOCCA")
	require.NoError(t, err)
	info, err := stream.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.State.Msgs)

	msg, err := stream.GetMsg(ctx, info.State.FirstSeq)
	require.NoError(t, err)
	assert.Equal(t, "invocca.events.updated", msg.Subject)

	var got events.Event
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, ev.ID, got.ID)

	change, err := events.DecodeChange(got)
	require.NoError(t, err)
	assert.Equal(t, "ev-1", change.ID)
}

func TestNewPublisher_Validation(t *testing.T) {
	_, err := NewPublisher(context.Background(), Config{})
	assert.ErrorContains(t, err, "URL is required")

	_, err = NewPublisher(context.Background(), Config{URL: "nats://127.0.0.1:1"})
	assert.ErrorContains(t, err, "stream name")
}
