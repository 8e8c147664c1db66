package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/MCT-Salman/invocca/pkg/types"
)

const changesPath = apiPrefix + "/changes"

// Watch streams committed mutations from the change feed to fn until ctx is
// canceled or the connection drops. It returns nil on cancellation.
func (c *Client) Watch(ctx context.Context, fn func(types.Change)) error {
	token, err := c.token(ctx)
	if err != nil {
		return fmt.Errorf("resolving token: %w", err)
	}
	header := http.Header{}
	header.Set("User-Agent", c.cfg.UserAgent)
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, websocketURL(c.baseURL)+changesPath, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dialing change feed: status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dialing change feed: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		case <-done:
			_ = conn.Close()
		}
	}()

	for {
		var change types.Change
		if err := conn.ReadJSON(&change); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			if errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			return fmt.Errorf("reading change feed: %w", err)
		}
		fn(change)
	}
}

func websocketURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}
