package slate

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// eventChannelBuffer absorbs short bursts so a slow consumer does not stall
// the socket read loop immediately.
const eventChannelBuffer = 16

// subscribeRequest is the first frame sent on a fresh event socket.
type subscribeRequest struct {
	Type   string   `json:"type"`
	Topics []string `json:"topics,omitempty"`
}

// ListenEvents subscribes to server-pushed events over the websocket
// endpoint and returns a channel of matching events. An empty topics list
// subscribes to everything. The channel closes when ctx is canceled or the
// server ends the stream; callers that need to reconnect call ListenEvents
// again.
func (c *Connection) ListenEvents(ctx context.Context, topics ...string) (<-chan Event, error) {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/ws"
	if c.token != "" {
		wsURL += "?token=" + url.QueryEscape(c.token)
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	sock, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPClient: c.httpClient,
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("slate: event socket dial: %w: %w", ErrServerUnreachable, err)
	}

	if err := wsjson.Write(ctx, sock, subscribeRequest{Type: "subscribe", Topics: topics}); err != nil {
		sock.CloseNow()
		return nil, fmt.Errorf("slate: event subscription: %w", err)
	}

	ch := make(chan Event, eventChannelBuffer)

	go c.readEvents(ctx, sock, ch)

	return ch, nil
}

// readEvents owns the socket: it forwards pushed events until the context
// is canceled or the stream breaks, then closes both.
func (c *Connection) readEvents(ctx context.Context, sock *websocket.Conn, ch chan<- Event) {
	defer close(ch)
	defer sock.CloseNow()

	for {
		var ev Event

		if err := wsjson.Read(ctx, sock, &ev); err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				c.logger.Debug("event stream ended",
					slog.String("error", err.Error()),
				)
			}

			return
		}

		select {
		case ch <- ev:
		case <-ctx.Done():
			return
		}
	}
}
