package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/felixmccuaig/greyhounds-trading/internal/signal"
)

const (
	streamReadTimeout  = 30 * time.Second
	streamPingInterval = 15 * time.Second
)

// subscription is sent once per connection; an empty market list subscribes to everything the
// server publishes.
type subscription struct {
	Op        string   `json:"op"`
	MarketIDs []string `json:"marketIds,omitempty"`
}

// reconnectBackoff grows the wait between failed dials and starts over once a connection has
// been established.
type reconnectBackoff struct {
	min, max, next time.Duration
}

func newReconnectBackoff(initial, ceiling time.Duration) *reconnectBackoff {
	return &reconnectBackoff{min: initial, max: ceiling, next: initial}
}

// Delay returns the wait before the next dial. connected reports whether the attempt that just
// ended got as far as subscribing.
func (b *reconnectBackoff) Delay(connected bool) time.Duration {
	if connected {
		b.next = b.min
	}
	d := b.next
	if b.next = b.next * 9 / 5; b.next > b.max {
		b.next = b.max
	}
	return d
}

func (f *Feed) runStream(ctx context.Context, out chan<- signal.MarketBook) error {
	if f.streamURL == "" {
		return fmt.Errorf("stream feed requires a websocket url")
	}
	backoff := newReconnectBackoff(time.Second, 30*time.Second)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		connected, err := f.consumeStream(ctx, out)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		delay := backoff.Delay(connected)
		f.log.Warn().Err(err).Dur("backoff", delay).Msg("stream disconnected, retrying")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *Feed) consumeStream(ctx context.Context, out chan<- signal.MarketBook) (bool, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.streamURL, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	markets := f.snapshotMarkets()
	if err := conn.WriteJSON(subscription{Op: "marketSubscription", MarketIDs: markets}); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}
	f.log.Info().Str("url", f.streamURL).Strs("markets", markets).Msg("connected market book stream")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(streamPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					f.log.Warn().Err(err).Msg("stream ping failed")
					return
				}
			case <-pingCtx.Done():
				// unblock ReadMessage
				conn.Close()
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return true, nil
			}
			return true, err
		}
		conn.SetReadDeadline(time.Now().Add(streamReadTimeout))

		var book signal.MarketBook
		if err := json.Unmarshal(message, &book); err != nil {
			f.log.Warn().Err(err).Msg("failed to decode market book")
			continue
		}
		if book.Meta.MarketID == "" || !f.wants(book.Meta.MarketID) {
			continue
		}
		if err := f.publish(ctx, out, book); err != nil {
			return true, err
		}
	}
}
