package ws

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"hyperbot/internal/exchange"
)

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, events chan<- exchange.Event) error {
	c.logEntry().Debug("readLoop запущен.")

	for {
		_ = conn.SetReadDeadline(time.Now().Add(2 * c.cfg.PingInterval))

		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if isClosed(err) {
				return fmt.Errorf("server closed connection: %w", err)
			}
			return fmt.Errorf("read: %w", err)
		}

		ev, ok := c.parse(data)
		if !ok {
			continue
		}
		if !c.emit(ctx, events, ev) {
			return nil
		}
	}
}

// parse turns a userFills push into an event. Other channels and empty batches are dropped.
func (c *Client) parse(data []byte) (exchange.Event, bool) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logEntry().WithError(err).Warn("Не удалось разобрать WS сообщение.")
		return exchange.Event{}, false
	}

	switch msg.Channel {
	case channelUserFills:
		var payload UserFillsData
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			c.logEntry().WithError(err).Warn("Не удалось разобрать userFills.")
			return exchange.Event{}, false
		}
		if len(payload.Fills) == 0 {
			return exchange.Event{}, false
		}
		return exchange.Event{
			Type:     exchange.EventTypeFills,
			Fills:    payload.Fills,
			Snapshot: payload.IsSnapshot,
		}, true
	case channelPong, channelSubscription:
		return exchange.Event{}, false
	case channelError:
		c.logEntry().WithField("data", string(msg.Data)).Warn("WS вернул ошибку.")
		return exchange.Event{}, false
	default:
		return exchange.Event{}, false
	}
}
