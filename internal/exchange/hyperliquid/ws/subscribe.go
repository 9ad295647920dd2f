package ws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"hyperbot/internal/exchange"
)

func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = c.cfg.MaxBackoff
	b.Reset()
	return b
}

// run dials, serves and redials until ctx is done or MaxAttempts consecutive dials fail.
func (c *Client) run(ctx context.Context, user string, events chan<- exchange.Event) {
	defer close(events)

	b := c.newBackOff()
	connected := false
	failures := 0

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := c.dial(ctx, user)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			c.logEntry().WithError(err).WithField("attempt", failures).Warn("Не удалось подключиться к WS.")

			if failures >= c.cfg.MaxAttempts {
				c.emit(ctx, events, exchange.Event{
					Type: exchange.EventTypeStopped,
					Err:  fmt.Errorf("Подключение к WS не восстановлено после %d попыток: %w", failures, err),
				})
				return
			}
			if !c.sleep(ctx, b) {
				return
			}
			continue
		}

		if connected {
			c.logEntry().WithField("attempts", failures).Info("WS переподключён, подписка восстановлена.")
			c.emit(ctx, events, exchange.Event{Type: exchange.EventTypeReconnect})
		} else {
			c.logEntry().Info("WS соединение установлено.")
		}
		connected = true
		failures = 0
		b.Reset()

		err = c.serve(ctx, conn, events)
		if ctx.Err() != nil {
			return
		}
		c.logEntry().WithError(err).Warn("WS соединение потеряно.")

		if !c.sleep(ctx, b) {
			return
		}
	}
}

func (c *Client) sleep(ctx context.Context, b *backoff.ExponentialBackOff) bool {
	wait := b.NextBackOff()
	if wait == backoff.Stop {
		wait = c.cfg.MaxBackoff
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(wait):
		return true
	}
}

func (c *Client) dial(ctx context.Context, user string) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	conn.SetReadLimit(readLimit)

	msg := subscribeMessage{
		Method:       "subscribe",
		Subscription: subscription{Type: channelUserFills, User: user},
	}
	if err := c.writeJSON(conn, msg); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("subscribe userFills: %w", err)
	}
	return conn, nil
}

// serve runs the read and ping loops until either fails or ctx is done.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn, events chan<- exchange.Event) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- c.readLoop(connCtx, conn, events) }()
	go func() { errCh <- c.pingLoop(connCtx, conn) }()

	var first error
	received := 0
	select {
	case first = <-errCh:
		received++
	case <-connCtx.Done():
		first = connCtx.Err()
	}

	cancel()
	_ = conn.Close()
	for ; received < 2; received++ {
		<-errCh
	}
	return first
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.writeJSON(conn, pingMessage{Method: "ping"}); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

func (c *Client) writeJSON(conn *websocket.Conn, v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}

func (c *Client) emit(ctx context.Context, events chan<- exchange.Event, ev exchange.Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func isClosed(err error) bool {
	return errors.Is(err, websocket.ErrCloseSent) || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
