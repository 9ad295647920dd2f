package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"hyperbot/internal/errs"
	"hyperbot/internal/metrics"
)

const (
	pathInfo     = "/info"
	pathExchange = "/exchange"
)

// doRequest posts body to path. Connectivity failures, 429 and 5xx come back as transport errors,
// other non-2xx statuses as exchange errors.
func (c *Client) doRequest(ctx context.Context, path, request string, body, out any) error {
	op := "hyperliquid" + path

	if err := c.limiter.Wait(ctx); err != nil {
		return errs.Transport(op, err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("Не удалось подготовить тело запроса: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("Не удалось создать запрос: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ExchangeRequestDuration.WithLabelValues(path, request).Observe(time.Since(started).Seconds())
	if err != nil {
		return errs.Transport(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Transport(op, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return errs.Transport(op, fmt.Errorf("статус %s: %s", resp.Status, truncate(data)))
	case resp.StatusCode >= 400:
		return errs.Exchange(op, fmt.Sprintf("%s: %s", resp.Status, truncate(data)))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("Не удалось разобрать ответ %s: %w", request, err)
	}
	return nil
}

func truncate(data []byte) string {
	const limit = 256
	if len(data) > limit {
		return string(data[:limit]) + "..."
	}
	return string(data)
}
