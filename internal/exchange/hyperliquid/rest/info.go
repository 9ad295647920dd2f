package rest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"hyperbot/internal/errs"
	"hyperbot/internal/models"
	"hyperbot/internal/storage"
)

func (c *Client) AllMids(ctx context.Context) (map[string]float64, error) {
	var raw map[string]string
	if err := c.doRequest(ctx, pathInfo, "allMids", infoRequest{Type: "allMids"}, &raw); err != nil {
		return nil, err
	}

	mids := make(map[string]float64, len(raw))
	for coin, px := range raw {
		v, err := strconv.ParseFloat(px, 64)
		if err != nil {
			c.logEntry().WithField("coin", coin).WithError(err).Debug("Пропущена некорректная цена.")
			continue
		}
		mids[coin] = v
	}
	return mids, nil
}

// AssetMeta resolves a perp by name. The universe is fetched once and cached.
func (c *Client) AssetMeta(ctx context.Context, coin string) (models.AssetMeta, error) {
	coin = strings.ToUpper(strings.TrimSpace(coin))

	c.metaMu.Lock()
	defer c.metaMu.Unlock()

	if c.meta == nil {
		var resp metaResponse
		if err := c.doRequest(ctx, pathInfo, "meta", infoRequest{Type: "meta"}, &resp); err != nil {
			return models.AssetMeta{}, err
		}
		meta := make(map[string]models.AssetMeta, len(resp.Universe))
		for i, a := range resp.Universe {
			meta[strings.ToUpper(a.Name)] = models.AssetMeta{
				Coin:        a.Name,
				Index:       i,
				SzDecimals:  a.SzDecimals,
				MaxLeverage: a.MaxLeverage,
			}
		}
		c.meta = meta
		c.logEntry().WithField("assets", len(meta)).Debug("Метаданные активов загружены.")
	}

	m, ok := c.meta[coin]
	if !ok {
		return models.AssetMeta{}, errs.NotFound("hyperliquid.meta", fmt.Sprintf("unknown asset %s", coin), storage.ErrNotFound)
	}
	return m, nil
}

// UserFills returns the most recent fills, newest first.
func (c *Client) UserFills(ctx context.Context) ([]models.Fill, error) {
	if err := c.requireUser("hyperliquid.userFills"); err != nil {
		return nil, err
	}
	var fills []models.Fill
	if err := c.doRequest(ctx, pathInfo, "userFills", infoRequest{Type: "userFills", User: c.user}, &fills); err != nil {
		return nil, err
	}
	return fills, nil
}

// UserFillsByTime returns fills at or after start, oldest first.
func (c *Client) UserFillsByTime(ctx context.Context, start time.Time) ([]models.Fill, error) {
	if err := c.requireUser("hyperliquid.userFillsByTime"); err != nil {
		return nil, err
	}
	req := infoRequest{Type: "userFillsByTime", User: c.user, StartTime: start.UnixMilli()}
	var fills []models.Fill
	if err := c.doRequest(ctx, pathInfo, "userFillsByTime", req, &fills); err != nil {
		return nil, err
	}
	return fills, nil
}

func (c *Client) OpenOrders(ctx context.Context) ([]models.OpenOrder, error) {
	if err := c.requireUser("hyperliquid.openOrders"); err != nil {
		return nil, err
	}
	var orders []models.OpenOrder
	if err := c.doRequest(ctx, pathInfo, "openOrders", infoRequest{Type: "openOrders", User: c.user}, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (c *Client) requireUser(op string) error {
	if c.user == "" {
		return errs.Validation(op, "account address is not configured")
	}
	return nil
}
