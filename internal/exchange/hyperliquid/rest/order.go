package rest

import (
	"context"
	"fmt"
	"strconv"

	json "github.com/goccy/go-json"

	"hyperbot/internal/errs"
	"hyperbot/internal/exchange"
	"hyperbot/internal/models"
)

// PlaceLimitOrder submits one signed limit order. Rejections are reported as an error outcome,
// only transport and signing problems are returned as errors.
func (c *Client) PlaceLimitOrder(ctx context.Context, req exchange.LimitOrderRequest) (exchange.PlaceOutcome, error) {
	const op = "hyperliquid.order"

	if c.wallet == nil {
		return exchange.PlaceOutcome{}, errs.Validation(op, errPrivateKeyMissing.Error())
	}

	meta, err := c.AssetMeta(ctx, req.Coin)
	if err != nil {
		return exchange.PlaceOutcome{}, err
	}

	price, err := floatToWire(req.Price)
	if err != nil {
		return exchange.PlaceOutcome{}, errs.Validation(op, err.Error())
	}
	size, err := floatToWire(req.Size)
	if err != nil {
		return exchange.PlaceOutcome{}, errs.Validation(op, err.Error())
	}

	tif := req.TimeInForce
	if tif == "" {
		tif = models.TimeInForceGtc
	}

	action := orderAction{
		Type: "order",
		Orders: []orderWire{{
			Asset:      meta.Index,
			IsBuy:      req.IsBuy,
			Price:      price,
			Size:       size,
			ReduceOnly: req.ReduceOnly,
			OrderType:  orderTypeWire{Limit: limitWire{TIF: string(tif)}},
		}},
		Grouping: "na",
	}

	statuses, message, err := c.postAction(ctx, "order", action)
	if err != nil {
		return exchange.PlaceOutcome{}, err
	}
	if message != "" {
		return exchange.PlaceOutcome{Kind: exchange.OutcomeError, Message: message}, nil
	}
	if len(statuses) == 0 {
		return exchange.PlaceOutcome{Kind: exchange.OutcomeError, Message: "empty order status"}, nil
	}

	st := statuses[0]
	switch {
	case st.Resting != nil:
		c.logEntry().WithFields(map[string]interface{}{
			"coin":     req.Coin,
			"order_id": st.Resting.OrderID,
		}).Debug("Лимитный ордер выставлен.")
		return exchange.PlaceOutcome{Kind: exchange.OutcomeResting, OrderID: st.Resting.OrderID}, nil
	case st.Filled != nil:
		avg, _ := strconv.ParseFloat(st.Filled.AvgPx, 64)
		filled, _ := strconv.ParseFloat(st.Filled.TotalSz, 64)
		return exchange.PlaceOutcome{
			Kind:     exchange.OutcomeFilled,
			OrderID:  st.Filled.OrderID,
			AvgPrice: avg,
			Filled:   filled,
		}, nil
	case st.Error != "":
		return exchange.PlaceOutcome{Kind: exchange.OutcomeError, Message: st.Error}, nil
	default:
		return exchange.PlaceOutcome{Kind: exchange.OutcomeError, Message: "unknown order status"}, nil
	}
}

func (c *Client) CancelOrder(ctx context.Context, coin string, orderID int64) error {
	const op = "hyperliquid.cancel"

	if c.wallet == nil {
		return errs.Validation(op, errPrivateKeyMissing.Error())
	}

	meta, err := c.AssetMeta(ctx, coin)
	if err != nil {
		return err
	}

	action := cancelAction{
		Type:    "cancel",
		Cancels: []cancelWire{{Asset: meta.Index, OrderID: orderID}},
	}

	statuses, message, err := c.postAction(ctx, "cancel", action)
	if err != nil {
		return err
	}
	if message != "" {
		return errs.Exchange(op, message)
	}
	for _, st := range statuses {
		if st.Error != "" {
			return errs.Exchange(op, st.Error)
		}
	}
	return nil
}

// postAction signs and posts an L1 action. A top level "err" status is returned as message.
func (c *Client) postAction(ctx context.Context, request string, action any) ([]statusEntry, string, error) {
	nonce := c.nextNonce()

	sig, err := signL1Action(c.wallet, action, c.vault, nonce, c.mainnet)
	if err != nil {
		return nil, "", fmt.Errorf("Не удалось подписать действие %s: %w", request, err)
	}

	body := exchangeRequest{Action: action, Nonce: nonce, Signature: sig}
	if c.vault != "" {
		vault := c.vault
		body.VaultAddress = &vault
	}

	var resp exchangeResponse
	if err := c.doRequest(ctx, pathExchange, request, body, &resp); err != nil {
		return nil, "", err
	}

	if resp.Status != "ok" {
		var msg string
		if err := json.Unmarshal(resp.Response, &msg); err != nil || msg == "" {
			msg = string(resp.Response)
		}
		c.logEntry().WithField("request", request).WithField("error", msg).Warn("Биржа отклонила действие.")
		return nil, msg, nil
	}

	var parsed exchangeResponseBody
	if err := json.Unmarshal(resp.Response, &parsed); err != nil {
		return nil, "", fmt.Errorf("Не удалось разобрать ответ %s: %w", request, err)
	}

	statuses := make([]statusEntry, 0, len(parsed.Data.Statuses))
	for _, raw := range parsed.Data.Statuses {
		var st statusEntry
		if err := json.Unmarshal(raw, &st); err != nil {
			return nil, "", fmt.Errorf("Не удалось разобрать статус %s: %w", request, err)
		}
		statuses = append(statuses, st)
	}
	return statuses, "", nil
}
