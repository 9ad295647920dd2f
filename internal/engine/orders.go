package engine

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"

	"hyperbot/internal/errs"
	"hyperbot/internal/exchange"
	"hyperbot/internal/metrics"
	"hyperbot/internal/models"
)

// Preview validates the config and computes the rounded ladder without touching the trading client.
func (e *Engine) Preview(ctx context.Context, cfg models.ScaleOrderConfig) (*models.ScaleOrderPreview, error) {
	cfg, err := e.normalize(cfg)
	if err != nil {
		return nil, err
	}
	return e.preview(cfg, e.roundingFor(ctx, cfg.Coin))
}

func (e *Engine) preview(cfg models.ScaleOrderConfig, rounding Rounding) (*models.ScaleOrderPreview, error) {
	orders := BuildOrders(cfg, rounding)

	var totalNotional, totalSize float64
	for i, o := range orders {
		if o.Size <= 0 {
			return nil, errs.Validation("scale.preview", fmt.Sprintf("order %d size rounds to zero at %d decimals", i+1, rounding.SizeDecimals))
		}
		totalNotional += o.Price * o.Size
		totalSize += o.Size
	}

	preview := &models.ScaleOrderPreview{
		Coin:              cfg.Coin,
		IsBuy:             cfg.IsBuy,
		TotalUSDAmount:    cfg.TotalUSDAmount,
		TotalCoinSize:     cfg.TotalCoinSize,
		NumOrders:         cfg.NumOrders,
		Orders:            orders,
		EstimatedAvgPrice: CalcAvgPrice(totalNotional, totalSize),
		PriceRangePct:     CalcPriceRangePct(cfg.StartPrice, cfg.EndPrice),
	}
	if preview.TotalUSDAmount == 0 {
		preview.TotalUSDAmount = roundNotional(totalNotional)
	}
	if preview.TotalCoinSize == 0 {
		preview.TotalCoinSize = rounding.Size(totalSize)
	}
	return preview, nil
}

// Place submits every leg in ladder order. A failed leg never stops the remaining ones.
func (e *Engine) Place(ctx context.Context, cfg models.ScaleOrderConfig) (*models.ScaleOrderResult, error) {
	cfg, err := e.normalize(cfg)
	if err != nil {
		return nil, err
	}
	preview, err := e.preview(cfg, e.roundingFor(ctx, cfg.Coin))
	if err != nil {
		return nil, err
	}

	e.logEntry().WithFields(map[string]interface{}{
		"coin":         cfg.Coin,
		"is_buy":       cfg.IsBuy,
		"num_orders":   cfg.NumOrders,
		"distribution": cfg.DistributionType,
	}).Info("Размещение scale-ордера.")

	placements := make([]models.OrderPlacement, len(preview.Orders))
	var legs []models.ScaleLeg
	var orderIDs []int64

	for i, o := range preview.Orders {
		placement := models.OrderPlacement{Price: o.Price, Size: o.Size}

		outcome, err := e.trading.PlaceLimitOrder(ctx, exchange.LimitOrderRequest{
			Coin:        cfg.Coin,
			IsBuy:       cfg.IsBuy,
			Size:        o.Size,
			Price:       o.Price,
			ReduceOnly:  cfg.ReduceOnly,
			TimeInForce: cfg.TimeInForce,
		})

		switch {
		case err != nil:
			placement.Status = models.PlacementFailed
			placement.Error = err.Error()
		case outcome.Kind == exchange.OutcomeResting:
			id := outcome.OrderID
			placement.Status = models.PlacementSuccess
			placement.OrderID = &id
			orderIDs = append(orderIDs, id)
			legs = append(legs, models.ScaleLeg{OrderID: id, Price: o.Price, Size: o.Size})
		case outcome.Kind == exchange.OutcomeFilled:
			placement.Status = models.PlacementSuccess
			legs = append(legs, models.ScaleLeg{Price: o.Price, Size: o.Size})
		default:
			placement.Status = models.PlacementFailed
			placement.Error = outcome.Message
			if placement.Error == "" {
				placement.Error = "unknown exchange outcome"
			}
		}

		entry := e.logEntry().WithFields(map[string]interface{}{
			"leg":   i + 1,
			"price": formatFloatPlain(o.Price),
			"size":  formatFloatPlain(o.Size),
		})
		if placement.Status == models.PlacementFailed {
			entry.WithField("error", placement.Error).Warn("Ордер scale-сетки не размещён.")
		} else {
			entry.Debug("Ордер scale-сетки размещён.")
		}
		metrics.ScaleLegs.WithLabelValues(string(placement.Status)).Inc()

		placements[i] = placement
	}

	result := summarize(cfg, placements)

	now := e.now().UTC()
	order := &models.ScaleOrder{
		ID:               e.newID(),
		Coin:             cfg.Coin,
		IsBuy:            cfg.IsBuy,
		TotalUSDAmount:   preview.TotalUSDAmount,
		TotalCoinSize:    preview.TotalCoinSize,
		NumOrders:        cfg.NumOrders,
		StartPrice:       cfg.StartPrice,
		EndPrice:         cfg.EndPrice,
		DistributionType: cfg.DistributionType,
		OrderIDs:         orderIDs,
		Legs:             legs,
		OrdersPlaced:     result.OrdersPlaced,
		Status:           models.ScaleOrderActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if result.Status == models.ResultFailed {
		order.Status = models.ScaleOrderFailed
	}
	result.ScaleOrderID = order.ID

	metrics.ScaleOrders.WithLabelValues(string(result.Status)).Inc()

	if err := e.store.Save(ctx, order); err != nil {
		return result, fmt.Errorf("Не удалось сохранить scale-ордер %s: %w", order.ID, err)
	}

	e.log.WithScaleOrderID(order.ID).WithFields(map[string]interface{}{
		"component": "scale_engine",
		"placed":    result.OrdersPlaced,
		"failed":    result.OrdersFailed,
		"status":    result.Status,
	}).Info("Scale-ордер размещён.")

	return result, nil
}

func summarize(cfg models.ScaleOrderConfig, placements []models.OrderPlacement) *models.ScaleOrderResult {
	result := &models.ScaleOrderResult{
		Coin:       cfg.Coin,
		IsBuy:      cfg.IsBuy,
		NumOrders:  cfg.NumOrders,
		Placements: placements,
	}

	var notional float64
	for _, p := range placements {
		if p.Status != models.PlacementSuccess {
			result.OrdersFailed++
			continue
		}
		result.OrdersPlaced++
		result.TotalPlacedSize += p.Size
		notional += p.Price * p.Size
	}

	if result.OrdersPlaced > 0 && result.TotalPlacedSize > 0 {
		avg := notional / result.TotalPlacedSize
		result.AveragePrice = &avg
	}

	switch {
	case result.OrdersPlaced == cfg.NumOrders:
		result.Status = models.ResultCompleted
	case result.OrdersPlaced > 0:
		result.Status = models.ResultPartial
	default:
		result.Status = models.ResultFailed
	}
	return result
}

// Cancel is best effort and always terminal: the order ends up cancelled even when exchange calls fail.
func (e *Engine) Cancel(ctx context.Context, id string, cancelAll bool) (*models.CancelResult, error) {
	order, err := e.load(ctx, "scale.cancel", id)
	if err != nil {
		return nil, err
	}

	result := &models.CancelResult{
		ScaleOrderID: order.ID,
		Total:        len(order.OrderIDs),
		Status:       models.ScaleOrderCancelled,
	}

	if cancelAll && len(order.OrderIDs) > 0 {
		failures := make([]error, len(order.OrderIDs))

		p := pool.New().WithMaxGoroutines(e.cancelWorkers)
		for i, oid := range order.OrderIDs {
			i, oid := i, oid
			p.Go(func() {
				failures[i] = e.trading.CancelOrder(ctx, order.Coin, oid)
			})
		}
		p.Wait()

		for i, ferr := range failures {
			if ferr == nil {
				result.Cancelled++
				continue
			}
			oid := order.OrderIDs[i]
			result.Errors = append(result.Errors, fmt.Sprintf("order %d: %v", oid, ferr))
			e.log.WithOrderID(oid).WithError(ferr).WithField("scale_order_id", order.ID).Warn("Не удалось отменить ордер.")
		}
	}

	order.Status = models.ScaleOrderCancelled
	order.UpdatedAt = e.now().UTC()
	if err := e.store.Save(ctx, order); err != nil {
		return result, fmt.Errorf("Не удалось сохранить scale-ордер %s: %w", order.ID, err)
	}

	e.log.WithScaleOrderID(order.ID).WithFields(map[string]interface{}{
		"component": "scale_engine",
		"cancelled": result.Cancelled,
		"total":     result.Total,
		"errors":    len(result.Errors),
	}).Info("Scale-ордер отменён.")

	return result, nil
}

// Status treats tracked orders missing from the open orders list as filled.
func (e *Engine) Status(ctx context.Context, id string) (*models.ScaleOrderStatus, error) {
	order, err := e.load(ctx, "scale.status", id)
	if err != nil {
		return nil, err
	}
	if e.info == nil {
		return nil, errs.Validation("scale.status", "info client is not configured")
	}

	open, err := e.info.OpenOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("Не удалось получить открытые ордера: %w", err)
	}

	openSet := make(map[int64]struct{}, len(open))
	for _, o := range open {
		openSet[o.OrderID] = struct{}{}
	}

	status := &models.ScaleOrderStatus{}
	for _, oid := range order.OrderIDs {
		if _, ok := openSet[oid]; ok {
			status.OpenOrderIDs = append(status.OpenOrderIDs, oid)
		} else {
			status.FilledOrderIDs = append(status.FilledOrderIDs, oid)
		}
	}

	var filledSize, filledNotional float64
	for _, leg := range order.Legs {
		if _, ok := openSet[leg.OrderID]; ok {
			continue
		}
		filledSize += leg.Size
		filledNotional += leg.Price * leg.Size
	}

	order.OrdersFilled = order.OrdersPlaced - len(status.OpenOrderIDs)
	if order.OrdersFilled < 0 {
		order.OrdersFilled = 0
	}
	order.TotalFilledSize = filledSize
	order.AverageFillPrice = nil
	if filledSize > 0 {
		avg := filledNotional / filledSize
		order.AverageFillPrice = &avg
	}

	if order.OrdersPlaced > 0 {
		status.FillPercentage = float64(order.OrdersFilled) / float64(order.OrdersPlaced) * 100
	}

	now := e.now().UTC()
	if status.FillPercentage >= 100 && order.Status == models.ScaleOrderActive {
		order.Status = models.ScaleOrderCompleted
		order.CompletedAt = &now
		e.log.WithScaleOrderID(order.ID).WithField("component", "scale_engine").Info("Scale-ордер полностью исполнен.")
	}
	order.UpdatedAt = now

	if err := e.store.Save(ctx, order); err != nil {
		return nil, fmt.Errorf("Не удалось сохранить scale-ордер %s: %w", order.ID, err)
	}

	status.ScaleOrder = *order
	return status, nil
}
