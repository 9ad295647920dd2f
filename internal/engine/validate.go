package engine

import (
	"fmt"
	"strings"

	"hyperbot/internal/errs"
	"hyperbot/internal/models"
)

const (
	MinOrders = 1
	MaxOrders = 20
	MaxRatio  = 3.0
)

// normalize fills defaults and validates. The input is not modified.
func (e *Engine) normalize(cfg models.ScaleOrderConfig) (models.ScaleOrderConfig, error) {
	const op = "scale.validate"

	cfg.Coin = strings.ToUpper(strings.TrimSpace(cfg.Coin))
	if cfg.Coin == "" {
		return cfg, errs.Validation(op, "coin is required")
	}

	if cfg.TotalUSDAmount < 0 || cfg.TotalCoinSize < 0 {
		return cfg, errs.Validation(op, "totals must be positive")
	}
	if (cfg.TotalUSDAmount > 0) == (cfg.TotalCoinSize > 0) {
		return cfg, errs.Validation(op, "exactly one of total_usd_amount or total_coin_size must be set")
	}

	if cfg.NumOrders < MinOrders || cfg.NumOrders > MaxOrders {
		return cfg, errs.Validation(op, fmt.Sprintf("num_orders must be between %d and %d, got %d", MinOrders, MaxOrders, cfg.NumOrders))
	}

	if cfg.StartPrice <= 0 || cfg.EndPrice <= 0 {
		return cfg, errs.Validation(op, "prices must be positive")
	}
	if cfg.NumOrders > 1 && cfg.StartPrice == cfg.EndPrice {
		return cfg, errs.Validation(op, "start_price and end_price must differ")
	}

	switch cfg.DistributionType {
	case "":
		cfg.DistributionType = models.DistributionLinear
	case models.DistributionLinear, models.DistributionGeometric:
	default:
		return cfg, errs.Validation(op, fmt.Sprintf("unknown distribution_type %q", cfg.DistributionType))
	}

	if cfg.GeometricRatio == 0 {
		cfg.GeometricRatio = e.defaultRatio
	}
	if cfg.DistributionType == models.DistributionGeometric && (cfg.GeometricRatio <= 1 || cfg.GeometricRatio > MaxRatio) {
		return cfg, errs.Validation(op, fmt.Sprintf("geometric_ratio must be in (1, %.1f], got %v", MaxRatio, cfg.GeometricRatio))
	}

	switch cfg.TimeInForce {
	case "":
		cfg.TimeInForce = models.TimeInForceGtc
	case models.TimeInForceGtc, models.TimeInForceIoc, models.TimeInForceAlo:
	default:
		return cfg, errs.Validation(op, fmt.Sprintf("unknown time_in_force %q", cfg.TimeInForce))
	}

	return cfg, nil
}
