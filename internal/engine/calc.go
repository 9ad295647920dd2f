package engine

import (
	"math"

	"github.com/shopspring/decimal"

	"hyperbot/internal/models"
)

// CalcPriceLevels interpolates n prices from start to end inclusive. No rounding.
func CalcPriceLevels(start, end float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{start}
	}

	step := (end - start) / float64(n-1)
	levels := make([]float64, n)
	for i := range levels {
		levels[i] = start + float64(i)*step
	}
	levels[n-1] = end
	return levels
}

func CalcLinearSizes(total float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	sizes := make([]float64, n)
	for i := range sizes {
		sizes[i] = total / float64(n)
	}
	return sizes
}

// CalcGeometricSizes returns first*ratio^i allocations rescaled so they sum to total.
func CalcGeometricSizes(total float64, n int, ratio float64) []float64 {
	if n <= 0 {
		return nil
	}
	if math.Abs(ratio-1) < 1e-12 {
		return CalcLinearSizes(total, n)
	}

	first := total * (1 - ratio) / (1 - math.Pow(ratio, float64(n)))

	sizes := make([]float64, n)
	sum := 0.0
	for i := range sizes {
		sizes[i] = first * math.Pow(ratio, float64(i))
		sum += sizes[i]
	}

	if sum > 0 {
		correction := total / sum
		for i := range sizes {
			sizes[i] *= correction
		}
	}
	return sizes
}

// Rounding quantizes prices and sizes with round-half-to-even.
// SigFigs limits significant figures of fractional prices, 0 disables it.
type Rounding struct {
	TickSize     float64
	SizeDecimals int
	SigFigs      int
}

var DefaultRounding = Rounding{TickSize: 0.01, SizeDecimals: 4}

// perpMaxPriceDecimals is the decimal budget shared by price and size on Hyperliquid perps.
const perpMaxPriceDecimals = 6

// RoundingForAsset derives tick size and size decimals from exchange metadata.
func RoundingForAsset(meta models.AssetMeta) Rounding {
	decimals := perpMaxPriceDecimals - meta.SzDecimals
	if decimals < 0 {
		decimals = 0
	}
	return Rounding{
		TickSize:     math.Pow10(-decimals),
		SizeDecimals: meta.SzDecimals,
		SigFigs:      5,
	}
}

func (r Rounding) Price(price float64) float64 {
	d := decimal.NewFromFloat(price)

	if r.SigFigs > 0 && price > 0 {
		magnitude := int(math.Floor(math.Log10(price)))
		places := r.SigFigs - 1 - magnitude
		if places < 0 {
			places = 0
		}
		d = d.RoundBank(int32(places))
	}

	if r.TickSize > 0 {
		tick := decimal.NewFromFloat(r.TickSize)
		d = d.Div(tick).RoundBank(0).Mul(tick)
	}

	return d.InexactFloat64()
}

func (r Rounding) Size(size float64) float64 {
	return decimal.NewFromFloat(size).RoundBank(int32(r.SizeDecimals)).InexactFloat64()
}

// BuildOrders computes, rounds and zips the legs of a validated config.
// In USD mode each allocation is a notional and the size is allocation / price.
// The last leg absorbs the rounding residual, so the rounded notional differs from the
// requested total by at most one size step (10^-SizeDecimals) at the last price.
// Callers pass the asset's szDecimals in rounding to keep that bound tight.
func BuildOrders(cfg models.ScaleOrderConfig, rounding Rounding) []models.PreviewOrder {
	n := cfg.NumOrders
	prices := CalcPriceLevels(cfg.StartPrice, cfg.EndPrice, n)

	usdMode := cfg.TotalUSDAmount > 0
	total := cfg.TotalCoinSize
	if usdMode {
		total = cfg.TotalUSDAmount
	}

	var allocations []float64
	switch cfg.DistributionType {
	case models.DistributionGeometric:
		allocations = CalcGeometricSizes(total, n, cfg.GeometricRatio)
	default:
		allocations = CalcLinearSizes(total, n)
	}

	orders := make([]models.PreviewOrder, n)
	for i := range orders {
		price := rounding.Price(prices[i])
		raw := allocations[i]
		if usdMode {
			raw = allocations[i] / price
		}
		orders[i] = models.PreviewOrder{Price: price, Size: rounding.Size(raw)}
	}

	last := n - 1
	if last >= 0 {
		consumed := 0.0
		for i := 0; i < last; i++ {
			if usdMode {
				consumed += orders[i].Price * orders[i].Size
			} else {
				consumed += orders[i].Size
			}
		}
		residual := total - consumed
		if usdMode {
			residual /= orders[last].Price
		}
		if adjusted := rounding.Size(residual); adjusted > 0 {
			orders[last].Size = adjusted
		}
	}

	for i := range orders {
		orders[i].Notional = roundNotional(orders[i].Price * orders[i].Size)
	}
	return orders
}

func roundNotional(v float64) float64 {
	return decimal.NewFromFloat(v).Round(8).InexactFloat64()
}

func CalcAvgPrice(totalCost, totalQty float64) float64 {
	if totalQty == 0 {
		return 0
	}
	return totalCost / totalQty
}

func CalcPriceRangePct(start, end float64) float64 {
	if start == 0 {
		return 0
	}
	return math.Abs(end-start) / start * 100
}
