package fills

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"hyperbot/internal/models"
)

// FormatFill renders a single fill as Telegram HTML.
func FormatFill(f models.Fill) string {
	icon := "🟢"
	side := "BUY"
	if !f.IsBuy() {
		icon = "🔴"
		side = "SELL"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s %s</b>\n", icon, side, html.EscapeString(f.Coin))
	if f.Direction != "" {
		fmt.Fprintf(&b, "%s\n", html.EscapeString(f.Direction))
	}
	fmt.Fprintf(&b, "Size: %s @ %s\n", f.Size.String(), f.Price.String())
	fmt.Fprintf(&b, "Notional: $%s\n", f.Notional().StringFixed(2))
	if !f.ClosedPnl.IsZero() {
		fmt.Fprintf(&b, "Closed PnL: $%s\n", f.ClosedPnl.StringFixed(2))
	}
	if !f.Fee.IsZero() {
		fmt.Fprintf(&b, "Fee: %s %s\n", f.Fee.String(), html.EscapeString(f.FeeToken))
	}
	if f.IsLiquidation() {
		b.WriteString("⚠️ Liquidation\n")
	}
	fmt.Fprintf(&b, "<i>%s</i>", time.UnixMilli(f.Time).UTC().Format("2006-01-02 15:04:05 UTC"))
	return b.String()
}

type coinSummary struct {
	count    int
	buySize  decimal.Decimal
	sellSize decimal.Decimal
}

// FormatBatch summarises fills grouped by coin, with counts and size per side.
func FormatBatch(fills []models.Fill) string {
	groups := make(map[string]*coinSummary)
	for _, f := range fills {
		s, ok := groups[f.Coin]
		if !ok {
			s = &coinSummary{}
			groups[f.Coin] = s
		}
		s.count++
		if f.IsBuy() {
			s.buySize = s.buySize.Add(f.Size)
		} else {
			s.sellSize = s.sellSize.Add(f.Size)
		}
	}

	coins := make([]string, 0, len(groups))
	for coin := range groups {
		coins = append(coins, coin)
	}
	sort.Strings(coins)

	var b strings.Builder
	fmt.Fprintf(&b, "📦 <b>%d fills recovered</b>\n", len(fills))
	for _, coin := range coins {
		s := groups[coin]
		fmt.Fprintf(&b, "\n<b>%s</b>: %d fills", html.EscapeString(coin), s.count)
		if !s.buySize.IsZero() {
			fmt.Fprintf(&b, ", bought %s", s.buySize.String())
		}
		if !s.sellSize.IsZero() {
			fmt.Fprintf(&b, ", sold %s", s.sellSize.String())
		}
	}
	if len(fills) > 0 {
		first := time.UnixMilli(fills[0].Time).UTC().Format("2006-01-02 15:04")
		last := time.UnixMilli(fills[len(fills)-1].Time).UTC().Format("2006-01-02 15:04")
		fmt.Fprintf(&b, "\n\n<i>%s – %s UTC</i>", first, last)
	}
	return b.String()
}
