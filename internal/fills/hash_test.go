package fills

import (
	"encoding/hex"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"hyperbot/internal/models"
)

func testFill(oid, tid, ts int64, coin string) models.Fill {
	return models.Fill{
		Coin:      coin,
		Price:     decimal.RequireFromString("50000.5"),
		Size:      decimal.RequireFromString("0.01"),
		Side:      models.FillSideBuy,
		Time:      ts,
		Direction: "Open Long",
		Hash:      "0xabc",
		OrderID:   oid,
		TradeID:   tid,
		Fee:       decimal.RequireFromString("0.2"),
		FeeToken:  "USDC",
	}
}

func TestFillHash_DiffersByTradeIDWithinOneTransaction(t *testing.T) {
	a := testFill(1, 1, 1700000000000, "BTC")
	b := testFill(1, 2, 1700000000000, "BTC")

	assert.Equal(t, a.Hash, b.Hash)
	assert.NotEqual(t, FillHash(a), FillHash(b))
}

func TestFillHash_StableAndShort(t *testing.T) {
	f := testFill(9, 3, 1700000000000, "ETH")

	h := FillHash(f)
	assert.Len(t, h, 16)
	_, err := hex.DecodeString(h)
	assert.NoError(t, err)
	assert.Equal(t, h, FillHash(f))

	other := f
	other.Hash = "0xdef"
	other.Fee = decimal.Zero
	assert.Equal(t, h, FillHash(other), "only order, trade, time, coin, price and size participate")
}
