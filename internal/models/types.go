package models

import (
	"github.com/shopspring/decimal"
)

type FillSide string

const (
	FillSideBuy  FillSide = "B"
	FillSideSell FillSide = "S"
)

// Fill is a single execution as reported by the userFills info endpoint and websocket channel.
type Fill struct {
	Coin          string           `json:"coin"`
	Price         decimal.Decimal  `json:"px"`
	Size          decimal.Decimal  `json:"sz"`
	Side          FillSide         `json:"side"`
	Time          int64            `json:"time"`
	StartPosition decimal.Decimal  `json:"startPosition"`
	Direction     string           `json:"dir"`
	ClosedPnl     decimal.Decimal  `json:"closedPnl"`
	Hash          string           `json:"hash"`
	OrderID       int64            `json:"oid"`
	Crossed       bool             `json:"crossed"`
	Fee           decimal.Decimal  `json:"fee"`
	FeeToken      string           `json:"feeToken"`
	TradeID       int64            `json:"tid"`
	TwapID        *int64           `json:"twapId,omitempty"`
	BuilderFee    *decimal.Decimal `json:"builderFee,omitempty"`
	Liquidation   *FillLiquidation `json:"liquidation,omitempty"`
}

type FillLiquidation struct {
	LiquidatedUser string          `json:"liquidatedUser"`
	MarkPrice      decimal.Decimal `json:"markPx"`
	Method         string          `json:"method"`
}

func (f Fill) IsBuy() bool {
	return f.Side == FillSideBuy
}

func (f Fill) IsLiquidation() bool {
	return f.Liquidation != nil
}

func (f Fill) Notional() decimal.Decimal {
	return f.Price.Mul(f.Size)
}

type OpenOrder struct {
	Coin      string          `json:"coin"`
	OrderID   int64           `json:"oid"`
	Side      FillSide        `json:"side"`
	LimitPx   decimal.Decimal `json:"limitPx"`
	Size      decimal.Decimal `json:"sz"`
	Timestamp int64           `json:"timestamp"`
}

// AssetMeta describes a perpetual from the exchange universe. Index is the asset id used in order actions.
type AssetMeta struct {
	Coin        string
	Index       int
	SzDecimals  int
	MaxLeverage int
}
