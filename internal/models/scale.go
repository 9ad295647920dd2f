package models

import "time"

type DistributionType string

const (
	DistributionLinear    DistributionType = "linear"
	DistributionGeometric DistributionType = "geometric"
)

type TimeInForce string

const (
	TimeInForceGtc TimeInForce = "Gtc"
	TimeInForceIoc TimeInForce = "Ioc"
	TimeInForceAlo TimeInForce = "Alo"
)

type PlacementStatus string

const (
	PlacementSuccess PlacementStatus = "success"
	PlacementFailed  PlacementStatus = "failed"
)

type ResultStatus string

const (
	ResultCompleted ResultStatus = "completed"
	ResultPartial   ResultStatus = "partial"
	ResultFailed    ResultStatus = "failed"
)

type ScaleOrderState string

const (
	ScaleOrderActive    ScaleOrderState = "active"
	ScaleOrderCompleted ScaleOrderState = "completed"
	ScaleOrderCancelled ScaleOrderState = "cancelled"
	ScaleOrderFailed    ScaleOrderState = "failed"
)

// ScaleOrderConfig sets either TotalUSDAmount or TotalCoinSize, never both.
type ScaleOrderConfig struct {
	Coin             string           `json:"coin"`
	IsBuy            bool             `json:"is_buy"`
	TotalUSDAmount   float64          `json:"total_usd_amount,omitempty"`
	TotalCoinSize    float64          `json:"total_coin_size,omitempty"`
	NumOrders        int              `json:"num_orders"`
	StartPrice       float64          `json:"start_price"`
	EndPrice         float64          `json:"end_price"`
	DistributionType DistributionType `json:"distribution_type"`
	GeometricRatio   float64          `json:"geometric_ratio"`
	ReduceOnly       bool             `json:"reduce_only"`
	TimeInForce      TimeInForce      `json:"time_in_force"`
}

type PreviewOrder struct {
	Price    float64 `json:"price"`
	Size     float64 `json:"size"`
	Notional float64 `json:"notional"`
}

type ScaleOrderPreview struct {
	Coin              string         `json:"coin"`
	IsBuy             bool           `json:"is_buy"`
	TotalUSDAmount    float64        `json:"total_usd_amount"`
	TotalCoinSize     float64        `json:"total_coin_size"`
	NumOrders         int            `json:"num_orders"`
	Orders            []PreviewOrder `json:"orders"`
	EstimatedAvgPrice float64        `json:"estimated_avg_price"`
	PriceRangePct     float64        `json:"price_range_pct"`
}

type OrderPlacement struct {
	Price   float64         `json:"price"`
	Size    float64         `json:"size"`
	Status  PlacementStatus `json:"status"`
	OrderID *int64          `json:"order_id,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type ScaleOrderResult struct {
	ScaleOrderID    string           `json:"scale_order_id"`
	Coin            string           `json:"coin"`
	IsBuy           bool             `json:"is_buy"`
	NumOrders       int              `json:"num_orders"`
	OrdersPlaced    int              `json:"orders_placed"`
	OrdersFailed    int              `json:"orders_failed"`
	TotalPlacedSize float64          `json:"total_placed_size"`
	AveragePrice    *float64         `json:"average_price"`
	Status          ResultStatus     `json:"status"`
	Placements      []OrderPlacement `json:"placements"`
}

// ScaleLeg is a resting leg of a scale order, kept so fills can be sized at status time.
type ScaleLeg struct {
	OrderID int64   `json:"order_id"`
	Price   float64 `json:"price"`
	Size    float64 `json:"size"`
}

type ScaleOrder struct {
	ID               string           `json:"id"`
	Coin             string           `json:"coin"`
	IsBuy            bool             `json:"is_buy"`
	TotalUSDAmount   float64          `json:"total_usd_amount"`
	TotalCoinSize    float64          `json:"total_coin_size"`
	NumOrders        int              `json:"num_orders"`
	StartPrice       float64          `json:"start_price"`
	EndPrice         float64          `json:"end_price"`
	DistributionType DistributionType `json:"distribution_type"`
	OrderIDs         []int64          `json:"order_ids"`
	Legs             []ScaleLeg       `json:"legs"`
	OrdersPlaced     int              `json:"orders_placed"`
	OrdersFilled     int              `json:"orders_filled"`
	TotalFilledSize  float64          `json:"total_filled_size"`
	AverageFillPrice *float64         `json:"average_fill_price"`
	Status           ScaleOrderState  `json:"status"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	CompletedAt      *time.Time       `json:"completed_at"`
}

type ScaleOrderStatus struct {
	ScaleOrder     ScaleOrder `json:"scale_order"`
	OpenOrderIDs   []int64    `json:"open_order_ids"`
	FilledOrderIDs []int64    `json:"filled_order_ids"`
	FillPercentage float64    `json:"fill_percentage"`
}

type CancelResult struct {
	ScaleOrderID string          `json:"scale_order_id"`
	Cancelled    int             `json:"cancelled"`
	Total        int             `json:"total"`
	Errors       []string        `json:"errors,omitempty"`
	Status       ScaleOrderState `json:"status"`
}
