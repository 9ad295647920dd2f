package exchange

import (
	"context"
	"time"

	"hyperbot/internal/models"
)

type EventType string

const (
	EventTypeFills     EventType = "Fills"
	EventTypeReconnect EventType = "Reconnect"
	EventTypeStopped   EventType = "Stopped"
)

// Event is pushed by a fill stream. Snapshot marks the history replay sent right after subscribing.
type Event struct {
	Type     EventType
	Fills    []models.Fill
	Snapshot bool
	Err      error
}

type OutcomeKind string

const (
	OutcomeResting OutcomeKind = "resting"
	OutcomeFilled  OutcomeKind = "filled"
	OutcomeError   OutcomeKind = "error"
)

type LimitOrderRequest struct {
	Coin        string
	IsBuy       bool
	Size        float64
	Price       float64
	ReduceOnly  bool
	TimeInForce models.TimeInForce
}

// PlaceOutcome is the application-level result of a limit order. Transport failures are returned as errors instead.
type PlaceOutcome struct {
	Kind     OutcomeKind
	OrderID  int64
	Message  string
	AvgPrice float64
	Filled   float64
}

type InfoClient interface {
	AllMids(ctx context.Context) (map[string]float64, error)
	AssetMeta(ctx context.Context, coin string) (models.AssetMeta, error)
	UserFills(ctx context.Context) ([]models.Fill, error)
	UserFillsByTime(ctx context.Context, start time.Time) ([]models.Fill, error)
	OpenOrders(ctx context.Context) ([]models.OpenOrder, error)
}

type TradingClient interface {
	PlaceLimitOrder(ctx context.Context, req LimitOrderRequest) (PlaceOutcome, error)
	CancelOrder(ctx context.Context, coin string, orderID int64) error
}

type FillStream interface {
	SubscribeUserFills(ctx context.Context, user string) (<-chan Event, error)
	Close() error
}
