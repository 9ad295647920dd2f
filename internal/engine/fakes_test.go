package engine

import (
	"context"
	"sync"
	"time"

	"hyperbot/internal/exchange"
	"hyperbot/internal/logger"
	"hyperbot/internal/models"
	"hyperbot/internal/storage/memory"
)

type placeResult struct {
	outcome exchange.PlaceOutcome
	err     error
}

type fakeTrading struct {
	mu          sync.Mutex
	placeCalls  []exchange.LimitOrderRequest
	results     []placeResult
	cancelCalls []int64
	cancelErrs  map[int64]error
}

func (f *fakeTrading) PlaceLimitOrder(_ context.Context, req exchange.LimitOrderRequest) (exchange.PlaceOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := len(f.placeCalls)
	f.placeCalls = append(f.placeCalls, req)
	if idx < len(f.results) {
		return f.results[idx].outcome, f.results[idx].err
	}
	return exchange.PlaceOutcome{Kind: exchange.OutcomeResting, OrderID: int64(1000 + idx)}, nil
}

func (f *fakeTrading) CancelOrder(_ context.Context, _ string, orderID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls = append(f.cancelCalls, orderID)
	return f.cancelErrs[orderID]
}

type fakeInfo struct {
	open    []models.OpenOrder
	meta    *models.AssetMeta
	metaErr error
}

func (f *fakeInfo) AllMids(context.Context) (map[string]float64, error) {
	return map[string]float64{}, nil
}

func (f *fakeInfo) AssetMeta(_ context.Context, coin string) (models.AssetMeta, error) {
	if f.meta == nil {
		return models.AssetMeta{}, f.metaErr
	}
	return *f.meta, nil
}

func (f *fakeInfo) UserFills(context.Context) ([]models.Fill, error) {
	return nil, nil
}

func (f *fakeInfo) UserFillsByTime(context.Context, time.Time) ([]models.Fill, error) {
	return nil, nil
}

func (f *fakeInfo) OpenOrders(context.Context) ([]models.OpenOrder, error) {
	return f.open, nil
}

func newTestEngine(info exchange.InfoClient, trading *fakeTrading) (*Engine, *memory.ScaleOrderStore) {
	store := memory.NewScaleOrderStore()
	e := New(Options{}, info, trading, store, logger.Nop())
	e.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	seq := 0
	e.newID = func() string {
		seq++
		return "scale-" + string(rune('a'+seq-1))
	}
	return e, store
}

func btcLadder() models.ScaleOrderConfig {
	return models.ScaleOrderConfig{
		Coin:             "BTC",
		IsBuy:            true,
		TotalUSDAmount:   10000,
		NumOrders:        5,
		StartPrice:       50000,
		EndPrice:         48000,
		DistributionType: models.DistributionLinear,
	}
}
