package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"hyperbot/internal/errs"
	"hyperbot/internal/exchange"
	"hyperbot/internal/logger"
	"hyperbot/internal/models"
	"hyperbot/internal/storage"
)

type Options struct {
	Rounding       Rounding
	GeometricRatio float64
	CancelWorkers  int
}

type Engine struct {
	info    exchange.InfoClient
	trading exchange.TradingClient
	store   storage.ScaleOrderStore
	log     *logger.Logger

	rounding      Rounding
	defaultRatio  float64
	cancelWorkers int

	now   func() time.Time
	newID func() string
}

// New builds the scale order engine. info may be nil, then previews use opts.Rounding.
func New(opts Options, info exchange.InfoClient, trading exchange.TradingClient, store storage.ScaleOrderStore, log *logger.Logger) *Engine {
	if opts.Rounding.TickSize <= 0 {
		opts.Rounding = DefaultRounding
	}
	if opts.GeometricRatio <= 1 {
		opts.GeometricRatio = 1.5
	}
	if opts.CancelWorkers <= 0 {
		opts.CancelWorkers = 3
	}
	return &Engine{
		info:          info,
		trading:       trading,
		store:         store,
		log:           log,
		rounding:      opts.Rounding,
		defaultRatio:  opts.GeometricRatio,
		cancelWorkers: opts.CancelWorkers,
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

func (e *Engine) roundingFor(ctx context.Context, coin string) Rounding {
	if e.info == nil {
		return e.rounding
	}
	meta, err := e.info.AssetMeta(ctx, coin)
	if err != nil {
		e.logEntry().WithError(err).WithField("coin", coin).Warn("Метаданные актива недоступны, используется округление по умолчанию.")
		return e.rounding
	}
	return RoundingForAsset(meta)
}

func (e *Engine) load(ctx context.Context, op, id string) (*models.ScaleOrder, error) {
	order, err := e.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errs.NotFound(op, "scale order "+id, err)
		}
		return nil, err
	}
	return order, nil
}

func (e *Engine) List(ctx context.Context) ([]*models.ScaleOrder, error) {
	return e.store.List(ctx)
}
