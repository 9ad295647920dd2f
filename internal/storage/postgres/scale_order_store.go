package postgres

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"hyperbot/internal/models"
	"hyperbot/internal/storage"
)

var _ storage.ScaleOrderStore = (*ScaleOrderStore)(nil)

// querier is the subset of pgxpool.Pool the store uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type ScaleOrderStore struct {
	db querier
}

func NewScaleOrderStore(pool *Pool) *ScaleOrderStore {
	return &ScaleOrderStore{db: pool}
}

const scaleOrderColumns = `id, coin, is_buy, total_usd_amount, total_coin_size, num_orders,
	start_price, end_price, distribution_type, order_ids, legs, orders_placed, orders_filled,
	total_filled_size, average_fill_price, status, created_at, updated_at, completed_at`

func (s *ScaleOrderStore) Save(ctx context.Context, order *models.ScaleOrder) error {
	if order == nil || order.ID == "" {
		return storage.ErrInvalidInput
	}

	legs, err := json.Marshal(order.Legs)
	if err != nil {
		return fmt.Errorf("encode legs: %w", err)
	}
	orderIDs := order.OrderIDs
	if orderIDs == nil {
		orderIDs = []int64{}
	}

	query := `INSERT INTO scale_orders (` + scaleOrderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO UPDATE SET
			order_ids = EXCLUDED.order_ids,
			legs = EXCLUDED.legs,
			orders_placed = EXCLUDED.orders_placed,
			orders_filled = EXCLUDED.orders_filled,
			total_filled_size = EXCLUDED.total_filled_size,
			average_fill_price = EXCLUDED.average_fill_price,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at`

	_, err = s.db.Exec(ctx, query,
		order.ID, order.Coin, order.IsBuy, order.TotalUSDAmount, order.TotalCoinSize, order.NumOrders,
		order.StartPrice, order.EndPrice, string(order.DistributionType), orderIDs, legs,
		order.OrdersPlaced, order.OrdersFilled, order.TotalFilledSize, order.AverageFillPrice,
		string(order.Status), order.CreatedAt, order.UpdatedAt, order.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert scale order %s: %w", order.ID, err)
	}
	return nil
}

func (s *ScaleOrderStore) Get(ctx context.Context, id string) (*models.ScaleOrder, error) {
	row := s.db.QueryRow(ctx, `SELECT `+scaleOrderColumns+` FROM scale_orders WHERE id = $1`, id)

	order, err := scanScaleOrder(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get scale order %s: %w", id, err)
	}
	return order, nil
}

func (s *ScaleOrderStore) List(ctx context.Context) ([]*models.ScaleOrder, error) {
	rows, err := s.db.Query(ctx, `SELECT `+scaleOrderColumns+` FROM scale_orders ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list scale orders: %w", err)
	}
	defer rows.Close()

	var result []*models.ScaleOrder
	for rows.Next() {
		order, err := scanScaleOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scale order: %w", err)
		}
		result = append(result, order)
	}
	return result, rows.Err()
}

func scanScaleOrder(row pgx.Row) (*models.ScaleOrder, error) {
	var (
		order        models.ScaleOrder
		distribution string
		status       string
		legs         []byte
	)

	err := row.Scan(
		&order.ID, &order.Coin, &order.IsBuy, &order.TotalUSDAmount, &order.TotalCoinSize, &order.NumOrders,
		&order.StartPrice, &order.EndPrice, &distribution, &order.OrderIDs, &legs,
		&order.OrdersPlaced, &order.OrdersFilled, &order.TotalFilledSize, &order.AverageFillPrice,
		&status, &order.CreatedAt, &order.UpdatedAt, &order.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	order.DistributionType = models.DistributionType(distribution)
	order.Status = models.ScaleOrderState(status)
	if len(legs) > 0 {
		if err := json.Unmarshal(legs, &order.Legs); err != nil {
			return nil, fmt.Errorf("decode legs: %w", err)
		}
	}
	return &order, nil
}
