package postgres

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hyperbot/internal/models"
	"hyperbot/internal/storage"
)

// fakeRow scans stored values into destinations of the same type, as pgx does for matching column types.
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(r.values[i]))
	}
	return nil
}

// fakeDB keeps the arguments of the last upsert per id and serves them back as a row.
type fakeDB struct {
	rows     map[string][]any
	queryErr error
}

func newFakeDB() *fakeDB {
	return &fakeDB{rows: make(map[string][]any)}
}

func (db *fakeDB) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	db.rows[args[0].(string)] = args
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (db *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, db.queryErr
}

func (db *fakeDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	values, ok := db.rows[args[0].(string)]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{values: values}
}

func sampleScaleOrder() *models.ScaleOrder {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &models.ScaleOrder{
		ID:               "scale-1",
		Coin:             "BTC",
		IsBuy:            true,
		TotalUSDAmount:   1000,
		TotalCoinSize:    0.01923,
		NumOrders:        2,
		StartPrice:       52000,
		EndPrice:         51000,
		DistributionType: models.DistributionGeometric,
		OrderIDs:         []int64{101, 102},
		Legs: []models.ScaleLeg{
			{OrderID: 101, Price: 52000, Size: 0.00962},
			{OrderID: 102, Price: 51000, Size: 0.00961},
		},
		OrdersPlaced: 2,
		Status:       models.ScaleOrderActive,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

func TestScaleOrderStore_SaveGetRoundTrip(t *testing.T) {
	db := newFakeDB()
	store := &ScaleOrderStore{db: db}
	order := sampleScaleOrder()

	require.NoError(t, store.Save(context.Background(), order))

	got, err := store.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, order, got)
}

func TestScaleOrderStore_SaveNilOrderIDsStoresEmptyArray(t *testing.T) {
	db := newFakeDB()
	store := &ScaleOrderStore{db: db}
	order := sampleScaleOrder()
	order.OrderIDs = nil
	order.Legs = nil

	require.NoError(t, store.Save(context.Background(), order))
	assert.Equal(t, []int64{}, db.rows[order.ID][9])

	got, err := store.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Empty(t, got.OrderIDs)
	assert.Empty(t, got.Legs)
}

func TestScaleOrderStore_GetMissingMapsToNotFound(t *testing.T) {
	store := &ScaleOrderStore{db: newFakeDB()}

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestScaleOrderStore_SaveRejectsEmptyID(t *testing.T) {
	store := &ScaleOrderStore{db: newFakeDB()}

	assert.ErrorIs(t, store.Save(context.Background(), nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Save(context.Background(), &models.ScaleOrder{}), storage.ErrInvalidInput)
}

func TestScaleOrderStore_ListWrapsQueryError(t *testing.T) {
	db := newFakeDB()
	db.queryErr = errors.New("connection reset")
	store := &ScaleOrderStore{db: db}

	_, err := store.List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestScanScaleOrder_CorruptLegs(t *testing.T) {
	db := newFakeDB()
	store := &ScaleOrderStore{db: db}
	order := sampleScaleOrder()
	require.NoError(t, store.Save(context.Background(), order))
	db.rows[order.ID][10] = []byte("{not json")

	_, err := store.Get(context.Background(), order.ID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrNotFound)
	assert.Contains(t, err.Error(), "decode legs")
}
