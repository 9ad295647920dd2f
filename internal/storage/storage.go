package storage

import (
	"context"
	"errors"

	"hyperbot/internal/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when a record is missing its key.
	ErrInvalidInput = errors.New("invalid input")
)

// ScaleOrderStore keeps scale order aggregates keyed by id. Save inserts or replaces.
type ScaleOrderStore interface {
	Save(ctx context.Context, order *models.ScaleOrder) error
	Get(ctx context.Context, id string) (*models.ScaleOrder, error)
	List(ctx context.Context) ([]*models.ScaleOrder, error)
}
