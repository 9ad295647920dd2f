package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"hyperbot/internal/models"
	"hyperbot/internal/storage"
)

var _ storage.ScaleOrderStore = (*ScaleOrderStore)(nil)

// ScaleOrderStore is the in-process registry. Contents are lost on restart.
type ScaleOrderStore struct {
	mu   sync.RWMutex
	data map[string]*models.ScaleOrder
}

func NewScaleOrderStore() *ScaleOrderStore {
	return &ScaleOrderStore{
		data: make(map[string]*models.ScaleOrder),
	}
}

func (s *ScaleOrderStore) Save(_ context.Context, order *models.ScaleOrder) error {
	if order == nil || order.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[order.ID] = cloneScaleOrder(order)
	return nil
}

func (s *ScaleOrderStore) Get(_ context.Context, id string) (*models.ScaleOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneScaleOrder(order), nil
}

// List returns orders newest first.
func (s *ScaleOrderStore) List(_ context.Context) ([]*models.ScaleOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.ScaleOrder, 0, len(s.data))
	for _, order := range s.data {
		result = append(result, cloneScaleOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

func cloneScaleOrder(order *models.ScaleOrder) *models.ScaleOrder {
	c := *order
	c.OrderIDs = slices.Clone(order.OrderIDs)
	c.Legs = slices.Clone(order.Legs)
	if order.AverageFillPrice != nil {
		v := *order.AverageFillPrice
		c.AverageFillPrice = &v
	}
	if order.CompletedAt != nil {
		v := *order.CompletedAt
		c.CompletedAt = &v
	}
	return &c
}
