package inventory

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps stock in a mutex-guarded map. It backs tests and local
// development; production stock lives in postgres inside the checkout
// transaction.
type MemoryStore struct {
	mu    sync.Mutex
	stock map[string]int
}

func NewMemoryStore(initial map[string]int) *MemoryStore {
	stock := make(map[string]int, len(initial))
	for id, n := range initial {
		stock[id] = n
	}
	return &MemoryStore{stock: stock}
}

func (s *MemoryStore) Reserve(_ context.Context, items []ItemQty) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var shortages []Shortage
	for _, it := range items {
		if have := s.stock[it.ProductID]; have < it.Qty {
			shortages = append(shortages, Shortage{ProductID: it.ProductID, Requested: it.Qty, Available: have})
		}
	}
	if len(shortages) > 0 {
		return &ShortageError{Shortages: shortages}
	}
	for _, it := range items {
		s.stock[it.ProductID] -= it.Qty
	}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, items []ItemQty) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		s.stock[it.ProductID] += it.Qty
	}
	return nil
}

func (s *MemoryStore) Available(_ context.Context, productID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.stock[productID]
	if !ok {
		return 0, fmt.Errorf("unknown product %s", productID)
	}
	return n, nil
}
