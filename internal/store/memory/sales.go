package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// SaleStore implements domain.SaleStore as an append-only history.
type SaleStore struct {
	mu    sync.RWMutex
	items map[string]domain.Sale
	order []string
}

// NewSaleStore creates an empty SaleStore.
func NewSaleStore() *SaleStore {
	return &SaleStore{items: make(map[string]domain.Sale)}
}

// Insert appends a sale record.
func (s *SaleStore) Insert(_ context.Context, sale domain.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[sale.ID]; ok {
		return fmt.Errorf("memory: sale %s already exists: %w", sale.ID, domain.ErrInvalidInput)
	}
	s.items[sale.ID] = sale
	s.order = append(s.order, sale.ID)
	return nil
}

// GetByID returns a copy of the sale record.
func (s *SaleStore) GetByID(_ context.Context, id string) (domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sale, ok := s.items[id]
	if !ok {
		return domain.Sale{}, fmt.Errorf("memory: sale %s: %w", id, domain.ErrNotFound)
	}
	return sale, nil
}

// ListByAsset returns sales of the asset in settlement order.
func (s *SaleStore) ListByAsset(_ context.Context, asset domain.AssetRef) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Sale
	for _, id := range s.order {
		if sale := s.items[id]; sale.Asset.Equal(asset) {
			out = append(out, sale)
		}
	}
	return out, nil
}

// ListByParty returns sales where the party was buyer or seller, in
// settlement order.
func (s *SaleStore) ListByParty(_ context.Context, party domain.Address) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Sale
	for _, id := range s.order {
		if sale := s.items[id]; sale.Seller == party || sale.Buyer == party {
			out = append(out, sale)
		}
	}
	return out, nil
}

var _ domain.SaleStore = (*SaleStore)(nil)
