package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// OfferStore implements domain.OfferStore. It refuses to overwrite a terminal
// offer, backing the invariant that SelectedAt and Cancelled are set at most
// once and never change again.
type OfferStore struct {
	mu      sync.RWMutex
	items   map[string]domain.Offer
	byAsset map[string][]string
}

// NewOfferStore creates an empty OfferStore.
func NewOfferStore() *OfferStore {
	return &OfferStore{
		items:   make(map[string]domain.Offer),
		byAsset: make(map[string][]string),
	}
}

// Create inserts a new offer.
func (s *OfferStore) Create(_ context.Context, o domain.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[o.ID]; ok {
		return fmt.Errorf("memory: offer %s already exists: %w", o.ID, domain.ErrInvalidInput)
	}
	s.items[o.ID] = o
	key := o.Asset.Key()
	s.byAsset[key] = append(s.byAsset[key], o.ID)
	return nil
}

// GetByID returns a copy of the offer.
func (s *OfferStore) GetByID(_ context.Context, id string) (domain.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.items[id]
	if !ok {
		return domain.Offer{}, fmt.Errorf("memory: offer %s: %w", id, domain.ErrNotFound)
	}
	return o, nil
}

// Update replaces a stored offer wholesale. Updating an offer that already
// reached a terminal marker is rejected.
func (s *OfferStore) Update(_ context.Context, o domain.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.items[o.ID]
	if !ok {
		return fmt.Errorf("memory: offer %s: %w", o.ID, domain.ErrNotFound)
	}
	if cur.Terminal() {
		return fmt.Errorf("memory: offer %s already terminal: %w", o.ID, domain.ErrInvalidState)
	}
	s.items[o.ID] = o
	return nil
}

// ListByAsset returns every offer ever made on the asset, newest last.
func (s *OfferStore) ListByAsset(_ context.Context, asset domain.AssetRef) ([]domain.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byAsset[asset.Key()]
	out := make([]domain.Offer, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.items[id])
	}
	return out, nil
}

var _ domain.OfferStore = (*OfferStore)(nil)
