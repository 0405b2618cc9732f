package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// AuctionStore implements domain.AuctionStore.
type AuctionStore struct {
	mu      sync.RWMutex
	items   map[string]domain.Auction
	byAsset map[string][]string
}

// NewAuctionStore creates an empty AuctionStore.
func NewAuctionStore() *AuctionStore {
	return &AuctionStore{
		items:   make(map[string]domain.Auction),
		byAsset: make(map[string][]string),
	}
}

// Create inserts a new auction.
func (s *AuctionStore) Create(_ context.Context, a domain.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[a.ID]; ok {
		return fmt.Errorf("memory: auction %s already exists: %w", a.ID, domain.ErrInvalidInput)
	}
	s.items[a.ID] = a
	key := a.Asset.Key()
	s.byAsset[key] = append(s.byAsset[key], a.ID)
	return nil
}

// GetByID returns a copy of the auction.
func (s *AuctionStore) GetByID(_ context.Context, id string) (domain.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.items[id]
	if !ok {
		return domain.Auction{}, fmt.Errorf("memory: auction %s: %w", id, domain.ErrNotFound)
	}
	return a, nil
}

// Update replaces a stored auction wholesale.
func (s *AuctionStore) Update(_ context.Context, a domain.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[a.ID]; !ok {
		return fmt.Errorf("memory: auction %s: %w", a.ID, domain.ErrNotFound)
	}
	s.items[a.ID] = a
	return nil
}

// ListByAsset returns every auction ever created for the asset, newest last.
func (s *AuctionStore) ListByAsset(_ context.Context, asset domain.AssetRef) ([]domain.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byAsset[asset.Key()]
	out := make([]domain.Auction, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.items[id])
	}
	return out, nil
}

var _ domain.AuctionStore = (*AuctionStore)(nil)
