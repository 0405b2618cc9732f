// Package memory implements the domain store interfaces with in-process maps.
// The engine's serialization guarantee comes from the lock manager, not from
// these stores; their mutexes only keep individual reads and writes coherent.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// ListingStore implements domain.ListingStore.
type ListingStore struct {
	mu      sync.RWMutex
	items   map[string]domain.Listing
	byAsset map[string][]string
}

// NewListingStore creates an empty ListingStore.
func NewListingStore() *ListingStore {
	return &ListingStore{
		items:   make(map[string]domain.Listing),
		byAsset: make(map[string][]string),
	}
}

// Create inserts a new listing.
func (s *ListingStore) Create(_ context.Context, l domain.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[l.ID]; ok {
		return fmt.Errorf("memory: listing %s already exists: %w", l.ID, domain.ErrInvalidInput)
	}
	s.items[l.ID] = l
	key := l.Asset.Key()
	s.byAsset[key] = append(s.byAsset[key], l.ID)
	return nil
}

// GetByID returns a copy of the listing.
func (s *ListingStore) GetByID(_ context.Context, id string) (domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.items[id]
	if !ok {
		return domain.Listing{}, fmt.Errorf("memory: listing %s: %w", id, domain.ErrNotFound)
	}
	return l, nil
}

// Update replaces a stored listing wholesale.
func (s *ListingStore) Update(_ context.Context, l domain.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[l.ID]; !ok {
		return fmt.Errorf("memory: listing %s: %w", l.ID, domain.ErrNotFound)
	}
	s.items[l.ID] = l
	return nil
}

// ListByAsset returns every listing ever created for the asset, newest last.
func (s *ListingStore) ListByAsset(_ context.Context, asset domain.AssetRef) ([]domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byAsset[asset.Key()]
	out := make([]domain.Listing, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.items[id])
	}
	return out, nil
}

var _ domain.ListingStore = (*ListingStore)(nil)
