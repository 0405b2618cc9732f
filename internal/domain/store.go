package domain

import "context"

// ListingStore persists fixed-price listings. Implementations must treat
// stored entities as immutable snapshots: Get returns a copy, Update replaces
// the stored row wholesale.
type ListingStore interface {
	Create(ctx context.Context, l Listing) error
	GetByID(ctx context.Context, id string) (Listing, error)
	Update(ctx context.Context, l Listing) error
	ListByAsset(ctx context.Context, asset AssetRef) ([]Listing, error)
}

// AuctionStore persists auctions.
type AuctionStore interface {
	Create(ctx context.Context, a Auction) error
	GetByID(ctx context.Context, id string) (Auction, error)
	Update(ctx context.Context, a Auction) error
	ListByAsset(ctx context.Context, asset AssetRef) ([]Auction, error)
}

// OfferStore persists buy offers.
type OfferStore interface {
	Create(ctx context.Context, o Offer) error
	GetByID(ctx context.Context, id string) (Offer, error)
	Update(ctx context.Context, o Offer) error
	ListByAsset(ctx context.Context, asset AssetRef) ([]Offer, error)
}

// SaleStore persists the append-only settlement history.
type SaleStore interface {
	Insert(ctx context.Context, s Sale) error
	GetByID(ctx context.Context, id string) (Sale, error)
	ListByAsset(ctx context.Context, asset AssetRef) ([]Sale, error)
	ListByParty(ctx context.Context, party Address) ([]Sale, error)
}
