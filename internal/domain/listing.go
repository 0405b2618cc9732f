package domain

import (
	"math/big"
	"time"
)

// ListingStatus tracks the listing lifecycle. Active is the only non-terminal
// state; Expired is derived from the clock, not stored.
type ListingStatus string

const (
	ListingStatusActive    ListingStatus = "active"
	ListingStatusSold      ListingStatus = "sold"
	ListingStatusCancelled ListingStatus = "cancelled"
	ListingStatusExpired   ListingStatus = "expired"
)

// Listing is a fixed-price sale offer for one asset. Listings are never
// deleted; terminal transitions flip Active to false and set the matching
// timestamp, and the row is retained as history.
type Listing struct {
	ID              string
	Seller          Address
	Asset           AssetRef
	Price           *big.Int
	PaymentCurrency Address
	CreatedAt       time.Time
	ExpiresAt       time.Time
	Active          bool
	Metadata        string
	SoldAt          *time.Time
	CancelledAt     *time.Time
}

// StatusAt returns the lifecycle state as of now. A listing past its expiry is
// reported Expired even though the stored row still carries Active=true; the
// deadline is data checked at call time, never a live timer.
func (l Listing) StatusAt(now time.Time) ListingStatus {
	switch {
	case l.SoldAt != nil:
		return ListingStatusSold
	case l.CancelledAt != nil:
		return ListingStatusCancelled
	case !now.Before(l.ExpiresAt):
		return ListingStatusExpired
	default:
		return ListingStatusActive
	}
}
