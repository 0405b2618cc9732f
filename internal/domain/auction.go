package domain

import (
	"math/big"
	"time"
)

// AuctionStatus tracks the auction lifecycle.
type AuctionStatus string

const (
	AuctionStatusActive AuctionStatus = "active"
	AuctionStatusEnded  AuctionStatus = "ended"
)

// Auction is a timed ascending-bid sale. HighestBid is monotonically
// non-decreasing and, once any bid exists, at least StartingPrice. The amount
// of the highest bid is held in the engine's escrow account until the auction
// ends or a higher bid replaces it.
type Auction struct {
	ID              string
	Seller          Address
	Asset           AssetRef
	StartingPrice   *big.Int
	ReservePrice    *big.Int
	PaymentCurrency Address
	StartTime       time.Time
	EndTime         time.Time
	HighestBidder   *Address
	HighestBid      *big.Int
	Active          bool
	Metadata        string
	EndedAt         *time.Time
}

// HasBid reports whether any bid has been accepted.
func (a Auction) HasBid() bool {
	return a.HighestBidder != nil
}

// Status returns the lifecycle state. Unlike listings, an auction past its
// EndTime is still Active until someone calls end; the deadline only gates
// which operations are valid.
func (a Auction) Status() AuctionStatus {
	if a.Active {
		return AuctionStatusActive
	}
	return AuctionStatusEnded
}
