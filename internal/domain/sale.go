package domain

import (
	"math/big"
	"time"
)

// SalePath identifies which sale flow produced a settlement record.
type SalePath string

const (
	SalePathListing  SalePath = "listing"
	SalePathAuction  SalePath = "auction"
	SalePathOffer    SalePath = "offer"
	SalePathOffchain SalePath = "offchain"
)

// Sale is the record emitted for every successful settlement. ReferenceID is
// the id of the listing, auction, or offer that produced the sale; empty for
// the off-chain order path. Gross = Fee + NetToSeller always holds.
type Sale struct {
	ID          string
	Path        SalePath
	ReferenceID string
	Asset       AssetRef
	Seller      Address
	Buyer       Address
	Currency    Address
	Gross       *big.Int
	Fee         *big.Int
	NetToSeller *big.Int
	SettledAt   time.Time
}
