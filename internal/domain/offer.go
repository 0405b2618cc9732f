package domain

import (
	"math/big"
	"time"
)

// OfferStatus tracks the offer lifecycle. Expired is derived lazily.
type OfferStatus string

const (
	OfferStatusPending   OfferStatus = "pending"
	OfferStatusAccepted  OfferStatus = "accepted"
	OfferStatusCancelled OfferStatus = "cancelled"
	OfferStatusExpired   OfferStatus = "expired"
)

// Cancellation reasons recorded on offers.
const (
	CancelReasonSoldToAnother  = "Sold to another"
	CancelReasonOwnerCancelled = "Cancelled by owner"
)

// Offer is an unsolicited buy proposal awaiting the asset owner's acceptance.
// Price is escrowed from the offer maker at creation and stays locked until a
// terminal outcome; cancellation always returns the escrow to the maker.
//
// SelectedAt and Cancelled are mutually exclusive terminal markers: at most
// one may ever be set, and once set neither changes again.
type Offer struct {
	ID              string
	AssetOwner      Address
	OfferMaker      Address
	Asset           AssetRef
	PaymentCurrency Address
	Price           *big.Int
	OfferName       string
	OfferedAt       time.Time
	OfferUntil      time.Time
	SelectedAt      *time.Time
	Cancelled       bool
	CancelReason    string
	CancelledAt     *time.Time
}

// Terminal reports whether the offer has reached a terminal marker. An offer
// past OfferUntil is unacceptable but not terminal until cancelled, so its
// escrow is still owed back to the maker.
func (o Offer) Terminal() bool {
	return o.SelectedAt != nil || o.Cancelled
}

// StatusAt returns the lifecycle state as of now.
func (o Offer) StatusAt(now time.Time) OfferStatus {
	switch {
	case o.SelectedAt != nil:
		return OfferStatusAccepted
	case o.Cancelled:
		return OfferStatusCancelled
	case !now.Before(o.OfferUntil):
		return OfferStatusExpired
	default:
		return OfferStatusPending
	}
}
