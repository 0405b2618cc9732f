// Package fees implements the protocol fee arithmetic: a basis-point split of
// a gross sale amount into the seller's net and the protocol fee.
package fees

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// Rates is the recognized fee configuration. Two independent rates exist: one
// applied to listing and auction sales, one to accepted offers. Both share a
// single denominator.
type Rates struct {
	ListingFeeBps  int64
	OfferFeeBps    int64
	DenominatorBps int64
}

// Schedule holds the current rates and the single authority permitted to
// change them. Splits read the rates at call time, so a rate update applies
// to every settlement after it.
type Schedule struct {
	mu        sync.RWMutex
	rates     Rates
	authority domain.Address
}

// NewSchedule creates a Schedule. It returns an error if the initial rates
// would ever make the fee exceed the amount (rate > denominator) or the
// denominator is not positive.
func NewSchedule(rates Rates, authority domain.Address) (*Schedule, error) {
	if err := validateRates(rates); err != nil {
		return nil, err
	}
	return &Schedule{rates: rates, authority: authority}, nil
}

func validateRates(r Rates) error {
	if r.DenominatorBps <= 0 {
		return fmt.Errorf("fees: denominator must be positive, got %d: %w", r.DenominatorBps, domain.ErrInvalidInput)
	}
	if r.ListingFeeBps < 0 || r.ListingFeeBps > r.DenominatorBps {
		return fmt.Errorf("fees: listing fee %d/%d out of range: %w", r.ListingFeeBps, r.DenominatorBps, domain.ErrInvalidInput)
	}
	if r.OfferFeeBps < 0 || r.OfferFeeBps > r.DenominatorBps {
		return fmt.Errorf("fees: offer fee %d/%d out of range: %w", r.OfferFeeBps, r.DenominatorBps, domain.ErrInvalidInput)
	}
	return nil
}

// Rates returns the current rate configuration.
func (s *Schedule) Rates() Rates {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rates
}

// SetRates replaces the rate configuration. Only the designated authority may
// call it.
func (s *Schedule) SetRates(caller domain.Address, r Rates) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if caller != s.authority {
		return fmt.Errorf("fees: caller %s is not the fee authority: %w", caller.Hex(), domain.ErrUnauthorized)
	}
	if err := validateRates(r); err != nil {
		return err
	}
	s.rates = r
	return nil
}

// SplitListing splits a gross listing or auction amount.
func (s *Schedule) SplitListing(amount *big.Int) (net, fee *big.Int) {
	r := s.Rates()
	return split(amount, r.ListingFeeBps, r.DenominatorBps)
}

// SplitOffer splits a gross accepted-offer amount.
func (s *Schedule) SplitOffer(amount *big.Int) (net, fee *big.Int) {
	r := s.Rates()
	return split(amount, r.OfferFeeBps, r.DenominatorBps)
}

// split computes fee = amount * rate / denominator with truncating integer
// division, and net = amount - fee. The inputs are never mutated.
func split(amount *big.Int, rateBps, denominatorBps int64) (net, fee *big.Int) {
	fee = new(big.Int).Mul(amount, big.NewInt(rateBps))
	fee.Quo(fee, big.NewInt(denominatorBps))
	net = new(big.Int).Sub(amount, fee)
	return net, fee
}
