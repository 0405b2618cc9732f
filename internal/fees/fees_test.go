package fees

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

var authority = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func newSchedule(t *testing.T, listing, offer, denom int64) *Schedule {
	t.Helper()
	s, err := NewSchedule(Rates{ListingFeeBps: listing, OfferFeeBps: offer, DenominatorBps: denom}, authority)
	require.NoError(t, err)
	return s
}

func TestSplitListingTruncates(t *testing.T) {
	s := newSchedule(t, 250, 500, 10_000)

	net, fee := s.SplitListing(big.NewInt(100))
	require.Equal(t, int64(2), fee.Int64())
	require.Equal(t, int64(98), net.Int64())

	// 99 * 250 / 10000 = 2.475 truncates to 2.
	net, fee = s.SplitListing(big.NewInt(99))
	require.Equal(t, int64(2), fee.Int64())
	require.Equal(t, int64(97), net.Int64())

	// Amount below one fee unit pays no fee.
	net, fee = s.SplitListing(big.NewInt(3))
	require.Equal(t, int64(0), fee.Int64())
	require.Equal(t, int64(3), net.Int64())
}

func TestSplitUsesIndependentRates(t *testing.T) {
	s := newSchedule(t, 250, 500, 10_000)

	_, listingFee := s.SplitListing(big.NewInt(10_000))
	_, offerFee := s.SplitOffer(big.NewInt(10_000))
	require.Equal(t, int64(250), listingFee.Int64())
	require.Equal(t, int64(500), offerFee.Int64())
}

func TestSplitConservesValue(t *testing.T) {
	s := newSchedule(t, 333, 777, 10_000)
	for _, amount := range []int64{1, 7, 99, 100, 12345, 1_000_000} {
		net, fee := s.SplitListing(big.NewInt(amount))
		require.Equal(t, amount, new(big.Int).Add(net, fee).Int64())
		require.True(t, fee.Sign() >= 0)
		require.True(t, net.Sign() >= 0)
	}
}

func TestSplitDoesNotMutateAmount(t *testing.T) {
	s := newSchedule(t, 250, 250, 10_000)
	amount := big.NewInt(100)
	s.SplitListing(amount)
	require.Equal(t, int64(100), amount.Int64())
}

func TestNewScheduleRejectsBadRates(t *testing.T) {
	_, err := NewSchedule(Rates{ListingFeeBps: 250, OfferFeeBps: 250, DenominatorBps: 0}, authority)
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	// A rate above the denominator would make fee > amount.
	_, err = NewSchedule(Rates{ListingFeeBps: 10_001, OfferFeeBps: 250, DenominatorBps: 10_000}, authority)
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = NewSchedule(Rates{ListingFeeBps: 250, OfferFeeBps: -1, DenominatorBps: 10_000}, authority)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSetRatesAuthorityOnly(t *testing.T) {
	s := newSchedule(t, 250, 250, 10_000)

	stranger := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	err := s.SetRates(stranger, Rates{ListingFeeBps: 100, OfferFeeBps: 100, DenominatorBps: 10_000})
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	require.Equal(t, int64(250), s.Rates().ListingFeeBps)

	require.NoError(t, s.SetRates(authority, Rates{ListingFeeBps: 100, OfferFeeBps: 300, DenominatorBps: 10_000}))
	require.Equal(t, int64(100), s.Rates().ListingFeeBps)
	require.Equal(t, int64(300), s.Rates().OfferFeeBps)

	// Invalid updates are rejected and leave the old rates in place.
	err = s.SetRates(authority, Rates{ListingFeeBps: 20_000, OfferFeeBps: 300, DenominatorBps: 10_000})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	require.Equal(t, int64(100), s.Rates().ListingFeeBps)
}
