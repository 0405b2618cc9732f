package service

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

func TestOfferMakeEscrowsPrice(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	asset := testAsset(1)
	e.seedAsset(asset, seller, buyer)

	until := e.clock.Now().Add(24 * time.Hour)
	o, err := e.offers.Make(ctx, seller, buyer, asset, currency, big.NewInt(100), until, "first")
	require.NoError(t, err)
	require.Equal(t, domain.OfferStatusPending, o.StatusAt(e.clock.Now()))

	require.Equal(t, int64(1_000_000-100), e.balance(buyer))
	require.Equal(t, int64(100), e.balance(escrowAcct))
}

func TestOfferMakeValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	asset := testAsset(1)
	e.seedAsset(asset, seller, buyer)

	until := e.clock.Now().Add(24 * time.Hour)

	_, err := e.offers.Make(ctx, seller, buyer, asset, currency, big.NewInt(0), until, "")
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = e.offers.Make(ctx, seller, buyer, asset, currency, big.NewInt(100), e.clock.Now().Add(-time.Hour), "")
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	// Named owner does not hold the asset.
	_, err = e.offers.Make(ctx, stranger, buyer, asset, currency, big.NewInt(100), until, "")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	require.Equal(t, int64(1_000_000), e.balance(buyer))

	// Maker cannot cover the price.
	_, err = e.offers.Make(ctx, seller, stranger, asset, currency, big.NewInt(100), until, "")
	require.ErrorIs(t, err, domain.ErrTransferFailed)
}

func TestOfferAcceptCascadeCancels(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	asset := testAsset(1)
	e.seedAsset(asset, seller, buyer, bidder2, bidder3)

	until := e.clock.Now().Add(24 * time.Hour)
	a, err := e.offers.Make(ctx, seller, buyer, asset, currency, big.NewInt(100), until, "a")
	require.NoError(t, err)
	b, err := e.offers.Make(ctx, seller, bidder2, asset, currency, big.NewInt(90), until, "b")
	require.NoError(t, err)
	c, err := e.offers.Make(ctx, seller, bidder3, asset, currency, big.NewInt(80), until, "c")
	require.NoError(t, err)

	sale, err := e.offers.Accept(ctx, a.ID, seller, []string{b.ID, c.ID})
	require.NoError(t, err)
	require.Equal(t, domain.SalePathOffer, sale.Path)
	require.Equal(t, a.ID, sale.ReferenceID)
	// 5% of 100 = 5.
	require.Equal(t, int64(100), sale.Gross.Int64())
	require.Equal(t, int64(5), sale.Fee.Int64())
	require.Equal(t, int64(95), sale.NetToSeller.Int64())

	// The winner paid, the losers were made whole, and escrow drained fully.
	require.Equal(t, int64(1_000_000-100), e.balance(buyer))
	require.Equal(t, int64(1_000_000), e.balance(bidder2))
	require.Equal(t, int64(1_000_000), e.balance(bidder3))
	require.Equal(t, int64(95), e.balance(seller))
	require.Equal(t, int64(5), e.balance(feeAcct))
	require.Equal(t, int64(0), e.balance(escrowAcct))

	owner, err := e.ledger.OwnerOf(ctx, asset)
	require.NoError(t, err)
	require.Equal(t, buyer, owner)

	got, err := e.offers.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OfferStatusAccepted, got.StatusAt(e.clock.Now()))

	for _, id := range []string{b.ID, c.ID} {
		got, err := e.offers.Get(ctx, id)
		require.NoError(t, err)
		require.True(t, got.Cancelled)
		require.Equal(t, domain.CancelReasonSoldToAnother, got.CancelReason)
	}
}

func TestOfferAcceptUnauthorized(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	asset := testAsset(1)
	e.seedAsset(asset, seller, buyer)

	o, err := e.offers.Make(ctx, seller, buyer, asset, currency, big.NewInt(100), e.clock.Now().Add(time.Hour), "")
	require.NoError(t, err)

	_, err = e.offers.Accept(ctx, o.ID, stranger, nil)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = e.offers.Accept(ctx, o.ID, buyer, nil)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestOfferAcceptExpiredLeavesEscrow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	asset := testAsset(1)
	e.seedAsset(asset, seller, buyer)

	o, err := e.offers.Make(ctx, seller, buyer, asset, currency, big.NewInt(100), e.clock.Now().Add(time.Hour), "")
	require.NoError(t, err)

	e.clock.Advance(2 * time.Hour)

	_, err = e.offers.Accept(ctx, o.ID, seller, nil)
	require.ErrorIs(t, err, domain.ErrInvalidState)

	// The escrow is untouched until the offer is explicitly rejected.
	require.Equal(t, int64(100), e.balance(escrowAcct))
	require.NoError(t, e.offers.Reject(ctx, []string{o.ID}, seller))
	require.Equal(t, int64(0), e.balance(escrowAcct))
	require.Equal(t, int64(1_000_000), e.balance(buyer))
}

func TestOfferAcceptOwnershipChanged(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	asset := testAsset(1)
	e.seedAsset(asset, seller, buyer)

	o, err := e.offers.Make(ctx, seller, buyer, asset, currency, big.NewInt(100), e.clock.Now().Add(time.Hour), "")
	require.NoError(t, err)

	// The asset leaves the owner's hands before acceptance.
	require.NoError(t, e.ledger.TransferAsset(ctx, asset, seller, stranger))

	_, err = e.offers.Accept(ctx, o.ID, seller, nil)
	require.ErrorIs(t, err, domain.ErrTransferFailed)

	// The offer stays pending and the escrow stays locked.
	got, err := e.offers.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OfferStatusPending, got.StatusAt(e.clock.Now()))
	require.Equal(t, int64(100), e.balance(escrowAcct))
}

func TestOfferRejectRefundsAndRepeats(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	asset := testAsset(1)
	e.seedAsset(asset, seller, buyer, bidder2)

	until := e.clock.Now().Add(time.Hour)
	a, err := e.offers.Make(ctx, seller, buyer, asset, currency, big.NewInt(100), until, "")
	require.NoError(t, err)
	b, err := e.offers.Make(ctx, seller, bidder2, asset, currency, big.NewInt(50), until, "")
	require.NoError(t, err)

	require.ErrorIs(t, e.offers.Reject(ctx, []string{a.ID}, stranger), domain.ErrUnauthorized)

	require.NoError(t, e.offers.Reject(ctx, []string{a.ID, b.ID}, seller))
	require.Equal(t, int64(1_000_000), e.balance(buyer))
	require.Equal(t, int64(1_000_000), e.balance(bidder2))
	require.Equal(t, int64(0), e.balance(escrowAcct))

	got, err := e.offers.Get(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, got.Cancelled)
	require.Equal(t, domain.CancelReasonOwnerCancelled, got.CancelReason)

	// Rejecting again skips the terminal offers and refunds nothing twice.
	require.NoError(t, e.offers.Reject(ctx, []string{a.ID, b.ID}, seller))
	require.Equal(t, int64(1_000_000), e.balance(buyer))
	require.Equal(t, int64(1_000_000), e.balance(bidder2))
}

func TestOfferAcceptRejectsBadCascadeBeforeSettling(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	asset := testAsset(1)
	other := testAsset(2)
	e.seedAsset(asset, seller, buyer, bidder2)
	e.seedAsset(other, seller)

	until := e.clock.Now().Add(time.Hour)
	a, err := e.offers.Make(ctx, seller, buyer, asset, currency, big.NewInt(100), until, "")
	require.NoError(t, err)
	crossAsset, err := e.offers.Make(ctx, seller, bidder2, other, currency, big.NewInt(50), until, "")
	require.NoError(t, err)

	assertUnsettled := func() {
		t.Helper()
		got, err := e.offers.Get(ctx, a.ID)
		require.NoError(t, err)
		require.Equal(t, domain.OfferStatusPending, got.StatusAt(e.clock.Now()))
		owner, err := e.ledger.OwnerOf(ctx, asset)
		require.NoError(t, err)
		require.Equal(t, seller, owner)
		require.Equal(t, int64(0), e.balance(seller))
		require.Equal(t, int64(150), e.balance(escrowAcct))
	}

	// An unknown cascade id rejects the acceptance with no side effects.
	_, err = e.offers.Accept(ctx, a.ID, seller, []string{"no-such-offer"})
	require.ErrorIs(t, err, domain.ErrNotFound)
	assertUnsettled()

	// So does a cascade entry on a different asset.
	_, err = e.offers.Accept(ctx, a.ID, seller, []string{crossAsset.ID})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assertUnsettled()

	// With a clean list the acceptance still settles.
	sale, err := e.offers.Accept(ctx, a.ID, seller, nil)
	require.NoError(t, err)
	require.Equal(t, int64(100), sale.Gross.Int64())
}

func TestOfferAcceptSkipsAcceptedInCascade(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	asset := testAsset(1)
	e.seedAsset(asset, seller, buyer, bidder2)

	until := e.clock.Now().Add(time.Hour)
	a, err := e.offers.Make(ctx, seller, buyer, asset, currency, big.NewInt(100), until, "")
	require.NoError(t, err)
	b, err := e.offers.Make(ctx, seller, bidder2, asset, currency, big.NewInt(90), until, "")
	require.NoError(t, err)

	// The accepted offer's own id in the cascade list is ignored.
	sale, err := e.offers.Accept(ctx, a.ID, seller, []string{a.ID, b.ID})
	require.NoError(t, err)
	require.Equal(t, int64(100), sale.Gross.Int64())

	got, err := e.offers.Get(ctx, a.ID)
	require.NoError(t, err)
	require.False(t, got.Cancelled)
	require.NotNil(t, got.SelectedAt)
}

func TestOffersByAsset(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	asset := testAsset(1)
	e.seedAsset(asset, seller, buyer, bidder2)

	until := e.clock.Now().Add(time.Hour)
	_, err := e.offers.Make(ctx, seller, buyer, asset, currency, big.NewInt(100), until, "")
	require.NoError(t, err)
	_, err = e.offers.Make(ctx, seller, bidder2, asset, currency, big.NewInt(90), until, "")
	require.NoError(t, err)

	all, err := e.offers.ByAsset(ctx, asset)
	require.NoError(t, err)
	require.Len(t, all, 2)
}
