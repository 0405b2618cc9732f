package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/nftmarket/internal/crypto"
	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// CheckMode wires everything, validates that the dependency graph is sound,
// and exits. Useful as a configuration smoke test in deploy pipelines.
func (a *App) CheckMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "configuration check passed",
		slog.String("authority", deps.Authorizer.Authority().Hex()),
		slog.Int64("listing_fee_bps", deps.Schedule.Rates().ListingFeeBps),
		slog.Int64("offer_fee_bps", deps.Schedule.Rates().OfferFeeBps),
	)
	return nil
}

// SimulateMode seeds the in-memory ledger with a handful of accounts and
// assets, then drives concurrent marketplace traffic through every sale path:
// listing buys, auction bids, offer acceptance with cascade cancellation, and
// authority-signed off-chain settlements. It exercises the per-asset
// serialization under real goroutine contention.
func (a *App) SimulateMode(ctx context.Context, deps *Dependencies) error {
	keyHex, err := crypto.LoadAuthorityKey(crypto.KeyConfig{
		RawPrivateKey:    a.cfg.Wallet.PrivateKey,
		EncryptedKeyPath: a.cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      a.cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return fmt.Errorf("app: load authority key: %w", err)
	}
	signer, err := crypto.NewOrderSigner(keyHex)
	if err != nil {
		return fmt.Errorf("app: authority signer: %w", err)
	}
	if signer.Address() != deps.Authorizer.Authority() {
		return fmt.Errorf("app: wallet key %s does not match configured authority %s",
			signer.Address().Hex(), deps.Authorizer.Authority().Hex())
	}

	// Seed: one seller holding three assets, three funded buyers.
	seller := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	buyers := []common.Address{
		common.HexToAddress("0x00000000000000000000000000000000000000b1"),
		common.HexToAddress("0x00000000000000000000000000000000000000b2"),
		common.HexToAddress("0x00000000000000000000000000000000000000b3"),
	}
	contract := common.HexToAddress("0x00000000000000000000000000000000000000c0")
	currency := common.Address{}

	assets := make([]domain.AssetRef, 3)
	for i := range assets {
		assets[i] = domain.AssetRef{Contract: contract, AssetID: big.NewInt(int64(i + 1))}
		deps.Ledger.SetOwner(assets[i], seller)
	}
	for _, b := range buyers {
		deps.Ledger.Credit(b, big.NewInt(1_000_000), currency)
	}

	// Path 1: listing buy, with concurrent buyers racing for one listing.
	listing, err := deps.Listings.Create(ctx, seller, assets[0], big.NewInt(5_000), currency, time.Hour, "simulated listing")
	if err != nil {
		return fmt.Errorf("app: simulate listing: %w", err)
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, b := range buyers {
		b := b
		g.Go(func() error {
			if _, err := deps.Listings.Buy(gctx, listing.ID, b, big.NewInt(5_000)); err != nil {
				// All but the winner lose the race with ErrInvalidState.
				a.logger.DebugContext(gctx, "buy lost race", slog.String("buyer", b.Hex()))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Path 2: auction with competing bidders, ended by the seller.
	auction, err := deps.Auctions.Create(ctx, seller, assets[1], big.NewInt(1_000), big.NewInt(1_000), currency, time.Hour, "simulated auction")
	if err != nil {
		return fmt.Errorf("app: simulate auction: %w", err)
	}
	g, gctx = errgroup.WithContext(ctx)
	for i, b := range buyers {
		b := b
		amount := big.NewInt(int64(1_000 + 500*(i+1)))
		g.Go(func() error {
			if _, err := deps.Auctions.Bid(gctx, auction.ID, b, amount); err != nil {
				a.logger.DebugContext(gctx, "bid rejected", slog.String("bidder", b.Hex()))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if _, _, err := deps.Auctions.End(ctx, auction.ID, seller); err != nil {
		return fmt.Errorf("app: simulate auction end: %w", err)
	}

	// Path 3: competing offers, one accepted with cascade cancellation.
	offerIDs := make([]string, 0, len(buyers))
	for i, b := range buyers {
		o, err := deps.Offers.Make(ctx, seller, b, assets[2], currency, big.NewInt(int64(2_000+100*i)), a.clockAhead(time.Hour), fmt.Sprintf("offer-%d", i))
		if err != nil {
			return fmt.Errorf("app: simulate offer: %w", err)
		}
		offerIDs = append(offerIDs, o.ID)
	}
	if _, err := deps.Offers.Accept(ctx, offerIDs[len(offerIDs)-1], seller, offerIDs[:len(offerIDs)-1]); err != nil {
		return fmt.Errorf("app: simulate offer accept: %w", err)
	}

	// Path 4: off-chain authorized settlement signed by the authority. The
	// listing buyer from path 1 now owns assets[0] and sells it on.
	owner, err := deps.Ledger.OwnerOf(ctx, assets[0])
	if err != nil {
		return fmt.Errorf("app: simulate resolve owner: %w", err)
	}
	order := domain.OffchainOrder{
		Seller:          owner,
		Buyer:           buyers[2],
		Asset:           assets[0],
		PaymentCurrency: currency,
		PaymentValue:    big.NewInt(7_500),
	}
	order.Signature, err = signer.SignOrder(order)
	if err != nil {
		return fmt.Errorf("app: simulate sign order: %w", err)
	}
	if _, err := deps.Settlement.Settle(ctx, order, big.NewInt(7_500)); err != nil {
		return fmt.Errorf("app: simulate offchain settle: %w", err)
	}

	sales, err := deps.Settlement.SalesByParty(ctx, seller)
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "simulation complete",
		slog.Int("seller_sales", len(sales)),
		slog.String("fee_balance", deps.Ledger.Balance(a.cfg.FeeAddress(), currency).String()),
	)
	return nil
}

func (a *App) clockAhead(d time.Duration) time.Time {
	return time.Now().UTC().Add(d)
}
