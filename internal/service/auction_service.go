package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// AuctionService manages timed ascending-bid sales. The amount of the current
// highest bid is held in the engine's escrow account; accepting a new bid and
// refunding the previous one happen within the same locked operation, so at
// most one bid per auction is ever escrowed.
type AuctionService struct {
	auctions      domain.AuctionStore
	locks         domain.LockManager
	ledger        domain.Ledger
	settlement    *SettlementService
	escrow        domain.Address
	allowEarlyEnd bool
	minDuration   time.Duration
	maxDuration   time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// NewAuctionService creates an AuctionService. allowEarlyEnd lets the seller
// end an auction before its end time (settling against the current highest
// bid, if any); when false, end is only callable once the end time passes.
func NewAuctionService(
	auctions domain.AuctionStore,
	locks domain.LockManager,
	ledger domain.Ledger,
	settlement *SettlementService,
	escrow domain.Address,
	allowEarlyEnd bool,
	minDuration, maxDuration time.Duration,
	logger *slog.Logger,
) *AuctionService {
	return &AuctionService{
		auctions:      auctions,
		locks:         locks,
		ledger:        ledger,
		settlement:    settlement,
		escrow:        escrow,
		allowEarlyEnd: allowEarlyEnd,
		minDuration:   minDuration,
		maxDuration:   maxDuration,
		logger:        logger.With(slog.String("component", "auctions")),
		now:           time.Now,
	}
}

// Create starts an auction. The reserve price must be at least the starting
// price; a reserve equal to the starting price means any winning bid settles.
func (s *AuctionService) Create(ctx context.Context, seller domain.Address, asset domain.AssetRef, startingPrice, reservePrice *big.Int, currency domain.Address, dur time.Duration, metadata string) (domain.Auction, error) {
	if startingPrice == nil || startingPrice.Sign() <= 0 {
		return domain.Auction{}, fmt.Errorf("auctions: starting price must be positive: %w", domain.ErrInvalidInput)
	}
	if reservePrice == nil || reservePrice.Cmp(startingPrice) < 0 {
		return domain.Auction{}, fmt.Errorf("auctions: reserve price must be >= starting price: %w", domain.ErrInvalidInput)
	}
	if dur < s.minDuration || dur > s.maxDuration {
		return domain.Auction{}, fmt.Errorf("auctions: duration %s outside [%s, %s]: %w",
			dur, s.minDuration, s.maxDuration, domain.ErrInvalidInput)
	}

	release, err := s.locks.Acquire(ctx, asset.Key())
	if err != nil {
		return domain.Auction{}, fmt.Errorf("auctions: lock asset: %w", err)
	}
	defer release()

	now := s.now().UTC()
	a := domain.Auction{
		ID:              uuid.New().String(),
		Seller:          seller,
		Asset:           asset,
		StartingPrice:   new(big.Int).Set(startingPrice),
		ReservePrice:    new(big.Int).Set(reservePrice),
		PaymentCurrency: currency,
		StartTime:       now,
		EndTime:         now.Add(dur),
		HighestBid:      new(big.Int),
		Active:          true,
		Metadata:        metadata,
	}
	if err := s.auctions.Create(ctx, a); err != nil {
		return domain.Auction{}, fmt.Errorf("auctions: create: %w", err)
	}

	s.logger.InfoContext(ctx, "auction created",
		slog.String("auction_id", a.ID),
		slog.String("asset", asset.Key()),
		slog.String("seller", seller.Hex()),
		slog.String("starting_price", startingPrice.String()),
	)
	return a, nil
}

// Bid places a bid. The amount must strictly exceed the current highest bid
// (and reach the starting price for the first bid). The new amount is
// escrowed and the previous bidder refunded within the same operation, so a
// failed bid never leaves two amounts locked.
func (s *AuctionService) Bid(ctx context.Context, auctionID string, bidder domain.Address, amount *big.Int) (domain.Auction, error) {
	if amount == nil || amount.Sign() <= 0 {
		return domain.Auction{}, fmt.Errorf("auctions: bid must be positive: %w", domain.ErrInvalidInput)
	}

	a, err := s.auctions.GetByID(ctx, auctionID)
	if err != nil {
		return domain.Auction{}, err
	}

	release, err := s.locks.Acquire(ctx, a.Asset.Key())
	if err != nil {
		return domain.Auction{}, fmt.Errorf("auctions: lock asset: %w", err)
	}
	defer release()

	a, err = s.auctions.GetByID(ctx, auctionID)
	if err != nil {
		return domain.Auction{}, err
	}
	now := s.now()
	if !a.Active {
		return domain.Auction{}, fmt.Errorf("auctions: auction %s has ended: %w", auctionID, domain.ErrInvalidState)
	}
	if !now.Before(a.EndTime) {
		return domain.Auction{}, fmt.Errorf("auctions: auction %s past end time: %w", auctionID, domain.ErrInvalidState)
	}
	if a.HasBid() {
		if amount.Cmp(a.HighestBid) <= 0 {
			return domain.Auction{}, fmt.Errorf("auctions: bid %s must exceed highest bid %s: %w",
				amount.String(), a.HighestBid.String(), domain.ErrInvalidInput)
		}
	} else if amount.Cmp(a.StartingPrice) < 0 {
		return domain.Auction{}, fmt.Errorf("auctions: first bid %s below starting price %s: %w",
			amount.String(), a.StartingPrice.String(), domain.ErrInvalidInput)
	}

	// Escrow the new bid, then refund the outgoing one. If the refund is
	// rejected the new escrow is returned so the operation has no effect.
	if err := s.ledger.TransferValue(ctx, bidder, s.escrow, amount, a.PaymentCurrency); err != nil {
		return domain.Auction{}, fmt.Errorf("auctions: escrow bid: %w", err)
	}
	if a.HasBid() {
		if err := s.ledger.TransferValue(ctx, s.escrow, *a.HighestBidder, a.HighestBid, a.PaymentCurrency); err != nil {
			if rerr := s.ledger.TransferValue(ctx, s.escrow, bidder, amount, a.PaymentCurrency); rerr != nil {
				s.logger.ErrorContext(ctx, "bid escrow rollback failed",
					slog.String("auction_id", auctionID),
					slog.String("error", rerr.Error()),
				)
			}
			return domain.Auction{}, fmt.Errorf("auctions: refund previous bidder: %w", err)
		}
	}

	b := bidder
	a.HighestBidder = &b
	a.HighestBid = new(big.Int).Set(amount)
	if err := s.auctions.Update(ctx, a); err != nil {
		return domain.Auction{}, fmt.Errorf("auctions: record bid: %w", err)
	}

	s.logger.InfoContext(ctx, "bid accepted",
		slog.String("auction_id", auctionID),
		slog.String("bidder", bidder.Hex()),
		slog.String("amount", amount.String()),
	)
	return a, nil
}

// End closes an auction. Anyone may end it once the end time has passed; the
// seller may end early when the early-end policy is enabled. If the highest
// bid meets the reserve the sale settles at the listing fee rate; otherwise
// the escrowed bid (if any) is returned and the asset stays with the seller.
func (s *AuctionService) End(ctx context.Context, auctionID string, caller domain.Address) (domain.Auction, *domain.Sale, error) {
	a, err := s.auctions.GetByID(ctx, auctionID)
	if err != nil {
		return domain.Auction{}, nil, err
	}

	release, err := s.locks.Acquire(ctx, a.Asset.Key())
	if err != nil {
		return domain.Auction{}, nil, fmt.Errorf("auctions: lock asset: %w", err)
	}
	defer release()

	a, err = s.auctions.GetByID(ctx, auctionID)
	if err != nil {
		return domain.Auction{}, nil, err
	}
	if !a.Active {
		return domain.Auction{}, nil, fmt.Errorf("auctions: auction %s already ended: %w", auctionID, domain.ErrInvalidState)
	}
	now := s.now()
	if now.Before(a.EndTime) {
		if !s.allowEarlyEnd {
			return domain.Auction{}, nil, fmt.Errorf("auctions: auction %s still running: %w", auctionID, domain.ErrInvalidState)
		}
		if caller != a.Seller {
			return domain.Auction{}, nil, fmt.Errorf("auctions: only the seller may end early: %w", domain.ErrUnauthorized)
		}
	}

	var sale *domain.Sale
	if a.HasBid() && a.HighestBid.Cmp(a.ReservePrice) >= 0 {
		settled, err := s.settlement.executeSale(ctx, saleParams{
			path:        domain.SalePathAuction,
			referenceID: a.ID,
			asset:       a.Asset,
			seller:      a.Seller,
			buyer:       *a.HighestBidder,
			gross:       a.HighestBid,
			currency:    a.PaymentCurrency,
			inEscrow:    true,
		})
		if err != nil {
			// The auction stays active and the bid stays escrowed; the
			// seller resolves the asset and ends again.
			return domain.Auction{}, nil, err
		}
		sale = &settled
	} else if a.HasBid() {
		if err := s.ledger.TransferValue(ctx, s.escrow, *a.HighestBidder, a.HighestBid, a.PaymentCurrency); err != nil {
			return domain.Auction{}, nil, fmt.Errorf("auctions: refund bid: %w", err)
		}
	}

	endedAt := s.now().UTC()
	a.Active = false
	a.EndedAt = &endedAt
	if err := s.auctions.Update(ctx, a); err != nil {
		return domain.Auction{}, nil, fmt.Errorf("auctions: mark ended: %w", err)
	}

	s.logger.InfoContext(ctx, "auction ended",
		slog.String("auction_id", auctionID),
		slog.Bool("sold", sale != nil),
	)
	return a, sale, nil
}

// Get returns an auction by id.
func (s *AuctionService) Get(ctx context.Context, auctionID string) (domain.Auction, error) {
	return s.auctions.GetByID(ctx, auctionID)
}

// ByAsset returns all auctions ever created for the asset.
func (s *AuctionService) ByAsset(ctx context.Context, asset domain.AssetRef) ([]domain.Auction, error) {
	return s.auctions.ListByAsset(ctx, asset)
}
