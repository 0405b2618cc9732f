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

// ListingService manages fixed-price listings. All mutating operations
// acquire the asset lock before touching state, so a buy, a cancel, and an
// offer acceptance on the same asset can never interleave.
type ListingService struct {
	listings    domain.ListingStore
	locks       domain.LockManager
	settlement  *SettlementService
	minDuration time.Duration
	maxDuration time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewListingService creates a ListingService. minDuration and maxDuration
// bound the accepted listing lifetime.
func NewListingService(
	listings domain.ListingStore,
	locks domain.LockManager,
	settlement *SettlementService,
	minDuration, maxDuration time.Duration,
	logger *slog.Logger,
) *ListingService {
	return &ListingService{
		listings:    listings,
		locks:       locks,
		settlement:  settlement,
		minDuration: minDuration,
		maxDuration: maxDuration,
		logger:      logger.With(slog.String("component", "listings")),
		now:         time.Now,
	}
}

// Create lists an asset for sale at a fixed price. Nothing is escrowed for a
// listing; the seller keeps the asset until a buy settles.
func (s *ListingService) Create(ctx context.Context, seller domain.Address, asset domain.AssetRef, price *big.Int, currency domain.Address, dur time.Duration, metadata string) (domain.Listing, error) {
	if price == nil || price.Sign() <= 0 {
		return domain.Listing{}, fmt.Errorf("listings: price must be positive: %w", domain.ErrInvalidInput)
	}
	if err := s.checkDuration(dur); err != nil {
		return domain.Listing{}, err
	}

	release, err := s.locks.Acquire(ctx, asset.Key())
	if err != nil {
		return domain.Listing{}, fmt.Errorf("listings: lock asset: %w", err)
	}
	defer release()

	now := s.now().UTC()
	l := domain.Listing{
		ID:              uuid.New().String(),
		Seller:          seller,
		Asset:           asset,
		Price:           new(big.Int).Set(price),
		PaymentCurrency: currency,
		CreatedAt:       now,
		ExpiresAt:       now.Add(dur),
		Active:          true,
		Metadata:        metadata,
	}
	if err := s.listings.Create(ctx, l); err != nil {
		return domain.Listing{}, fmt.Errorf("listings: create: %w", err)
	}

	s.logger.InfoContext(ctx, "listing created",
		slog.String("listing_id", l.ID),
		slog.String("asset", asset.Key()),
		slog.String("seller", seller.Hex()),
		slog.String("price", price.String()),
	)
	return l, nil
}

// Buy purchases an active, unexpired listing. payment must equal the listing
// price exactly; any other value fails with ErrAmountMismatch and leaves the
// listing active. On success the listing transitions to Sold.
func (s *ListingService) Buy(ctx context.Context, listingID string, buyer domain.Address, payment *big.Int) (domain.Sale, error) {
	l, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return domain.Sale{}, err
	}

	release, err := s.locks.Acquire(ctx, l.Asset.Key())
	if err != nil {
		return domain.Sale{}, fmt.Errorf("listings: lock asset: %w", err)
	}
	defer release()

	// Re-read under the lock; the listing may have transitioned while we
	// waited.
	l, err = s.listings.GetByID(ctx, listingID)
	if err != nil {
		return domain.Sale{}, err
	}
	if st := l.StatusAt(s.now()); st != domain.ListingStatusActive {
		return domain.Sale{}, fmt.Errorf("listings: listing %s is %s: %w", listingID, st, domain.ErrInvalidState)
	}
	if payment == nil || payment.Cmp(l.Price) != 0 {
		return domain.Sale{}, fmt.Errorf("listings: payment %s != price %s: %w",
			bigString(payment), l.Price.String(), domain.ErrAmountMismatch)
	}

	sale, err := s.settlement.executeSale(ctx, saleParams{
		path:        domain.SalePathListing,
		referenceID: l.ID,
		asset:       l.Asset,
		seller:      l.Seller,
		buyer:       buyer,
		payer:       buyer,
		gross:       l.Price,
		currency:    l.PaymentCurrency,
	})
	if err != nil {
		return domain.Sale{}, err
	}

	soldAt := sale.SettledAt
	l.Active = false
	l.SoldAt = &soldAt
	if err := s.listings.Update(ctx, l); err != nil {
		return domain.Sale{}, fmt.Errorf("listings: mark sold: %w", err)
	}
	return sale, nil
}

// Cancel takes an active listing off the market. Only the seller may cancel;
// no funds move because nothing was escrowed.
func (s *ListingService) Cancel(ctx context.Context, listingID string, caller domain.Address) error {
	l, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return err
	}

	release, err := s.locks.Acquire(ctx, l.Asset.Key())
	if err != nil {
		return fmt.Errorf("listings: lock asset: %w", err)
	}
	defer release()

	l, err = s.listings.GetByID(ctx, listingID)
	if err != nil {
		return err
	}
	if caller != l.Seller {
		return fmt.Errorf("listings: caller %s is not the seller: %w", caller.Hex(), domain.ErrUnauthorized)
	}
	if st := l.StatusAt(s.now()); st != domain.ListingStatusActive {
		return fmt.Errorf("listings: listing %s is %s: %w", listingID, st, domain.ErrInvalidState)
	}

	now := s.now().UTC()
	l.Active = false
	l.CancelledAt = &now
	if err := s.listings.Update(ctx, l); err != nil {
		return fmt.Errorf("listings: mark cancelled: %w", err)
	}

	s.logger.InfoContext(ctx, "listing cancelled", slog.String("listing_id", listingID))
	return nil
}

// UpdatePrice changes the price and expiry of an active listing in place,
// keeping its id and history. Only the seller may update.
func (s *ListingService) UpdatePrice(ctx context.Context, listingID string, caller domain.Address, newPrice *big.Int, newDur time.Duration) (domain.Listing, error) {
	if newPrice == nil || newPrice.Sign() <= 0 {
		return domain.Listing{}, fmt.Errorf("listings: price must be positive: %w", domain.ErrInvalidInput)
	}
	if err := s.checkDuration(newDur); err != nil {
		return domain.Listing{}, err
	}

	l, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return domain.Listing{}, err
	}

	release, err := s.locks.Acquire(ctx, l.Asset.Key())
	if err != nil {
		return domain.Listing{}, fmt.Errorf("listings: lock asset: %w", err)
	}
	defer release()

	l, err = s.listings.GetByID(ctx, listingID)
	if err != nil {
		return domain.Listing{}, err
	}
	if caller != l.Seller {
		return domain.Listing{}, fmt.Errorf("listings: caller %s is not the seller: %w", caller.Hex(), domain.ErrUnauthorized)
	}
	if st := l.StatusAt(s.now()); st != domain.ListingStatusActive {
		return domain.Listing{}, fmt.Errorf("listings: listing %s is %s: %w", listingID, st, domain.ErrInvalidState)
	}

	l.Price = new(big.Int).Set(newPrice)
	l.ExpiresAt = s.now().UTC().Add(newDur)
	if err := s.listings.Update(ctx, l); err != nil {
		return domain.Listing{}, fmt.Errorf("listings: update: %w", err)
	}
	return l, nil
}

// Get returns a listing by id.
func (s *ListingService) Get(ctx context.Context, listingID string) (domain.Listing, error) {
	return s.listings.GetByID(ctx, listingID)
}

// ByAsset returns all listings ever created for the asset.
func (s *ListingService) ByAsset(ctx context.Context, asset domain.AssetRef) ([]domain.Listing, error) {
	return s.listings.ListByAsset(ctx, asset)
}

func (s *ListingService) checkDuration(dur time.Duration) error {
	if dur < s.minDuration || dur > s.maxDuration {
		return fmt.Errorf("listings: duration %s outside [%s, %s]: %w",
			dur, s.minDuration, s.maxDuration, domain.ErrInvalidInput)
	}
	return nil
}
