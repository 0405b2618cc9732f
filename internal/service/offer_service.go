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

// OfferService manages unsolicited buy offers. An offer's price is escrowed
// from the maker the moment the offer is created and stays locked until a
// terminal outcome; every cancellation path refunds it.
type OfferService struct {
	offers     domain.OfferStore
	locks      domain.LockManager
	ledger     domain.Ledger
	settlement *SettlementService
	escrow     domain.Address
	logger     *slog.Logger
	now        func() time.Time
}

// NewOfferService creates an OfferService.
func NewOfferService(
	offers domain.OfferStore,
	locks domain.LockManager,
	ledger domain.Ledger,
	settlement *SettlementService,
	escrow domain.Address,
	logger *slog.Logger,
) *OfferService {
	return &OfferService{
		offers:     offers,
		locks:      locks,
		ledger:     ledger,
		settlement: settlement,
		escrow:     escrow,
		logger:     logger.With(slog.String("component", "offers")),
		now:        time.Now,
	}
}

// Make creates an offer and escrows its price from the maker. The ledger is
// consulted to confirm assetOwner currently holds the asset; this check is
// best-effort at creation time only — ownership may change before acceptance,
// in which case the transfer step at acceptance fails and the offer stays
// pending.
func (s *OfferService) Make(ctx context.Context, assetOwner, offerMaker domain.Address, asset domain.AssetRef, currency domain.Address, price *big.Int, offerUntil time.Time, offerName string) (domain.Offer, error) {
	if price == nil || price.Sign() <= 0 {
		return domain.Offer{}, fmt.Errorf("offers: price must be positive: %w", domain.ErrInvalidInput)
	}
	if !offerUntil.After(s.now()) {
		return domain.Offer{}, fmt.Errorf("offers: offer deadline is in the past: %w", domain.ErrInvalidInput)
	}

	release, err := s.locks.Acquire(ctx, asset.Key())
	if err != nil {
		return domain.Offer{}, fmt.Errorf("offers: lock asset: %w", err)
	}
	defer release()

	owner, err := s.ledger.OwnerOf(ctx, asset)
	if err != nil {
		return domain.Offer{}, fmt.Errorf("offers: resolve owner: %w", err)
	}
	if owner != assetOwner {
		return domain.Offer{}, fmt.Errorf("offers: %s does not own asset %s: %w", assetOwner.Hex(), asset.Key(), domain.ErrInvalidInput)
	}

	if err := s.ledger.TransferValue(ctx, offerMaker, s.escrow, price, currency); err != nil {
		return domain.Offer{}, fmt.Errorf("offers: escrow funds: %w", err)
	}

	o := domain.Offer{
		ID:              uuid.New().String(),
		AssetOwner:      assetOwner,
		OfferMaker:      offerMaker,
		Asset:           asset,
		PaymentCurrency: currency,
		Price:           new(big.Int).Set(price),
		OfferName:       offerName,
		OfferedAt:       s.now().UTC(),
		OfferUntil:      offerUntil,
	}
	if err := s.offers.Create(ctx, o); err != nil {
		// Return the escrow; the offer never existed.
		if rerr := s.ledger.TransferValue(ctx, s.escrow, offerMaker, price, currency); rerr != nil {
			s.logger.ErrorContext(ctx, "escrow rollback failed",
				slog.String("maker", offerMaker.Hex()),
				slog.String("error", rerr.Error()),
			)
		}
		return domain.Offer{}, fmt.Errorf("offers: create: %w", err)
	}

	s.logger.InfoContext(ctx, "offer made",
		slog.String("offer_id", o.ID),
		slog.String("asset", asset.Key()),
		slog.String("maker", offerMaker.Hex()),
		slog.String("price", price.String()),
	)
	return o, nil
}

// Accept settles a pending offer: the escrowed price is split at the offer
// fee rate, the owner is paid the net, and the asset moves to the maker.
// cascadeCancelIDs then lists competing offers to cancel in the same
// operation with reason "Sold to another", each refunding its escrow; this
// closes the window where a second acceptance could race on an asset that
// just changed hands. The cascade list is checked before anything settles:
// an unknown id, or one naming a different asset or owner, rejects the whole
// acceptance with no side effects. Already-terminal entries are skipped.
func (s *OfferService) Accept(ctx context.Context, offerID string, caller domain.Address, cascadeCancelIDs []string) (domain.Sale, error) {
	o, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return domain.Sale{}, err
	}

	release, err := s.locks.Acquire(ctx, o.Asset.Key())
	if err != nil {
		return domain.Sale{}, fmt.Errorf("offers: lock asset: %w", err)
	}
	defer release()

	o, err = s.offers.GetByID(ctx, offerID)
	if err != nil {
		return domain.Sale{}, err
	}
	if caller != o.AssetOwner {
		return domain.Sale{}, fmt.Errorf("offers: caller %s is not the asset owner: %w", caller.Hex(), domain.ErrUnauthorized)
	}
	if st := o.StatusAt(s.now()); st != domain.OfferStatusPending {
		return domain.Sale{}, fmt.Errorf("offers: offer %s is %s: %w", offerID, st, domain.ErrInvalidState)
	}

	// Vet the whole cascade list before settling. Settlement is irreversible,
	// so a bad id has to reject the acceptance up front rather than strand the
	// remaining cascade entries after the asset has already moved.
	for _, id := range cascadeCancelIDs {
		if id == offerID {
			continue
		}
		c, err := s.offers.GetByID(ctx, id)
		if err != nil {
			return domain.Sale{}, fmt.Errorf("offers: cascade offer %s: %w", id, err)
		}
		if caller != c.AssetOwner {
			return domain.Sale{}, fmt.Errorf("offers: cascade offer %s belongs to a different owner: %w", id, domain.ErrUnauthorized)
		}
		if !c.Asset.Equal(o.Asset) {
			return domain.Sale{}, fmt.Errorf("offers: cascade offer %s is for a different asset: %w", id, domain.ErrInvalidInput)
		}
	}

	sale, err := s.settlement.executeSale(ctx, saleParams{
		path:        domain.SalePathOffer,
		referenceID: o.ID,
		asset:       o.Asset,
		seller:      o.AssetOwner,
		buyer:       o.OfferMaker,
		gross:       o.Price,
		currency:    o.PaymentCurrency,
		offerRate:   true,
		inEscrow:    true,
	})
	if err != nil {
		// Escrow untouched; the offer remains pending.
		return domain.Sale{}, err
	}

	selectedAt := sale.SettledAt
	o.SelectedAt = &selectedAt
	if err := s.offers.Update(ctx, o); err != nil {
		return domain.Sale{}, fmt.Errorf("offers: mark accepted: %w", err)
	}

	for _, id := range cascadeCancelIDs {
		if id == offerID {
			continue
		}
		if err := s.cancelLocked(ctx, id, caller, o.Asset, domain.CancelReasonSoldToAnother); err != nil {
			return domain.Sale{}, fmt.Errorf("offers: cascade cancel %s: %w", id, err)
		}
	}

	s.logger.InfoContext(ctx, "offer accepted",
		slog.String("offer_id", offerID),
		slog.Int("cascade_cancelled", len(cascadeCancelIDs)),
	)
	return sale, nil
}

// Reject cancels each still-pending offer in offerIDs with reason
// "Cancelled by owner", refunding its escrow. The caller must be the asset
// owner of every listed offer. Offers that already reached a terminal state
// are skipped silently, so repeating a reject call is a no-op rather than an
// error.
func (s *OfferService) Reject(ctx context.Context, offerIDs []string, caller domain.Address) error {
	for _, id := range offerIDs {
		o, err := s.offers.GetByID(ctx, id)
		if err != nil {
			return err
		}

		release, err := s.locks.Acquire(ctx, o.Asset.Key())
		if err != nil {
			return fmt.Errorf("offers: lock asset: %w", err)
		}
		err = s.cancelLocked(ctx, id, caller, o.Asset, domain.CancelReasonOwnerCancelled)
		release()
		if err != nil {
			return fmt.Errorf("offers: reject %s: %w", id, err)
		}
	}
	return nil
}

// cancelLocked cancels one offer and refunds its escrow. The caller holds the
// asset lock. Terminal offers are skipped; an offer on a different asset or
// belonging to a different owner is rejected.
func (s *OfferService) cancelLocked(ctx context.Context, offerID string, caller domain.Address, asset domain.AssetRef, reason string) error {
	o, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return err
	}
	if caller != o.AssetOwner {
		return fmt.Errorf("offers: caller %s is not the asset owner: %w", caller.Hex(), domain.ErrUnauthorized)
	}
	if !o.Asset.Equal(asset) {
		return fmt.Errorf("offers: offer %s is for a different asset: %w", offerID, domain.ErrInvalidInput)
	}
	if o.Terminal() {
		return nil
	}

	if err := s.ledger.TransferValue(ctx, s.escrow, o.OfferMaker, o.Price, o.PaymentCurrency); err != nil {
		return fmt.Errorf("offers: refund escrow: %w", err)
	}

	now := s.now().UTC()
	o.Cancelled = true
	o.CancelReason = reason
	o.CancelledAt = &now
	if err := s.offers.Update(ctx, o); err != nil {
		return fmt.Errorf("offers: mark cancelled: %w", err)
	}

	s.logger.InfoContext(ctx, "offer cancelled",
		slog.String("offer_id", offerID),
		slog.String("reason", reason),
	)
	return nil
}

// Get returns an offer by id.
func (s *OfferService) Get(ctx context.Context, offerID string) (domain.Offer, error) {
	return s.offers.GetByID(ctx, offerID)
}

// ByAsset returns every offer ever made on the asset.
func (s *OfferService) ByAsset(ctx context.Context, asset domain.AssetRef) ([]domain.Offer, error) {
	return s.offers.ListByAsset(ctx, asset)
}
