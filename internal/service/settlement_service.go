// Package service implements the marketplace engine: listing, auction, and
// offer lifecycles plus the settlement coordinator that turns a validated
// sale into atomic ledger movements and a sale record.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/nftmarket/internal/crypto"
	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/alanyoungcy/nftmarket/internal/fees"
)

// SettlementService coordinates every sale path: it verifies preconditions,
// moves payment and asset through the external ledger, splits the protocol
// fee, and emits the sale record. Each settlement is all-or-nothing: a
// rejected asset transfer returns any value tendered within the same
// operation and records no state change.
type SettlementService struct {
	schedule *fees.Schedule
	auth     *crypto.Authorizer
	ledger   domain.Ledger
	sales    domain.SaleStore
	locks    domain.LockManager
	escrow   domain.Address
	feeAcct  domain.Address
	logger   *slog.Logger
	now      func() time.Time
}

// NewSettlementService creates a SettlementService. escrow is the engine's
// holding account; feeAcct receives protocol fees.
func NewSettlementService(
	schedule *fees.Schedule,
	auth *crypto.Authorizer,
	ledger domain.Ledger,
	sales domain.SaleStore,
	locks domain.LockManager,
	escrow, feeAcct domain.Address,
	logger *slog.Logger,
) *SettlementService {
	return &SettlementService{
		schedule: schedule,
		auth:     auth,
		ledger:   ledger,
		sales:    sales,
		locks:    locks,
		escrow:   escrow,
		feeAcct:  feeAcct,
		logger:   logger.With(slog.String("component", "settlement")),
		now:      time.Now,
	}
}

// saleParams describes one sale for executeSale. When inEscrow is true the
// gross amount is already held by the escrow account (auction bids, offer
// deposits); otherwise executeSale tenders it from payer first.
type saleParams struct {
	path        domain.SalePath
	referenceID string
	asset       domain.AssetRef
	seller      domain.Address
	buyer       domain.Address
	payer       domain.Address
	gross       *big.Int
	currency    domain.Address
	offerRate   bool
	inEscrow    bool
}

// executeSale performs the atomic tender → asset transfer → fee split →
// record sequence shared by all sale paths. The caller holds the asset lock.
//
// Ordering matters: funds are tendered into escrow before the asset moves, so
// a rejected asset transfer is undone by a single escrow refund and never
// requires clawing anything back from the seller.
func (s *SettlementService) executeSale(ctx context.Context, p saleParams) (domain.Sale, error) {
	if !p.inEscrow {
		if err := s.ledger.TransferValue(ctx, p.payer, s.escrow, p.gross, p.currency); err != nil {
			return domain.Sale{}, fmt.Errorf("settlement: tender payment: %w", err)
		}
	}

	if err := s.ledger.TransferAsset(ctx, p.asset, p.seller, p.buyer); err != nil {
		if !p.inEscrow {
			if rerr := s.ledger.TransferValue(ctx, s.escrow, p.payer, p.gross, p.currency); rerr != nil {
				s.logger.ErrorContext(ctx, "refund after failed asset transfer also failed",
					slog.String("asset", p.asset.Key()),
					slog.String("payer", p.payer.Hex()),
					slog.String("error", rerr.Error()),
				)
			}
		}
		return domain.Sale{}, fmt.Errorf("settlement: asset transfer: %w", err)
	}

	var net, fee *big.Int
	if p.offerRate {
		net, fee = s.schedule.SplitOffer(p.gross)
	} else {
		net, fee = s.schedule.SplitListing(p.gross)
	}

	if net.Sign() > 0 {
		if err := s.ledger.TransferValue(ctx, s.escrow, p.seller, net, p.currency); err != nil {
			return domain.Sale{}, s.unwindPayout(ctx, p, fmt.Errorf("settlement: pay seller: %w", err))
		}
	}
	if fee.Sign() > 0 {
		if err := s.ledger.TransferValue(ctx, s.escrow, s.feeAcct, fee, p.currency); err != nil {
			// Claw the net back into escrow before unwinding the asset.
			if net.Sign() > 0 {
				_ = s.ledger.TransferValue(ctx, p.seller, s.escrow, net, p.currency)
			}
			return domain.Sale{}, s.unwindPayout(ctx, p, fmt.Errorf("settlement: collect fee: %w", err))
		}
	}

	sale := domain.Sale{
		ID:          uuid.New().String(),
		Path:        p.path,
		ReferenceID: p.referenceID,
		Asset:       p.asset,
		Seller:      p.seller,
		Buyer:       p.buyer,
		Currency:    p.currency,
		Gross:       new(big.Int).Set(p.gross),
		Fee:         fee,
		NetToSeller: net,
		SettledAt:   s.now().UTC(),
	}
	if err := s.sales.Insert(ctx, sale); err != nil {
		return domain.Sale{}, fmt.Errorf("settlement: record sale: %w", err)
	}

	s.logger.InfoContext(ctx, "sale settled",
		slog.String("sale_id", sale.ID),
		slog.String("path", string(sale.Path)),
		slog.String("asset", sale.Asset.Key()),
		slog.String("seller", sale.Seller.Hex()),
		slog.String("buyer", sale.Buyer.Hex()),
		slog.String("gross", sale.Gross.String()),
		slog.String("fee", sale.Fee.String()),
	)
	return sale, nil
}

// unwindPayout reverses the asset transfer and, for non-escrowed sales,
// refunds the tendered amount. Payout failures only occur when the ledger is
// inconsistent with the engine's escrow accounting; the unwind is best-effort
// and the original error is returned regardless.
func (s *SettlementService) unwindPayout(ctx context.Context, p saleParams, cause error) error {
	if err := s.ledger.TransferAsset(ctx, p.asset, p.buyer, p.seller); err != nil {
		s.logger.ErrorContext(ctx, "asset unwind failed",
			slog.String("asset", p.asset.Key()),
			slog.String("error", err.Error()),
		)
	}
	if !p.inEscrow {
		if err := s.ledger.TransferValue(ctx, s.escrow, p.payer, p.gross, p.currency); err != nil {
			s.logger.ErrorContext(ctx, "tender refund failed",
				slog.String("payer", p.payer.Hex()),
				slog.String("error", err.Error()),
			)
		}
	}
	return cause
}

// Settle performs an off-chain authorized purchase: the authority's signature
// over the order tuple is verified, the buyer's tendered value must equal the
// order's payment value exactly, and the sale then settles at the listing fee
// rate. There is no replay protection beyond the literal tuple match; see
// crypto.Authorizer.
func (s *SettlementService) Settle(ctx context.Context, order domain.OffchainOrder, tendered *big.Int) (domain.Sale, error) {
	if err := validateOrder(order); err != nil {
		return domain.Sale{}, err
	}
	if err := s.auth.Authorize(order); err != nil {
		return domain.Sale{}, fmt.Errorf("settlement: %w", err)
	}
	if tendered == nil || tendered.Cmp(order.PaymentValue) != 0 {
		return domain.Sale{}, fmt.Errorf("settlement: tendered %s != order value %s: %w",
			bigString(tendered), order.PaymentValue.String(), domain.ErrAmountMismatch)
	}

	release, err := s.locks.Acquire(ctx, order.Asset.Key())
	if err != nil {
		return domain.Sale{}, fmt.Errorf("settlement: lock asset: %w", err)
	}
	defer release()

	return s.executeSale(ctx, saleParams{
		path:     domain.SalePathOffchain,
		asset:    order.Asset,
		seller:   order.Seller,
		buyer:    order.Buyer,
		payer:    order.Buyer,
		gross:    order.PaymentValue,
		currency: order.PaymentCurrency,
	})
}

// SettleBatch settles several off-chain orders as one unit. payer tenders the
// batch total, which must exactly equal the sum of the order payment values.
// The batch either settles entirely or not at all: a rejected asset transfer
// for any order reverses the asset transfers already made, refunds the full
// tender, and records nothing.
func (s *SettlementService) SettleBatch(ctx context.Context, payer domain.Address, orders []domain.OffchainOrder, tendered *big.Int) ([]domain.Sale, error) {
	if len(orders) == 0 {
		return nil, fmt.Errorf("settlement: empty batch: %w", domain.ErrInvalidInput)
	}

	total := new(big.Int)
	for i, order := range orders {
		if err := validateOrder(order); err != nil {
			return nil, fmt.Errorf("settlement: order %d: %w", i, err)
		}
		if err := s.auth.Authorize(order); err != nil {
			return nil, fmt.Errorf("settlement: order %d: %w", i, err)
		}
		if order.PaymentCurrency != orders[0].PaymentCurrency {
			return nil, fmt.Errorf("settlement: order %d: batch orders must share one currency: %w", i, domain.ErrInvalidInput)
		}
		total.Add(total, order.PaymentValue)
	}
	if tendered == nil || tendered.Cmp(total) != 0 {
		return nil, fmt.Errorf("settlement: tendered %s != batch total %s: %w",
			bigString(tendered), total.String(), domain.ErrAmountMismatch)
	}
	currency := orders[0].PaymentCurrency

	// Lock every touched asset in sorted key order to keep acquisition
	// deadlock-free across concurrent batches.
	releaseAll, err := s.lockAssets(ctx, orders)
	if err != nil {
		return nil, err
	}
	defer releaseAll()

	// Tender the whole batch into escrow in one step, then move assets. Only
	// asset transfers can legitimately fail from here on, and each is undone
	// by transferring the asset back.
	if err := s.ledger.TransferValue(ctx, payer, s.escrow, total, currency); err != nil {
		return nil, fmt.Errorf("settlement: tender batch payment: %w", err)
	}

	done := 0
	for i, order := range orders {
		if err := s.ledger.TransferAsset(ctx, order.Asset, order.Seller, order.Buyer); err != nil {
			for j := done - 1; j >= 0; j-- {
				if rerr := s.ledger.TransferAsset(ctx, orders[j].Asset, orders[j].Buyer, orders[j].Seller); rerr != nil {
					s.logger.ErrorContext(ctx, "batch asset unwind failed",
						slog.String("asset", orders[j].Asset.Key()),
						slog.String("error", rerr.Error()),
					)
				}
			}
			if rerr := s.ledger.TransferValue(ctx, s.escrow, payer, total, currency); rerr != nil {
				s.logger.ErrorContext(ctx, "batch tender refund failed",
					slog.String("payer", payer.Hex()),
					slog.String("error", rerr.Error()),
				)
			}
			return nil, fmt.Errorf("settlement: order %d asset transfer: %w", i, err)
		}
		done++
	}

	// All assets moved; pay out and record each order.
	sales := make([]domain.Sale, 0, len(orders))
	for i, order := range orders {
		net, fee := s.schedule.SplitListing(order.PaymentValue)
		if net.Sign() > 0 {
			if err := s.ledger.TransferValue(ctx, s.escrow, order.Seller, net, currency); err != nil {
				return nil, fmt.Errorf("settlement: order %d pay seller: %w", i, err)
			}
		}
		if fee.Sign() > 0 {
			if err := s.ledger.TransferValue(ctx, s.escrow, s.feeAcct, fee, currency); err != nil {
				return nil, fmt.Errorf("settlement: order %d collect fee: %w", i, err)
			}
		}

		sale := domain.Sale{
			ID:          uuid.New().String(),
			Path:        domain.SalePathOffchain,
			Asset:       order.Asset,
			Seller:      order.Seller,
			Buyer:       order.Buyer,
			Currency:    currency,
			Gross:       new(big.Int).Set(order.PaymentValue),
			Fee:         fee,
			NetToSeller: net,
			SettledAt:   s.now().UTC(),
		}
		if err := s.sales.Insert(ctx, sale); err != nil {
			return nil, fmt.Errorf("settlement: record sale %d: %w", i, err)
		}
		sales = append(sales, sale)
	}

	s.logger.InfoContext(ctx, "batch settled",
		slog.Int("orders", len(orders)),
		slog.String("total", total.String()),
		slog.String("payer", payer.Hex()),
	)
	return sales, nil
}

// lockAssets acquires the locks for every distinct asset in the batch, sorted
// by key, and returns a single release for all of them.
func (s *SettlementService) lockAssets(ctx context.Context, orders []domain.OffchainOrder) (func(), error) {
	seen := make(map[string]bool, len(orders))
	keys := make([]string, 0, len(orders))
	for _, order := range orders {
		k := order.Asset.Key()
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	releases := make([]func(), 0, len(keys))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, k := range keys {
		release, err := s.locks.Acquire(ctx, k)
		if err != nil {
			releaseAll()
			return nil, fmt.Errorf("settlement: lock asset %s: %w", k, err)
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

// SaleByID returns a sale record.
func (s *SettlementService) SaleByID(ctx context.Context, id string) (domain.Sale, error) {
	return s.sales.GetByID(ctx, id)
}

// SalesByAsset returns the settlement history of an asset.
func (s *SettlementService) SalesByAsset(ctx context.Context, asset domain.AssetRef) ([]domain.Sale, error) {
	return s.sales.ListByAsset(ctx, asset)
}

// SalesByParty returns every sale where the party was buyer or seller.
func (s *SettlementService) SalesByParty(ctx context.Context, party domain.Address) ([]domain.Sale, error) {
	return s.sales.ListByParty(ctx, party)
}

func validateOrder(o domain.OffchainOrder) error {
	if o.Asset.AssetID == nil || o.Asset.AssetID.Sign() < 0 || o.Asset.AssetID.BitLen() > 256 {
		return fmt.Errorf("settlement: order asset id must be an unsigned 256-bit integer: %w", domain.ErrInvalidInput)
	}
	if o.PaymentValue == nil || o.PaymentValue.Sign() <= 0 || o.PaymentValue.BitLen() > 256 {
		return fmt.Errorf("settlement: order payment value must be a positive 256-bit integer: %w", domain.ErrInvalidInput)
	}
	if o.Seller == (domain.Address{}) || o.Buyer == (domain.Address{}) {
		return fmt.Errorf("settlement: order missing seller or buyer: %w", domain.ErrInvalidInput)
	}
	return nil
}

func bigString(n *big.Int) string {
	if n == nil {
		return "<nil>"
	}
	return n.String()
}
