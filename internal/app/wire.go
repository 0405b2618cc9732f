package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/nftmarket/internal/config"
	"github.com/alanyoungcy/nftmarket/internal/crypto"
	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/alanyoungcy/nftmarket/internal/fees"
	"github.com/alanyoungcy/nftmarket/internal/ledger"
	"github.com/alanyoungcy/nftmarket/internal/locks"
	"github.com/alanyoungcy/nftmarket/internal/service"
	"github.com/alanyoungcy/nftmarket/internal/store/memory"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Ledger     *ledger.Memory
	Locks      domain.LockManager
	Schedule   *fees.Schedule
	Authorizer *crypto.Authorizer

	Listings   *service.ListingService
	Auctions   *service.AuctionService
	Offers     *service.OfferService
	Settlement *service.SettlementService
}

// Wire constructs the concrete dependency graph from the configuration and
// returns it together with a cleanup function to call on shutdown.
//
// The ledger is always the in-memory implementation: asset custody and value
// transfer are external collaborators, and outside of local simulation an
// adapter for the real custody ledger takes its place.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// --- Lock manager ---
	var lockMgr domain.LockManager
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis ping: %w", err)
		}
		closers = append(closers, func() { _ = rdb.Close() })
		lockMgr = locks.NewRedis(rdb, cfg.Redis.LockTTL.Duration)
		logger.InfoContext(ctx, "using redis lock manager", slog.String("addr", cfg.Redis.Addr))
	} else {
		lockMgr = locks.NewKeyed()
	}

	// --- Fee schedule ---
	schedule, err := fees.NewSchedule(fees.Rates{
		ListingFeeBps:  cfg.Fees.ListingFeeBps,
		OfferFeeBps:    cfg.Fees.OfferFeeBps,
		DenominatorBps: cfg.Fees.DenominatorBps,
	}, cfg.AuthorityAddress())
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: fee schedule: %w", err)
	}

	// --- Authorizer, ledger, stores ---
	auth := crypto.NewAuthorizer(cfg.AuthorityAddress(), nil)
	led := ledger.NewMemory()
	sales := memory.NewSaleStore()

	settlement := service.NewSettlementService(
		schedule, auth, led, sales, lockMgr,
		cfg.EscrowAddress(), cfg.FeeAddress(), logger,
	)
	listings := service.NewListingService(
		memory.NewListingStore(), lockMgr, settlement,
		cfg.Listing.MinDuration.Duration, cfg.Listing.MaxDuration.Duration, logger,
	)
	auctions := service.NewAuctionService(
		memory.NewAuctionStore(), lockMgr, led, settlement,
		cfg.EscrowAddress(), cfg.Auction.AllowEarlyEnd,
		cfg.Auction.MinDuration.Duration, cfg.Auction.MaxDuration.Duration, logger,
	)
	offers := service.NewOfferService(
		memory.NewOfferStore(), lockMgr, led, settlement,
		cfg.EscrowAddress(), logger,
	)

	return &Dependencies{
		Ledger:     led,
		Locks:      lockMgr,
		Schedule:   schedule,
		Authorizer: auth,
		Listings:   listings,
		Auctions:   auctions,
		Offers:     offers,
		Settlement: settlement,
	}, cleanup, nil
}
