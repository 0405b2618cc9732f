package service

import (
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/nftmarket/internal/crypto"
	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/alanyoungcy/nftmarket/internal/fees"
	"github.com/alanyoungcy/nftmarket/internal/ledger"
	"github.com/alanyoungcy/nftmarket/internal/locks"
	"github.com/alanyoungcy/nftmarket/internal/store/memory"
)

// Test fee rates: 2.5% on listings/auctions, 5% on offers.
const (
	testListingBps = 250
	testOfferBps   = 500
	testDenomBps   = 10_000
)

var (
	escrowAcct = common.HexToAddress("0x00000000000000000000000000000000000000e5")
	feeAcct    = common.HexToAddress("0x00000000000000000000000000000000000000fe")
	seller     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	buyer      = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	bidder2    = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	bidder3    = common.HexToAddress("0x00000000000000000000000000000000000000b3")
	stranger   = common.HexToAddress("0x00000000000000000000000000000000000000dd")
	currency   = common.Address{}
)

// fakeClock lets tests move time forward without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// env is a fully wired engine over the in-memory ledger, with a controllable
// clock and the authority's signer.
type env struct {
	clock      *fakeClock
	ledger     *ledger.Memory
	schedule   *fees.Schedule
	signer     *crypto.OrderSigner
	listings   *ListingService
	auctions   *AuctionService
	offers     *OfferService
	settlement *SettlementService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	signer, err := crypto.NewOrderSigner(common.Bytes2Hex(ethcrypto.FromECDSA(key)))
	require.NoError(t, err)

	schedule, err := fees.NewSchedule(fees.Rates{
		ListingFeeBps:  testListingBps,
		OfferFeeBps:    testOfferBps,
		DenominatorBps: testDenomBps,
	}, signer.Address())
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	lockMgr := locks.NewKeyed()
	led := ledger.NewMemory()
	auth := crypto.NewAuthorizer(signer.Address(), nil)

	clock := newFakeClock()

	settlement := NewSettlementService(schedule, auth, led, memory.NewSaleStore(), lockMgr, escrowAcct, feeAcct, logger)
	settlement.now = clock.Now

	listings := NewListingService(memory.NewListingStore(), lockMgr, settlement, time.Minute, 30*24*time.Hour, logger)
	listings.now = clock.Now

	auctions := NewAuctionService(memory.NewAuctionStore(), lockMgr, led, settlement, escrowAcct, false, time.Minute, 30*24*time.Hour, logger)
	auctions.now = clock.Now

	offers := NewOfferService(memory.NewOfferStore(), lockMgr, led, settlement, escrowAcct, logger)
	offers.now = clock.Now

	return &env{
		clock:      clock,
		ledger:     led,
		schedule:   schedule,
		signer:     signer,
		listings:   listings,
		auctions:   auctions,
		offers:     offers,
		settlement: settlement,
	}
}

func testAsset(id int64) domain.AssetRef {
	return domain.AssetRef{
		Contract: common.HexToAddress("0x00000000000000000000000000000000000000c0"),
		AssetID:  big.NewInt(id),
	}
}

// seedAsset gives seller ownership of the asset and funds the named accounts.
func (e *env) seedAsset(asset domain.AssetRef, owner common.Address, funded ...common.Address) {
	e.ledger.SetOwner(asset, owner)
	for _, acct := range funded {
		e.ledger.Credit(acct, big.NewInt(1_000_000), currency)
	}
}

func (e *env) balance(acct common.Address) int64 {
	return e.ledger.Balance(acct, currency).Int64()
}
