// Package ledger provides the in-memory implementation of domain.Ledger used
// by the local simulation mode and by tests. Production deployments plug in
// an adapter for the real custody ledger instead.
package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// Memory is an in-memory ledger: per-account balances keyed by currency, and
// a single owner per asset. Every transfer is atomic under one mutex and
// either fully applies or fails with an error wrapping
// domain.ErrTransferFailed, matching the contract the engine expects from the
// external ledger.
type Memory struct {
	mu       sync.Mutex
	balances map[string]*big.Int       // account|currency -> balance
	owners   map[string]common.Address // asset key -> owner
}

// NewMemory creates an empty ledger.
func NewMemory() *Memory {
	return &Memory{
		balances: make(map[string]*big.Int),
		owners:   make(map[string]common.Address),
	}
}

func balanceKey(account, currency common.Address) string {
	return account.Hex() + "|" + currency.Hex()
}

// Credit adds funds to an account. Used to seed test and simulation state.
func (m *Memory) Credit(account common.Address, amount *big.Int, currency common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.add(account, currency, amount)
}

// SetOwner records the owner of an asset. Used to seed test and simulation
// state; ownership afterwards changes only through TransferAsset.
func (m *Memory) SetOwner(asset domain.AssetRef, owner common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[asset.Key()] = owner
}

// Balance returns the current balance of an account in a currency.
func (m *Memory) Balance(account, currency common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.balances[balanceKey(account, currency)]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// OwnerOf returns the current owner of an asset.
func (m *Memory) OwnerOf(_ context.Context, asset domain.AssetRef) (common.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owner, ok := m.owners[asset.Key()]
	if !ok {
		return common.Address{}, fmt.Errorf("ledger: asset %s has no owner: %w", asset.Key(), domain.ErrNotFound)
	}
	return owner, nil
}

// TransferAsset moves ownership of an asset. It rejects the transfer when
// from is not the current owner.
func (m *Memory) TransferAsset(_ context.Context, asset domain.AssetRef, from, to common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner, ok := m.owners[asset.Key()]
	if !ok {
		return fmt.Errorf("ledger: asset %s unknown: %w", asset.Key(), domain.ErrTransferFailed)
	}
	if owner != from {
		return fmt.Errorf("ledger: asset %s owned by %s, not %s: %w", asset.Key(), owner.Hex(), from.Hex(), domain.ErrTransferFailed)
	}

	m.owners[asset.Key()] = to
	return nil
}

// TransferValue moves funds between accounts. It rejects non-positive amounts
// and overdrafts.
func (m *Memory) TransferValue(_ context.Context, from, to common.Address, amount *big.Int, currency common.Address) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("ledger: transfer amount must be positive: %w", domain.ErrTransferFailed)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	bal, ok := m.balances[balanceKey(from, currency)]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("ledger: account %s has insufficient funds: %w", from.Hex(), domain.ErrTransferFailed)
	}

	bal.Sub(bal, amount)
	m.add(to, currency, amount)
	return nil
}

// add credits an account in place. Caller holds m.mu.
func (m *Memory) add(account, currency common.Address, amount *big.Int) {
	key := balanceKey(account, currency)
	if b, ok := m.balances[key]; ok {
		b.Add(b, amount)
		return
	}
	m.balances[key] = new(big.Int).Set(amount)
}

var _ domain.Ledger = (*Memory)(nil)
