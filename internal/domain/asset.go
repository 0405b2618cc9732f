// Package domain defines the marketplace entities, the sentinel errors shared
// across the engine, and the interfaces (stores, ledger, lock manager) that
// concrete infrastructure implements.
package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Address is the identity type used for sellers, buyers, bidders, and the
// engine's own escrow and fee accounts.
type Address = common.Address

// AssetRef identifies one unique asset: the contract that minted it plus the
// asset id within that contract.
type AssetRef struct {
	Contract common.Address
	AssetID  *big.Int
}

// Key returns a stable string form of the reference, used as a map key in the
// in-memory stores and as a lock key for per-asset serialization.
func (a AssetRef) Key() string {
	return a.Contract.Hex() + "/" + a.AssetID.String()
}

// Equal reports whether two references point at the same asset.
func (a AssetRef) Equal(b AssetRef) bool {
	return a.Contract == b.Contract && a.AssetID.Cmp(b.AssetID) == 0
}
