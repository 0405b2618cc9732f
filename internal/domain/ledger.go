package domain

import (
	"context"
	"math/big"
)

// Ledger is the external custody collaborator. Each call is atomic:
// it fully succeeds or fully fails with no partial application. The engine
// trusts the ledger to reject invalid transfers (a seller who no longer owns
// the asset, an overdrawn payer) and treats such a rejection as grounds to
// roll back the whole settlement.
//
// TransferValue's from account may be the engine's escrow account, in which
// case the funds were previously tendered into escrow by an earlier call.
type Ledger interface {
	TransferAsset(ctx context.Context, asset AssetRef, from, to Address) error
	TransferValue(ctx context.Context, from, to Address, amount *big.Int, currency Address) error
	OwnerOf(ctx context.Context, asset AssetRef) (Address, error)
}
