package domain

import "math/big"

// OffchainOrder is a purchase authorization signed off-chain by the trusted
// authority. It is ephemeral: it exists only for the duration of a single
// settlement call and is never stored.
//
// Signature is a 65-byte secp256k1 signature (r || s || v) over the order's
// signed-message digest. The engine performs no nonce or consumption tracking
// for these orders; see crypto.Authorizer for the replay discussion.
type OffchainOrder struct {
	Seller          Address
	Buyer           Address
	Asset           AssetRef
	PaymentCurrency Address
	PaymentValue    *big.Int
	Signature       []byte
}
