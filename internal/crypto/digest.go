// Package crypto provides the off-chain order digest, the signature
// authorizer that gates the off-chain purchase path, and key management for
// the signing authority.
package crypto

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// signedMessagePrefix is the standard Ethereum personal-message envelope for
// a 32-byte payload.
const signedMessagePrefix = "\x19Ethereum Signed Message:\n32"

// OrderDigest computes the content hash of an off-chain order: keccak256 over
// the canonical byte encoding, which concatenates seller, buyer, asset
// contract, payment currency, asset id, and payment value in that fixed
// order. The digest must cover every field settlement reads from the order;
// an unsigned field would let the bearer rewrite it without invalidating the
// authorization. Asset id and payment value are left-padded to 32 bytes so
// the encoding is unambiguous; values that do not fit in 32 bytes are
// rejected rather than truncated.
func OrderDigest(o domain.OffchainOrder) ([]byte, error) {
	assetID, err := bigIntTo32Bytes(o.Asset.AssetID)
	if err != nil {
		return nil, fmt.Errorf("crypto: asset id: %w", err)
	}
	value, err := bigIntTo32Bytes(o.PaymentValue)
	if err != nil {
		return nil, fmt.Errorf("crypto: payment value: %w", err)
	}
	return ethcrypto.Keccak256(
		concatBytes(
			o.Seller.Bytes(),
			o.Buyer.Bytes(),
			o.Asset.Contract.Bytes(),
			o.PaymentCurrency.Bytes(),
			assetID,
			value,
		),
	), nil
}

// AuthorizationHash wraps an order digest in the signed-message envelope.
// This is the hash the authority actually signs.
func AuthorizationHash(digest []byte) []byte {
	return ethcrypto.Keccak256(
		concatBytes([]byte(signedMessagePrefix), digest),
	)
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n. A nil n
// encodes as 32 zero bytes; a negative n or one wider than 256 bits is an
// error, since truncating would let two distinct values share an encoding.
func bigIntTo32Bytes(n *big.Int) ([]byte, error) {
	buf := make([]byte, 32)
	if n == nil {
		return buf, nil
	}
	if n.Sign() < 0 || n.BitLen() > 256 {
		return nil, fmt.Errorf("crypto: %s does not fit in 32 bytes: %w", n.String(), domain.ErrInvalidInput)
	}
	n.FillBytes(buf)
	return buf, nil
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
