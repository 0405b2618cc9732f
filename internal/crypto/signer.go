package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// OrderSigner produces authority signatures for off-chain orders. The engine
// itself only verifies; signing lives here for the simulation mode and for
// operators issuing authorizations out of band.
type OrderSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewOrderSigner creates an OrderSigner from a hex-encoded secp256k1 private
// key (with or without 0x prefix).
func NewOrderSigner(privateKeyHex string) (*OrderSigner, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}
	return &OrderSigner{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// Address returns the signer's identity.
func (s *OrderSigner) Address() common.Address {
	return s.address
}

// SignOrder signs the order's authorization hash and returns the 65-byte
// signature (r || s || v) with v normalized to {27,28}.
func (s *OrderSigner) SignOrder(order domain.OffchainOrder) ([]byte, error) {
	digest, err := OrderDigest(order)
	if err != nil {
		return nil, err
	}
	hash := AuthorizationHash(digest)

	sig, err := ethcrypto.Sign(hash, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: sign order: %w", err)
	}

	// go-ethereum returns v in {0,1}; wallets conventionally emit {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}
