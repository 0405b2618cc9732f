package crypto

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// RecoverFunc recovers the signer identity from a 32-byte message hash and a
// 65-byte signature. Injected so the authorizer never depends on a concrete
// curve implementation.
type RecoverFunc func(messageHash, signature []byte) (common.Address, error)

// EthereumRecover is the default RecoverFunc, backed by go-ethereum's
// secp256k1 public-key recovery. It accepts signatures with a recovery byte
// in either {0,1} or {27,28}.
func EthereumRecover(messageHash, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, fmt.Errorf("crypto: signature must be 65 bytes, got %d", len(signature))
	}
	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(messageHash, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: recover signer: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// Authorizer verifies that an off-chain order was signed by the single
// configured trusted authority.
//
// Replay caution: the authorizer keeps no nonce and no consumed-order set. A
// valid signature authorizes the literal order tuple and nothing more, so the
// same signature can settle repeatedly for as long as the seller still owns
// the referenced asset. Callers wanting single-use authorizations must layer
// their own consumption tracking on top.
type Authorizer struct {
	mu        sync.RWMutex
	authority common.Address
	recoverFn RecoverFunc
}

// NewAuthorizer creates an Authorizer trusting the given authority. A nil
// recover falls back to EthereumRecover.
func NewAuthorizer(authority common.Address, recoverFn RecoverFunc) *Authorizer {
	if recoverFn == nil {
		recoverFn = EthereumRecover
	}
	return &Authorizer{authority: authority, recoverFn: recoverFn}
}

// Authority returns the currently trusted signer.
func (a *Authorizer) Authority() common.Address {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.authority
}

// SetAuthority rotates the trusted signer. Only the current authority may
// rotate; no other party can change it.
func (a *Authorizer) SetAuthority(caller, next common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if caller != a.authority {
		return fmt.Errorf("crypto: caller %s is not the authority: %w", caller.Hex(), domain.ErrUnauthorized)
	}
	a.authority = next
	return nil
}

// Authorize verifies the order's signature. It returns nil when the recovered
// signer is the trusted authority, and an error wrapping
// domain.ErrSignatureInvalid otherwise.
func (a *Authorizer) Authorize(order domain.OffchainOrder) error {
	digest, err := OrderDigest(order)
	if err != nil {
		return err
	}
	hash := AuthorizationHash(digest)

	signer, err := a.recoverFn(hash, order.Signature)
	if err != nil {
		return fmt.Errorf("crypto: %v: %w", err, domain.ErrSignatureInvalid)
	}

	if signer != a.Authority() {
		return fmt.Errorf("crypto: recovered signer %s is not the authority: %w", signer.Hex(), domain.ErrSignatureInvalid)
	}
	return nil
}
