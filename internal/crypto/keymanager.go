package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Keyfile parameters. The iteration count follows the OWASP minimum for
// PBKDF2-HMAC-SHA256.
const (
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	keyfileVersion   = 1
)

// keyfile is the on-disk envelope for the authority's encrypted signing key:
// a PBKDF2-derived AES-256-GCM seal over the raw 32-byte key.
type keyfile struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeyConfig carries the information LoadAuthorityKey needs to resolve the
// authority's private key. Populate the fields from the wallet section of the
// engine configuration.
type KeyConfig struct {
	// RawPrivateKey is the hex-encoded key (with or without 0x prefix). If
	// non-empty it is returned directly.
	RawPrivateKey string

	// EncryptedKeyPath points at a JSON keyfile produced by EncryptKey.
	EncryptedKeyPath string

	// KeyPassword decrypts the file at EncryptedKeyPath.
	KeyPassword string
}

func sealCipher(password string, salt []byte) (cipher.AEAD, error) {
	derived := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("crypto: keyfile cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// EncryptKey seals a hex-encoded private key under a password and returns the
// keyfile JSON.
func EncryptKey(privateKeyHex, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}

	keyBytes, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: private key is not valid hex: %w", err)
	}
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("crypto: private key must be 32 bytes, got %d", len(keyBytes))
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: keyfile salt: %w", err)
	}
	gcm, err := sealCipher(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: keyfile nonce: %w", err)
	}

	return json.MarshalIndent(keyfile{
		Version:    keyfileVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, keyBytes, nil)),
	}, "", "  ")
}

// DecryptKey opens a keyfile produced by EncryptKey, returning the
// hex-encoded private key without 0x prefix.
func DecryptKey(encryptedJSON []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: password must not be empty")
	}

	var kf keyfile
	if err := json.Unmarshal(encryptedJSON, &kf); err != nil {
		return "", fmt.Errorf("crypto: keyfile parse: %w", err)
	}
	if kf.Version != keyfileVersion {
		return "", fmt.Errorf("crypto: keyfile version %d not supported", kf.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(kf.Salt)
	if err != nil {
		return "", fmt.Errorf("crypto: keyfile salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(kf.Nonce)
	if err != nil {
		return "", fmt.Errorf("crypto: keyfile nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(kf.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("crypto: keyfile ciphertext: %w", err)
	}

	gcm, err := sealCipher(password, salt)
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: keyfile open (wrong password?): %w", err)
	}
	return hex.EncodeToString(plaintext), nil
}

// LoadAuthorityKey resolves the authority's private key. A raw key takes
// precedence over an encrypted keyfile.
func LoadAuthorityKey(cfg KeyConfig) (string, error) {
	if cfg.RawPrivateKey != "" {
		k := strings.TrimPrefix(cfg.RawPrivateKey, "0x")
		if _, err := hex.DecodeString(k); err != nil {
			return "", fmt.Errorf("crypto: raw private key is not valid hex: %w", err)
		}
		return k, nil
	}

	if cfg.EncryptedKeyPath != "" {
		data, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return "", fmt.Errorf("crypto: reading keyfile: %w", err)
		}
		return DecryptKey(data, cfg.KeyPassword)
	}

	return "", errors.New("crypto: no authority key source configured (set raw key or encrypted keyfile path)")
}
