package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptKey("0x"+testKeyHex, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	require.Equal(t, testKeyHex, got)
}

func TestDecryptWrongPassword(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "hunter2")
	require.NoError(t, err)

	_, err = DecryptKey(blob, "wrong")
	require.Error(t, err)
}

func TestEncryptRejectsBadKey(t *testing.T) {
	_, err := EncryptKey("not-hex", "hunter2")
	require.Error(t, err)

	_, err = EncryptKey(testKeyHex[:10], "hunter2")
	require.Error(t, err)

	_, err = EncryptKey(testKeyHex, "")
	require.Error(t, err)
}

func TestLoadAuthorityKeyRawPrecedence(t *testing.T) {
	got, err := LoadAuthorityKey(KeyConfig{RawPrivateKey: "0x" + testKeyHex, EncryptedKeyPath: "/nonexistent"})
	require.NoError(t, err)
	require.Equal(t, testKeyHex, got)
}

func TestLoadAuthorityKeyFromFile(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "hunter2")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "authority.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err := LoadAuthorityKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "hunter2"})
	require.NoError(t, err)
	require.Equal(t, testKeyHex, got)
}

func TestLoadAuthorityKeyNoSource(t *testing.T) {
	_, err := LoadAuthorityKey(KeyConfig{})
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "no authority key source"))
}
