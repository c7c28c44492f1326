package secrets

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealUnsealPrivateKeyRoundTrip(t *testing.T) {
	var priv [32]byte
	copy(priv[:], []byte("0123456789abcdef0123456789abcde"))

	sealed, err := sealPrivateKey(priv, "correct horse battery staple")
	require.NoError(t, err)

	got, err := unsealPrivateKey(sealed, "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, priv, got)
}

func TestUnsealPrivateKeyFailsOnWrongPassphrase(t *testing.T) {
	var priv [32]byte
	copy(priv[:], []byte("0123456789abcdef0123456789abcde"))

	sealed, err := sealPrivateKey(priv, "correct horse battery staple")
	require.NoError(t, err)

	_, err = unsealPrivateKey(sealed, "wrong passphrase")
	require.Error(t, err)
}

// TestLoadOrGenerateKeyPairIsIdempotent exercises the full fallback
// path: in an environment without a usable OS keyring backend,
// LoadOrGenerateKeyPair must fall through to the sealed file and
// return the same keypair on a second call rather than minting a
// fresh one each time.
func TestLoadOrGenerateKeyPairIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	fallback := filepath.Join(dir, "vault.key")

	priv1, pub1, err := LoadOrGenerateKeyPair("test-account", fallback, "passphrase")
	require.NoError(t, err)

	priv2, pub2, err := LoadOrGenerateKeyPair("test-account", fallback, "passphrase")
	require.NoError(t, err)

	assert.Equal(t, priv1, priv2)
	assert.Equal(t, pub1, pub2)
}
