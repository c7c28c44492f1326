package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portkey-dev/portkey/internal/cryptoutil"
	"github.com/portkey-dev/portkey/internal/perr"
)

func TestParseEnvBasicGrammar(t *testing.T) {
	content := "# a comment\n\nAPI_KEY=swordfish\nNAME=\"quoted value\"\nSINGLE='also quoted'\n"
	values, err := ParseEnv(content)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"API_KEY": "swordfish",
		"NAME":    "quoted value",
		"SINGLE":  "also quoted",
	}, values)
}

func TestParseEnvRejectsMissingEquals(t *testing.T) {
	_, err := ParseEnv("NOT_A_DECLARATION")
	require.Error(t, err)
	assert.True(t, perr.Is(err, perr.EnvParseError))
}

func TestParseEnvRejectsEmptyKey(t *testing.T) {
	_, err := ParseEnv("=value")
	require.Error(t, err)
	assert.True(t, perr.Is(err, perr.EnvParseError))
}

func TestToEnvFormatRoundTripsThroughParseEnv(t *testing.T) {
	original := map[string]string{
		"PLAIN":      "value",
		"WITH_SPACE": "has a space",
		"WITH_QUOTE": `has "a quote`,
	}
	v := New(original, [32]byte{}, [32]byte{})

	reparsed, err := ParseEnv(v.ToEnvFormat())
	require.NoError(t, err)
	assert.Equal(t, original, reparsed)
}

func TestEncryptForPeerDecryptFromPeerRoundTrip(t *testing.T) {
	sharerPriv, sharerPub, err := cryptoutil.NewX25519KeyPair()
	require.NoError(t, err)
	connectorPriv, connectorPub, err := cryptoutil.NewX25519KeyPair()
	require.NoError(t, err)

	sharer := New(map[string]string{"TOKEN": "abc123"}, sharerPriv, sharerPub)
	connector := New(nil, connectorPriv, connectorPub)

	resp, err := sharer.EncryptForPeer(connector.PublicKey()[:])
	require.NoError(t, err)
	assert.Equal(t, sharerPub, resp.SenderPublicKey)

	decrypted, err := connector.DecryptFromPeer(resp)
	require.NoError(t, err)
	assert.Equal(t, "abc123", decrypted["TOKEN"])
}

func TestEncryptForPeerRejectsShortKey(t *testing.T) {
	priv, pub, err := cryptoutil.NewX25519KeyPair()
	require.NoError(t, err)
	v := New(nil, priv, pub)

	_, err = v.EncryptForPeer([]byte{1, 2, 3})
	require.Error(t, err)
	assert.True(t, perr.Is(err, perr.InvalidPublicKey))
}

func TestVaultAccessors(t *testing.T) {
	v := New(nil, [32]byte{}, [32]byte{})
	assert.True(t, v.IsEmpty())

	v.Set("A", "1")
	assert.False(t, v.IsEmpty())
	assert.Equal(t, 1, v.Len())

	val, ok := v.Get("A")
	assert.True(t, ok)
	assert.Equal(t, "1", val)

	v.Remove("A")
	assert.True(t, v.IsEmpty())
}
