package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultHasSaneBaseline(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.EnableMDNS)
	assert.True(t, cfg.EnableRelay)
	assert.Equal(t, 64, cfg.MaxConnections)
	assert.NotEmpty(t, cfg.BootstrapPeers)
	assert.Equal(t, 30*time.Second, cfg.ConnectionTimeout())
}

func TestBuilderPatternComposesWithoutMutatingReceiver(t *testing.T) {
	base := Default()
	derived := base.WithListenPort(4242).WithDebug(true).WithMaxConnections(8)

	assert.Equal(t, 0, base.ListenPort, "builder methods must not mutate the receiver")
	assert.Equal(t, 4242, derived.ListenPort)
	assert.True(t, derived.Debug)
	assert.Equal(t, 8, derived.MaxConnections)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")

	original := Default().WithListenPort(9000).WithBootstrapPeers([]string{"/ip4/1.2.3.4/udp/9/quic-v1"})
	require.NoError(t, Save(original, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, original.ListenPort, loaded.ListenPort)
	assert.Equal(t, original.BootstrapPeers, loaded.BootstrapPeers)
}

func TestLoadFillsDefaultsForOmittedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("listen_port = 5555\n"), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5555, loaded.ListenPort)
	assert.True(t, loaded.EnableMDNS, "fields absent from the file should keep Default()'s value")
}
