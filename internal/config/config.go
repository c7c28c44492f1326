// Package config loads the daemon's on-disk TOML configuration.
// It defines the shape, its defaults, and Load/Save over a given path;
// wiring it into flags is a CLI-layer concern.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/portkey-dev/portkey/internal/perr"
)

// Config mirrors the daemon's tunable surface: identity location,
// listen port, discovery/relay toggles, bootstrap peers, and limits.
type Config struct {
	IdentityPath          string   `toml:"identity_path"`
	ListenPort            int      `toml:"listen_port"`
	EnableMDNS            bool     `toml:"enable_mdns"`
	EnableRelay           bool     `toml:"enable_relay"`
	BootstrapPeers        []string `toml:"bootstrap_peers"`
	RendezvousServer      string   `toml:"rendezvous_server"`
	MaxConnections        int      `toml:"max_connections"`
	ConnectionTimeoutSecs int      `toml:"connection_timeout_secs"`
	Debug                 bool     `toml:"debug"`
}

// Default bootstrap peers, used only when the config file does not
// list any of its own: two well-known libp2p bootstrap multiaddresses
// that the Peer Network dials once at startup.
var defaultBootstrapPeers = []string{
	"/dnsaddr/bootstrap.libp2p.io/p2p/QmNnooDu7bfjPFoTZYxMNLWUQJyrVwtbZg5gBMjTezGAJN",
	"/dnsaddr/bootstrap.libp2p.io/p2p/QmQCU2EcMqAqQPR2i9bChDtGNJchTbq5TbXJJ16u19uLTa",
}

// Default returns the daemon's baseline configuration.
func Default() Config {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return Config{
		IdentityPath:          filepath.Join(dir, "portkey", "identity.key"),
		ListenPort:            0,
		EnableMDNS:            true,
		EnableRelay:           true,
		BootstrapPeers:        append([]string(nil), defaultBootstrapPeers...),
		RendezvousServer:      "",
		MaxConnections:        64,
		ConnectionTimeoutSecs: 30,
		Debug:                 false,
	}
}

// ConnectionTimeout returns ConnectionTimeoutSecs as a time.Duration.
func (c Config) ConnectionTimeout() time.Duration {
	return time.Duration(c.ConnectionTimeoutSecs) * time.Second
}

// WithListenPort, WithIdentityPath, ... form a builder chain over the
// value receiver, letting a CLI layer compose overrides onto Default()
// without mutating a shared config.
func (c Config) WithListenPort(port int) Config             { c.ListenPort = port; return c }
func (c Config) WithIdentityPath(path string) Config        { c.IdentityPath = path; return c }
func (c Config) WithEnableMDNS(enabled bool) Config         { c.EnableMDNS = enabled; return c }
func (c Config) WithEnableRelay(enabled bool) Config        { c.EnableRelay = enabled; return c }
func (c Config) WithBootstrapPeers(peers []string) Config   { c.BootstrapPeers = peers; return c }
func (c Config) WithRendezvousServer(addr string) Config    { c.RendezvousServer = addr; return c }
func (c Config) WithMaxConnections(n int) Config            { c.MaxConnections = n; return c }
func (c Config) WithDebug(debug bool) Config                { c.Debug = debug; return c }

// Load reads and decodes a TOML config file, filling any field the file
// omits from Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, perr.Wrap(perr.ConfigError, "decode config file "+path, err)
	}
	return cfg, nil
}

// Save writes cfg to path in TOML form, creating parent directories as
// needed.
func Save(cfg Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return perr.Wrap(perr.ConfigError, "create config directory", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return perr.Wrap(perr.ConfigError, "create config file "+path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return perr.Wrap(perr.ConfigError, "encode config file "+path, err)
	}
	return nil
}
