// Package identity manages the daemon's long-lived signing keypair and
// the Peer ID derived from it.
package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/portkey-dev/portkey/internal/perr"
	"github.com/portkey-dev/portkey/internal/protocol"
)

// Identity wraps the Ed25519 keypair that a Peer ID is bound to.
type Identity struct {
	priv   crypto.PrivKey
	pub    crypto.PubKey
	peerID peer.ID
}

// Generate creates a fresh Ed25519 keypair without touching disk.
func Generate() (*Identity, error) {
	priv, pub, err := crypto.GenerateEd25519Key(nil)
	if err != nil {
		return nil, perr.Wrap(perr.ConfigError, "generate ed25519 keypair", err)
	}
	pid, err := peer.IDFromPublicKey(pub)
	if err != nil {
		return nil, perr.Wrap(perr.ConfigError, "derive peer id", err)
	}
	return &Identity{priv: priv, pub: pub, peerID: pid}, nil
}

// LoadOrGenerate decodes the protobuf-encoded keypair at path, or
// generates and persists a fresh one if the file does not exist. An
// existing file that fails to decode is a ConfigError, not silently
// replaced.
func LoadOrGenerate(path string) (*Identity, error) {
	b, err := os.ReadFile(path)
	if err == nil {
		priv, err := crypto.UnmarshalPrivateKey(b)
		if err != nil {
			return nil, perr.Wrap(perr.ConfigError, "decode identity file "+path, err)
		}
		pub := priv.GetPublic()
		pid, err := peer.IDFromPublicKey(pub)
		if err != nil {
			return nil, perr.Wrap(perr.ConfigError, "derive peer id", err)
		}
		return &Identity{priv: priv, pub: pub, peerID: pid}, nil
	}
	if !os.IsNotExist(err) {
		return nil, perr.Wrap(perr.ConfigError, "read identity file "+path, err)
	}

	id, err := Generate()
	if err != nil {
		return nil, err
	}
	if err := id.Save(path); err != nil {
		return nil, err
	}
	return id, nil
}

// Save persists the identity to path in libp2p's portable protobuf
// keypair encoding, creating parent directories and restricting
// permissions to the owner where the platform supports it.
func (id *Identity) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return perr.Wrap(perr.ConfigError, "create identity directory", err)
	}
	b, err := crypto.MarshalPrivateKey(id.priv)
	if err != nil {
		return perr.Wrap(perr.ConfigError, "encode identity", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return perr.Wrap(perr.ConfigError, "write identity file "+path, err)
	}
	// os.WriteFile honors the mode on POSIX only; Windows has no matching
	// owner-only bit and the write above succeeds regardless.
	if runtime.GOOS != "windows" {
		_ = os.Chmod(path, 0o600)
	}
	return nil
}

// PrivateKey returns the libp2p private key, used to configure the host's
// transport identity.
func (id *Identity) PrivateKey() crypto.PrivKey { return id.priv }

// PeerID returns the deterministic multihash of the public key.
func (id *Identity) PeerID() peer.ID { return id.peerID }

// Link renders the peer link "<scheme>://<PeerID>".
func (id *Identity) Link() string {
	return fmt.Sprintf("%s://%s", protocol.Scheme, id.peerID.String())
}

// ParseLink extracts the Peer ID from a peer link. It fails with
// InvalidPeerId if the scheme prefix is missing or the tail does not
// decode as a Peer ID. Any "/<port>" suffix is the driver's concern,
// not this function's; callers that accept a suffix should strip it
// before calling ParseLink via SplitLinkPort.
func ParseLink(link string) (peer.ID, error) {
	prefix := protocol.Scheme + "://"
	if !strings.HasPrefix(link, prefix) {
		return "", perr.New(perr.InvalidPeerId, "missing \""+prefix+"\" prefix")
	}
	tail := strings.TrimPrefix(link, prefix)
	pid, err := peer.Decode(tail)
	if err != nil {
		return "", perr.Wrap(perr.InvalidPeerId, "decode peer id", err)
	}
	return pid, nil
}

// SplitLinkPort splits an optional trailing "/<port>" hint from a peer
// link, returning the bare link and the parsed port (or
// protocol.DefaultRemotePort if absent or non-numeric).
func SplitLinkPort(link string) (bareLink string, port int) {
	if idx := strings.LastIndex(link, "/"); idx >= 0 {
		suffix := link[idx+1:]
		if n, err := parsePositiveInt(suffix); err == nil {
			return link[:idx], n
		}
	}
	return link, protocol.DefaultRemotePort
}

func parsePositiveInt(s string) (int, error) {
	if s == "" {
		return 0, perr.New(perr.InvalidMessage, "empty port suffix")
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, perr.New(perr.InvalidMessage, "non-numeric port suffix")
		}
		n = n*10 + int(r-'0')
	}
	if n <= 0 || n > 65535 {
		return 0, perr.New(perr.InvalidMessage, "port out of range")
	}
	return n, nil
}
