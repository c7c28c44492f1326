// Package protocol holds the wire-level constants shared by every
// component: protocol identifiers, the peer-link scheme, and framing
// limits.
package protocol

import "github.com/libp2p/go-libp2p/core/protocol"

const (
	// Scheme prefixes a peer link: "<Scheme>://<PeerID>".
	Scheme = "portkey"

	// DefaultRemotePort is used by a connector when a peer link carries
	// no "/<port>" suffix.
	DefaultRemotePort = 3000

	// SecretsMaxMessageBytes bounds a single length-prefixed secrets
	// frame. Larger declared lengths fail closed with StreamError.
	SecretsMaxMessageBytes = 10 * 1024 * 1024

	// ApprovalTimeoutSeconds is how long the daemon waits for a driver's
	// ApproveConnection/DenyConnection before treating a pending inbound
	// tunnel substream as denied.
	ApprovalTimeoutSeconds = 30

	// ConnectRetryAttempts and ConnectRetryIntervalMilli govern the Connect
	// command's dial-retry policy.
	ConnectRetryAttempts      = 20
	ConnectRetryIntervalMilli = 250

	// PingIntervalSeconds/PingTimeoutSeconds configure the liveness protocol.
	PingIntervalSeconds = 15
	PingTimeoutSeconds  = 10

	// StatsTickMilli is the interval of the daemon's StatsUpdate tick.
	StatsTickMilli = 100

	// BridgeBufferBytes is the read-buffer size used by the stream bridge's
	// copy loops.
	BridgeBufferBytes = 8 * 1024
)

// Tunnel and Secrets are the two substream protocol identifiers defined
// by this system. A substream's identifier is fixed at open time.
const (
	Tunnel  protocol.ID = "portkey/tunnel/1.0.0"
	Secrets protocol.ID = "portkey/secrets/1.0.0"
)
