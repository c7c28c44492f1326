package daemon

import (
	"net"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/portkey-dev/portkey/internal/secrets"
)

// Command is the inbound command-channel contract, §4.6.1.
type Command struct {
	Kind CommandKind

	// Share
	Port         int
	SecretsPath  string
	AutoApprove  bool

	// Connect
	Link      string
	LocalPort int
	BindAddr  string

	// ApproveConnection / DenyConnection
	PeerID peer.ID

	// StopSession
	SessionID string
}

type CommandKind int

const (
	CmdShare CommandKind = iota
	CmdConnect
	CmdApproveConnection
	CmdDenyConnection
	CmdShutdown
	CmdStopSession
)

// Event is the outbound event-channel contract, §6.
type Event struct {
	Kind EventKind

	PeerID  peer.ID
	Link    string
	Address string
	Port    int
	Count   int
	Message string

	BytesSent         uint64
	BytesReceived     uint64
	ActiveConnections int64
}

type EventKind int

const (
	EvtReady EventKind = iota
	EvtListening
	EvtPeerConnected
	EvtPeerDisconnected
	EvtTunnelEstablished
	EvtIncomingConnectionRequest
	EvtSecretsReceived
	EvtStatsUpdate
	EvtError
	EvtShutdown
)

// shareState records an active Share command, §4.6 "share-state record".
type shareState struct {
	port        int
	autoApprove bool
	vault       *secrets.Vault
}

// connectState records an active Connect command, §4.6 "connect-state
// record".
type connectState struct {
	peer       peer.ID
	remotePort int
	listener   net.Listener
}
