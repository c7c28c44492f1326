package peernet

import (
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// EventKind enumerates the lifecycle notifications a Network surfaces
// on its Events() channel, one entry per row of the internal event
// table this package implements.
type EventKind int

const (
	Listening EventKind = iota
	PeerConnected
	PeerDisconnected
	HolePunchSucceeded
	Warning
)

// NetworkEvent is the Peer Network's lifecycle notification. Only the
// fields relevant to Kind are populated.
type NetworkEvent struct {
	Kind    EventKind
	Peer    peer.ID
	Addr    multiaddr.Multiaddr
	Message string
}
