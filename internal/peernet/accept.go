package peernet

import (
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
)

// Incoming pairs an accepted inbound substream with the peer that
// opened it.
type Incoming struct {
	Peer   peer.ID
	Stream network.Stream
}

// AcceptQueue is a lazy, restartable sequence of inbound substreams for
// one protocol identifier. At most one AcceptQueue may exist per
// identifier on a given Network; a second Accept call for the same
// identifier is a programming error and returns an error rather than a
// second queue racing the stream handler.
type AcceptQueue struct {
	protocolID protocol.ID
	ch         chan Incoming
}

// Chan exposes the queue for use in a select statement.
func (q *AcceptQueue) Chan() <-chan Incoming { return q.ch }

func newAcceptQueue(id protocol.ID) *AcceptQueue {
	return &AcceptQueue{protocolID: id, ch: make(chan Incoming, 32)}
}

// deliver is called from the libp2p stream handler goroutine; it never
// blocks indefinitely. A full queue drops the oldest pending substream
// rather than stall the host's own dispatch goroutine.
func (q *AcceptQueue) deliver(pid peer.ID, s network.Stream) {
	select {
	case q.ch <- Incoming{Peer: pid, Stream: s}:
	default:
		select {
		case old := <-q.ch:
			_ = old.Stream.Reset()
		default:
		}
		select {
		case q.ch <- Incoming{Peer: pid, Stream: s}:
		default:
			_ = s.Reset()
		}
	}
}
