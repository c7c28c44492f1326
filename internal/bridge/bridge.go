// Package bridge implements the verbatim bidirectional byte pump that
// glues a local TCP socket to a remote logical substream.
package bridge

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync/atomic"

	"github.com/libp2p/go-libp2p/core/network"

	"github.com/portkey-dev/portkey/internal/perr"
	"github.com/portkey-dev/portkey/internal/protocol"
)

// Stats holds the daemon's shared traffic counters. Fields are only
// ever touched through atomic ops, never under a lock, so directions
// can race freely during I/O. Convention: bytes flowing from the local
// TCP side into the substream (outbound to the remote peer) count as
// Sent; bytes flowing from the substream to the local TCP side
// (inbound from the remote peer) count as Received. This holds for
// both the sharer's approval flow and the connector's local-accept
// flow, since both go through the same pump function below.
type Stats struct {
	BytesSent         atomic.Uint64
	BytesReceived     atomic.Uint64
	ActiveConnections atomic.Int64
}

// Bridge dials 127.0.0.1:localPort and pumps bytes between it and s
// until either direction terminates, then returns. No stats are kept.
func Bridge(ctx context.Context, s network.Stream, localPort int) error {
	conn, err := dialLocal(ctx, localPort)
	if err != nil {
		return err
	}
	return pump(ctx, conn, s, nil)
}

// BridgeWithStats dials 127.0.0.1:localPort and pumps bytes between it
// and s, atomically accounting bytes per Stats' convention.
func BridgeWithStats(ctx context.Context, s network.Stream, localPort int, stats *Stats) error {
	conn, err := dialLocal(ctx, localPort)
	if err != nil {
		return err
	}
	return pump(ctx, conn, s, stats)
}

// PumpConn bridges an already-open local connection (the connector's
// accepted client socket) to s, without dialing. Used by the connect
// flow, which already holds the TCP connection from its own Accept.
func PumpConn(ctx context.Context, conn net.Conn, s network.Stream, stats *Stats) error {
	return pump(ctx, conn, s, stats)
}

func dialLocal(ctx context.Context, localPort int) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("127.0.0.1:%d", localPort))
	if err != nil {
		return nil, perr.Wrap(perr.ProxyError, "dial local target", err)
	}
	return conn, nil
}

func pump(ctx context.Context, conn net.Conn, s network.Stream, stats *Stats) error {
	defer conn.Close()
	defer s.Close()

	// Each direction runs on its own goroutine and reports onto a
	// shared, buffered channel. The bridge returns as soon as the
	// FIRST of the two (or ctx) is ready; it does not wait for the
	// other loop, which is left to unblock on its own once the defers
	// above close both endpoints.
	done := make(chan error, 2)
	go func() {
		// conn -> stream: outbound to the remote peer.
		n, err := copyBuf(s, conn)
		addSent(stats, n)
		done <- closeErr(err)
	}()
	go func() {
		// stream -> conn: inbound from the remote peer.
		n, err := copyBuf(conn, s)
		addReceived(stats, n)
		done <- closeErr(err)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// copyBuf mirrors io.Copy but with a fixed 8 KiB buffer, rather than
// io.Copy's larger default.
func copyBuf(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, protocol.BridgeBufferBytes)
	return io.CopyBuffer(dst, src, buf)
}

func closeErr(err error) error {
	if err == nil || err == io.EOF {
		return nil
	}
	return err
}

func addSent(stats *Stats, n int64) {
	if stats != nil && n > 0 {
		stats.BytesSent.Add(uint64(n))
	}
}

func addReceived(stats *Stats, n int64) {
	if stats != nil && n > 0 {
		stats.BytesReceived.Add(uint64(n))
	}
}
