package daemon

import (
	"context"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/portkey-dev/portkey/internal/config"
	"github.com/portkey-dev/portkey/internal/identity"
)

func integrationConfig() config.Config {
	cfg := config.Default()
	cfg.EnableMDNS = false
	cfg.EnableRelay = false
	cfg.ListenPort = 0
	cfg.BootstrapPeers = nil
	return cfg
}

func newTestEchoServer(t *testing.T) int {
	t.Helper()
	lst, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { lst.Close() })

	go func() {
		for {
			conn, err := lst.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				io.Copy(conn, conn)
			}()
		}
	}()
	return lst.Addr().(*net.TCPAddr).Port
}

func freeLocalPort(t *testing.T) int {
	t.Helper()
	lst, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := lst.Addr().(*net.TCPAddr).Port
	require.NoError(t, lst.Close())
	return port
}

func waitForEvent(t *testing.T, ch <-chan Event, kind EventKind, timeout time.Duration) Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case evt := <-ch:
			if evt.Kind == kind {
				return evt
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event kind %v", kind)
		}
	}
}

func startPair(t *testing.T, ctx context.Context) (sharer, connector *Daemon, sharerID *identity.Identity) {
	t.Helper()
	log := zap.NewNop().Sugar()

	sharerID, err := identity.Generate()
	require.NoError(t, err)
	connectorID, err := identity.Generate()
	require.NoError(t, err)

	sharer, err = New(ctx, integrationConfig(), sharerID, log)
	require.NoError(t, err)

	connector, err = New(ctx, integrationConfig(), connectorID, log)
	require.NoError(t, err)
	// Both Daemons tear down their Network when ctx (owned by the caller,
	// cancelled via the test's own defer) is cancelled; see Run's exit path.

	connector.net.Host().Peerstore().AddAddrs(sharerID.PeerID(), sharer.net.Host().Addrs(), peerstore.PermanentAddrTTL)

	go sharer.Run(ctx)
	go connector.Run(ctx)

	waitForEvent(t, sharer.Events(), EvtReady, 5*time.Second)
	waitForEvent(t, connector.Events(), EvtReady, 5*time.Second)

	return sharer, connector, sharerID
}

// TestEchoTunnelScenario checks that a shared echo server is reachable
// through a tunnel when the connection is auto-approved.
func TestEchoTunnelScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping real QUIC dial in -short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	echoPort := newTestEchoServer(t)
	sharer, connector, sharerID := startPair(t, ctx)

	sharer.Commands() <- Command{Kind: CmdShare, Port: echoPort, AutoApprove: true}

	localPort := freeLocalPort(t)
	connector.Commands() <- Command{
		Kind:      CmdConnect,
		Link:      sharerID.Link(),
		Port:      echoPort,
		LocalPort: localPort,
		BindAddr:  "127.0.0.1",
	}
	waitForEvent(t, connector.Events(), EvtTunnelEstablished, 15*time.Second)

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", localPort))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("Hello"))
	require.NoError(t, err)

	buf := make([]byte, 5)
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "Hello", string(buf))
}

// TestApprovalDenialScenario checks that a non-auto-approved inbound
// tunnel substream, once explicitly denied, never results in bridged
// traffic reaching the connector.
func TestApprovalDenialScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping real QUIC dial in -short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	echoPort := newTestEchoServer(t)
	sharer, connector, sharerID := startPair(t, ctx)

	sharer.Commands() <- Command{Kind: CmdShare, Port: echoPort, AutoApprove: false}

	localPort := freeLocalPort(t)
	connector.Commands() <- Command{
		Kind:      CmdConnect,
		Link:      sharerID.Link(),
		Port:      echoPort,
		LocalPort: localPort,
		BindAddr:  "127.0.0.1",
	}
	// TunnelEstablished only means "the local listener is up". The
	// tunnel *substream* is opened lazily on the first local TCP
	// connection, and that's what the approval gate actually guards.
	waitForEvent(t, connector.Events(), EvtTunnelEstablished, 15*time.Second)

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", localPort))
	require.NoError(t, err)
	defer conn.Close()

	req := waitForEvent(t, sharer.Events(), EvtIncomingConnectionRequest, 15*time.Second)
	sharer.Commands() <- Command{Kind: CmdDenyConnection, PeerID: req.PeerID}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 1)
	_, err = conn.Write([]byte("x"))
	require.NoError(t, err)
	_, err = conn.Read(buf)
	assert.Error(t, err, "a denied substream must be reset, not bridged")
}
