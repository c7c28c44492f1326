package daemon

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/portkey-dev/portkey/internal/bridge"
	"github.com/portkey-dev/portkey/internal/identity"
	"github.com/portkey-dev/portkey/internal/peernet"
	"github.com/portkey-dev/portkey/internal/protocol"
	"github.com/portkey-dev/portkey/internal/secrets"
)

// handleInboundTunnel implements the approval flow, §4.6.2.
func (d *Daemon) handleInboundTunnel(ctx context.Context, in peernet.Incoming) {
	if d.share == nil {
		d.log.Warnw("inbound tunnel substream with no active share", "peer", in.Peer)
		_ = in.Stream.Reset()
		return
	}

	if d.share.autoApprove {
		d.spawnBridge(ctx, in, d.share.port)
		return
	}

	key := in.Peer.String()
	reply := make(chan bool, 1)
	d.approvalMu.Lock()
	d.approvals[key] = reply
	d.approvalMu.Unlock()

	d.emit(Event{Kind: EvtIncomingConnectionRequest, PeerID: in.Peer})

	go func() {
		approved := false
		select {
		case approved = <-reply:
		case <-time.After(protocol.ApprovalTimeoutSeconds * time.Second):
			d.approvalMu.Lock()
			delete(d.approvals, key)
			d.approvalMu.Unlock()
		}

		if !approved {
			_ = in.Stream.Reset()
			return
		}
		d.stats.ActiveConnections.Add(1)
		if err := bridge.BridgeWithStats(ctx, in.Stream, d.share.port, &d.stats); err != nil {
			d.log.Debugw("bridge ended", "peer", in.Peer, "error", err)
		}
		d.stats.ActiveConnections.Add(-1)
	}()
}

func (d *Daemon) spawnBridge(ctx context.Context, in peernet.Incoming, port int) {
	d.stats.ActiveConnections.Add(1)
	go func() {
		defer d.stats.ActiveConnections.Add(-1)
		if err := bridge.BridgeWithStats(ctx, in.Stream, port, &d.stats); err != nil {
			d.log.Debugw("bridge ended", "peer", in.Peer, "error", err)
		}
	}()
}

// handleInboundSecrets implements the secrets flow, §4.6.3.
func (d *Daemon) handleInboundSecrets(in peernet.Incoming) {
	if d.share == nil || d.share.vault == nil {
		d.log.Debugw("inbound secrets substream with no vault configured", "peer", in.Peer)
		_ = in.Stream.Reset()
		return
	}
	vault := d.share.vault
	go func() {
		defer in.Stream.Close()
		var req secrets.Request
		if err := readFramed(in.Stream, &req); err != nil {
			d.log.Debugw("secrets request read failed", "peer", in.Peer, "error", err)
			return
		}
		resp, err := vault.EncryptForPeer(req.PublicKey[:])
		if err != nil {
			d.log.Debugw("secrets encrypt failed", "peer", in.Peer, "error", err)
			return
		}
		if err := writeFramed(in.Stream, resp); err != nil {
			d.log.Debugw("secrets response write failed", "peer", in.Peer, "error", err)
			return
		}
		d.emit(Event{Kind: EvtSecretsReceived, PeerID: in.Peer, Count: vault.Len()})
	}()
}

// handleLocalAccept implements the connect flow, §4.6.4.
func (d *Daemon) handleLocalAccept(ctx context.Context, conn net.Conn) {
	cs := d.connect
	go func() {
		defer conn.Close()
		opener := d.net.StreamControl()
		s, err := opener.OpenStream(ctx, cs.peer, protocol.Tunnel)
		if err != nil {
			d.log.Debugw("open tunnel stream failed", "peer", cs.peer, "error", err)
			return
		}
		d.stats.ActiveConnections.Add(1)
		defer d.stats.ActiveConnections.Add(-1)
		if err := bridge.PumpConn(ctx, conn, s, &d.stats); err != nil {
			d.log.Debugw("connect bridge ended", "peer", cs.peer, "error", err)
		}
	}()
}

func bindAddrPort(addr string, port int) string {
	return fmt.Sprintf("%s:%d", addr, port)
}

// secretsKeyPair loads or generates the vault's persistent X25519
// keypair. The account name ties the stored secret to this node's
// identity so multiple local identities don't collide in one keyring.
// The fallback file name is relative, so it is resolved against the
// working directory, and the peer ID string serves as its passphrase.
func secretsKeyPair(id *identity.Identity) (priv, pub [32]byte, err error) {
	account := id.PeerID().String()
	fallback := "vault-" + account + ".key"
	return secrets.LoadOrGenerateKeyPair(account, fallback, account)
}
