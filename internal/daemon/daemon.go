// Package daemon implements the Daemon Orchestrator: the single
// control loop that wires commands, incoming substreams, the local TCP
// accept loop, approval gating, and traffic statistics together around
// one Peer Network.
package daemon

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"go.uber.org/zap"

	"github.com/portkey-dev/portkey/internal/bridge"
	"github.com/portkey-dev/portkey/internal/config"
	"github.com/portkey-dev/portkey/internal/identity"
	"github.com/portkey-dev/portkey/internal/peernet"
	"github.com/portkey-dev/portkey/internal/perr"
	"github.com/portkey-dev/portkey/internal/protocol"
	"github.com/portkey-dev/portkey/internal/secrets"
)

// Daemon is the orchestrator: one Peer Network, one command channel
// in, one event channel out, one pending-approval table, one
// share-state, one connect-state, and one shared stats block.
type Daemon struct {
	log *zap.SugaredLogger

	id  *identity.Identity
	net *peernet.Network

	cmdCh chan Command
	evtCh chan Event

	tunnelAccept  *peernet.AcceptQueue
	secretsAccept *peernet.AcceptQueue

	approvalMu sync.Mutex
	approvals  map[string]chan bool

	share   *shareState
	connect *connectState

	stats bridge.Stats

	running bool
}

// New constructs a Daemon around a freshly built Peer Network.
// Initialization errors here are fatal to the caller.
func New(ctx context.Context, cfg config.Config, id *identity.Identity, log *zap.SugaredLogger) (*Daemon, error) {
	n, err := peernet.New(ctx, cfg, id, log.Named("peernet"))
	if err != nil {
		return nil, err
	}
	if _, err := n.StartListening(); err != nil {
		n.Shutdown()
		return nil, err
	}

	tunnelQ, err := n.Accept(protocol.Tunnel)
	if err != nil {
		n.Shutdown()
		return nil, err
	}
	secretsQ, err := n.Accept(protocol.Secrets)
	if err != nil {
		n.Shutdown()
		return nil, err
	}

	return &Daemon{
		log:           log.Named("daemon"),
		id:            id,
		net:           n,
		cmdCh:         make(chan Command, 16),
		evtCh:         make(chan Event, 64),
		tunnelAccept:  tunnelQ,
		secretsAccept: secretsQ,
		approvals:     map[string]chan bool{},
		running:       true,
	}, nil
}

// Commands returns the channel a driver sends Command values on.
func (d *Daemon) Commands() chan<- Command { return d.cmdCh }

// Events returns the channel a driver receives Event values from.
func (d *Daemon) Events() <-chan Event { return d.evtCh }

func (d *Daemon) emit(e Event) {
	select {
	case d.evtCh <- e:
	default:
		d.log.Warnw("event dropped, channel full", "kind", e.Kind)
	}
}

// Run is the control loop: a single goroutine selecting over every
// ready source (commands, inbound substreams, the local TCP accept
// loop, network lifecycle events, and the stats ticker) and parking
// when none is ready. It returns once a Shutdown command has been
// processed.
func (d *Daemon) Run(ctx context.Context) {
	d.emit(Event{Kind: EvtReady, PeerID: d.id.PeerID(), Link: d.id.Link()})

	statsTicker := time.NewTicker(protocol.StatsTickMilli * time.Millisecond)
	defer statsTicker.Stop()

	var localAccept chan net.Conn

	for d.running {
		if d.connect != nil && localAccept == nil {
			localAccept = d.spawnLocalAccept(ctx, d.connect.listener)
		}
		if d.connect == nil {
			localAccept = nil
		}

		select {
		case <-ctx.Done():
			d.running = false

		case <-statsTicker.C:
			d.emit(Event{
				Kind:              EvtStatsUpdate,
				BytesSent:         d.stats.BytesSent.Load(),
				BytesReceived:     d.stats.BytesReceived.Load(),
				ActiveConnections: d.stats.ActiveConnections.Load(),
			})

		case cmd := <-d.cmdCh:
			d.handleCommand(ctx, cmd)

		case in := <-d.tunnelAccept.Chan():
			d.handleInboundTunnel(ctx, in)

		case in := <-d.secretsAccept.Chan():
			d.handleInboundSecrets(in)

		case conn := <-localAccept:
			d.handleLocalAccept(ctx, conn)

		case evt := <-d.net.Events():
			d.translateNetworkEvent(evt)
		}
	}

	if d.connect != nil && d.connect.listener != nil {
		_ = d.connect.listener.Close()
	}
	_ = d.net.Shutdown()
	d.emit(Event{Kind: EvtShutdown})
}

func (d *Daemon) translateNetworkEvent(evt peernet.NetworkEvent) {
	switch evt.Kind {
	case peernet.Listening:
		addr := ""
		if evt.Addr != nil {
			addr = evt.Addr.String()
		}
		d.emit(Event{Kind: EvtListening, Address: addr})
	case peernet.PeerConnected:
		d.emit(Event{Kind: EvtPeerConnected, PeerID: evt.Peer})
	case peernet.PeerDisconnected:
		d.emit(Event{Kind: EvtPeerDisconnected, PeerID: evt.Peer})
	case peernet.HolePunchSucceeded:
		// No dedicated event kind for this transition; surface it as a
		// plain Message on the closest existing kind instead.
		d.emit(Event{Kind: EvtPeerConnected, PeerID: evt.Peer, Message: "hole-punch succeeded"})
	case peernet.Warning:
		d.log.Warnw("network warning", "message", evt.Message)
	}
}

func (d *Daemon) handleCommand(ctx context.Context, cmd Command) {
	switch cmd.Kind {
	case CmdShare:
		d.handleShare(cmd)
	case CmdConnect:
		d.handleConnect(ctx, cmd)
	case CmdApproveConnection:
		d.resolveApproval(cmd.PeerID, true)
	case CmdDenyConnection:
		d.resolveApproval(cmd.PeerID, false)
	case CmdShutdown:
		d.running = false
	case CmdStopSession:
		// No-op in current design, kept for wire compatibility.
	}
}

func (d *Daemon) handleShare(cmd Command) {
	st := &shareState{port: cmd.Port, autoApprove: cmd.AutoApprove}
	if cmd.SecretsPath != "" {
		priv, pub, err := secretsKeyPair(d.id)
		if err != nil {
			d.emit(Event{Kind: EvtError, Message: err.Error()})
		} else if vault, err := secrets.LoadEnvFile(cmd.SecretsPath, priv, pub); err != nil {
			d.emit(Event{Kind: EvtError, Message: err.Error()})
		} else {
			st.vault = vault
		}
	}
	d.share = st
}

func (d *Daemon) handleConnect(ctx context.Context, cmd Command) {
	var pid peer.ID
	var err error
	for attempt := 0; attempt < protocol.ConnectRetryAttempts; attempt++ {
		pid, err = d.net.Connect(ctx, cmd.Link)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(protocol.ConnectRetryIntervalMilli * time.Millisecond):
		}
	}
	if err != nil {
		d.emit(Event{Kind: EvtError, Message: err.Error()})
		return
	}

	localPort := cmd.LocalPort
	if localPort == 0 {
		localPort = cmd.Port
	}
	bindAddr := cmd.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	remotePort := cmd.Port
	if remotePort == 0 {
		remotePort = protocol.DefaultRemotePort
	}

	lst, err := net.Listen("tcp", bindAddrPort(bindAddr, localPort))
	if err != nil {
		d.emit(Event{Kind: EvtError, Message: perr.Wrap(perr.PortBindFailed, "bind local listener", err).Error()})
		return
	}

	d.connect = &connectState{peer: pid, remotePort: remotePort, listener: lst}
	d.emit(Event{Kind: EvtTunnelEstablished, PeerID: pid, Port: remotePort})
}

func (d *Daemon) resolveApproval(pid peer.ID, approved bool) {
	d.approvalMu.Lock()
	ch, ok := d.approvals[pid.String()]
	delete(d.approvals, pid.String())
	d.approvalMu.Unlock()
	if ok {
		ch <- approved
	}
}

func (d *Daemon) spawnLocalAccept(ctx context.Context, lst net.Listener) chan net.Conn {
	out := make(chan net.Conn, 8)
	go func() {
		for {
			conn, err := lst.Accept()
			if err != nil {
				return
			}
			select {
			case out <- conn:
			case <-ctx.Done():
				conn.Close()
				return
			}
		}
	}()
	return out
}
