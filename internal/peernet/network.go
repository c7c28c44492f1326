// Package peernet owns the QUIC-v1 libp2p host: transport, ping, LAN
// discovery, NAT traversal, and the substream multiplexer the rest of
// the daemon opens and accepts streams through. libp2p.New already
// starts its own identify service internally, so this package does
// not construct a second one.
package peernet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/event"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/libp2p/go-libp2p/p2p/protocol/ping"
	quic "github.com/libp2p/go-libp2p/p2p/transport/quic"
	"github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/portkey-dev/portkey/internal/config"
	"github.com/portkey-dev/portkey/internal/identity"
	"github.com/portkey-dev/portkey/internal/perr"
	portkeyproto "github.com/portkey-dev/portkey/internal/protocol"
)

// Network is the Peer Network described by this daemon: one libp2p
// host plus the bookkeeping (accept queues, event buffering) the
// Daemon Orchestrator's control loop multiplexes alongside its other
// ready sources.
type Network struct {
	log *zap.SugaredLogger

	host     host.Host
	pingServ *ping.PingService
	mdnsServ mdns.Service

	acceptMu sync.Mutex
	accepts  map[protocol.ID]*AcceptQueue

	events   chan NetworkEvent
	sub      event.Subscription
	pingOnce sync.Once
	cancel   context.CancelFunc
}

// New builds the identity, transport and protocol composite, and
// (best-effort, non-fatal) dials any configured bootstrap
// multiaddresses.
func New(ctx context.Context, cfg config.Config, id *identity.Identity, log *zap.SugaredLogger) (*Network, error) {
	var opts []libp2p.Option
	opts = append(opts,
		libp2p.Identity(id.PrivateKey()),
		libp2p.DefaultSecurity,
		libp2p.DefaultMuxers,
		libp2p.Transport(quic.NewTransport),
		libp2p.ListenAddrStrings(listenAddrStrings(cfg.ListenPort)...),
	)
	if cfg.EnableRelay {
		opts = append(opts, libp2p.EnableRelay(), libp2p.EnableHolePunching())
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, perr.Wrap(perr.NetworkInitialization, "construct libp2p host", err)
	}

	sub, err := h.EventBus().Subscribe([]interface{}{
		new(event.EvtPeerConnectednessChanged),
		new(event.EvtLocalAddressesUpdated),
		new(event.EvtNATDeviceTypeChanged),
	})
	if err != nil {
		h.Close()
		return nil, perr.Wrap(perr.NetworkInitialization, "subscribe event bus", err)
	}

	n := &Network{
		log:      log,
		host:     h,
		pingServ: ping.NewPingService(h),
		accepts:  map[protocol.ID]*AcceptQueue{},
		events:   make(chan NetworkEvent, 64),
		sub:      sub,
	}

	if cfg.EnableMDNS {
		n.mdnsServ = mdns.NewMdnsService(h, "portkey-mdns", &mdnsNotifee{h: h, log: log})
		if err := n.mdnsServ.Start(); err != nil {
			log.Warnw("mdns start failed", "error", err)
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	go n.pingLoop(loopCtx)
	go n.busLoop(loopCtx)

	for _, addr := range cfg.BootstrapPeers {
		if err := n.dialBootstrap(ctx, addr); err != nil {
			log.Warnw("bootstrap dial failed", "addr", addr, "error", err)
		}
	}

	return n, nil
}

type mdnsNotifee struct {
	h   host.Host
	log *zap.SugaredLogger
}

func (m *mdnsNotifee) HandlePeerFound(info peer.AddrInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.h.Connect(ctx, info); err != nil {
		m.log.Debugw("mdns connect failed", "peer", info.ID, "error", err)
	}
}

func listenAddrStrings(port int) []string {
	return []string{
		fmt.Sprintf("/ip4/0.0.0.0/udp/%d/quic-v1", port),
		fmt.Sprintf("/ip6/::/udp/%d/quic-v1", port),
	}
}

// StartListening returns the host's currently bound listen
// multiaddresses. The host is already listening by the time New
// returns (libp2p.New binds eagerly), so this mainly surfaces the
// Listening event and the resolved addresses for the caller to
// advertise.
func (n *Network) StartListening() ([]multiaddr.Multiaddr, error) {
	addrs := n.host.Addrs()
	if len(addrs) == 0 {
		return nil, perr.New(perr.NetworkInitialization, "no bound listen addresses")
	}
	for _, a := range addrs {
		n.emit(NetworkEvent{Kind: Listening, Addr: a})
	}
	return addrs, nil
}

func (n *Network) dialBootstrap(ctx context.Context, addrStr string) error {
	maddr, err := multiaddr.NewMultiaddr(addrStr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return err
	}
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return n.host.Connect(dialCtx, *info)
}

// Connect parses link, looks up any addresses already known for the
// peer (from the peerstore, populated by identify/mDNS/prior dials),
// and dials it. The caller (Daemon Orchestrator) owns the 20x/250ms
// retry policy; Connect itself attempts exactly once.
func (n *Network) Connect(ctx context.Context, link string) (peer.ID, error) {
	pid, err := identity.ParseLink(link)
	if err != nil {
		return "", err
	}
	addrs := n.host.Peerstore().Addrs(pid)
	info := peer.AddrInfo{ID: pid, Addrs: addrs}
	if err := n.host.Connect(ctx, info); err != nil {
		return "", perr.Wrap(perr.DialError, "connect to "+pid.String(), err)
	}
	return pid, nil
}

// StreamOpener is the clonable outbound-substream handle returned by
// StreamControl, letting multiple callers open substreams concurrently
// without sharing a mutable cursor into the host.
type StreamOpener struct {
	host host.Host
}

func (o StreamOpener) OpenStream(ctx context.Context, p peer.ID, id protocol.ID) (network.Stream, error) {
	s, err := o.host.NewStream(ctx, p, id)
	if err != nil {
		return nil, perr.Wrap(perr.StreamError, "open stream "+string(id), err)
	}
	return s, nil
}

func (n *Network) StreamControl() StreamOpener { return StreamOpener{host: n.host} }

// Accept registers (once) a lazy queue of inbound substreams for id. A
// second call for the same identifier fails; at most one acceptor may
// be registered per protocol identifier.
func (n *Network) Accept(id protocol.ID) (*AcceptQueue, error) {
	n.acceptMu.Lock()
	defer n.acceptMu.Unlock()
	if _, exists := n.accepts[id]; exists {
		return nil, perr.New(perr.ProtocolNegotiation, "acceptor already registered for "+string(id))
	}
	q := newAcceptQueue(id)
	n.accepts[id] = q
	n.host.SetStreamHandler(id, func(s network.Stream) {
		q.deliver(s.Conn().RemotePeer(), s)
	})
	return q, nil
}

// busLoop is the sole consumer of the libp2p event-bus subscription.
// It blocks on sub.Out() and translates each raw bus event into a
// NetworkEvent, so the control loop never has to poll for one: it
// just waits on Events() like any other channel.
func (n *Network) busLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-n.sub.Out():
			if !ok {
				return
			}
			n.handleBusEvent(evt)
		}
	}
}

func (n *Network) handleBusEvent(raw interface{}) {
	switch evt := raw.(type) {
	case event.EvtPeerConnectednessChanged:
		switch evt.Connectedness {
		case network.Connected:
			n.emit(NetworkEvent{Kind: PeerConnected, Peer: evt.Peer})
		case network.NotConnected:
			n.emit(NetworkEvent{Kind: PeerDisconnected, Peer: evt.Peer})
		}
	case event.EvtLocalAddressesUpdated:
		for _, a := range evt.Current {
			n.emit(NetworkEvent{Kind: Listening, Addr: a.Address})
		}
	case event.EvtNATDeviceTypeChanged:
		n.emit(NetworkEvent{Kind: HolePunchSucceeded, Message: evt.NatDeviceType.String()})
	}
}

func (n *Network) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(portkeyproto.PingIntervalSeconds * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, pid := range n.host.Network().Peers() {
				pingCtx, cancel := context.WithTimeout(ctx, portkeyproto.PingTimeoutSeconds*time.Second)
				res := <-n.pingServ.Ping(pingCtx, pid)
				cancel()
				if res.Error != nil {
					n.log.Debugw("ping failed", "peer", pid, "error", res.Error)
				}
			}
		}
	}
}

func (n *Network) emit(evt NetworkEvent) {
	select {
	case n.events <- evt:
	default:
		n.log.Warnw("network event dropped, events channel full", "kind", evt.Kind)
	}
}

// Events returns the Peer Network's lifecycle notification stream.
func (n *Network) Events() <-chan NetworkEvent { return n.events }

// Host exposes the underlying libp2p host for components (Stream
// Bridge, tests) that need direct access beyond this package's
// contract.
func (n *Network) Host() host.Host { return n.host }

// Shutdown tears down the host and its background loops.
func (n *Network) Shutdown() error {
	n.cancel()
	_ = n.sub.Close()
	if n.mdnsServ != nil {
		_ = n.mdnsServ.Close()
	}
	return n.host.Close()
}
