// Command portkeyd hosts the tunneling daemon. Flag parsing and the
// event-to-stdout rendering below are a thin CLI driver; everything it
// does beyond argument handling is a plain read/write over the
// daemon's command and event channels.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/spf13/cobra"

	"github.com/portkey-dev/portkey/internal/config"
	"github.com/portkey-dev/portkey/internal/daemon"
	"github.com/portkey-dev/portkey/internal/identity"
	"github.com/portkey-dev/portkey/internal/logging"
)

func main() {
	root := &cobra.Command{
		Use:   "portkeyd",
		Short: "local-first peer-to-peer TCP tunneling daemon",
	}

	var (
		identityPath string
		listenPort   int
		debug        bool
	)
	root.PersistentFlags().StringVar(&identityPath, "identity", "", "path to identity key file (default: OS config dir)")
	root.PersistentFlags().IntVar(&listenPort, "listen-port", 0, "QUIC listen port (0 = ephemeral)")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable verbose logging")

	loadConfig := func() config.Config {
		cfg := config.Default()
		if identityPath != "" {
			cfg = cfg.WithIdentityPath(identityPath)
		}
		if listenPort != 0 {
			cfg = cfg.WithListenPort(listenPort)
		}
		return cfg.WithDebug(debug)
	}

	root.AddCommand(idCommand(loadConfig))
	root.AddCommand(shareCommand(loadConfig))
	root.AddCommand(connectCommand(loadConfig))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func idCommand(loadConfig func() config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "id",
		Short: "print this node's peer link",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			id, err := identity.LoadOrGenerate(cfg.IdentityPath)
			if err != nil {
				return err
			}
			fmt.Println(id.Link())
			return nil
		},
	}
}

func shareCommand(loadConfig func() config.Config) *cobra.Command {
	var (
		port        int
		secretsPath string
		autoApprove bool
	)
	cmd := &cobra.Command{
		Use:   "share",
		Short: "advertise a locally bound TCP port to the network",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(loadConfig(), func(d *daemon.Daemon) {
				d.Commands() <- daemon.Command{
					Kind:        daemon.CmdShare,
					Port:        port,
					SecretsPath: secretsPath,
					AutoApprove: autoApprove,
				}
			})
		},
	}
	cmd.Flags().IntVar(&port, "port", 3000, "local TCP port to share")
	cmd.Flags().StringVar(&secretsPath, "secrets", "", "optional env-style secrets file to expose")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "bypass the per-connection approval gate")
	return cmd
}

func connectCommand(loadConfig func() config.Config) *cobra.Command {
	var (
		localPort int
		bindAddr  string
	)
	cmd := &cobra.Command{
		Use:   "connect <link>",
		Short: "expose a remote shared port on a local listener",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			link, remotePort := identity.SplitLinkPort(args[0])
			return run(loadConfig(), func(d *daemon.Daemon) {
				d.Commands() <- daemon.Command{
					Kind:      daemon.CmdConnect,
					Link:      link,
					Port:      remotePort,
					LocalPort: localPort,
					BindAddr:  bindAddr,
				}
			})
		},
	}
	cmd.Flags().IntVar(&localPort, "local-port", 0, "local port to bind (default: remote port)")
	cmd.Flags().StringVar(&bindAddr, "bind", "127.0.0.1", "local address to bind")
	return cmd
}

// run constructs the daemon, issues the driver's initial command, and
// renders events to stdout until an interrupt or a Shutdown event.
func run(cfg config.Config, issue func(*daemon.Daemon)) error {
	logger, err := logging.New(cfg.Debug)
	if err != nil {
		return err
	}
	defer logger.Sync()
	log := logging.Named(logger, "cli")

	id, err := identity.LoadOrGenerate(cfg.IdentityPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := daemon.New(ctx, cfg, id, logger)
	if err != nil {
		return err
	}

	go d.Run(ctx)
	issue(d)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-sigCh:
			d.Commands() <- daemon.Command{Kind: daemon.CmdShutdown}
		case evt, ok := <-d.Events():
			if !ok {
				return nil
			}
			renderEvent(log, evt)
			if evt.Kind == daemon.EvtShutdown {
				return nil
			}
		}
	}
}

func renderEvent(log interface{ Infow(string, ...interface{}) }, evt daemon.Event) {
	switch evt.Kind {
	case daemon.EvtReady:
		log.Infow("ready", "link", evt.Link)
	case daemon.EvtListening:
		log.Infow("listening", "address", evt.Address)
	case daemon.EvtPeerConnected:
		log.Infow("peer connected", "peer", shortPeer(evt.PeerID))
	case daemon.EvtPeerDisconnected:
		log.Infow("peer disconnected", "peer", shortPeer(evt.PeerID))
	case daemon.EvtTunnelEstablished:
		log.Infow("tunnel established", "peer", shortPeer(evt.PeerID), "port", evt.Port)
	case daemon.EvtIncomingConnectionRequest:
		log.Infow("incoming connection request, approve with ApproveConnection", "peer", shortPeer(evt.PeerID))
	case daemon.EvtSecretsReceived:
		log.Infow("secrets served", "peer", shortPeer(evt.PeerID), "count", evt.Count)
	case daemon.EvtStatsUpdate:
		log.Infow("stats", "sent", evt.BytesSent, "received", evt.BytesReceived, "active", evt.ActiveConnections)
	case daemon.EvtError:
		log.Infow("error", "message", evt.Message)
	case daemon.EvtShutdown:
		log.Infow("shutdown")
	}
}

func shortPeer(p peer.ID) string {
	s := p.String()
	if len(s) > 12 {
		return s[:12]
	}
	return s
}
