package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"meshtun/internal/conf"
	"meshtun/internal/flog"
	"meshtun/internal/transport"
	"meshtun/internal/tunnel"
)

var (
	listenConfigPath string
	listenAddr       string
	listenTransport  string
	listenLogLevel   string
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Bind a UDP tunnel listener and echo every received payload",
	RunE:  runListen,
}

func init() {
	listenCmd.Flags().StringVar(&listenConfigPath, "config", "", "path to a YAML config file (overrides the flags below)")
	listenCmd.Flags().StringVar(&listenAddr, "addr", "udp://0.0.0.0:5556", "bind address")
	listenCmd.Flags().StringVar(&listenTransport, "transport", "udp", "transport: udp or kcp")
	listenCmd.Flags().StringVar(&listenLogLevel, "log-level", "info", "debug, info, warn, error, or none")
}

func runListen(cmd *cobra.Command, args []string) error {
	c, err := buildListenConf()
	if err != nil {
		return err
	}
	c.Log.Apply()

	ln, err := transport.Listen(c.Transport, c)
	if err != nil {
		return err
	}
	defer ln.Close()
	flog.Infof("meshtun: listening on %s (%s)", ln.LocalAddr(), c.Transport)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go acceptLoop(ctx, ln)
	<-ctx.Done()
	return nil
}

func buildListenConf() (*conf.Conf, error) {
	if listenConfigPath != "" {
		return conf.LoadFromFile(listenConfigPath)
	}
	c := &conf.Conf{
		Role:      "listen",
		Transport: listenTransport,
		Log:       conf.Log{Level: listenLogLevel},
		Listen:    conf.Listen{Addr: listenAddr},
	}
	if err := c.Finalize(); err != nil {
		return nil, err
	}
	return c, nil
}

// acceptLoop hands every inbound tunnel an echo responder, mirroring the
// ping/pong seed scenario: whatever bytes arrive are sent straight back.
func acceptLoop(ctx context.Context, ln tunnel.Listener) {
	for {
		tun, err := ln.Accept(ctx)
		if err != nil {
			if werr := flog.WErr(err); werr != nil {
				flog.Warnf("meshtun: accept failed: %v", werr)
			}
			return
		}
		flog.Infof("meshtun: accepted %s <- %s", tun.Info().LocalAddr, tun.Info().RemoteAddr)
		go echoTunnel(ctx, tun)
	}
}

func echoTunnel(ctx context.Context, tun tunnel.Tunnel) {
	defer tun.Close()
	for {
		b, err := tun.Recv(ctx)
		if err != nil {
			if werr := flog.WErr(err); werr != nil {
				flog.Debugf("meshtun: tunnel %s closed: %v", tun.Info().RemoteAddr, werr)
			}
			return
		}
		if err := tun.Send(ctx, b); err != nil {
			flog.Warnf("meshtun: echo to %s failed: %v", tun.Info().RemoteAddr, err)
			return
		}
	}
}
