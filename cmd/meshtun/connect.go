package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"meshtun/internal/conf"
	"meshtun/internal/flog"
	"meshtun/internal/transport"
)

var (
	connectConfigPath string
	connectAddr       string
	connectTransport  string
	connectBindAddrs  []string
	connectLogLevel   string
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Dial a UDP tunnel and relay stdin lines to it, printing replies",
	RunE:  runConnect,
}

func init() {
	connectCmd.Flags().StringVar(&connectConfigPath, "config", "", "path to a YAML config file (overrides the flags below)")
	connectCmd.Flags().StringVar(&connectAddr, "addr", "", "remote address, e.g. udp://127.0.0.1:5556")
	connectCmd.Flags().StringVar(&connectTransport, "transport", "udp", "transport: udp or kcp")
	connectCmd.Flags().StringSliceVar(&connectBindAddrs, "bind", nil, "local bind address(es); repeatable")
	connectCmd.Flags().StringVar(&connectLogLevel, "log-level", "info", "debug, info, warn, error, or none")
}

func runConnect(cmd *cobra.Command, args []string) error {
	c, err := buildConnectConf()
	if err != nil {
		return err
	}
	c.Log.Apply()

	connector, err := transport.Connect(c.Transport, c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(c.Connect.TimeoutSeconds+2)*time.Second)
	defer cancel()
	tun, err := connector.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer tun.Close()
	flog.Infof("meshtun: connected %s -> %s", tun.Info().LocalAddr, tun.Info().RemoteAddr)

	go func() {
		for {
			b, err := tun.Recv(context.Background())
			if err != nil {
				return
			}
			fmt.Println(string(b))
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if err := tun.Send(context.Background(), scanner.Bytes()); err != nil {
			return fmt.Errorf("send: %w", err)
		}
	}
	return scanner.Err()
}

func buildConnectConf() (*conf.Conf, error) {
	if connectConfigPath != "" {
		return conf.LoadFromFile(connectConfigPath)
	}
	c := &conf.Conf{
		Role:      "connect",
		Transport: connectTransport,
		Log:       conf.Log{Level: connectLogLevel},
		Connect:   conf.Connect{Addr: connectAddr, BindAddrs: connectBindAddrs},
	}
	if err := c.Finalize(); err != nil {
		return nil, err
	}
	return c, nil
}
