// Package transport dispatches listen/connect calls to one of the pluggable
// tunnel implementations by name, so the rest of the program never calls a
// concrete transport's constructor directly (it uses internal/tunnel only for
// the shared Tunnel/Listener/Connector interfaces).
package transport

import (
	"fmt"
	"net/url"
	"time"

	"meshtun/internal/conf"
	"meshtun/internal/tunnel"
	"meshtun/internal/tunnel/kcp"
)

// Listen binds a Listener for the named transport ("udp" or "kcp").
func Listen(name string, c *conf.Conf) (tunnel.Listener, error) {
	switch name {
	case "udp", "":
		return tunnel.Listen(c.Listen.URL.Host)
	case "kcp":
		return kcp.Listen(c.Listen.URL.Host, c.Kcp)
	default:
		return nil, fmt.Errorf("transport: unsupported protocol %q", name)
	}
}

// Connect builds a Connector for the named transport ("udp" or "kcp").
func Connect(name string, c *conf.Conf) (tunnel.Connector, error) {
	switch name {
	case "udp", "":
		u := &url.URL{Scheme: "udp", Host: c.Connect.URL.Host}
		timeout := time.Duration(c.Connect.TimeoutSeconds) * time.Second
		conn := tunnel.NewConnector(u, timeout)
		conn.SetBindAddrs(c.Connect.BindAddrs)
		return conn, nil
	case "kcp":
		conn := kcp.NewConnector(c.Connect.URL.Host, c.Kcp)
		conn.SetBindAddrs(c.Connect.BindAddrs)
		return conn, nil
	default:
		return nil, fmt.Errorf("transport: unsupported protocol %q", name)
	}
}
