package conf

import (
	"fmt"
	"net/url"
)

// Connect configures the connector role: the remote tunnel address, the
// optional local bind addresses to fan out the handshake over, and the
// handshake deadline.
type Connect struct {
	Addr           string   `yaml:"addr"`
	BindAddrs      []string `yaml:"bind_addrs"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`

	URL *url.URL `yaml:"-"`
}

func (c *Connect) setDefaults() {
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 3
	}
}

func (c *Connect) validate() []error {
	var errors []error

	u, err := url.Parse(c.Addr)
	if err != nil {
		errors = append(errors, fmt.Errorf("connect.addr: invalid URL %q: %w", c.Addr, err))
	} else if u.Scheme != "udp" {
		errors = append(errors, fmt.Errorf("connect.addr: unsupported scheme %q, want \"udp\"", u.Scheme))
	} else if u.Host == "" {
		errors = append(errors, fmt.Errorf("connect.addr: missing host:port"))
	} else {
		c.URL = u
	}

	if c.TimeoutSeconds <= 0 {
		errors = append(errors, fmt.Errorf("connect.timeout_seconds must be positive"))
	}

	return errors
}
