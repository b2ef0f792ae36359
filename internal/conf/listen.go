package conf

import (
	"fmt"
	"net/url"
)

// Listen configures the listener role: where to bind the shared UDP socket.
type Listen struct {
	Addr   string `yaml:"addr"`
	URL    *url.URL `yaml:"-"`
}

func (l *Listen) setDefaults() {
	if l.Addr == "" {
		l.Addr = "udp://0.0.0.0:5556"
	}
}

func (l *Listen) validate() []error {
	var errors []error

	u, err := url.Parse(l.Addr)
	if err != nil {
		errors = append(errors, fmt.Errorf("listen.addr: invalid URL %q: %w", l.Addr, err))
		return errors
	}
	if u.Scheme != "udp" {
		errors = append(errors, fmt.Errorf("listen.addr: unsupported scheme %q, want \"udp\"", u.Scheme))
		return errors
	}
	if u.Host == "" {
		errors = append(errors, fmt.Errorf("listen.addr: missing host:port"))
		return errors
	}
	l.URL = u

	return errors
}
