package tunnel

import "net"

// Info is the self-describing record every tunnel carries upward:
// its transport tag and the URLs of both ends.
type Info struct {
	TunnelType string
	LocalAddr  string
	RemoteAddr string
}

// buildURL formats a net.Addr as a "udp://host:port" URL string.
func buildURL(addr net.Addr) string {
	if addr == nil {
		return "udp://"
	}
	return "udp://" + addr.String()
}

func newInfo(local, remote net.Addr) Info {
	return Info{
		TunnelType: "udp",
		LocalAddr:  buildURL(local),
		RemoteAddr: buildURL(remote),
	}
}
