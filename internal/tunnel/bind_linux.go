//go:build linux || android

package tunnel

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// bindToDeviceOwning looks up the network interface that owns ip and, if
// found, binds the raw socket to it with SO_BINDTODEVICE. Linux (and
// Android/Fuchsia, which share its socket semantics) does not route UDP
// egress by bound source address alone, so an explicit bind address needs
// this extra step to actually constrain which interface traffic leaves on
// Resolution failures are not fatal: the bind address itself still
// applies, just without the device pin.
func bindToDeviceOwning(c syscall.RawConn, ip net.IP) error {
	ifaceName, ok := findInterfaceOwning(ip)
	if !ok {
		return nil
	}
	var setErr error
	err := c.Control(func(fd uintptr) {
		setErr = unix.BindToDevice(int(fd), ifaceName)
	})
	if err != nil {
		return err
	}
	return setErr
}

func findInterfaceOwning(ip net.IP) (string, bool) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", false
	}
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if ipNet.IP.Equal(ip) {
				return iface.Name, true
			}
		}
	}
	return "", false
}
