//go:build !linux && !android

package tunnel

import (
	"net"
	"syscall"
)

// bindToDeviceOwning is a no-op on platforms whose kernels already route UDP
// egress by bound source address, so no extra device pin is needed.
func bindToDeviceOwning(_ syscall.RawConn, _ net.IP) error {
	return nil
}
