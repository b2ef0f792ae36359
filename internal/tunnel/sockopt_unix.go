//go:build !windows

package tunnel

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// setReuseAddr is the Control callback for net.ListenConfig that sets
// SO_REUSEADDR before bind, the same pattern used for UDP listeners that
// must tolerate a quick rebind after restart.
func setReuseAddr(_ string, _ string, c syscall.RawConn) error {
	var setErr error
	err := c.Control(func(fd uintptr) {
		setErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return setErr
}
