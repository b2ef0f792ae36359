//go:build windows

package tunnel

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// setReuseAddr mirrors the Unix variant using the Windows sockopt constants;
// SO_REUSEADDR on Windows permits an immediate rebind of a recently closed
// UDP port, which is what the listener relies on across restarts.
func setReuseAddr(_ string, _ string, c syscall.RawConn) error {
	var setErr error
	err := c.Control(func(fd uintptr) {
		setErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return setErr
}
