//go:build !windows

package netx

import "golang.org/x/sys/unix"

// setSocketOptions enables SO_REUSEADDR and, where supported, SO_REUSEPORT
// on fd so a second instance can rebind the same raw protocol socket during
// restart without waiting out TIME_WAIT.
func setSocketOptions(fd uintptr) error {
	if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return err
	}
	// SO_REUSEPORT is best-effort: some unix variants this build targets
	// don't define it for raw sockets.
	_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	return nil
}
