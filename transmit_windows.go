//go:build windows

package netx

import "syscall"

// setSocketOptions enables SO_REUSEADDR on fd. Windows has no SO_REUSEPORT
// equivalent, so this is the entirety of the Windows socket tuning.
func setSocketOptions(fd uintptr) error {
	return syscall.SetsockoptInt(syscall.Handle(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
}
