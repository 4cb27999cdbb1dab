//go:build unix

package transport

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// socketBuffers returns a listen control hook that sizes the kernel
// buffers before the socket is bound.
func socketBuffers(readBuffer, writeBuffer int) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var sysErr error
		err := c.Control(func(fd uintptr) {
			if readBuffer > 0 {
				sysErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, readBuffer)
				if sysErr != nil {
					return
				}
			}
			if writeBuffer > 0 {
				sysErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, writeBuffer)
			}
		})
		if err != nil {
			return err
		}
		return sysErr
	}
}
