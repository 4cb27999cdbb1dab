//go:build !unix

package transport

import "syscall"

func socketBuffers(readBuffer, writeBuffer int) func(network, address string, c syscall.RawConn) error {
	return nil
}
