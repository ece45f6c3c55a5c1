/*
File Name:  reuseport.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Package reuseport opens UDP sockets with SO_REUSEADDR and SO_BROADCAST set
before bind, so multiple processes (and multiple listeners within the same
process, one per interface) can share a port and broadcast datagrams are not
rejected by the kernel.
*/
package reuseport

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// ListenPacket opens a UDP packet connection on address with SO_REUSEADDR and
// SO_BROADCAST set. network must be "udp", "udp4", or "udp6".
func ListenPacket(network, address string) (net.PacketConn, error) {
	lc := net.ListenConfig{
		Control: func(fdNetwork, fdAddress string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = setReuseAndBroadcast(int(fd))
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	return lc.ListenPacket(context.Background(), network, address)
}

func setReuseAndBroadcast(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("reuseport: SO_REUSEADDR: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_BROADCAST, 1); err != nil {
		return fmt.Errorf("reuseport: SO_BROADCAST: %w", err)
	}
	return nil
}
