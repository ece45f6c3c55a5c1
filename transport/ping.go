/*
File Name:  ping.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Package transport implements the auxiliary reachability checks summarized
in spec.md's "external collaborators" note: a TCP ping and a UDP heartbeat.
Neither is on a transfer's critical path.
*/
package transport

import (
	"fmt"
	"net"
	"time"
)

// PingTimeout bounds how long Ping waits for the TCP handshake to complete.
const PingTimeout = 2 * time.Second

// Ping verifies addr is reachable by establishing a TCP connection and
// immediately closing it, without sending any application bytes.
func Ping(addr string) error {
	conn, err := net.DialTimeout("tcp", addr, PingTimeout)
	if err != nil {
		return fmt.Errorf("transport: ping %s: %w", addr, err)
	}
	return conn.Close()
}
