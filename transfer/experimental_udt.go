/*
File Name:  experimental_udt.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/
package transfer

import (
	"net"

	"github.com/voidwarp/core/transfer/udtbridge"
	"github.com/voidwarp/core/udt"
)

// NewExperimentalUDTSender dials remoteAddr over UDP and wraps the
// connection in package udt's reliable transport, returning a net.Conn a
// Sender can speak the wire protocol over. This is experimental and is
// never used by SendTo; it exists so the kept udt package is exercised
// rather than dead code, per spec.md §5's note on the experimental
// reliable-UDP transport module.
func NewExperimentalUDTSender(remoteAddr string) (net.Conn, error) {
	bridge, err := udtbridge.Dial(remoteAddr)
	if err != nil {
		return nil, err
	}

	conn, err := udt.DialUDT(udt.DefaultConfig(), bridge.Closer(), bridge.Incoming(), bridge.Outgoing(), bridge.Termination(), true)
	if err != nil {
		bridge.Close()
		return nil, err
	}
	return conn, nil
}

// NewExperimentalUDTReceiver binds localAddr over UDP and returns a
// net.Listener accepting package udt connections.
func NewExperimentalUDTReceiver(localAddr string) (net.Listener, error) {
	bridge, err := udtbridge.Listen(localAddr)
	if err != nil {
		return nil, err
	}

	return udt.ListenUDT(udt.DefaultConfig(), bridge.Closer(), bridge.Incoming(), bridge.Outgoing(), bridge.Termination()), nil
}
