// Package udt is the experimental reliable-datagram transport underlying
// transfer.NewExperimentalUDTSender/Receiver (SPEC_FULL.md §4.11): an
// alternative to the TCP data path for lossy Wi-Fi, never used by SendTo.
package udt

import (
	"time"

	"github.com/voidwarp/core/udt/packet"
)

// Config controls behavior of sockets created with it.
type Config struct {
	CanAcceptDgram     bool          // can this listener accept datagrams?
	CanAcceptStream    bool          // can this listener accept streams?
	ListenReplayWindow time.Duration // length of time to wait for repeated incoming connections
	MaxPacketSize      uint          // Upper limit on maximum packet size (0 = unlimited)
	MaxBandwidth       uint64        // Maximum bandwidth to take with this connection (in bytes/sec, 0 = unlimited)
	LingerTime         time.Duration // time to wait for retransmit requests after connection shutdown
	MaxFlowWinSize     uint          // maximum number of unacknowledged packets to permit (minimum 32)
	SynTime            time.Duration // SynTime

	CanAccept           func(hsPacket *packet.HandshakePacket) error // can this listener accept this connection?
	CongestionForSocket func(sock *udtSocket) CongestionControl      // create or otherwise return the CongestionControl for this socket
}

// DefaultConfig returns the settings NewExperimentalUDTSender/Receiver dial
// with: stream mode only (the chunked wire protocol in package protocol has
// no use for unreliable datagrams), and a replay window/linger time sized
// for a LAN session rather than a long-lived WAN one, per spec.md's "LAN
// only" non-goal.
func DefaultConfig() *Config {
	return &Config{
		CanAcceptDgram:     false,
		CanAcceptStream:    true,
		ListenReplayWindow: 30 * time.Second,
		LingerTime:         5 * time.Second,
		MaxFlowWinSize:     64,
		MaxBandwidth:       0,
		MaxPacketSize:      65535,
		SynTime:            10000 * time.Microsecond,
		CongestionForSocket: func(sock *udtSocket) CongestionControl {
			return &NativeCongestionControl{}
		},
	}
}
