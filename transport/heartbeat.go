/*
File Name:  heartbeat.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/
package transport

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/voidwarp/core/internal/reuseport"
)

const (
	heartbeatMagic0 = 0x56 // "V"
	heartbeatMagic1 = 0x57 // "W"

	packetPing = 0x01
	packetPong = 0x02

	heartbeatPacketSize = 11 // magic(2) | type(1) | timestamp_ms(8)

	// timeoutMultiplier: miss this many ping intervals without a pong and
	// the peer is considered no longer alive.
	timeoutMultiplier = 3

	// recvPollTimeout bounds each blocking read in the receive loop so it
	// can observe cancellation, matching discovery's beaconListener idiom.
	recvPollTimeout = 500 * time.Millisecond
)

// HeartbeatManager sends periodic pings to one peer and tracks whether its
// pongs keep arriving within timeoutMultiplier*interval.
type HeartbeatManager struct {
	conn     net.PacketConn
	peerAddr *net.UDPAddr
	interval time.Duration

	lastPongMs int64 // atomic, unix millis
	running    int32 // atomic
	cancelled  int32 // atomic
	done       chan struct{}
}

// NewHeartbeatManager creates a manager that pings every interval.
func NewHeartbeatManager(interval time.Duration) *HeartbeatManager {
	return &HeartbeatManager{interval: interval}
}

// Start binds an ephemeral UDP socket and begins pinging peerAddr.
func (m *HeartbeatManager) Start(peerAddr string) error {
	if atomic.LoadInt32(&m.running) != 0 {
		return nil
	}

	addr, err := net.ResolveUDPAddr("udp4", peerAddr)
	if err != nil {
		return err
	}

	conn, err := reuseport.ListenPacket("udp4", "0.0.0.0:0")
	if err != nil {
		return err
	}

	m.conn = conn
	m.peerAddr = addr
	m.done = make(chan struct{})
	atomic.StoreInt64(&m.lastPongMs, nowMs())
	atomic.StoreInt32(&m.cancelled, 0)
	atomic.StoreInt32(&m.running, 1)

	go m.sendLoop()
	go m.recvLoop()

	return nil
}

// Stop cancels both loops and closes the socket.
func (m *HeartbeatManager) Stop() {
	if atomic.LoadInt32(&m.running) == 0 {
		return
	}
	atomic.StoreInt32(&m.cancelled, 1)
	atomic.StoreInt32(&m.running, 0)
	if m.conn != nil {
		m.conn.Close()
	}
}

// IsRunning reports whether the manager is actively pinging.
func (m *HeartbeatManager) IsRunning() bool { return atomic.LoadInt32(&m.running) != 0 }

// IsPeerAlive reports whether a pong arrived within the timeout window.
func (m *HeartbeatManager) IsPeerAlive() bool {
	if !m.IsRunning() {
		return false
	}
	return m.TimeSinceLastPong() < m.interval*timeoutMultiplier
}

// TimeSinceLastPong returns the time elapsed since the last pong.
func (m *HeartbeatManager) TimeSinceLastPong() time.Duration {
	last := atomic.LoadInt64(&m.lastPongMs)
	return time.Duration(nowMs()-last) * time.Millisecond
}

func (m *HeartbeatManager) isCancelled() bool { return atomic.LoadInt32(&m.cancelled) != 0 }

func (m *HeartbeatManager) sendLoop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if m.isCancelled() {
			return
		}
		m.conn.WriteTo(buildPingPacket(), m.peerAddr)

		select {
		case <-ticker.C:
		case <-m.done:
			return
		}
	}
}

func (m *HeartbeatManager) recvLoop() {
	buf := make([]byte, 64)
	for {
		if m.isCancelled() {
			return
		}

		m.conn.SetReadDeadline(time.Now().Add(recvPollTimeout))

		n, from, err := m.conn.ReadFrom(buf)
		if err != nil {
			continue
		}

		udpFrom, ok := from.(*net.UDPAddr)
		if !ok || !udpFrom.IP.Equal(m.peerAddr.IP) || udpFrom.Port != m.peerAddr.Port {
			continue
		}

		if n >= heartbeatPacketSize && buf[0] == heartbeatMagic0 && buf[1] == heartbeatMagic1 && buf[2] == packetPong {
			atomic.StoreInt64(&m.lastPongMs, nowMs())
		}
	}
}

// HeartbeatResponder listens for pings on a port and echoes pongs.
type HeartbeatResponder struct {
	conn      net.PacketConn
	port      uint16
	running   int32 // atomic
	cancelled int32 // atomic
}

// NewHeartbeatResponder binds a UDP socket on port (0 for ephemeral).
func NewHeartbeatResponder(port uint16) (*HeartbeatResponder, error) {
	conn, err := reuseport.ListenPacket("udp4", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return nil, err
	}
	actualPort := conn.LocalAddr().(*net.UDPAddr).Port
	return &HeartbeatResponder{conn: conn, port: uint16(actualPort)}, nil
}

// Port returns the bound port.
func (r *HeartbeatResponder) Port() uint16 { return r.port }

// Start begins responding to pings in a background goroutine.
func (r *HeartbeatResponder) Start() {
	if atomic.LoadInt32(&r.running) != 0 {
		return
	}
	atomic.StoreInt32(&r.cancelled, 0)
	atomic.StoreInt32(&r.running, 1)
	go r.run()
}

// Stop cancels the responder.
func (r *HeartbeatResponder) Stop() {
	atomic.StoreInt32(&r.cancelled, 1)
	atomic.StoreInt32(&r.running, 0)
	r.conn.Close()
}

func (r *HeartbeatResponder) run() {
	buf := make([]byte, 64)
	for {
		if atomic.LoadInt32(&r.cancelled) != 0 {
			return
		}

		r.conn.SetReadDeadline(time.Now().Add(recvPollTimeout))

		n, from, err := r.conn.ReadFrom(buf)
		if err != nil {
			continue
		}
		if n < heartbeatPacketSize || buf[0] != heartbeatMagic0 || buf[1] != heartbeatMagic1 || buf[2] != packetPing {
			continue
		}

		pong := buildPongPacket(buf[3:11])
		r.conn.WriteTo(pong, from)
	}
}

func nowMs() int64 { return time.Now().UnixNano() / int64(time.Millisecond) }

func buildPingPacket() []byte {
	buf := make([]byte, heartbeatPacketSize)
	buf[0], buf[1], buf[2] = heartbeatMagic0, heartbeatMagic1, packetPing
	binary.BigEndian.PutUint64(buf[3:11], uint64(nowMs()))
	return buf
}

func buildPongPacket(timestamp []byte) []byte {
	buf := make([]byte, heartbeatPacketSize)
	buf[0], buf[1], buf[2] = heartbeatMagic0, heartbeatMagic1, packetPong
	copy(buf[3:11], timestamp)
	return buf
}
