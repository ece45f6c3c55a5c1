/*
File Name:  beacon.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

The UDP beacon is a parallel discovery mechanism to mDNS: it exists because
mDNS is unreliable across multi-adapter hosts (VPNs, container bridges).
*/
package discovery

import (
	"encoding/binary"
	"net"
	"sync/atomic"
	"time"

	"github.com/voidwarp/core/internal/reuseport"
)

const (
	beaconMagic      uint16 = 0x5657 // "VW"
	packetTypeHello  byte   = 0x03
	beaconInterval          = 2 * time.Second
	beaconCancelPoll        = 100 * time.Millisecond
	listenerTimeout         = 500 * time.Millisecond
	maxBeaconNameLen        = 255
)

// buildHelloPacket encodes the UDP Hello beacon payload per spec.md §4.2:
// magic | type | port | id_len | id | name_len | name. Lengths clamp to 255.
func buildHelloPacket(deviceID, deviceName string, port uint16) []byte {
	if len(deviceID) > maxBeaconNameLen {
		deviceID = deviceID[:maxBeaconNameLen]
	}
	if len(deviceName) > maxBeaconNameLen {
		deviceName = deviceName[:maxBeaconNameLen]
	}

	buf := make([]byte, 0, 2+1+2+1+len(deviceID)+1+len(deviceName))
	var u16 [2]byte

	binary.BigEndian.PutUint16(u16[:], beaconMagic)
	buf = append(buf, u16[:]...)
	buf = append(buf, packetTypeHello)
	binary.BigEndian.PutUint16(u16[:], port)
	buf = append(buf, u16[:]...)
	buf = append(buf, byte(len(deviceID)))
	buf = append(buf, deviceID...)
	buf = append(buf, byte(len(deviceName)))
	buf = append(buf, deviceName...)

	return buf
}

// helloPacket is a parsed UDP Hello beacon.
type helloPacket struct {
	Port       uint16
	DeviceID   string
	DeviceName string
}

// parseHelloPacket parses buf into a helloPacket, returning ok=false if buf
// is truncated or not a Hello packet — discarded without state change, per
// spec.md §8's boundary case for a truncated name_len.
func parseHelloPacket(buf []byte) (pkt helloPacket, ok bool) {
	if len(buf) < 6 {
		return pkt, false
	}
	if binary.BigEndian.Uint16(buf[0:2]) != beaconMagic {
		return pkt, false
	}
	if buf[2] != packetTypeHello {
		return pkt, false
	}

	pkt.Port = binary.BigEndian.Uint16(buf[3:5])
	idLen := int(buf[5])

	offset := 6
	if len(buf) < offset+idLen+1 {
		return pkt, false
	}
	pkt.DeviceID = string(buf[offset : offset+idLen])
	offset += idLen

	nameLen := int(buf[offset])
	offset++
	if len(buf) < offset+nameLen {
		return pkt, false
	}
	pkt.DeviceName = string(buf[offset : offset+nameLen])

	return pkt, true
}

// beaconSender periodically broadcasts a Hello packet on every non-loopback
// IPv4 interface.
type beaconSender struct {
	deviceID, deviceName string
	port                 uint16
	cancelled            int32
	done                 chan struct{}
}

func newBeaconSender(deviceID, deviceName string, port uint16) *beaconSender {
	return &beaconSender{deviceID: deviceID, deviceName: deviceName, port: port, done: make(chan struct{})}
}

func (s *beaconSender) start() {
	go s.run()
}

func (s *beaconSender) stop() {
	atomic.StoreInt32(&s.cancelled, 1)
	<-s.done
}

func (s *beaconSender) run() {
	defer close(s.done)

	payload := buildHelloPacket(s.deviceID, s.deviceName, s.port)
	ticks := int(beaconInterval / beaconCancelPoll)

	for atomic.LoadInt32(&s.cancelled) == 0 {
		s.broadcastOnce(payload)

		for i := 0; i < ticks; i++ {
			if atomic.LoadInt32(&s.cancelled) != 0 {
				return
			}
			time.Sleep(beaconCancelPoll)
		}
	}
}

func (s *beaconSender) broadcastOnce(payload []byte) {
	nets, err := nonLoopbackIPv4Interfaces()
	if err != nil {
		return
	}

	dest := &net.UDPAddr{IP: net.IPv4bcast, Port: int(s.port)}

	for _, ipnet := range nets {
		s.sendVia(ipnet.IP, dest, payload)
	}
}

func (s *beaconSender) sendVia(localIP net.IP, dest *net.UDPAddr, payload []byte) {
	conn, err := reuseport.ListenPacket("udp4", (&net.UDPAddr{IP: localIP, Port: 0}).String())
	if err != nil {
		return
	}
	defer conn.Close()

	conn.WriteTo(payload, dest)
}

// beaconListener listens for Hello packets and upserts discovered peers.
type beaconListener struct {
	port      uint16
	selfID    string
	peers     *peerMap
	onPeer    func(DiscoveredPeer)
	cancelled int32
	done      chan struct{}
}

func newBeaconListener(port uint16, selfID string, peers *peerMap, onPeer func(DiscoveredPeer)) *beaconListener {
	return &beaconListener{port: port, selfID: selfID, peers: peers, onPeer: onPeer, done: make(chan struct{})}
}

func (l *beaconListener) start() error {
	addr := &net.UDPAddr{IP: net.IPv4zero, Port: int(l.port)}
	conn, err := reuseport.ListenPacket("udp4", addr.String())
	if err != nil {
		return err
	}

	go l.run(conn)
	return nil
}

func (l *beaconListener) stop() {
	atomic.StoreInt32(&l.cancelled, 1)
	<-l.done
}

func (l *beaconListener) run(conn net.PacketConn) {
	defer close(l.done)
	defer conn.Close()

	buf := make([]byte, 512)

	for atomic.LoadInt32(&l.cancelled) == 0 {
		conn.SetReadDeadline(time.Now().Add(listenerTimeout))

		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			continue // read timeout or transient error; poll again
		}

		pkt, ok := parseHelloPacket(buf[:n])
		if !ok || pkt.DeviceID == l.selfID {
			continue
		}

		udpAddr, ok := addr.(*net.UDPAddr)
		if !ok {
			continue
		}

		peer := DiscoveredPeer{
			DeviceID:   pkt.DeviceID,
			DeviceName: pkt.DeviceName,
			Addresses:  []net.IP{udpAddr.IP},
			Port:       pkt.Port,
		}

		l.peers.upsert(peer)
		if l.onPeer != nil {
			l.onPeer(peer)
		}
	}
}
