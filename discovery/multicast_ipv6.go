/*
File Name:  multicast_ipv6.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

IPv6 site-local multicast is a second parallel discovery path alongside mDNS
and the IPv4 UDP beacon: some networks (notably IPv6-only segments, or
adapters where the IPv4 broadcast domain is firewalled) only deliver
multicast, not broadcast. Loopback is enabled so that local processes on the
same host still discover each other over this path too.
*/
package discovery

import (
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/net/ipv6"

	"github.com/voidwarp/core/internal/reuseport"
)

// ipv6MulticastGroup is site-local (ff05::/16); the suffix echoes beaconMagic
// ("VW") so the group is recognizably this engine's, not a borrowed constant.
const ipv6MulticastGroup = "ff05::5657"

// ipv6Beacon sends and receives the same Hello wire format as beaconSender/
// beaconListener (buildHelloPacket/parseHelloPacket), but over an IPv6
// multicast group instead of an IPv4 broadcast.
type ipv6Beacon struct {
	deviceID, deviceName string
	port                 uint16
	selfID               string
	peers                *peerMap
	onPeer               func(DiscoveredPeer)

	conn      net.PacketConn
	group     net.IP
	cancelled int32
	sendDone  chan struct{}
	recvDone  chan struct{}
}

func newIPv6Beacon(deviceID, deviceName, selfID string, port uint16, peers *peerMap, onPeer func(DiscoveredPeer)) *ipv6Beacon {
	return &ipv6Beacon{
		deviceID:   deviceID,
		deviceName: deviceName,
		selfID:     selfID,
		port:       port,
		peers:      peers,
		onPeer:     onPeer,
		group:      net.ParseIP(ipv6MulticastGroup),
		sendDone:   make(chan struct{}),
		recvDone:   make(chan struct{}),
	}
}

// start joins the multicast group on every up, multicast-capable interface
// and begins the send/receive loops. A failure to open the socket at all
// (no IPv6 stack) is returned so the caller can treat this path as
// best-effort, matching spec.md §4.2's failure policy of never blocking
// start_discovery on a single discovery mechanism.
func (b *ipv6Beacon) start() error {
	conn, err := reuseport.ListenPacket("udp6", net.JoinHostPort("::", strconv.Itoa(int(b.port))))
	if err != nil {
		return err
	}
	b.conn = conn

	pc := ipv6.NewPacketConn(conn)

	if ifaces, err := net.Interfaces(); err == nil {
		for i := range ifaces {
			iface := ifaces[i]
			if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
				continue
			}
			// Best-effort: an interface without IPv6 configured simply
			// fails to join and is skipped, same as the teacher's loop.
			pc.JoinGroup(&iface, &net.UDPAddr{IP: b.group})
		}
	}

	if loop, err := pc.MulticastLoopback(); err == nil && !loop {
		pc.SetMulticastLoopback(true)
	}

	go b.sendLoop()
	go b.recvLoop()
	return nil
}

func (b *ipv6Beacon) stop() {
	atomic.StoreInt32(&b.cancelled, 1)
	if b.conn != nil {
		b.conn.Close()
	}
	<-b.sendDone
	<-b.recvDone
}

func (b *ipv6Beacon) sendLoop() {
	defer close(b.sendDone)

	payload := buildHelloPacket(b.deviceID, b.deviceName, b.port)
	dest := &net.UDPAddr{IP: b.group, Port: int(b.port)}
	ticks := int(beaconInterval / beaconCancelPoll)

	for atomic.LoadInt32(&b.cancelled) == 0 {
		b.conn.WriteTo(payload, dest)

		for i := 0; i < ticks; i++ {
			if atomic.LoadInt32(&b.cancelled) != 0 {
				return
			}
			time.Sleep(beaconCancelPoll)
		}
	}
}

func (b *ipv6Beacon) recvLoop() {
	defer close(b.recvDone)

	buf := make([]byte, 512)

	for atomic.LoadInt32(&b.cancelled) == 0 {
		b.conn.SetReadDeadline(time.Now().Add(listenerTimeout))

		n, addr, err := b.conn.ReadFrom(buf)
		if err != nil {
			continue // read timeout, transient error, or socket closed by stop()
		}

		pkt, ok := parseHelloPacket(buf[:n])
		if !ok || pkt.DeviceID == b.selfID {
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

		b.peers.upsert(peer)
		if b.onPeer != nil {
			b.onPeer(peer)
		}
	}
}
