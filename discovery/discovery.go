/*
File Name:  discovery.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/
package discovery

import (
	"context"
	"net"
	"runtime"
	"strings"
	"sync"

	"github.com/libp2p/zeroconf/v2"
)

// ServiceType is the mDNS service type instance name for VoidWarp peers.
const ServiceType = "_voidwarp._udp"

// serviceDomain is fixed; uniqueness comes from the instance name
// (device_id), not the host label. See DESIGN.md's "mDNS instance
// uniqueness" decision.
const serviceDomain = "local."

// Manager advertises this device and discovers peers via mDNS and the UDP
// broadcast beacon. A Manager lacking an mDNS daemon downgrades to fallback
// mode: add_manual_peer and the beacon listener still function.
type Manager struct {
	mu       sync.RWMutex
	peers    *peerMap
	selfID   string
	fallback bool

	server     *zeroconf.Server
	sender     *beaconSender
	listener   *beaconListener
	ipv6Beacon *ipv6Beacon

	browseCancel context.CancelFunc
}

// New creates a discovery manager in full mode (mDNS + beacon).
func New(selfID string) (*Manager, error) {
	return &Manager{
		peers:  newPeerMap(),
		selfID: selfID,
	}, nil
}

// NewFallback creates a discovery manager with no mDNS daemon: manual peer
// addition and the UDP beacon listener still function.
func NewFallback(selfID string) *Manager {
	return &Manager{
		peers:    newPeerMap(),
		selfID:   selfID,
		fallback: true,
	}
}

// IsFallback reports whether this manager lacks a working mDNS daemon.
func (m *Manager) IsFallback() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fallback
}

// RegisterService advertises this device over mDNS under ServiceType,
// instance name = device_id, TXT keys id|name|platform. explicitIP, when
// non-nil, overrides auto-detected addresses for networks where reverse
// resolution fails.
func (m *Manager) RegisterService(id, name string, port uint16, explicitIP net.IP) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fallback {
		return nil
	}

	txt := []string{
		"id=" + id,
		"name=" + name,
		"platform=" + platformName(),
	}

	var server *zeroconf.Server
	var err error

	if explicitIP != nil {
		// RegisterProxy lets us pin the advertised address on networks
		// where mDNS reverse resolution fails.
		server, err = zeroconf.RegisterProxy(id, ServiceType, serviceDomain, int(port), id, []string{explicitIP.String()}, txt, nil)
	} else {
		server, err = zeroconf.Register(id, ServiceType, serviceDomain, int(port), txt, nil)
	}

	if err != nil {
		// Downgrade to fallback mode; start_discovery always reports
		// success to the host, per spec.md §4.2's failure policy.
		m.fallback = true
		return nil
	}

	m.server = server
	return nil
}

// StartBackgroundBrowsing begins the mDNS browse loop (if not in fallback
// mode) and the UDP beacon sender/listener on port.
func (m *Manager) StartBackgroundBrowsing(port uint16, deviceID, deviceName string) {
	m.mu.Lock()
	fallback := m.fallback
	m.mu.Unlock()

	if !fallback {
		ctx, cancel := context.WithCancel(context.Background())
		m.mu.Lock()
		m.browseCancel = cancel
		m.mu.Unlock()
		go m.browseLoop(ctx)
	}

	sender := newBeaconSender(deviceID, deviceName, port)
	sender.start()

	listener := newBeaconListener(port, m.selfID, m.peers, nil)
	if err := listener.start(); err == nil {
		m.mu.Lock()
		m.listener = listener
		m.mu.Unlock()
	}

	m.mu.Lock()
	m.sender = sender
	m.mu.Unlock()

	// IPv6 multicast is best-effort: hosts without a usable IPv6 stack keep
	// mDNS and the IPv4 beacon, per spec.md §4.2's failure policy.
	ipv6 := newIPv6Beacon(deviceID, deviceName, m.selfID, port, m.peers, nil)
	if err := ipv6.start(); err == nil {
		m.mu.Lock()
		m.ipv6Beacon = ipv6
		m.mu.Unlock()
	}
}

func (m *Manager) browseLoop(ctx context.Context) {
	entries := make(chan *zeroconf.ServiceEntry)

	go func() {
		for entry := range entries {
			m.handleServiceEntry(entry)
		}
	}()

	// zeroconf.Browse blocks (draining until the channel/context closes),
	// matching the dedicated mDNS browse thread described in spec.md §5.
	zeroconf.Browse(ctx, ServiceType, serviceDomain, entries)
	close(entries)
}

func (m *Manager) handleServiceEntry(entry *zeroconf.ServiceEntry) {
	id := parseTXT(entry.Text, "id")
	if id == "" {
		id = strings.SplitN(entry.Instance, ".", 2)[0]
	}
	if id == m.selfID {
		return
	}

	name := parseTXT(entry.Text, "name")

	var addrs []net.IP
	addrs = append(addrs, entry.AddrIPv4...)
	addrs = append(addrs, entry.AddrIPv6...)

	peer := DiscoveredPeer{
		DeviceID:   id,
		DeviceName: name,
		Addresses:  addrs,
		Port:       uint16(entry.Port),
	}

	m.peers.upsert(peer)
}

func parseTXT(txt []string, key string) string {
	prefix := key + "="
	for _, entry := range txt {
		if strings.HasPrefix(entry, prefix) {
			return strings.TrimPrefix(entry, prefix)
		}
	}
	return ""
}

// AddManualPeer upserts a peer directly, bypassing discovery. Works in
// fallback mode.
func (m *Manager) AddManualPeer(id, name string, ip net.IP, port uint16) {
	m.peers.upsert(DiscoveredPeer{
		DeviceID:   id,
		DeviceName: name,
		Addresses:  []net.IP{ip},
		Port:       port,
	})
}

// GetPeers returns a snapshot of discovered peers, self excluded, loopback
// and link-local IPv4 addresses filtered, 192.168.x.x sorted first.
func (m *Manager) GetPeers() []DiscoveredPeer {
	peers := m.peers.snapshot(m.selfID)

	out := make([]DiscoveredPeer, len(peers))
	for i, p := range peers {
		p.Addresses = filterVisibleAddresses(p.Addresses)
		out[i] = p
	}
	return out
}

// Unregister tears down the mDNS registration and background loops.
func (m *Manager) Unregister() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browseCancel != nil {
		m.browseCancel()
	}
	if m.server != nil {
		m.server.Shutdown()
	}
	if m.sender != nil {
		m.sender.stop()
	}
	if m.listener != nil {
		m.listener.stop()
	}
	if m.ipv6Beacon != nil {
		m.ipv6Beacon.stop()
	}
}

func platformName() string {
	switch runtime.GOOS {
	case "windows":
		return "windows"
	case "android":
		return "android"
	case "darwin":
		return "macos"
	case "ios":
		return "ios"
	default:
		return "unknown"
	}
}
