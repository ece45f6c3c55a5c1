/*
File Name:  peer.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Package discovery locates peers on the local network via a hybrid of mDNS
service advertisement/browsing and a multi-interface UDP broadcast beacon.
*/
package discovery

import (
	"net"
	"sort"
	"sync"
)

// DiscoveredPeer is the host-visible view of a remote device: its identity
// and the addresses it was last observed at.
type DiscoveredPeer struct {
	DeviceID   string
	DeviceName string
	Addresses  []net.IP
	Port       uint16
}

// peerMap is the process-wide mapping from device_id to the latest
// observation. Values are immutable snapshots; updating means replacing the
// value wholesale, matching the invariant in spec.md §3. It is safe for
// concurrent use: the mDNS browse goroutine, the UDP beacon listener
// goroutine, and host-thread readers all reach byID, per spec.md §5 ("the
// peer map is behind a reader-writer lock; browse loops and manual additions
// are writers; get_peers is a reader").
type peerMap struct {
	mu   sync.RWMutex
	byID map[string]DiscoveredPeer
}

func newPeerMap() *peerMap {
	return &peerMap{byID: make(map[string]DiscoveredPeer)}
}

func (m *peerMap) upsert(p DiscoveredPeer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[p.DeviceID] = p
}

func (m *peerMap) removeByID(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
}

func (m *peerMap) snapshot(selfID string) []DiscoveredPeer {
	m.mu.RLock()
	out := make([]DiscoveredPeer, 0, len(m.byID))
	for id, p := range m.byID {
		if id == selfID {
			continue
		}
		out = append(out, p)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return peerSortKey(out[i]) < peerSortKey(out[j])
	})

	return out
}

// peerSortKey orders 192.168.x.x addresses before other addresses, matching
// spec.md §3 ("192.168.x.x is sorted before other publicly routable private
// ranges"), falling back to the device ID for stable ordering otherwise.
func peerSortKey(p DiscoveredPeer) string {
	for _, ip := range p.Addresses {
		if ip4 := ip.To4(); ip4 != nil && ip4[0] == 192 && ip4[1] == 168 {
			return "0" + p.DeviceID
		}
	}
	return "1" + p.DeviceID
}

// filterVisibleAddresses drops loopback and link-local IPv4 addresses from
// a peer's address list, per spec.md §3.
func filterVisibleAddresses(addrs []net.IP) []net.IP {
	out := make([]net.IP, 0, len(addrs))
	for _, ip := range addrs {
		if ip.IsLoopback() || ip.IsLinkLocalUnicast() {
			continue
		}
		out = append(out, ip)
	}
	return out
}
