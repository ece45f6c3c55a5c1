package discovery

import (
	"net"
	"testing"
)

func TestBuildAndParseHelloPacket(t *testing.T) {
	payload := buildHelloPacket("device-123", "Alice's Phone", 42424)

	pkt, ok := parseHelloPacket(payload)
	if !ok {
		t.Fatalf("expected successful parse")
	}
	if pkt.DeviceID != "device-123" || pkt.DeviceName != "Alice's Phone" || pkt.Port != 42424 {
		t.Fatalf("got %+v", pkt)
	}
}

func TestParseHelloPacketTruncatedNameLenDiscarded(t *testing.T) {
	payload := buildHelloPacket("device-123", "Alice", 42424)
	// Truncate right after the name_len byte, before any name bytes.
	truncated := payload[:len(payload)-len("Alice")]

	if _, ok := parseHelloPacket(truncated); ok {
		t.Fatalf("expected parse failure for truncated name")
	}
}

func TestParseHelloPacketWrongMagicRejected(t *testing.T) {
	payload := buildHelloPacket("device-123", "Alice", 42424)
	payload[0] ^= 0xFF

	if _, ok := parseHelloPacket(payload); ok {
		t.Fatalf("expected parse failure for bad magic")
	}
}

func TestPeerMapDedupKeepsLatestName(t *testing.T) {
	m := newPeerMap()
	m.upsert(DiscoveredPeer{DeviceID: "x", DeviceName: "Old Name"})
	m.upsert(DiscoveredPeer{DeviceID: "x", DeviceName: "New Name"})

	snap := m.snapshot("")
	if len(snap) != 1 {
		t.Fatalf("expected exactly one entry, got %d", len(snap))
	}
	if snap[0].DeviceName != "New Name" {
		t.Fatalf("expected latest name, got %q", snap[0].DeviceName)
	}
}

func TestPeerMapExcludesSelf(t *testing.T) {
	m := newPeerMap()
	m.upsert(DiscoveredPeer{DeviceID: "self"})
	m.upsert(DiscoveredPeer{DeviceID: "other"})

	snap := m.snapshot("self")
	for _, p := range snap {
		if p.DeviceID == "self" {
			t.Fatalf("self should never appear in snapshot")
		}
	}
	if len(snap) != 1 {
		t.Fatalf("expected 1 peer, got %d", len(snap))
	}
}

func TestPeerSortKeyPrefers192168(t *testing.T) {
	a := DiscoveredPeer{DeviceID: "a", Addresses: []net.IP{net.ParseIP("10.0.0.5")}}
	b := DiscoveredPeer{DeviceID: "b", Addresses: []net.IP{net.ParseIP("192.168.1.5")}}

	if peerSortKey(b) >= peerSortKey(a) {
		t.Fatalf("192.168.x.x peer should sort before 10.x.x.x peer")
	}
}

func TestFilterVisibleAddressesDropsLoopbackAndLinkLocal(t *testing.T) {
	addrs := []net.IP{
		net.ParseIP("127.0.0.1"),
		net.ParseIP("169.254.1.1"),
		net.ParseIP("192.168.1.5"),
	}

	got := filterVisibleAddresses(addrs)
	if len(got) != 1 || !got[0].Equal(net.ParseIP("192.168.1.5")) {
		t.Fatalf("got %v", got)
	}
}

func TestManagerFallbackModeSupportsManualPeers(t *testing.T) {
	m := NewFallback("self-id")
	if !m.IsFallback() {
		t.Fatalf("expected fallback mode")
	}

	m.AddManualPeer("peer-1", "Peer One", net.ParseIP("192.168.1.10"), 42424)

	peers := m.GetPeers()
	if len(peers) != 1 || peers[0].DeviceID != "peer-1" {
		t.Fatalf("got %+v", peers)
	}
}

func TestPeerMapConcurrentUpsertAndSnapshotDoesNotRace(t *testing.T) {
	m := newPeerMap()
	done := make(chan struct{})

	go func() {
		for i := 0; i < 1000; i++ {
			m.upsert(DiscoveredPeer{DeviceID: "writer-a"})
		}
		close(done)
	}()
	go func() {
		for i := 0; i < 1000; i++ {
			m.upsert(DiscoveredPeer{DeviceID: "writer-b"})
		}
	}()

	for i := 0; i < 1000; i++ {
		m.snapshot("")
	}
	<-done
}

func TestIPv6BeaconSharesHelloWireFormatWithIPv4Beacon(t *testing.T) {
	b := newIPv6Beacon("device-6", "IPv6 Host", "self", 42424, newPeerMap(), nil)

	payload := buildHelloPacket(b.deviceID, b.deviceName, b.port)
	pkt, ok := parseHelloPacket(payload)
	if !ok {
		t.Fatalf("expected successful parse")
	}
	if pkt.DeviceID != "device-6" || pkt.DeviceName != "IPv6 Host" || pkt.Port != 42424 {
		t.Fatalf("got %+v", pkt)
	}
}

func TestDirectedBroadcast(t *testing.T) {
	_, ipnet, err := net.ParseCIDR("192.168.1.42/24")
	if err != nil {
		t.Fatalf("ParseCIDR: %v", err)
	}

	got := directedBroadcast(ipnet)
	want := net.ParseIP("192.168.1.255").To4()
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
