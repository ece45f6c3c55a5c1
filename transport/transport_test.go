package transport

import (
	"net"
	"strconv"
	"testing"
	"time"
)

func TestPingSucceedsAgainstListeningPort(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer l.Close()

	go func() {
		conn, err := l.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	if err := Ping(l.Addr().String()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestPingFailsAgainstClosedPort(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	if err := Ping(addr); err == nil {
		t.Fatalf("expected error pinging closed port")
	}
}

func TestBuildPingAndPongPacketsCarryMagicAndType(t *testing.T) {
	ping := buildPingPacket()
	if ping[0] != heartbeatMagic0 || ping[1] != heartbeatMagic1 || ping[2] != packetPing {
		t.Fatalf("unexpected ping header: %v", ping[:3])
	}

	pong := buildPongPacket(ping[3:11])
	if pong[0] != heartbeatMagic0 || pong[1] != heartbeatMagic1 || pong[2] != packetPong {
		t.Fatalf("unexpected pong header: %v", pong[:3])
	}
	for i := 3; i < 11; i++ {
		if pong[i] != ping[i] {
			t.Fatalf("pong did not echo ping timestamp at byte %d", i)
		}
	}
}

func TestHeartbeatManagerAndResponder(t *testing.T) {
	responder, err := NewHeartbeatResponder(0)
	if err != nil {
		t.Fatalf("NewHeartbeatResponder: %v", err)
	}
	defer responder.Stop()
	responder.Start()

	mgr := NewHeartbeatManager(30 * time.Millisecond)
	if err := mgr.Start("127.0.0.1:" + strconv.Itoa(int(responder.Port()))); err != nil {
		t.Fatalf("mgr.Start: %v", err)
	}
	defer mgr.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if mgr.IsPeerAlive() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected peer to be reported alive after responder echoes pongs")
}

