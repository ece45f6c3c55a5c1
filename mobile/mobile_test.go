package mobile

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/voidwarp/core/transfer"
)

func newTestHandle(t *testing.T) *Handle {
	t.Helper()
	dir := t.TempDir()

	h, err := Init("mobile-test/1.0", filepath.Join(dir, "Config.yaml"))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(h.Destroy)
	return h
}

func TestInitAssignsDeviceID(t *testing.T) {
	h := newTestHandle(t)
	if h.GetDeviceID() == "" {
		t.Fatalf("expected a non-empty device ID")
	}
}

func TestGeneratePairingCodeIsHyphenatedSixDigits(t *testing.T) {
	h := newTestHandle(t)
	code := h.GeneratePairingCode()
	if len(code) != 7 || code[3] != '-' {
		t.Fatalf("got %q, want NNN-NNN", code)
	}
}

func TestSenderLookupFailsForUnknownID(t *testing.T) {
	h := newTestHandle(t)
	if _, err := h.SenderProgress("not-a-real-id"); err == nil {
		t.Fatalf("expected error for unknown sender ID")
	}
}

func TestReceiverLookupFailsForUnknownID(t *testing.T) {
	h := newTestHandle(t)
	if err := h.ReceiverStop("not-a-real-id"); err == nil {
		t.Fatalf("expected error for unknown receiver ID")
	}
}

func TestTransportPingFailsAgainstClosedPort(t *testing.T) {
	h := newTestHandle(t)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := l.Addr().(*net.TCPAddr)
	l.Close()

	if err := h.TransportPing("127.0.0.1", uint16(addr.Port)); err == nil {
		t.Fatalf("expected ping to a closed port to fail")
	}
}

func TestSenderReceiverRoundTripThroughHandle(t *testing.T) {
	h := newTestHandle(t)

	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "payload.bin")
	content := []byte("mobile handle round trip payload")
	if err := os.WriteFile(srcPath, content, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	receiverID, err := h.CreateReceiver()
	if err != nil {
		t.Fatalf("CreateReceiver: %v", err)
	}
	t.Cleanup(func() { h.ReceiverDestroy(receiverID) })

	if err := h.ReceiverStart(receiverID); err != nil {
		t.Fatalf("ReceiverStart: %v", err)
	}

	receiver, ok := h.lookupReceiver(receiverID)
	if !ok {
		t.Fatalf("expected receiver to be registered")
	}
	port := receiver.Port()

	senderID, err := h.CreateSender(srcPath)
	if err != nil {
		t.Fatalf("CreateSender: %v", err)
	}
	t.Cleanup(func() { h.SenderDestroy(senderID) })

	done := make(chan transfer.Outcome, 1)
	go func() {
		outcome, sendErr := h.SenderStart(senderID, "127.0.0.1", port, "tester")
		if sendErr != nil {
			t.Errorf("SenderStart: %v", sendErr)
		}
		done <- outcome
	}()

	deadline := time.Now().Add(5 * time.Second)
	var pending transfer.IncomingTransfer
	var havePending bool
	for time.Now().Before(deadline) {
		pending, havePending, err = h.ReceiverPending(receiverID)
		if err != nil {
			t.Fatalf("ReceiverPending: %v", err)
		}
		if havePending {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !havePending {
		t.Fatalf("expected a pending transfer")
	}
	if pending.FileName != "payload.bin" {
		t.Fatalf("got file name %q", pending.FileName)
	}

	destPath := filepath.Join(t.TempDir(), "payload.bin")
	acceptOutcome, err := h.ReceiverAccept(receiverID, destPath)
	if err != nil {
		t.Fatalf("ReceiverAccept: %v", err)
	}
	if acceptOutcome.Result != transfer.ResultSuccess {
		t.Fatalf("receiver outcome: %v", acceptOutcome)
	}

	sendOutcome := <-done
	if sendOutcome.Result != transfer.ResultSuccess {
		t.Fatalf("sender outcome: %v", sendOutcome)
	}

	got, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("got %q, want %q", got, content)
	}
}
