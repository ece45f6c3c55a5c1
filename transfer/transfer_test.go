package transfer

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/voidwarp/core/checksum"
	"github.com/voidwarp/core/protocol"
	"github.com/voidwarp/core/streaming"
)

func waitForPending(t *testing.T, r *Receiver) IncomingTransfer {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if it, ok := r.PendingTransfer(); ok {
			return it
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for pending transfer")
	return IncomingTransfer{}
}

func addr(r *Receiver) string {
	return fmt.Sprintf("127.0.0.1:%d", r.Port())
}

func TestSendReceiveSingleFileHappyPath(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "source.txt")
	content := []byte("Integration test content for VoidWarp transfer protocol mismatch fix.")
	if err := os.WriteFile(srcPath, content, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r, err := NewReceiver()
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}
	defer r.Stop()
	r.Start()

	destPath := filepath.Join(dir, "dest.txt")
	var acceptOutcome Outcome
	done := make(chan struct{})
	go func() {
		waitForPending(t, r)
		acceptOutcome = r.AcceptTransfer(destPath)
		close(done)
	}()

	s, err := NewSender(srcPath)
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}

	outcome := s.SendTo(addr(r), "sender-1")
	<-done

	if outcome.Result != ResultSuccess {
		t.Fatalf("sender outcome: %v", outcome)
	}
	if acceptOutcome.Result != ResultSuccess {
		t.Fatalf("receiver outcome: %v", acceptOutcome)
	}

	srcSum, _ := checksum.FileMD5(srcPath)
	dstSum, _ := checksum.FileMD5(destPath)
	if srcSum != dstSum {
		t.Fatalf("checksum mismatch: src=%s dst=%s", srcSum, dstSum)
	}
}

func TestSendReceiveRejectPath(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "source.bin")
	if err := os.WriteFile(srcPath, bytes.Repeat([]byte{0x42}, 1024), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r, err := NewReceiver()
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}
	defer r.Stop()
	r.Start()

	done := make(chan struct{})
	go func() {
		waitForPending(t, r)
		r.RejectTransfer()
		close(done)
	}()

	s, err := NewSender(srcPath)
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}

	outcome := s.SendTo(addr(r), "sender-1")
	<-done

	if outcome.Result != ResultRejected {
		t.Fatalf("expected Rejected, got %v", outcome)
	}
	if got := r.State(); got != StateListening {
		t.Fatalf("expected receiver to return to Listening, got %v", got)
	}
}

func TestZeroByteFileTransfersSuccessfully(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "empty.bin")
	if err := os.WriteFile(srcPath, nil, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r, err := NewReceiver()
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}
	defer r.Stop()
	r.Start()

	destPath := filepath.Join(dir, "empty-dest.bin")
	var acceptOutcome Outcome
	done := make(chan struct{})
	go func() {
		waitForPending(t, r)
		acceptOutcome = r.AcceptTransfer(destPath)
		close(done)
	}()

	s, err := NewSender(srcPath)
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}

	outcome := s.SendTo(addr(r), "sender-1")
	<-done

	if outcome.Result != ResultSuccess || acceptOutcome.Result != ResultSuccess {
		t.Fatalf("sender=%v receiver=%v", outcome, acceptOutcome)
	}

	info, err := os.Stat(destPath)
	if err != nil {
		t.Fatalf("Stat dest: %v", err)
	}
	if info.Size() != 0 {
		t.Fatalf("expected zero-byte output, got %d", info.Size())
	}
}

func TestFileExactMultipleOfChunkSizeHasNoShortLastChunk(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "exact.bin")
	const chunkSize = 16
	content := bytes.Repeat([]byte("0123456789abcdef"), 3) // exactly 3 * chunkSize
	if err := os.WriteFile(srcPath, content, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r, err := NewReceiver()
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}
	defer r.Stop()
	r.Start()

	destPath := filepath.Join(dir, "exact-dest.bin")
	var acceptOutcome Outcome
	done := make(chan struct{})
	go func() {
		waitForPending(t, r)
		acceptOutcome = r.AcceptTransfer(destPath)
		close(done)
	}()

	s, err := NewSender(srcPath)
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	s.SetChunkSize(chunkSize)

	outcome := s.SendTo(addr(r), "sender-1")
	<-done

	if outcome.Result != ResultSuccess || acceptOutcome.Result != ResultSuccess {
		t.Fatalf("sender=%v receiver=%v", outcome, acceptOutcome)
	}

	got, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("content mismatch")
	}
}

func TestResumePicksUpFromExistingPartialFile(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "resume-src.bin")
	const chunkSize = 1024
	content := bytes.Repeat([]byte{0xAB}, 3*chunkSize+100)
	if err := os.WriteFile(srcPath, content, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	destPath := filepath.Join(dir, "resume-dest.bin")
	// Simulate a prior partial receive of 1.5 * chunkSize bytes.
	if err := os.WriteFile(destPath, content[:chunkSize+chunkSize/2], 0644); err != nil {
		t.Fatalf("WriteFile partial: %v", err)
	}

	r, err := NewReceiver()
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}
	defer r.Stop()
	r.Start()

	var acceptOutcome Outcome
	done := make(chan struct{})
	go func() {
		waitForPending(t, r)
		acceptOutcome = r.AcceptTransfer(destPath)
		close(done)
	}()

	s, err := NewSender(srcPath)
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	s.SetChunkSize(chunkSize)

	outcome := s.SendTo(addr(r), "sender-1")
	<-done

	if outcome.Result != ResultSuccess || acceptOutcome.Result != ResultSuccess {
		t.Fatalf("sender=%v receiver=%v", outcome, acceptOutcome)
	}

	got, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("final file does not equal source after resume")
	}
}

func TestFolderTransferRoundTrip(t *testing.T) {
	srcRoot := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcRoot, "a.txt"), []byte("A"), 0644); err != nil {
		t.Fatalf("write a.txt: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(srcRoot, "sub"), 0755); err != nil {
		t.Fatalf("mkdir sub: %v", err)
	}
	if err := os.WriteFile(filepath.Join(srcRoot, "sub", "b.bin"), make([]byte, 2_500_000), 0644); err != nil {
		t.Fatalf("write b.bin: %v", err)
	}
	if err := os.WriteFile(filepath.Join(srcRoot, "sub", "empty.dat"), nil, 0644); err != nil {
		t.Fatalf("write empty.dat: %v", err)
	}

	r, err := NewReceiver()
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}
	defer r.Stop()
	r.Start()

	destRoot := t.TempDir()
	var acceptOutcome Outcome
	var pending IncomingTransfer
	done := make(chan struct{})
	go func() {
		pending = waitForPending(t, r)
		acceptOutcome = r.AcceptTransfer(destRoot)
		close(done)
	}()

	s, err := NewSender(srcRoot)
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}

	outcome := s.SendTo(addr(r), "sender-1")
	<-done

	if outcome.Result != ResultSuccess || acceptOutcome.Result != ResultSuccess {
		t.Fatalf("sender=%v receiver=%v", outcome, acceptOutcome)
	}
	if pending.TransferType != protocol.TransferFolder {
		t.Fatalf("expected Folder transfer type")
	}

	for _, rel := range []string{"a.txt", "sub/b.bin", "sub/empty.dat"} {
		srcBytes, err := os.ReadFile(filepath.Join(srcRoot, filepath.FromSlash(rel)))
		if err != nil {
			t.Fatalf("read src %s: %v", rel, err)
		}
		dstBytes, err := os.ReadFile(filepath.Join(destRoot, filepath.FromSlash(rel)))
		if err != nil {
			t.Fatalf("read dst %s: %v", rel, err)
		}
		if !bytes.Equal(srcBytes, dstBytes) {
			t.Fatalf("content mismatch for %s", rel)
		}
	}
}

// TestChunkLoopRetriesAfterChecksumMismatch drives Receiver.chunkLoop
// directly over a net.Pipe, without a real Sender, so a checksum mismatch
// can be injected deterministically.
func TestChunkLoopRetriesAfterChecksumMismatch(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	r := &Receiver{}
	destPath := filepath.Join(t.TempDir(), "dest.bin")
	writer, err := streaming.NewSingleFileWriter(destPath)
	if err != nil {
		t.Fatalf("NewSingleFileWriter: %v", err)
	}

	data := []byte("hello chunk")
	goodSum := checksum.ChunkMD5Raw(data)
	badSum := goodSum
	badSum[0] ^= 0xFF

	transfer := IncomingTransfer{FileSize: uint64(len(data))}

	resultCh := make(chan Outcome, 1)
	go func() {
		resultCh <- r.chunkLoop(serverConn, writer, transfer)
	}()

	// First attempt: corrupted checksum, expect a checksum-mismatch ACK and
	// no advancement.
	if err := protocol.WriteChunk(clientConn, 0, data, badSum); err != nil {
		t.Fatalf("WriteChunk (bad): %v", err)
	}
	ack, err := protocol.ReadAck(clientConn)
	if err != nil {
		t.Fatalf("ReadAck (bad): %v", err)
	}
	if ack.Status != protocol.ChunkChecksumMismatch {
		t.Fatalf("expected ChunkChecksumMismatch, got %v", ack.Status)
	}

	// Retry with the correct checksum.
	if err := protocol.WriteChunk(clientConn, 0, data, goodSum); err != nil {
		t.Fatalf("WriteChunk (good): %v", err)
	}
	ack, err = protocol.ReadAck(clientConn)
	if err != nil {
		t.Fatalf("ReadAck (good): %v", err)
	}
	if ack.Status != protocol.ChunkOK {
		t.Fatalf("expected ChunkOK, got %v", ack.Status)
	}

	outcome := <-resultCh
	if outcome.Result != ResultSuccess {
		t.Fatalf("chunkLoop outcome: %v", outcome)
	}

	got, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("written content mismatch: %q", got)
	}
}

// TestSendOneChunkWithRetryExhaustedByChecksumMismatchReportsChecksumMismatch
// drives Sender.sendOneChunkWithRetry directly over a net.Pipe against a
// fake receiver that always NACKs with ChunkChecksumMismatch, so every
// retry attempt fails the same way.
func TestSendOneChunkWithRetryExhaustedByChecksumMismatchReportsChecksumMismatch(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	data := []byte("chunk data")
	sum := checksum.ChunkMD5Raw(data)

	go func() {
		for i := 0; i < MaxRetries; i++ {
			header, err := protocol.ReadChunkHeader(clientConn)
			if err != nil {
				return
			}
			buf := make([]byte, header.Length)
			if _, err := io.ReadFull(clientConn, buf); err != nil {
				return
			}
			if _, err := protocol.ReadChunkChecksum(clientConn); err != nil {
				return
			}
			ack := protocol.Ack{Index: header.Index, Status: protocol.ChunkChecksumMismatch}
			if err := ack.WriteTo(clientConn); err != nil {
				return
			}
		}
	}()

	s := &Sender{}
	err := s.sendOneChunkWithRetry(serverConn, 0, data, sum)

	outcome, ok := err.(Outcome)
	if !ok {
		t.Fatalf("expected an Outcome error, got %T: %v", err, err)
	}
	if outcome.Result != ResultChecksumMismatch {
		t.Fatalf("expected ResultChecksumMismatch, got %v", outcome.Result)
	}
}
