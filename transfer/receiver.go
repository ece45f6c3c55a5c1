/*
File Name:  receiver.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/
package transfer

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/voidwarp/core/checksum"
	"github.com/voidwarp/core/protocol"
	"github.com/voidwarp/core/streaming"
)

// errBadHandshake is the best-effort error byte written to the wire when a
// handshake cannot be decoded at all; it is distinct from Decision, which
// only ever answers a successfully decoded handshake.
const errBadHandshake = 0x05

// IncomingTransfer is published to the host once a handshake has been
// decoded, so it can be presented to the user before accept/reject.
type IncomingTransfer struct {
	SenderName   string
	SenderAddr   string
	FileName     string
	FileSize     uint64
	ChunkSize    uint32
	FileChecksum string
	TransferType protocol.TransferType
}

type pendingConnection struct {
	conn     net.Conn
	transfer IncomingTransfer
}

// Receiver runs the receiver side of the wire protocol: listen, accept,
// publish the incoming handshake, then either accept or reject it.
type Receiver struct {
	id       uuid.UUID
	mu       sync.Mutex
	listener *net.TCPListener
	port     uint16
	state    ReceiverState
	pending  *pendingConnection

	bytesReceived uint64 // atomic
	totalBytes    uint64

	cancelled int32 // atomic
	loopDone  chan struct{}
}

// NewReceiver binds a TCP listener to the first free port in
// [ReceiverPortRangeStart, ReceiverPortRangeEnd], falling back to an
// OS-assigned ephemeral port.
func NewReceiver() (*Receiver, error) {
	for port := ReceiverPortRangeStart; port <= ReceiverPortRangeEnd; port++ {
		l, err := net.ListenTCP("tcp", &net.TCPAddr{Port: port})
		if err == nil {
			return &Receiver{id: uuid.New(), listener: l, port: uint16(port), state: StateIdle}, nil
		}
	}

	l, err := net.ListenTCP("tcp", &net.TCPAddr{Port: 0})
	if err != nil {
		return nil, fmt.Errorf("transfer: no free port for receiver: %w", err)
	}
	return &Receiver{id: uuid.New(), listener: l, port: uint16(l.Addr().(*net.TCPAddr).Port), state: StateIdle}, nil
}

// ID uniquely identifies this Receiver instance, so a diagnostics surface
// can refer to it across progress polls.
func (r *Receiver) ID() uuid.UUID { return r.id }

// Port returns the bound listen port.
func (r *Receiver) Port() uint16 { return r.port }

// State returns the current receiver state.
func (r *Receiver) State() ReceiverState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Progress returns a snapshot of bytes received vs. the expected total.
func (r *Receiver) Progress() Progress {
	r.mu.Lock()
	total := r.totalBytes
	r.mu.Unlock()
	return Progress{BytesTransferred: atomic.LoadUint64(&r.bytesReceived), TotalBytes: total}
}

// PendingTransfer returns the handshake awaiting a host decision, if any.
func (r *Receiver) PendingTransfer() (IncomingTransfer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return IncomingTransfer{}, false
	}
	return r.pending.transfer, true
}

// Start launches the accept loop. The loop polls Accept with a 100 ms
// deadline so it can observe cancellation and stops publishing new
// connections once one reaches AwaitingAccept. RejectTransfer restarts the
// loop; AcceptTransfer does not.
func (r *Receiver) Start() {
	r.mu.Lock()
	r.state = StateListening
	r.loopDone = make(chan struct{})
	r.mu.Unlock()

	go r.acceptLoop()
}

// Stop cancels the accept loop and closes the listener.
func (r *Receiver) Stop() {
	atomic.StoreInt32(&r.cancelled, 1)
	r.listener.Close()
}

func (r *Receiver) isCancelled() bool { return atomic.LoadInt32(&r.cancelled) != 0 }

func (r *Receiver) acceptLoop() {
	defer close(r.loopDone)

	for {
		if r.isCancelled() {
			return
		}

		r.listener.SetDeadline(time.Now().Add(100 * time.Millisecond))
		conn, err := r.listener.Accept()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			return
		}

		if r.handleConnection(conn) {
			// A handshake was published; stop accepting until the host
			// decides, per spec.md §4.5 step 3.
			return
		}
	}
}

// handleConnection decodes the handshake on conn. It returns true if a
// pending transfer was published (the caller should stop accepting), false
// if the connection was rejected outright (malformed handshake) and the
// loop should keep accepting.
func (r *Receiver) handleConnection(conn net.Conn) bool {
	conn.SetDeadline(time.Now().Add(HandshakeTimeout))

	handshake, err := protocol.ReadHandshakeRequest(conn)
	if err != nil {
		conn.Write([]byte{errBadHandshake})
		conn.Close()
		return false
	}

	transfer := IncomingTransfer{
		SenderName:   handshake.SenderName,
		SenderAddr:   conn.RemoteAddr().String(),
		FileName:     handshake.FileName,
		FileSize:     handshake.FileSize,
		ChunkSize:    handshake.ChunkSize,
		FileChecksum: handshake.FileChecksum,
		TransferType: handshake.TransferType,
	}

	r.mu.Lock()
	r.pending = &pendingConnection{conn: conn, transfer: transfer}
	r.totalBytes = handshake.FileSize
	r.state = StateAwaitingAccept
	r.mu.Unlock()

	return true
}

// RejectTransfer answers the pending handshake with DecisionReject, closes
// the connection, and restarts the accept loop.
func (r *Receiver) RejectTransfer() error {
	r.mu.Lock()
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()

	if pending == nil {
		return fmt.Errorf("transfer: no pending transfer to reject")
	}

	pending.conn.SetWriteDeadline(time.Now().Add(AckTimeout))
	_, err := pending.conn.Write([]byte{byte(protocol.DecisionReject)})
	pending.conn.Close()

	r.Start()
	return err
}

// AcceptTransfer answers the pending handshake with DecisionAccept, computes
// the resume point against savePath, and blocks running the chunk loop to
// completion. It does not restart the accept loop afterward, matching
// spec.md §4.5 step 7.
func (r *Receiver) AcceptTransfer(savePath string) Outcome {
	r.mu.Lock()
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()

	if pending == nil {
		return Outcome{Result: ResultIoError, Err: fmt.Errorf("transfer: no pending transfer to accept")}
	}

	conn := pending.conn
	transfer := pending.transfer
	defer conn.Close()

	r.setState(StateReceiving)
	conn.SetDeadline(time.Now().Add(DataTimeout))

	if _, err := conn.Write([]byte{byte(protocol.DecisionAccept)}); err != nil {
		r.setState(StateError)
		return classifyIOError(err)
	}

	resumeIndex, writer, initialBytes, err := computeResume(savePath, transfer)
	if err != nil {
		r.setState(StateError)
		return Outcome{Result: ResultIoError, Err: err}
	}
	defer writer.Close()

	resumeBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(resumeBuf, resumeIndex)
	if _, err := conn.Write(resumeBuf); err != nil {
		r.setState(StateError)
		return classifyIOError(err)
	}

	atomic.StoreUint64(&r.bytesReceived, initialBytes)

	if outcome := r.chunkLoop(conn, writer, transfer); outcome.Result != ResultSuccess {
		r.setState(StateError)
		return outcome
	}

	ok, err := verifyTransfer(savePath, writer, transfer)
	if err != nil {
		r.setState(StateError)
		return Outcome{Result: ResultIoError, Err: err}
	}

	verdict := byte(protocol.VerdictFail)
	if ok {
		verdict = byte(protocol.VerdictSuccess)
	}
	conn.Write([]byte{verdict})

	if !ok {
		r.setState(StateError)
		return Outcome{Result: ResultChecksumMismatch}
	}

	r.setState(StateCompleted)
	return Outcome{Result: ResultSuccess}
}

func (r *Receiver) setState(s ReceiverState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// chunkLoop reads chunk frames until bytesReceived reaches file_size.
func (r *Receiver) chunkLoop(conn net.Conn, writer streaming.ReceiverWriter, transfer IncomingTransfer) Outcome {
	for atomic.LoadUint64(&r.bytesReceived) < transfer.FileSize {
		header, err := protocol.ReadChunkHeader(conn)
		if err != nil {
			return classifyIOError(err)
		}

		data := make([]byte, header.Length)
		if _, err := io.ReadFull(conn, data); err != nil {
			return classifyIOError(err)
		}

		wantSum, err := protocol.ReadChunkChecksum(conn)
		if err != nil {
			return classifyIOError(err)
		}

		gotSum := checksum.ChunkMD5Raw(data)

		if gotSum != wantSum {
			ack := protocol.Ack{Index: header.Index, Status: protocol.ChunkChecksumMismatch}
			if err := ack.WriteTo(conn); err != nil {
				return classifyIOError(err)
			}
			continue
		}

		if _, err := writer.Write(data); err != nil {
			return Outcome{Result: ResultIoError, Err: err}
		}
		atomic.AddUint64(&r.bytesReceived, uint64(len(data)))

		ack := protocol.Ack{Index: header.Index, Status: protocol.ChunkOK}
		if err := ack.WriteTo(conn); err != nil {
			return classifyIOError(err)
		}
	}

	return Outcome{Result: ResultSuccess}
}

// computeResume implements the resume policy of spec.md §4.5.
func computeResume(savePath string, transfer IncomingTransfer) (resumeIndex uint64, writer streaming.ReceiverWriter, initialBytes uint64, err error) {
	if transfer.TransferType == protocol.TransferFolder {
		writer, err = streaming.NewFolderWriter(savePath)
		return 0, writer, 0, err
	}

	info, statErr := os.Stat(savePath)
	if statErr != nil {
		writer, err = streaming.NewSingleFileWriter(savePath)
		return 0, writer, 0, err
	}

	existingSize := uint64(info.Size())
	if existingSize > 0 && existingSize < transfer.FileSize && transfer.ChunkSize > 0 {
		resumeIndex = existingSize / uint64(transfer.ChunkSize)
		truncateLen := int64(resumeIndex * uint64(transfer.ChunkSize))
		writer, err = streaming.NewResumeSingleFileWriter(savePath, truncateLen)
		return resumeIndex, writer, uint64(truncateLen), err
	}

	writer, err = streaming.NewSingleFileWriter(savePath)
	return 0, writer, 0, err
}

// verifyTransfer recomputes the integrity check appropriate to the
// transfer type and compares it to the handshake's advertised checksum.
func verifyTransfer(savePath string, writer streaming.ReceiverWriter, transfer IncomingTransfer) (bool, error) {
	if transfer.TransferType == protocol.TransferFolder {
		return strings.EqualFold(writer.ManifestChecksum(), transfer.FileChecksum), nil
	}
	return checksum.VerifyFile(savePath, transfer.FileChecksum)
}

