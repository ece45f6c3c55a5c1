/*
File Name:  sender.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/
package transfer

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/voidwarp/core/checksum"
	"github.com/voidwarp/core/protocol"
	"github.com/voidwarp/core/streaming"
)

// Sender drives the sender side of a single transfer attempt: connect,
// handshake, then a strict send-then-ACK chunk loop.
type Sender struct {
	id           uuid.UUID
	filePath     string
	fileName     string
	fileSize     uint64
	fileChecksum string
	transferType protocol.TransferType
	chunkSize    uint32

	// folder-only
	folderFilePaths []string
	manifestJSON    []byte

	bytesSent       uint64 // atomic
	cancelled       int32  // atomic
	resumeFromChunk *uint64
}

// ID uniquely identifies this Sender instance, so a diagnostics surface can
// refer to it across progress polls.
func (s *Sender) ID() uuid.UUID { return s.id }

// NewSender inspects path and dispatches to single-file or folder
// construction. Folder construction hashes every file up front, since the
// manifest carries per-item hashes; the manifest's MD5 becomes the
// handshake checksum.
func NewSender(path string) (*Sender, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("transfer: stat %s: %w", path, err)
	}

	s := &Sender{
		id:        uuid.New(),
		filePath:  path,
		chunkSize: DefaultChunkSize,
	}

	if info.IsDir() {
		manifest, filePaths, err := buildManifest(path)
		if err != nil {
			return nil, err
		}

		manifestJSON, err := manifest.Marshal()
		if err != nil {
			return nil, fmt.Errorf("transfer: marshalling manifest: %w", err)
		}

		s.fileName = filepath.Base(path)
		s.transferType = protocol.TransferFolder
		s.manifestJSON = manifestJSON
		s.folderFilePaths = filePaths
		s.fileChecksum = checksum.ChunkMD5(manifestJSON)
		// file_size == 4 + manifest_len + Σ item.size, per spec.md §4.4.
		s.fileSize = 4 + uint64(len(manifestJSON)) + manifest.TotalSize

		return s, nil
	}

	fileChecksum, err := checksum.FileMD5(path)
	if err != nil {
		return nil, fmt.Errorf("transfer: hashing %s: %w", path, err)
	}

	s.fileName = filepath.Base(path)
	s.transferType = protocol.TransferSingleFile
	s.fileChecksum = fileChecksum
	s.fileSize = uint64(info.Size())

	return s, nil
}

// SetChunkSize overrides DefaultChunkSize.
func (s *Sender) SetChunkSize(n uint32) { s.chunkSize = n }

// SetResumeFrom pre-sets the resume chunk index, skipping the receiver's
// resume_index handshake read. Used by callers that already know the
// receiver's state out of band; normally left unset so send_to reads it
// from the wire.
func (s *Sender) SetResumeFrom(idx uint64) { s.resumeFromChunk = &idx }

// BytesSent returns the number of bytes sent so far.
func (s *Sender) BytesSent() uint64 { return atomic.LoadUint64(&s.bytesSent) }

// Progress returns a snapshot of bytes sent vs. total.
func (s *Sender) Progress() Progress {
	return Progress{BytesTransferred: s.BytesSent(), TotalBytes: s.fileSize}
}

// Cancel requests cooperative cancellation. In-flight socket operations
// still run to timeout; the flag is only checked between chunks.
func (s *Sender) Cancel() { atomic.StoreInt32(&s.cancelled, 1) }

func (s *Sender) isCancelled() bool { return atomic.LoadInt32(&s.cancelled) != 0 }

// TestConnection verifies reachability by connecting and immediately
// closing, without sending any protocol bytes (so as not to confuse a
// receiver expecting a handshake).
func (s *Sender) TestConnection(addr string) error {
	conn, err := net.DialTimeout("tcp", addr, ConnectTimeout)
	if err != nil {
		return err
	}
	return conn.Close()
}

// SendTo runs the sender state machine against addr, per spec.md §4.4.
func (s *Sender) SendTo(addr, senderName string) Outcome {
	conn, err := net.DialTimeout("tcp", addr, ConnectTimeout)
	if err != nil {
		return Outcome{Result: ResultConnectionFailed, Err: err}
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(AckTimeout))

	handshake := protocol.HandshakeRequest{
		Version:      protocol.Version,
		SenderName:   senderName,
		FileName:     s.fileName,
		FileSize:     s.fileSize,
		ChunkSize:    s.chunkSize,
		FileChecksum: s.fileChecksum,
		TransferType: s.transferType,
	}
	if err := handshake.WriteTo(conn); err != nil {
		return Outcome{Result: ResultIoError, Err: err}
	}

	conn.SetReadDeadline(time.Now().Add(HandshakeTimeout))
	decisionBuf := make([]byte, 1)
	if _, err := readFull(conn, decisionBuf); err != nil {
		return classifyIOError(err)
	}
	if protocol.Decision(decisionBuf[0]) == protocol.DecisionReject {
		return Outcome{Result: ResultRejected}
	}

	resumeChunk := uint64(0)
	if s.resumeFromChunk != nil {
		resumeChunk = *s.resumeFromChunk
	} else {
		resumeBuf := make([]byte, 8)
		if _, err := readFull(conn, resumeBuf); err != nil {
			return classifyIOError(err)
		}
		resumeChunk = beUint64(resumeBuf)
	}

	conn.SetDeadline(time.Now().Add(AckTimeout))

	reader, startOffset, err := s.buildReader(resumeChunk)
	if err != nil {
		return Outcome{Result: ResultIoError, Err: err}
	}
	defer reader.Close()

	atomic.StoreUint64(&s.bytesSent, uint64(startOffset))

	if err := s.sendChunks(conn, reader, startOffset); err != nil {
		if outcome, ok := err.(Outcome); ok {
			return outcome
		}
		return Outcome{Result: ResultIoError, Err: err}
	}

	verdictBuf := make([]byte, 1)
	if _, err := readFull(conn, verdictBuf); err != nil {
		return classifyIOError(err)
	}
	if protocol.Verdict(verdictBuf[0]) == protocol.VerdictSuccess {
		return Outcome{Result: ResultSuccess}
	}
	return Outcome{Result: ResultChecksumMismatch}
}

// buildReader constructs the MultiFileReader for this transfer (manifest
// head for folders, empty head for single files) and seeks it to the
// resume point.
func (s *Sender) buildReader(resumeChunk uint64) (*streaming.MultiFileReader, int64, error) {
	var head []byte
	var paths []string

	if s.transferType == protocol.TransferFolder {
		var frame []byte
		var lenBuf [4]byte
		putUint32(lenBuf[:], uint32(len(s.manifestJSON)))
		frame = append(frame, lenBuf[:]...)
		frame = append(frame, s.manifestJSON...)
		head = frame
		paths = s.folderFilePaths
	} else {
		paths = []string{s.filePath}
	}

	reader, err := streaming.NewMultiFileReader(head, paths)
	if err != nil {
		return nil, 0, err
	}

	startOffset := int64(resumeChunk) * int64(s.chunkSize)
	if s.chunkSize == 0 {
		startOffset = 0
	}
	if _, err := reader.Seek(startOffset, 0); err != nil {
		return nil, 0, err
	}

	return reader, startOffset, nil
}

// sendChunks runs the read-and-send loop, retrying each chunk up to
// MaxRetries times.
func (s *Sender) sendChunks(conn net.Conn, reader *streaming.MultiFileReader, startOffset int64) error {
	index := uint64(startOffset) / uint64max1(s.chunkSize)
	buf := make([]byte, s.chunkSize)

	for {
		if s.isCancelled() {
			return Outcome{Result: ResultCancelled}
		}

		n, readErr := readChunkFromReader(reader, buf)
		if n == 0 && readErr != nil {
			break // EOF: all data sent
		}

		data := buf[:n]
		rawSum := checksum.ChunkMD5Raw(data)

		if err := s.sendOneChunkWithRetry(conn, index, data, rawSum); err != nil {
			return err
		}

		atomic.AddUint64(&s.bytesSent, uint64(n))
		index++

		if readErr != nil {
			break
		}
	}

	return nil
}

func (s *Sender) sendOneChunkWithRetry(conn net.Conn, index uint64, data []byte, sum [16]byte) error {
	var lastErr error
	checksumExhausted := false

	for attempt := 0; attempt < MaxRetries; attempt++ {
		if s.isCancelled() {
			return Outcome{Result: ResultCancelled}
		}

		if err := protocol.WriteChunk(conn, index, data, sum); err != nil {
			lastErr = err
			checksumExhausted = false
			continue
		}

		ack, err := protocol.ReadAck(conn)
		if err != nil {
			lastErr = err
			checksumExhausted = false
			continue
		}
		if ack.Index != index {
			lastErr = fmt.Errorf("transfer: ack index mismatch: got %d, want %d", ack.Index, index)
			checksumExhausted = false
			continue
		}
		if ack.Status == protocol.ChunkChecksumMismatch {
			lastErr = fmt.Errorf("transfer: receiver reported checksum mismatch for chunk %d", index)
			checksumExhausted = true
			continue
		}

		return nil
	}

	if checksumExhausted {
		return Outcome{Result: ResultChecksumMismatch, Err: lastErr}
	}
	if isTimeout(lastErr) {
		return Outcome{Result: ResultTimeout, Err: lastErr}
	}
	return Outcome{Result: ResultIoError, Err: lastErr}
}

func readChunkFromReader(r *streaming.MultiFileReader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, fmtEOF()
		}
	}
	return total, nil
}
