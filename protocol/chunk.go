/*
File Name:  chunk.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/
package protocol

import (
	"io"
)

// ChunkHeaderSize is the size in bytes of a chunk frame's header (index + length).
const ChunkHeaderSize = 8 + 4

// ChunkChecksumSize is the size in bytes of a chunk frame's trailing raw MD5.
const ChunkChecksumSize = 16

// AckSize is the size in bytes of a chunk acknowledgement.
const AckSize = 8 + 1

// ChunkHeader is the fixed-size prefix of a chunk frame: index and length.
type ChunkHeader struct {
	Index  uint64
	Length uint32
}

// WriteChunk writes a full chunk frame: index | len | data | raw MD5.
func WriteChunk(w io.Writer, index uint64, data []byte, checksum [ChunkChecksumSize]byte) error {
	if err := writeUint64(w, index); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(data))); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if _, err := w.Write(checksum[:]); err != nil {
		return err
	}
	return nil
}

// ReadChunkHeader reads the 12-byte index+length header of a chunk frame.
func ReadChunkHeader(r io.Reader) (ChunkHeader, error) {
	index, err := readUint64(r)
	if err != nil {
		return ChunkHeader{}, err
	}
	length, err := readUint32(r)
	if err != nil {
		return ChunkHeader{}, err
	}
	return ChunkHeader{Index: index, Length: length}, nil
}

// ReadChunkChecksum reads the 16 trailing raw MD5 bytes of a chunk frame.
func ReadChunkChecksum(r io.Reader) (sum [ChunkChecksumSize]byte, err error) {
	_, err = io.ReadFull(r, sum[:])
	return sum, err
}

// Ack is a per-chunk acknowledgement sent by the receiver.
type Ack struct {
	Index  uint64
	Status ChunkStatus
}

// WriteTo encodes and writes the acknowledgement.
func (a Ack) WriteTo(w io.Writer) error {
	if err := writeUint64(w, a.Index); err != nil {
		return err
	}
	_, err := w.Write([]byte{byte(a.Status)})
	return err
}

// ReadAck decodes an acknowledgement from r.
func ReadAck(r io.Reader) (Ack, error) {
	index, err := readUint64(r)
	if err != nil {
		return Ack{}, err
	}
	var statusBuf [1]byte
	if _, err := io.ReadFull(r, statusBuf[:]); err != nil {
		return Ack{}, err
	}
	return Ack{Index: index, Status: ChunkStatus(statusBuf[0])}, nil
}
