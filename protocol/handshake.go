/*
File Name:  handshake.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/
package protocol

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// HandshakeRequest is the initial metadata packet sent by the sender before
// any data bytes. For Folder transfers, FileName is the folder's base name,
// FileSize is the manifest-framing bytes plus the sum of file sizes, and
// FileChecksum is the MD5 of the manifest JSON bytes (not of any file).
type HandshakeRequest struct {
	Version      uint8
	SenderName   string
	FileName     string
	FileSize     uint64
	ChunkSize    uint32
	FileChecksum string
	TransferType TransferType
}

// maxNameLen is the maximum length encodable in the u8 name-length fields.
const maxNameLen = 255

// WriteTo encodes the handshake and writes it to w.
func (h HandshakeRequest) WriteTo(w io.Writer) (err error) {
	bw := bufio.NewWriter(w)

	senderName := clampString(h.SenderName, maxNameLen)
	fileName := clampString(h.FileName, 1<<16-1)
	checksum := clampString(h.FileChecksum, maxNameLen)

	if err = bw.WriteByte(h.Version); err != nil {
		return err
	}
	if err = bw.WriteByte(byte(len(senderName))); err != nil {
		return err
	}
	if _, err = bw.WriteString(senderName); err != nil {
		return err
	}
	if err = writeUint16(bw, uint16(len(fileName))); err != nil {
		return err
	}
	if _, err = bw.WriteString(fileName); err != nil {
		return err
	}
	if err = writeUint64(bw, h.FileSize); err != nil {
		return err
	}
	if err = writeUint32(bw, h.ChunkSize); err != nil {
		return err
	}
	if err = bw.WriteByte(byte(len(checksum))); err != nil {
		return err
	}
	if _, err = bw.WriteString(checksum); err != nil {
		return err
	}
	if err = bw.WriteByte(byte(h.TransferType)); err != nil {
		return err
	}

	return bw.Flush()
}

// ReadHandshakeRequest decodes a HandshakeRequest from r. A version mismatch
// against Version is returned as an error by the caller, not here, so callers
// can distinguish "malformed" from "valid but unsupported version".
//
// r is read byte-for-byte with no internal buffering: on a net.Conn, a
// buffered reader here would read ahead past the handshake and strand the
// first chunk-frame bytes in a buffer this function discards on return.
func ReadHandshakeRequest(r io.Reader) (h HandshakeRequest, err error) {
	if h.Version, err = readByte(r); err != nil {
		return h, err
	}

	senderNameLen, err := readByte(r)
	if err != nil {
		return h, err
	}
	senderName, err := readString(r, int(senderNameLen))
	if err != nil {
		return h, err
	}
	h.SenderName = senderName

	fileNameLen, err := readUint16(r)
	if err != nil {
		return h, err
	}
	fileName, err := readString(r, int(fileNameLen))
	if err != nil {
		return h, err
	}
	h.FileName = fileName

	if h.FileSize, err = readUint64(r); err != nil {
		return h, err
	}
	if h.ChunkSize, err = readUint32(r); err != nil {
		return h, err
	}

	checksumLen, err := readByte(r)
	if err != nil {
		return h, err
	}
	checksum, err := readString(r, int(checksumLen))
	if err != nil {
		return h, err
	}
	h.FileChecksum = checksum

	transferType, err := readByte(r)
	if err != nil {
		return h, err
	}
	h.TransferType = TransferType(transferType)

	return h, nil
}

func readByte(r io.Reader) (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// CheckVersion returns an error if h was encoded with an unsupported
// protocol version.
func (h HandshakeRequest) CheckVersion() error {
	if h.Version != Version {
		return fmt.Errorf("protocol: unsupported handshake version %d, expected %d", h.Version, Version)
	}
	return nil
}

func clampString(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

func readString(r io.Reader, n int) (string, error) {
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeUint16(w io.Writer, v uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint16(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}
