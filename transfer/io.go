/*
File Name:  io.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/
package transfer

import (
	"encoding/binary"
	"io"
	"net"
)

// readFull reads exactly len(buf) bytes, treating a clean EOF the same as
// any other short read since the wire protocol never sends a frame of
// length zero mid-stream.
func readFull(r io.Reader, buf []byte) (int, error) {
	return io.ReadFull(r, buf)
}

func beUint64(b []byte) uint64 { return binary.BigEndian.Uint64(b) }

func putUint32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }

// uint64max1 avoids a divide-by-zero when chunkSize is left unset.
func uint64max1(chunkSize uint32) uint64 {
	if chunkSize == 0 {
		return 1
	}
	return uint64(chunkSize)
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

func fmtEOF() error { return io.EOF }

// classifyIOError turns a raw read/write error into the matching Outcome.
func classifyIOError(err error) Outcome {
	if isTimeout(err) {
		return Outcome{Result: ResultTimeout, Err: err}
	}
	return Outcome{Result: ResultIoError, Err: err}
}
