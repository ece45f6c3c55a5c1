/*
File Name:  types.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Package protocol implements the byte-exact wire encoders/decoders for the
transfer handshake, chunk frames, chunk acknowledgements, and folder
manifests. All integers are big-endian.
*/
package protocol

// Version is the handshake protocol version this package speaks.
const Version uint8 = 1

// TransferType tags whether a transfer carries a single file or a folder.
type TransferType uint8

const (
	TransferSingleFile TransferType = 0
	TransferFolder     TransferType = 1
)

func (t TransferType) String() string {
	switch t {
	case TransferSingleFile:
		return "SingleFile"
	case TransferFolder:
		return "Folder"
	default:
		return "Unknown"
	}
}

// Decision is the 1-byte accept/reject response to a handshake.
type Decision uint8

const (
	DecisionReject Decision = 0x00
	DecisionAccept Decision = 0x01
)

// Verdict is the 1-byte final success/failure response after all chunks.
type Verdict uint8

const (
	VerdictFail    Verdict = 0x00
	VerdictSuccess Verdict = 0x01
)

// ChunkStatus is the 1-byte status field of a chunk acknowledgement.
type ChunkStatus uint8

const (
	ChunkOK               ChunkStatus = 0
	ChunkChecksumMismatch ChunkStatus = 1
)
