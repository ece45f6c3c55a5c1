/*
File Name:  manifest.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// ManifestItem describes a single file inside a folder transfer.
type ManifestItem struct {
	Path string `json:"path"` // POSIX-slash relative path
	Size uint64 `json:"size"`
	Hash string `json:"hash"` // MD5 hex of the file's content
}

// TransferManifest is the ordered list of files making up a folder transfer.
// It is serialized as UTF-8 JSON and framed at the start of the data stream
// as `u32 len | bytes`.
type TransferManifest struct {
	Items     []ManifestItem `json:"items"`
	TotalSize uint64         `json:"total_size"`
}

// MaxManifestSize is the ceiling on manifest framing bytes (100 MiB); larger
// folder trees must fail fast rather than allocate unboundedly.
const MaxManifestSize = 100 * 1024 * 1024

// Marshal serializes the manifest to JSON bytes.
func (m TransferManifest) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalManifest parses JSON bytes into a TransferManifest.
func UnmarshalManifest(data []byte) (TransferManifest, error) {
	var m TransferManifest
	err := json.Unmarshal(data, &m)
	return m, err
}

// WriteManifestFrame writes the `u32 len | json` framing used at the start
// of a folder transfer's data stream.
func WriteManifestFrame(w io.Writer, manifestJSON []byte) error {
	if len(manifestJSON) > MaxManifestSize {
		return fmt.Errorf("protocol: manifest of %d bytes exceeds %d byte ceiling", len(manifestJSON), MaxManifestSize)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(manifestJSON)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(manifestJSON)
	return err
}
