/*
File Name:  writer.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/
package streaming

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/voidwarp/core/checksum"
	"github.com/voidwarp/core/protocol"
)

// ReceiverWriter is driven by repeated Write calls as chunk data arrives. It
// re-splits the incoming byte stream back into a single file or, for folder
// transfers, a full directory tree described by the leading manifest frame.
type ReceiverWriter interface {
	// Write consumes p and returns the number of bytes consumed, which is
	// len(p) unless an error occurs. Once all manifest items are fully
	// written, trailing bytes past the last item are counted as consumed
	// and silently discarded.
	Write(p []byte) (consumed int, err error)

	// ManifestChecksum returns the MD5 hex of the manifest JSON bytes, once
	// the manifest has been fully read. Empty for SingleFile writers.
	ManifestChecksum() string

	Flush() error
	Close() error
}

// singleFileWriter writes directly to one target file.
type singleFileWriter struct {
	f *os.File
}

// NewSingleFileWriter creates (overwriting) the target file, creating any
// missing parent directories.
func NewSingleFileWriter(path string) (ReceiverWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("streaming: mkdir for %s: %w", path, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("streaming: create %s: %w", path, err)
	}

	return &singleFileWriter{f: f}, nil
}

// NewResumeSingleFileWriter opens path in write mode, truncates it to
// resumeLength, and seeks to the end, so subsequent writes append from the
// resume point.
func NewResumeSingleFileWriter(path string, resumeLength int64) (ReceiverWriter, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("streaming: open %s for resume: %w", path, err)
	}
	if err := f.Truncate(resumeLength); err != nil {
		f.Close()
		return nil, fmt.Errorf("streaming: truncate %s: %w", path, err)
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, fmt.Errorf("streaming: seek %s: %w", path, err)
	}

	return &singleFileWriter{f: f}, nil
}

func (s *singleFileWriter) Write(p []byte) (int, error) { return s.f.Write(p) }
func (s *singleFileWriter) ManifestChecksum() string    { return "" }
func (s *singleFileWriter) Flush() error                { return s.f.Sync() }
func (s *singleFileWriter) Close() error                { return s.f.Close() }

// folderState is the sub-state machine driving a folderWriter.
type folderState int

const (
	stateReadingManifestLen folderState = iota
	stateReadingManifest
	stateWritingFiles
	stateError
)

// folderWriter implements ReceiverWriter for Folder transfers, per §4.6:
// ReadingManifestLen -> ReadingManifest -> WritingFiles.
type folderWriter struct {
	basePath string
	state    folderState

	lenBuf    [4]byte
	lenFilled int
	manifestLen uint32

	manifestBuf []byte

	manifest       protocol.TransferManifest
	manifestSum    string
	currentIdx     int
	currentOffset  int64
	currentFile    *os.File

	errMsg string
}

// NewFolderWriter creates a writer that expects the manifest-framed stream
// described in §4.6, writing files under basePath.
func NewFolderWriter(basePath string) (ReceiverWriter, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("streaming: mkdir base %s: %w", basePath, err)
	}
	return &folderWriter{basePath: basePath, state: stateReadingManifestLen}, nil
}

func (w *folderWriter) ManifestChecksum() string { return w.manifestSum }

func (w *folderWriter) Write(p []byte) (consumed int, err error) {
	for len(p) > 0 {
		switch w.state {
		case stateReadingManifestLen:
			n := copy(w.lenBuf[w.lenFilled:], p)
			w.lenFilled += n
			consumed += n
			p = p[n:]

			if w.lenFilled == len(w.lenBuf) {
				w.manifestLen = binary.BigEndian.Uint32(w.lenBuf[:])
				if w.manifestLen > protocol.MaxManifestSize {
					w.state = stateError
					w.errMsg = fmt.Sprintf("manifest length %d exceeds %d byte ceiling", w.manifestLen, protocol.MaxManifestSize)
					return consumed, fmt.Errorf("streaming: %s", w.errMsg)
				}
				w.manifestBuf = make([]byte, 0, w.manifestLen)
				w.state = stateReadingManifest
			}

		case stateReadingManifest:
			remaining := int(w.manifestLen) - len(w.manifestBuf)
			n := remaining
			if n > len(p) {
				n = len(p)
			}
			w.manifestBuf = append(w.manifestBuf, p[:n]...)
			consumed += n
			p = p[n:]

			if len(w.manifestBuf) == int(w.manifestLen) {
				if err := w.finishManifest(); err != nil {
					w.state = stateError
					w.errMsg = err.Error()
					return consumed, err
				}
				w.state = stateWritingFiles
			}

		case stateWritingFiles:
			n, err := w.writeToCurrentItem(p)
			consumed += n
			p = p[n:]
			if err != nil {
				w.state = stateError
				w.errMsg = err.Error()
				return consumed, err
			}
			if w.currentIdx >= len(w.manifest.Items) {
				// Past the last item: silently consume remaining bytes.
				consumed += len(p)
				return consumed, nil
			}

		case stateError:
			return consumed, fmt.Errorf("streaming: writer in error state: %s", w.errMsg)
		}
	}

	// Zero-size items receive no stream bytes; create any that follow the
	// bytes written so far.
	for w.state == stateWritingFiles && w.currentIdx < len(w.manifest.Items) && w.manifest.Items[w.currentIdx].Size == 0 {
		if _, err := w.writeToCurrentItem(nil); err != nil {
			w.state = stateError
			w.errMsg = err.Error()
			return consumed, err
		}
	}

	return consumed, nil
}

func (w *folderWriter) finishManifest() error {
	w.manifestSum = checksum.ChunkMD5(w.manifestBuf)

	m, err := protocol.UnmarshalManifest(w.manifestBuf)
	if err != nil {
		return fmt.Errorf("streaming: parsing manifest: %w", err)
	}
	w.manifest = m

	for _, item := range m.Items {
		if err := validateManifestPath(item.Path); err != nil {
			return err
		}
		full := filepath.Join(w.basePath, filepath.FromSlash(item.Path))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			return fmt.Errorf("streaming: mkdir for %s: %w", item.Path, err)
		}
	}

	return nil
}

// validateManifestPath rejects paths that would escape basePath.
func validateManifestPath(p string) error {
	if p == "" {
		return fmt.Errorf("streaming: empty manifest item path")
	}
	if filepath.IsAbs(p) || strings.Contains(p, "..") {
		return fmt.Errorf("streaming: unsafe manifest item path %q", p)
	}
	return nil
}

func (w *folderWriter) writeToCurrentItem(p []byte) (consumed int, err error) {
	if w.currentIdx >= len(w.manifest.Items) {
		return 0, nil
	}

	item := w.manifest.Items[w.currentIdx]
	full := filepath.Join(w.basePath, filepath.FromSlash(item.Path))

	if w.currentFile == nil {
		if item.Size == 0 {
			f, err := os.Create(full)
			if err != nil {
				return 0, fmt.Errorf("streaming: create empty %s: %w", item.Path, err)
			}
			f.Close()
			w.currentIdx++
			w.currentOffset = 0
			return 0, nil
		}

		f, err := os.Create(full)
		if err != nil {
			return 0, fmt.Errorf("streaming: create %s: %w", item.Path, err)
		}
		w.currentFile = f
	}

	remainingInFile := int64(item.Size) - w.currentOffset
	n := int64(len(p))
	if n > remainingInFile {
		n = remainingInFile
	}

	if n > 0 {
		written, err := w.currentFile.Write(p[:n])
		consumed = written
		w.currentOffset += int64(written)
		if err != nil {
			return consumed, fmt.Errorf("streaming: writing %s: %w", item.Path, err)
		}
	}

	if w.currentOffset >= int64(item.Size) {
		if err := w.currentFile.Close(); err != nil {
			return consumed, fmt.Errorf("streaming: closing %s: %w", item.Path, err)
		}
		w.currentFile = nil
		w.currentIdx++
		w.currentOffset = 0
	}

	return consumed, nil
}

func (w *folderWriter) Flush() error {
	if w.currentFile != nil {
		return w.currentFile.Sync()
	}
	return nil
}

func (w *folderWriter) Close() error {
	if w.currentFile != nil {
		return w.currentFile.Close()
	}
	return nil
}
