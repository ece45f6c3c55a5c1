/*
File Name:  reader.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Package streaming provides the sender-side MultiFileReader, which
concatenates a head frame (for folder transfers, the manifest) and a
sequence of files into a single seekable byte stream, and the receiver-side
ReceiverWriter, which re-splits an incoming byte stream back into files and
directories.
*/
package streaming

import (
	"fmt"
	"io"
	"os"
)

// MultiFileReader presents head ∥ file_1 ∥ file_2 ∥ … as one seekable byte
// sequence. File sizes are cached at construction; files are opened lazily,
// one at a time. A Seek clears the currently open file so the next Read
// reopens and re-seeks from the correct offset.
type MultiFileReader struct {
	head  []byte
	paths []string
	sizes []int64

	totalSize    int64
	globalOffset int64

	currentFile    *os.File
	currentFileIdx int // -1 when no file is open
}

// NewMultiFileReader builds a reader over head followed by the files at
// paths, in order. File sizes are stat'd once at construction.
func NewMultiFileReader(head []byte, paths []string) (*MultiFileReader, error) {
	m := &MultiFileReader{
		head:           head,
		paths:          paths,
		sizes:          make([]int64, len(paths)),
		currentFileIdx: -1,
	}

	m.totalSize = int64(len(head))
	for i, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("streaming: stat %s: %w", p, err)
		}
		m.sizes[i] = info.Size()
		m.totalSize += info.Size()
	}

	return m, nil
}

// TotalSize returns the total byte length of head plus all files.
func (m *MultiFileReader) TotalSize() int64 {
	return m.totalSize
}

// Read implements io.Reader.
func (m *MultiFileReader) Read(p []byte) (n int, err error) {
	if m.globalOffset >= m.totalSize {
		return 0, io.EOF
	}

	// Serve from the head buffer first.
	if m.globalOffset < int64(len(m.head)) {
		n = copy(p, m.head[m.globalOffset:])
		m.globalOffset += int64(n)
		return n, nil
	}

	relativeOffset := m.globalOffset - int64(len(m.head))

	idx, offsetInFile, found := m.locate(relativeOffset)
	if !found {
		return 0, io.EOF
	}

	if m.currentFileIdx != idx {
		if err := m.openAt(idx, offsetInFile); err != nil {
			return 0, err
		}
	}

	n, err = m.currentFile.Read(p)
	m.globalOffset += int64(n)

	if err == io.EOF && n == 0 {
		// The source file is shorter than its cached size: truncated mid-stream.
		return n, fmt.Errorf("streaming: %w: %s ended early", io.ErrUnexpectedEOF, m.paths[idx])
	}
	if err == io.EOF {
		err = nil
	}

	return n, err
}

// Seek implements io.Seeker. It clears any open file state; the next Read
// reopens and re-seeks the right file.
func (m *MultiFileReader) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = m.globalOffset + offset
	case io.SeekEnd:
		target = m.totalSize + offset
	default:
		return 0, fmt.Errorf("streaming: invalid whence %d", whence)
	}

	if target < 0 || target > m.totalSize {
		return 0, fmt.Errorf("streaming: seek out of range: %d", target)
	}

	m.closeCurrent()
	m.globalOffset = target
	return target, nil
}

// Close releases the currently open file handle, if any.
func (m *MultiFileReader) Close() error {
	m.closeCurrent()
	return nil
}

func (m *MultiFileReader) closeCurrent() {
	if m.currentFile != nil {
		m.currentFile.Close()
		m.currentFile = nil
		m.currentFileIdx = -1
	}
}

// locate finds which file relativeOffset (an offset past the head) falls
// into, and the offset within that file.
func (m *MultiFileReader) locate(relativeOffset int64) (idx int, offsetInFile int64, found bool) {
	var consumed int64
	for i, size := range m.sizes {
		if relativeOffset < consumed+size {
			return i, relativeOffset - consumed, true
		}
		consumed += size
	}
	return 0, 0, false
}

func (m *MultiFileReader) openAt(idx int, offsetInFile int64) error {
	m.closeCurrent()

	f, err := os.Open(m.paths[idx])
	if err != nil {
		return fmt.Errorf("streaming: open %s: %w", m.paths[idx], err)
	}
	if offsetInFile > 0 {
		if _, err := f.Seek(offsetInFile, io.SeekStart); err != nil {
			f.Close()
			return fmt.Errorf("streaming: seek %s: %w", m.paths[idx], err)
		}
	}

	m.currentFile = f
	m.currentFileIdx = idx
	return nil
}
