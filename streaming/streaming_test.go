package streaming

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/voidwarp/core/checksum"
	"github.com/voidwarp/core/protocol"
)

func writeFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestMultiFileReaderConcatenatesFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.bin")
	b := filepath.Join(dir, "b.bin")

	writeFile(t, a, []byte("hello "))
	writeFile(t, b, []byte("world"))

	r, err := NewMultiFileReader([]byte("HEAD"), []string{a, b})
	if err != nil {
		t.Fatalf("NewMultiFileReader: %v", err)
	}
	defer r.Close()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "HEADhello world" {
		t.Fatalf("got %q", got)
	}
}

func TestMultiFileReaderSeek(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.bin")
	writeFile(t, a, []byte("0123456789"))

	r, err := NewMultiFileReader(nil, []string{a})
	if err != nil {
		t.Fatalf("NewMultiFileReader: %v", err)
	}
	defer r.Close()

	if _, err := r.Seek(5, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}

	got := make([]byte, 3)
	n, err := r.Read(got)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 3 || string(got) != "567" {
		t.Fatalf("got %q", got[:n])
	}
}

func TestMultiFileReaderTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.bin")
	writeFile(t, a, []byte("0123456789"))

	r, err := NewMultiFileReader(nil, []string{a})
	if err != nil {
		t.Fatalf("NewMultiFileReader: %v", err)
	}
	defer r.Close()

	// Truncate the file out from under the reader after size was cached.
	if err := os.Truncate(a, 2); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	_, err = io.ReadAll(r)
	if err == nil {
		t.Fatalf("expected unexpected-EOF error")
	}
}

func TestSingleFileWriter(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "nested", "out.bin")

	w, err := NewSingleFileWriter(target)
	if err != nil {
		t.Fatalf("NewSingleFileWriter: %v", err)
	}

	if _, err := w.Write([]byte("payload")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("got %q", got)
	}
}

func TestResumeSingleFileWriter(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out.bin")
	writeFile(t, target, bytes.Repeat([]byte{0xAA}, 100))

	w, err := NewResumeSingleFileWriter(target, 40)
	if err != nil {
		t.Fatalf("NewResumeSingleFileWriter: %v", err)
	}
	if _, err := w.Write([]byte("RESUMED")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(got) != 47 {
		t.Fatalf("expected truncated+appended length 47, got %d", len(got))
	}
	if string(got[40:]) != "RESUMED" {
		t.Fatalf("got suffix %q", got[40:])
	}
}

func TestFolderWriterRoundTrip(t *testing.T) {
	manifest := protocol.TransferManifest{
		Items: []protocol.ManifestItem{
			{Path: "a.txt", Size: 1},
			{Path: "sub/b.bin", Size: 5},
			{Path: "sub/empty.dat", Size: 0},
		},
		TotalSize: 6,
	}
	manifestJSON, err := manifest.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var stream bytes.Buffer
	if err := protocol.WriteManifestFrame(&stream, manifestJSON); err != nil {
		t.Fatalf("WriteManifestFrame: %v", err)
	}
	stream.WriteString("A")
	stream.Write([]byte{1, 2, 3, 4, 5})
	// empty.dat contributes no bytes.

	dir := t.TempDir()
	w, err := NewFolderWriter(dir)
	if err != nil {
		t.Fatalf("NewFolderWriter: %v", err)
	}

	data := stream.Bytes()
	for len(data) > 0 {
		// Feed in small uneven pieces to exercise the state machine's
		// partial-read handling.
		chunkLen := 3
		if chunkLen > len(data) {
			chunkLen = len(data)
		}
		n, err := w.Write(data[:chunkLen])
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		data = data[n:]
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	expectedSum := checksum.ChunkMD5(manifestJSON)
	if w.ManifestChecksum() != expectedSum {
		t.Fatalf("manifest checksum mismatch: got %s, want %s", w.ManifestChecksum(), expectedSum)
	}

	aContent, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatalf("ReadFile a.txt: %v", err)
	}
	if string(aContent) != "A" {
		t.Fatalf("a.txt content = %q", aContent)
	}

	bContent, err := os.ReadFile(filepath.Join(dir, "sub", "b.bin"))
	if err != nil {
		t.Fatalf("ReadFile b.bin: %v", err)
	}
	if !bytes.Equal(bContent, []byte{1, 2, 3, 4, 5}) {
		t.Fatalf("b.bin content = %v", bContent)
	}

	emptyInfo, err := os.Stat(filepath.Join(dir, "sub", "empty.dat"))
	if err != nil {
		t.Fatalf("Stat empty.dat: %v", err)
	}
	if emptyInfo.Size() != 0 {
		t.Fatalf("expected empty.dat to be 0 bytes, got %d", emptyInfo.Size())
	}
}

func TestFolderWriterOversizedManifestRejected(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFolderWriter(dir)
	if err != nil {
		t.Fatalf("NewFolderWriter: %v", err)
	}

	var lenBuf [4]byte
	lenBuf[0] = 0x10 // sets the length field far above MaxManifestSize
	_, err = w.Write(lenBuf[:])
	if err == nil {
		t.Fatalf("expected error for oversized manifest length")
	}
}

func TestFolderWriterTrailingBytesDiscarded(t *testing.T) {
	manifest := protocol.TransferManifest{Items: nil, TotalSize: 0}
	manifestJSON, _ := manifest.Marshal()

	var stream bytes.Buffer
	protocol.WriteManifestFrame(&stream, manifestJSON)
	stream.WriteString("unexpected trailing bytes")

	dir := t.TempDir()
	w, err := NewFolderWriter(dir)
	if err != nil {
		t.Fatalf("NewFolderWriter: %v", err)
	}

	consumed, err := w.Write(stream.Bytes())
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if consumed != stream.Len() {
		t.Fatalf("expected all bytes consumed, got %d of %d", consumed, stream.Len())
	}
}
