package protocol

import (
	"bytes"
	"testing"
)

func TestHandshakeRoundTrip(t *testing.T) {
	cases := []HandshakeRequest{
		{
			Version:      Version,
			SenderName:   "alice-phone",
			FileName:     "photo.jpg",
			FileSize:     123456,
			ChunkSize:    1024 * 1024,
			FileChecksum: "d41d8cd98f00b204e9800998ecf8427e",
			TransferType: TransferSingleFile,
		},
		{
			Version:      Version,
			SenderName:   "",
			FileName:     "a-folder",
			FileSize:     0,
			ChunkSize:    0,
			FileChecksum: "",
			TransferType: TransferFolder,
		},
	}

	for i, want := range cases {
		var buf bytes.Buffer
		if err := want.WriteTo(&buf); err != nil {
			t.Fatalf("case %d: WriteTo: %v", i, err)
		}

		got, err := ReadHandshakeRequest(&buf)
		if err != nil {
			t.Fatalf("case %d: ReadHandshakeRequest: %v", i, err)
		}

		if got != want {
			t.Fatalf("case %d: round-trip mismatch: got %+v, want %+v", i, got, want)
		}
	}
}

func TestHandshakeVersionMismatch(t *testing.T) {
	h := HandshakeRequest{Version: 99, TransferType: TransferSingleFile}
	if err := h.CheckVersion(); err == nil {
		t.Fatalf("expected error for version 99")
	}

	ok := HandshakeRequest{Version: Version}
	if err := ok.CheckVersion(); err != nil {
		t.Fatalf("unexpected error for current version: %v", err)
	}
}

func TestChunkRoundTrip(t *testing.T) {
	data := []byte("some chunk payload bytes")
	checksum := [ChunkChecksumSize]byte{1, 2, 3, 4}

	var buf bytes.Buffer
	if err := WriteChunk(&buf, 7, data, checksum); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}

	header, err := ReadChunkHeader(&buf)
	if err != nil {
		t.Fatalf("ReadChunkHeader: %v", err)
	}
	if header.Index != 7 || int(header.Length) != len(data) {
		t.Fatalf("unexpected header: %+v", header)
	}

	got := make([]byte, header.Length)
	if _, err := buf.Read(got); err != nil {
		t.Fatalf("reading data: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("data mismatch")
	}

	gotSum, err := ReadChunkChecksum(&buf)
	if err != nil {
		t.Fatalf("ReadChunkChecksum: %v", err)
	}
	if gotSum != checksum {
		t.Fatalf("checksum mismatch: got %v, want %v", gotSum, checksum)
	}
}

func TestAckRoundTrip(t *testing.T) {
	want := Ack{Index: 42, Status: ChunkChecksumMismatch}

	var buf bytes.Buffer
	if err := want.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	got, err := ReadAck(&buf)
	if err != nil {
		t.Fatalf("ReadAck: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestManifestRoundTrip(t *testing.T) {
	want := TransferManifest{
		Items: []ManifestItem{
			{Path: "a.txt", Size: 1, Hash: "0cc175b9c0f1b6a831c399e269772661"},
			{Path: "sub/b.bin", Size: 2500000, Hash: "d41d8cd98f00b204e9800998ecf8427e"},
			{Path: "sub/empty.dat", Size: 0, Hash: "d41d8cd98f00b204e9800998ecf8427e"},
		},
		TotalSize: 2500001,
	}

	data, err := want.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := UnmarshalManifest(data)
	if err != nil {
		t.Fatalf("UnmarshalManifest: %v", err)
	}

	if len(got.Items) != len(want.Items) || got.TotalSize != want.TotalSize {
		t.Fatalf("mismatch: got %+v, want %+v", got, want)
	}
}

func TestWriteManifestFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	oversized := make([]byte, MaxManifestSize+1)

	if err := WriteManifestFrame(&buf, oversized); err == nil {
		t.Fatalf("expected error for oversized manifest")
	}
}

func TestWriteManifestFrameLayout(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"items":[],"total_size":0}`)

	if err := WriteManifestFrame(&buf, payload); err != nil {
		t.Fatalf("WriteManifestFrame: %v", err)
	}

	if buf.Len() != 4+len(payload) {
		t.Fatalf("unexpected frame size: %d", buf.Len())
	}
}
