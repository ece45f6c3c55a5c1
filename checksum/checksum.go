/*
File Name:  checksum.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Package checksum computes MD5 digests over files and byte slices. It is the
integrity primitive used by the wire protocol (handshake and per-chunk
checksums) and by the streaming writer (manifest verification).
*/
package checksum

import (
	"bufio"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// bufferSize is the read buffer used while hashing files.
const bufferSize = 4 * 1024 * 1024

// Size is the length in bytes of a raw MD5 digest.
const Size = md5.Size

// FileMD5 returns the hex-encoded MD5 digest of the file at path.
func FileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	r := bufio.NewReaderSize(f, bufferSize)

	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("checksum: reading %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// ChunkMD5 returns the hex-encoded MD5 digest of data.
func ChunkMD5(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// ChunkMD5Raw returns the raw 16-byte MD5 digest of data.
func ChunkMD5Raw(data []byte) [Size]byte {
	return md5.Sum(data)
}

// VerifyFile reports whether the file at path has the expected hex-encoded
// MD5 digest. The comparison is case-insensitive, matching the wire format's
// ASCII hex checksum field.
func VerifyFile(path, expectedHex string) (bool, error) {
	actual, err := FileMD5(path)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(actual, expectedHex), nil
}
