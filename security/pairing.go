/*
File Name:  pairing.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Package security implements the pairing scaffolding described in spec.md:
a 6-digit code for out-of-band confirmation between two devices, and a
session key derivable from it. Neither is consulted by package protocol or
package transfer; the wire stays plaintext, per spec.md's non-goal of
"authentication beyond pairing-code display".
*/
package security

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// PairingCode is a 6-digit decimal code shown to the user on both devices
// for out-of-band confirmation.
type PairingCode struct {
	digits string
}

// GeneratePairingCode returns a fresh random 6-digit code.
func GeneratePairingCode() PairingCode {
	var buf [6]byte
	digits := make([]byte, 6)
	if _, err := io.ReadFull(rand.Reader, buf[:]); err != nil {
		// crypto/rand.Reader does not fail on supported platforms; this is
		// unreachable in practice but keeps the function total.
		panic(fmt.Sprintf("security: reading random pairing code: %v", err))
	}
	for i, b := range buf {
		digits[i] = '0' + b%10
	}
	return PairingCode{digits: string(digits)}
}

// ParsePairingCode accepts either the raw 6-digit form or the hyphenated
// display form ("123-456") and validates it is exactly 6 ASCII digits.
func ParsePairingCode(s string) (PairingCode, error) {
	raw := strings.ReplaceAll(s, "-", "")
	if len(raw) != 6 {
		return PairingCode{}, fmt.Errorf("security: pairing code must be 6 digits, got %q", s)
	}
	for _, c := range raw {
		if c < '0' || c > '9' {
			return PairingCode{}, fmt.Errorf("security: pairing code must be all digits, got %q", s)
		}
	}
	return PairingCode{digits: raw}, nil
}

// Display returns the hyphenated form ("123-456") for showing to a user.
func (p PairingCode) Display() string {
	return p.digits[:3] + "-" + p.digits[3:]
}

// Raw returns the 6-digit code with no separator, for cryptographic use.
func (p PairingCode) Raw() string { return p.digits }

// SessionKeySize is the length in bytes of a derived session key (AES-256).
const SessionKeySize = 32

// DeriveSessionKey derives a 32-byte key from a pairing code and a
// connection-specific salt via HKDF-SHA256. The result is never used on
// the transfer data path today; it exists so a future authenticated
// transport has a well-defined key to build on.
func DeriveSessionKey(code PairingCode, salt []byte) ([SessionKeySize]byte, error) {
	var key [SessionKeySize]byte

	kdf := hkdf.New(sha256.New, []byte(code.Raw()), salt, []byte("voidwarp-session-key"))
	if _, err := io.ReadFull(kdf, key[:]); err != nil {
		return key, fmt.Errorf("security: deriving session key: %w", err)
	}
	return key, nil
}
