/*
File Name:  Identity.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/

package core

import (
	"encoding/binary"
	"encoding/hex"
	"time"

	"lukechampine.com/blake3"
)

// DeviceIdentity identifies this engine instance for the lifetime of the
// process. It is created once at Init and never persisted, per spec.md §6
// ("persistent state: none on disk").
type DeviceIdentity struct {
	DeviceID   string // 16 hex characters.
	DeviceName string
}

// NewDeviceIdentity derives a fresh DeviceID from the current time, the
// same way the teacher derives its node ID as the blake3 hash of the
// peer's public key: here there is no keypair (non-goal: strong auth), so
// the hash input is the nanosecond timestamp instead, matching
// crypto.rs's DeviceIdentity::generate.
func NewDeviceIdentity(deviceName string) DeviceIdentity {
	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], uint64(time.Now().UnixNano()))

	sum := blake3.Sum256(seed[:])

	return DeviceIdentity{
		DeviceID:   hex.EncodeToString(sum[:8]),
		DeviceName: deviceName,
	}
}
