// SPDX-License-Identifier: BUSL-1.1
//
// Base58Check address encoding over mr-tron/base58.
package core

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// AddressVersion is Neo's address version byte.
const AddressVersion byte = 0x35

// EncodeAddress renders a U160 script hash as a Base58Check address:
// base58(version ‖ scriptHash ‖ checksum[:4]).
func EncodeAddress(hash U160) string {
	payload := make([]byte, 0, 25)
	payload = append(payload, AddressVersion)
	payload = append(payload, hash[:]...)
	checksum := doubleSHA256(payload)
	payload = append(payload, checksum[:4]...)
	return base58.Encode(payload)
}

// DecodeAddress parses a Base58Check address back into a script hash,
// validating the version byte and checksum.
func DecodeAddress(addr string) (U160, error) {
	raw, err := base58.Decode(addr)
	if err != nil {
		return U160{}, fmt.Errorf("base58 decode: %w", err)
	}
	if len(raw) != 25 {
		return U160{}, fmt.Errorf("address: expected 25 bytes, got %d", len(raw))
	}
	if raw[0] != AddressVersion {
		return U160{}, fmt.Errorf("address: unexpected version byte 0x%02x", raw[0])
	}
	payload, checksum := raw[:21], raw[21:]
	want := doubleSHA256(payload)
	for i := 0; i < 4; i++ {
		if checksum[i] != want[i] {
			return U160{}, fmt.Errorf("address: checksum mismatch")
		}
	}
	var hash U160
	copy(hash[:], payload[1:])
	return hash, nil
}
