package blsct

import (
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
)

// addressHRP is the human-readable part used for this wallet's
// bech32m-encoded sub-addresses, the same encoding scheme btcsuite's
// stack uses for witness addresses.
const addressHRP = "blsct"

// EncodeAddress renders sub as a bech32m string: the 96-byte
// concatenation of its blinding and spending public keys, base32
// packed per BIP-173/350.
func EncodeAddress(sub SubAddr) (string, error) {
	data := make([]byte, 0, PublicKeySize*2)
	data = append(data, sub.Blinding[:]...)
	data = append(data, sub.Spend[:]...)
	converted, err := bech32.ConvertBits(data, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("blsct: packing address bits: %w", err)
	}
	addr, err := bech32.EncodeM(addressHRP, converted)
	if err != nil {
		return "", fmt.Errorf("blsct: encoding address: %w", err)
	}
	return addr, nil
}

// DecodeAddress parses a bech32m sub-address string back into its
// (blindingKey, spendingKey) pair.
func DecodeAddress(addr string) (SubAddr, error) {
	hrp, data, err := bech32.DecodeNoLimit(addr)
	if err != nil {
		return SubAddr{}, fmt.Errorf("blsct: decoding address: %w", err)
	}
	if hrp != addressHRP {
		return SubAddr{}, fmt.Errorf("blsct: unexpected address prefix %q", hrp)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return SubAddr{}, fmt.Errorf("blsct: unpacking address bits: %w", err)
	}
	if len(raw) != PublicKeySize*2 {
		return SubAddr{}, fmt.Errorf("blsct: address payload is %d bytes, want %d", len(raw), PublicKeySize*2)
	}
	var sub SubAddr
	copy(sub.Blinding[:], raw[:PublicKeySize])
	copy(sub.Spend[:], raw[PublicKeySize:])
	return sub, nil
}
