package channel

import "encoding/binary"

// NonceTo96 expands a 16-bit counter into the 12-byte AEAD nonce this
// module uses: ten zero bytes followed by the big-endian encoding of n.
// This is deliberately asymmetric with the little-endian 16-bit prefix
// used on the wire (the payload framing in channelmgr/payload.go).
func NonceTo96(n uint16) [12]byte {
	var out [12]byte
	binary.BigEndian.PutUint16(out[10:], n)
	return out
}

// NonceFrom96 is the inverse of NonceTo96.
func NonceFrom96(b [12]byte) uint16 {
	return binary.BigEndian.Uint16(b[10:])
}
