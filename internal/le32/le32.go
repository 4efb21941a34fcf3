// Package le32 provides the little-endian 32-bit scalar codec used for
// entry headers, wrap counters, and payload checksums.
package le32

import "encoding/binary"

// Put writes v into buf[0:4] little-endian.
func Put(buf []byte, v uint32) {
	binary.LittleEndian.PutUint32(buf, v)
}

// Get reads a little-endian uint32 from buf[0:4].
func Get(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf)
}
