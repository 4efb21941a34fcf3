// Package checksum implements the two nibble-table checksums the on-disk
// entry format relies on: a CRC-8 over the 3-byte entry header and a
// CRC-32 over an entry's key||value payload.
package checksum

// crc8Table is the CCITT-style (polynomial 0x07) nibble table. Processing
// a byte two nibbles at a time keeps the table to 16 entries instead of
// the usual 256.
var crc8Table = [16]uint8{
	0x00, 0x07, 0x0e, 0x09, 0x1c, 0x1b, 0x12, 0x15,
	0x38, 0x3f, 0x36, 0x31, 0x24, 0x23, 0x2a, 0x2d,
}

// CRC8 computes the CCITT-like CRC-8 of buf, starting from crc. Header
// checksums always start from 0.
func CRC8(crc uint8, buf []byte) uint8 {
	for _, b := range buf {
		crc ^= b
		crc = (crc << 4) ^ crc8Table[crc>>4]
		crc = (crc << 4) ^ crc8Table[crc>>4]
	}
	return crc
}
