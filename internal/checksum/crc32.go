package checksum

// crc32Table is the nibble table for the reflected polynomial 0xedb88320
// (the standard CRC-32 used by zip/ethernet/etc), processed 4 bits at a
// time instead of the usual 8.
var crc32Table = [16]uint32{
	0x00000000, 0x1db71064, 0x3b6e20c8, 0x26d930ac,
	0x76dc4190, 0x6b6b51f4, 0x4db26158, 0x5005713c,
	0xedb88320, 0xf00f9344, 0xd6d6a3e8, 0xcb61b38c,
	0x9b64c2b0, 0x86d3d2d4, 0xa00ae278, 0xbdbdf21c,
}

// CRC32 computes the reflected, complemented CRC-32 of buf. Pass 0 to
// start a new checksum, or a previous return value to continue one: the
// final complement applied on return is undone on entry, so chaining
// calls over consecutive chunks yields the checksum of their
// concatenation. Streamer does the same without the per-call complement.
func CRC32(crc uint32, buf []byte) uint32 {
	crc = ^crc
	for _, b := range buf {
		crc = (crc >> 4) ^ crc32Table[(crc^uint32(b))&0x0f]
		crc = (crc >> 4) ^ crc32Table[(crc^(uint32(b)>>4))&0x0f]
	}
	return ^crc
}

// Streamer accumulates a CRC-32 across multiple Write calls without the
// caller having to manage the complement dance themselves.
type Streamer struct {
	reg uint32
}

// NewStreamer returns a Streamer seeded at the given initial value (the
// store always seeds with 0 before streaming key, value, and cookie
// bytes).
func NewStreamer(init uint32) *Streamer {
	return &Streamer{reg: ^init}
}

// Write feeds buf into the running checksum.
func (s *Streamer) Write(buf []byte) {
	for _, b := range buf {
		s.reg = (s.reg >> 4) ^ crc32Table[(s.reg^uint32(b))&0x0f]
		s.reg = (s.reg >> 4) ^ crc32Table[(s.reg^(uint32(b)>>4))&0x0f]
	}
}

// Sum32 returns the checksum of everything written so far.
func (s *Streamer) Sum32() uint32 {
	return ^s.reg
}
