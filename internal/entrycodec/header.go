// Package entrycodec implements the on-disk entry layout: the 4-byte
// header (key length, value length, header CRC-8), the key/value
// payload, the trailing payload CRC-32, and the program-granularity
// padding that rounds an entry up to the device's write unit.
//
// Layout (all offsets relative to the entry's start):
//
//	+0   header (4 bytes): key_len(1) | val_len_lo(1) | val_len_hi(1) | hdr_crc8(1)
//	+4   key     (key_len bytes)
//	+4+k value   (val_len bytes)
//	     payload_crc32 (4 bytes, little-endian)
//	     0xFF fill up to the next multiple of the program granularity
package entrycodec

import (
	"errors"

	"github.com/flashkv/flashkv/internal/checksum"
)

// HeaderSize is the fixed size of an entry header in bytes.
const HeaderSize = 4

// PayloadCRCSize is the size of the trailing payload CRC-32 in bytes.
const PayloadCRCSize = 4

// FillByte pads an entry out to the program granularity.
const FillByte = 0xFF

// MaxKeyLen and MaxValueLen are the largest key/value lengths the 1-byte
// and 2-byte header fields can express.
const (
	MaxKeyLen   = 255
	MaxValueLen = 65535
)

// ErrHeaderCRC is returned when a decoded header fails its CRC-8 check.
var ErrHeaderCRC = errors.New("entrycodec: header CRC-8 mismatch")

// ErrKeyTooLong and ErrValueTooLong are returned by EncodeHeader when a
// length exceeds what the header format can represent.
var (
	ErrKeyTooLong   = errors.New("entrycodec: key longer than 255 bytes")
	ErrValueTooLong = errors.New("entrycodec: value longer than 65535 bytes")
)

// Header is the decoded form of an entry's 4-byte header.
type Header struct {
	KeyLen uint8
	ValLen uint16
}

// IsBlockHeader reports whether this header describes a block header
// entry (key_length == 0). Non-header entries never have a zero key
// length; a zero-key entry is always a block header.
func (h Header) IsBlockHeader() bool {
	return h.KeyLen == 0
}

// IsTombstone reports whether this header describes a deletion
// tombstone (non-zero key length, zero value length).
func (h Header) IsTombstone() bool {
	return h.KeyLen != 0 && h.ValLen == 0
}

// EncodeHeader writes the 4-byte header for a key_len/val_len pair into
// buf (which must be at least HeaderSize bytes), including its CRC-8.
func EncodeHeader(buf []byte, keyLen int, valLen int) error {
	if keyLen < 0 || keyLen > MaxKeyLen {
		return ErrKeyTooLong
	}
	if valLen < 0 || valLen > MaxValueLen {
		return ErrValueTooLong
	}

	buf[0] = uint8(keyLen)
	buf[1] = uint8(valLen)
	buf[2] = uint8(valLen >> 8)
	buf[3] = checksum.CRC8(0, buf[0:3])
	return nil
}

// DecodeHeader validates and decodes a 4-byte header. It returns
// ErrHeaderCRC if the CRC-8 does not validate; a CRC failure always
// marks the end of live data in a block, never a hard error to the
// caller of a scan.
func DecodeHeader(buf []byte) (Header, error) {
	want := checksum.CRC8(0, buf[0:3])
	if buf[3] != want {
		return Header{}, ErrHeaderCRC
	}
	return Header{
		KeyLen: buf[0],
		ValLen: uint16(buf[1]) | uint16(buf[2])<<8,
	}, nil
}

// NextOffset returns the start of the next entry given this entry's
// start offset, header, and the program granularity, by rounding
// 4+keyLen+valLen+4 up to a multiple of granularity.
func NextOffset(start uint32, h Header, granularity uint32) uint32 {
	size := uint32(HeaderSize) + uint32(h.KeyLen) + uint32(h.ValLen) + uint32(PayloadCRCSize)
	return start + roundUp(size, granularity)
}

// Size returns the total on-disk size of an entry with the given key and
// value lengths at the given program granularity.
func Size(keyLen, valLen int, granularity uint32) uint32 {
	size := uint32(HeaderSize + keyLen + valLen + PayloadCRCSize)
	return roundUp(size, granularity)
}

func roundUp(n, align uint32) uint32 {
	return (n + align - 1) &^ (align - 1)
}
