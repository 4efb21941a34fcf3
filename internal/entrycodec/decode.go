package entrycodec

import (
	"errors"

	"github.com/flashkv/flashkv/device"
	"github.com/flashkv/flashkv/internal/checksum"
	"github.com/flashkv/flashkv/internal/le32"
)

// ErrOutOfBlock is returned when a decoded entry's computed end would
// leave the block it started in.
var ErrOutOfBlock = errors.New("entrycodec: entry would cross block boundary")

// Decoded is a header decode result paired with the offsets that bound
// it, mirroring what a scan needs to keep moving.
type Decoded struct {
	Start  uint32
	Next   uint32
	Header Header
}

// DecodeAt reads and validates the header at start, computing Next from
// the granularity-rounded entry size. It fails if the header's CRC-8
// does not validate or if the computed next offset would leave
// [blockBase, blockBase+blockSize).
func DecodeAt(dev device.Device, start, blockBase, blockSize, granularity uint32) (Decoded, error) {
	var hdr [HeaderSize]byte
	if err := dev.Read(start, hdr[:]); err != nil {
		return Decoded{}, err
	}

	h, err := DecodeHeader(hdr[:])
	if err != nil {
		return Decoded{}, err
	}

	next := NextOffset(start, h, granularity)
	blockEnd := blockBase + blockSize
	if next > blockEnd || next <= start {
		return Decoded{}, ErrOutOfBlock
	}

	return Decoded{Start: start, Next: next, Header: h}, nil
}

// DeviceSource reads a field (key, value, or metadata tail) directly from
// an on-disk entry, without buffering it into memory up front. Off is
// the field's absolute device offset and N its length.
type DeviceSource struct {
	Dev device.Device
	Off uint32
	N   uint32
}

func (s DeviceSource) Len() uint32 { return s.N }

func (s DeviceSource) ReadAt(dst []byte, off uint32) error {
	return s.Dev.Read(s.Off+off, dst)
}

// KeySource returns a Source over the on-disk key bytes of the entry
// described by d.
func (d Decoded) KeySource(dev device.Device) DeviceSource {
	return DeviceSource{Dev: dev, Off: d.Start + HeaderSize, N: uint32(d.Header.KeyLen)}
}

// ValueSource returns a Source over the on-disk value bytes of the entry
// described by d.
func (d Decoded) ValueSource(dev device.Device) DeviceSource {
	return DeviceSource{Dev: dev, Off: d.Start + HeaderSize + uint32(d.Header.KeyLen), N: uint32(d.Header.ValLen)}
}

// VerifyPayloadCRC streams the entry's key and value bytes back off the
// device and compares them against the stored payload CRC-32. This is
// intentionally not done by DecodeAt: header validation is cheap and
// happens on every scan step, while the payload check is only worth
// paying for once an entry is about to be handed to a caller or copied
// by GC.
func (d Decoded) VerifyPayloadCRC(dev device.Device) (bool, error) {
	crc := checksum.NewStreamer(0)

	if err := streamCRC32(crc, d.KeySource(dev)); err != nil {
		return false, err
	}
	if err := streamCRC32(crc, d.ValueSource(dev)); err != nil {
		return false, err
	}

	crcOff := d.Start + HeaderSize + uint32(d.Header.KeyLen) + uint32(d.Header.ValLen)
	var stored [PayloadCRCSize]byte
	if err := dev.Read(crcOff, stored[:]); err != nil {
		return false, err
	}

	return crc.Sum32() == le32.Get(stored[:]), nil
}
