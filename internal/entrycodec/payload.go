package entrycodec

import (
	"github.com/flashkv/flashkv/internal/checksum"
	"github.com/flashkv/flashkv/internal/le32"
)

// bufSize is the chunk size used to stream key/value/cookie bytes when
// checksumming or copying, keeping the working set small and constant
// regardless of value size.
const bufSize = 64

// Source is a byte-range data source a payload can be read from: either
// a plain in-memory slice (for a fresh Write) or an existing on-disk
// entry's key/value area (for compaction's copy-forward).
type Source interface {
	// Len returns the number of bytes this source provides.
	Len() uint32
	// ReadAt copies len(dst) bytes starting at off into dst.
	ReadAt(dst []byte, off uint32) error
}

// BytesSource adapts a plain byte slice to Source.
type BytesSource []byte

func (b BytesSource) Len() uint32 { return uint32(len(b)) }

func (b BytesSource) ReadAt(dst []byte, off uint32) error {
	copy(dst, b[off:int(off)+len(dst)])
	return nil
}

// streamCRC32 feeds src through a CRC-32 streamer in bufSize chunks.
func streamCRC32(s *checksum.Streamer, src Source) error {
	buf := make([]byte, bufSize)
	var off uint32
	remaining := src.Len()
	for remaining > 0 {
		n := remaining
		if n > bufSize {
			n = bufSize
		}
		if err := src.ReadAt(buf[:n], off); err != nil {
			return err
		}
		s.Write(buf[:n])
		off += n
		remaining -= n
	}
	return nil
}

// streamCopy streams src through w, bufSize bytes at a time.
func streamCopy(w *Writer, src Source) error {
	buf := make([]byte, bufSize)
	var off uint32
	remaining := src.Len()
	for remaining > 0 {
		n := remaining
		if n > bufSize {
			n = bufSize
		}
		if err := src.ReadAt(buf[:n], off); err != nil {
			return err
		}
		if err := w.Write(buf[:n]); err != nil {
			return err
		}
		off += n
		remaining -= n
	}
	return nil
}

// AppendEntry writes a complete entry (header, key, value, payload CRC-32,
// fill) starting at w's current cursor, which must already be positioned
// at a reserved, granularity-aligned offset. key and value may be backed
// by in-memory slices or by another on-disk entry (for GC copy-forward).
func AppendEntry(w *Writer, key, value Source) error {
	var hdr [HeaderSize]byte
	if err := EncodeHeader(hdr[:], int(key.Len()), int(value.Len())); err != nil {
		return err
	}
	if err := w.Write(hdr[:]); err != nil {
		return err
	}

	crc := checksum.NewStreamer(0)
	if err := streamCRC32(crc, key); err != nil {
		return err
	}
	if err := streamCopy(w, key); err != nil {
		return err
	}

	if err := streamCRC32(crc, value); err != nil {
		return err
	}
	if err := streamCopy(w, value); err != nil {
		return err
	}

	var crcBuf [PayloadCRCSize]byte
	le32.Put(crcBuf[:], crc.Sum32())
	if err := w.Write(crcBuf[:]); err != nil {
		return err
	}

	return w.Pad()
}
