package entrycodec

import (
	"github.com/flashkv/flashkv/device"
)

// Writer funnels every entry append through a single program-granularity
// -aware buffer. Writes narrower than the granularity are held in the
// buffer until either a later write fills the page or Pad is called to
// fill the remainder with FillByte and flush it. This is the "program
// buffer" of spec.md §4.3: one Writer is shared by the allocator across
// the whole store's lifetime and reused for every entry.
type Writer struct {
	dev         device.Device
	granularity uint32

	buf     []byte // scratch page, len == granularity
	pending int    // bytes of buf[0:pending] not yet programmed
	pageOff uint32 // absolute offset the pending bytes start at

	cur uint32 // next absolute offset Write will place data at
}

// NewWriter returns a Writer over dev with the given program granularity.
func NewWriter(dev device.Device, granularity uint32) *Writer {
	return &Writer{
		dev:         dev,
		granularity: granularity,
		buf:         make([]byte, granularity),
	}
}

// Reset begins a new entry at off, which must be aligned to the program
// granularity (true of every entry start per the store's invariants).
func (w *Writer) Reset(off uint32) {
	w.pending = 0
	w.pageOff = off
	w.cur = off
}

// Pos returns the writer's current absolute cursor.
func (w *Writer) Pos() uint32 {
	return w.cur
}

// Write appends data at the writer's current cursor, flushing full pages
// to the device as they fill and buffering any partial tail.
func (w *Writer) Write(data []byte) error {
	gran := int(w.granularity)

	for len(data) > 0 {
		if w.pending == 0 && len(data) >= gran {
			// Fast path: a full aligned page, write it directly.
			if err := w.flush(w.cur, data[:gran]); err != nil {
				return err
			}
			w.cur += w.granularity
			w.pageOff = w.cur
			data = data[gran:]
			continue
		}

		n := copy(w.buf[w.pending:], data)
		w.pending += n
		w.cur += uint32(n)
		data = data[n:]

		if w.pending == gran {
			if err := w.flush(w.pageOff, w.buf); err != nil {
				return err
			}
			w.pending = 0
			w.pageOff = w.cur
		}
	}

	return nil
}

// Pad fills the remainder of any in-progress page with FillByte and
// flushes it. It is a no-op if the writer sits on a page boundary.
func (w *Writer) Pad() error {
	if w.pending == 0 {
		return nil
	}

	for i := w.pending; i < len(w.buf); i++ {
		w.buf[i] = FillByte
	}

	if err := w.flush(w.pageOff, w.buf); err != nil {
		return err
	}

	w.cur = w.pageOff + w.granularity
	w.pending = 0
	w.pageOff = w.cur
	return nil
}

func (w *Writer) flush(off uint32, data []byte) error {
	if err := w.dev.Prog(off, data); err != nil {
		return err
	}
	return device.Comp(w.dev, off, data)
}
