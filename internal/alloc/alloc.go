// Package alloc implements the circular log allocator: the write cursor,
// block-end tracking, wrap counter, and block-header bookkeeping that
// every append goes through.
//
// Allocator is not internally synchronized. The store serializes all
// mutating calls through the backend's optional lock (see package
// device), matching this store's single-owner concurrency model; see
// spec.md §5.
package alloc

import (
	"errors"

	"github.com/flashkv/flashkv/device"
	"github.com/flashkv/flashkv/internal/entrycodec"
	"github.com/flashkv/flashkv/internal/le32"
)

// ErrNoSpace is returned by Append when an entry does not fit in the
// remaining space of the current write block.
var ErrNoSpace = errors.New("alloc: entry does not fit in current block")

// Allocator owns the write cursor (pos), the end of the current
// writable block (bend), and the wrap counter.
type Allocator struct {
	dev         device.Device
	writer      *entrycodec.Writer
	blockSize   uint32
	blockCount  uint32
	granularity uint32
	cookie      []byte

	pos         uint32
	bend        uint32
	wrapCounter uint32
}

// New returns an Allocator over dev. Pos and WrapCounter start at zero
// and Bend at blockSize (the end of block 0); callers restoring mount
// state call Seek before any Append.
func New(dev device.Device, blockSize, blockCount, granularity uint32, cookie []byte) *Allocator {
	return &Allocator{
		dev:         dev,
		writer:      entrycodec.NewWriter(dev, granularity),
		blockSize:   blockSize,
		blockCount:  blockCount,
		granularity: granularity,
		cookie:      cookie,
		bend:        blockSize,
	}
}

// Seek restores allocator state discovered during mount.
func (a *Allocator) Seek(pos, bend, wrapCounter uint32) {
	a.pos = pos
	a.bend = bend
	a.wrapCounter = wrapCounter
}

func (a *Allocator) Pos() uint32         { return a.pos }
func (a *Allocator) Bend() uint32        { return a.bend }
func (a *Allocator) WrapCounter() uint32 { return a.wrapCounter }

// RegionSize is the total size of the circular log, block_size * block_count.
func (a *Allocator) RegionSize() uint32 { return a.blockSize * a.blockCount }

// BlockSize returns the configured block size.
func (a *Allocator) BlockSize() uint32 { return a.blockSize }

// BlockAdvance adds n*block_size to pos, modulo the region size.
func (a *Allocator) BlockAdvance(pos, n uint32) uint32 {
	return BlockAdvance(pos, n, a.blockSize, a.RegionSize())
}

// BlockAdvance adds n*blockSize to pos, modulo regionSize. It is exposed
// as a free function so mount/gc code can compute offsets without an
// Allocator in hand yet.
func BlockAdvance(pos, n, blockSize, regionSize uint32) uint32 {
	for range n {
		pos += blockSize
		if pos >= regionSize {
			pos -= regionSize
		}
	}
	return pos
}

// NextBlock returns the start offset of the block that would become
// current after AdvanceBlock, without mutating the allocator. Unlike
// Bend (a block *end*, valid range (0, regionSize]), this is always a
// valid block *start* — the right form for a caller like gc that needs
// to read the block before it becomes the write target.
//
// This is derived from bend, not pos: invariant 2 permits pos == bend
// (a block filled exactly), at which point pos already numerically sits
// at the next block's base, and pos/blockSize would name the block
// after that one, skipping a block (and, if the skipped block is block
// 0, the wrap counter increment that belongs to it).
func (a *Allocator) NextBlock() uint32 {
	idx := a.bend/a.blockSize - 1
	idx = (idx + 1) % a.blockCount
	return idx * a.blockSize
}

// AdvanceBlock moves bend to the next block and resets pos to that
// block's start, incrementing the wrap counter whenever the cursor
// wraps back to offset 0. This is deliberately not expressed in terms
// of BlockAdvance: bend holds a block *end* (valid range (0,
// regionSize]), and BlockAdvance's wraparound rule is written for
// block *starts* (valid range [0, regionSize)) — reusing it here would
// wrap the last block's end (which legitimately equals regionSize)
// back to 0 one block early. Block-index arithmetic sidesteps the
// ambiguity entirely.
func (a *Allocator) AdvanceBlock() {
	a.pos = a.NextBlock()
	a.bend = a.pos + a.blockSize
	if a.pos == 0 {
		a.wrapCounter++
	}
}

// Poison abandons the current block by jumping pos to bend, so a
// partially written entry left by a backend failure is never mistaken
// for live data by a future scan.
func (a *Allocator) Poison() {
	a.pos = a.bend
}

// Append writes a block header (if the cursor currently sits at a block
// boundary) followed by a user entry for key/value. It returns the
// entry's start offset.
func (a *Allocator) Append(key, value entrycodec.Source) (uint32, error) {
	if err := a.maybeWriteBlockHeader(); err != nil {
		return 0, err
	}
	return a.appendRaw(key, value)
}

// maybeWriteBlockHeader appends a metadata entry (key_length == 0,
// value == wrap_counter || cookie) when pos sits at a block-aligned
// offset. It is called before every user append.
func (a *Allocator) maybeWriteBlockHeader() error {
	if a.pos%a.blockSize != 0 {
		return nil
	}

	meta := make([]byte, 4+len(a.cookie))
	le32.Put(meta[0:4], a.wrapCounter)
	copy(meta[4:], a.cookie)

	_, err := a.appendRaw(entrycodec.BytesSource(nil), entrycodec.BytesSource(meta))
	return err
}

func (a *Allocator) appendRaw(key, value entrycodec.Source) (uint32, error) {
	need := entrycodec.Size(int(key.Len()), int(value.Len()), a.granularity)
	if need > a.bend-a.pos {
		return 0, ErrNoSpace
	}

	start := a.pos
	a.writer.Reset(start)

	if err := entrycodec.AppendEntry(a.writer, key, value); err != nil {
		a.Poison()
		return 0, err
	}

	a.pos = a.writer.Pos()

	if err := device.Sync(a.dev, a.pos); err != nil {
		return 0, err
	}

	return start, nil
}
