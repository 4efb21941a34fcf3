// Package mount implements the discovery and recovery steps spec.md's
// mount protocol runs before a store is ready for reads and writes:
// finding which block is the current write block and where its write
// cursor sits, then checking whether a prior compaction pass was cut
// short and, if so, replaying it.
package mount

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/flashkv/flashkv/device"
	"github.com/flashkv/flashkv/internal/alloc"
	"github.com/flashkv/flashkv/internal/gc"
	"github.com/flashkv/flashkv/internal/scan"
)

// Head is the allocator state recovered by scanning every block for its
// header, before the write cursor itself has been located within it.
type Head struct {
	Pos         uint32
	Bend        uint32
	WrapCounter uint32

	// Populated marks every block index that carried a structurally
	// valid block-header entry at scan time. It is block-level
	// bookkeeping for this one mount pass (and for callers such as an
	// "info" diagnostic), not a key index.
	Populated *bitset.BitSet
}

// FindHead scans every block base (all block_count of them, not bounded
// by spare_count: a fresh mount does not yet know which blocks are
// spares) for a valid block header, and returns the state belonging to
// the one with the highest wrap counter, ties broken toward the higher
// block index. A region with no valid header anywhere is a fresh,
// never-written store: wrap counter 0, cursor at block 0's start.
func FindHead(dev device.Device, blockSize, blockCount, granularity uint32) (Head, error) {
	head := Head{Pos: 0, Bend: blockSize, WrapCounter: 0, Populated: bitset.New(uint(blockCount))}

	for i := uint32(0); i < blockCount; i++ {
		base := i * blockSize

		wrap, has, err := scan.BlockWrapCounter(dev, base, blockSize, granularity)
		if err != nil {
			return Head{}, err
		}
		if !has {
			continue
		}
		head.Populated.Set(uint(i))
		if wrap >= head.WrapCounter {
			head.WrapCounter = wrap
			head.Pos = base
			head.Bend = base + blockSize
		}
	}

	return head, nil
}

// FindOffset decodes forward from head's block base until decoding
// fails, an entry's payload CRC-32 does not validate, or the block's
// end is reached, and returns the offset one past the last entry
// trusted as complete — the next writable offset. It uses scan.BlockRaw
// rather than scan.Block because the two need opposite behavior on a
// bad payload CRC: every ordinary read/walk/GC path (scan.Block) skips
// such an entry and keeps going, falling back to an older version or
// NotFound, but a power cut can land mid-write after the header (whose
// own CRC-8 happened to still validate) but before the value or its
// trailing CRC-32 finished landing — FindOffset must stop dead at that
// point, since everything from there to the old bend is leftover bytes
// from a previous lap, not data to skip past and keep scanning.
func FindOffset(dev device.Device, head Head, blockSize, granularity uint32) (uint32, error) {
	pos := head.Pos

	for e, err := range scan.BlockRaw(dev, head.Pos, blockSize, granularity, head.Bend) {
		if err != nil {
			return 0, err
		}
		ok, err := e.VerifyPayloadCRC(dev)
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		pos = e.Next
	}

	return pos, nil
}

// Run discovers the allocator state for an existing log and repairs it
// if a compaction pass was interrupted mid-copy, returning an Allocator
// ready for Append/Seek-based reads.
func Run(dev device.Device, blockSize, blockCount, spareCount, granularity uint32, cookie []byte) (*alloc.Allocator, error) {
	head, err := FindHead(dev, blockSize, blockCount, granularity)
	if err != nil {
		return nil, err
	}

	pos, err := FindOffset(dev, head, blockSize, granularity)
	if err != nil {
		return nil, err
	}

	a := alloc.New(dev, blockSize, blockCount, granularity, cookie)
	a.Seek(pos, head.Bend, head.WrapCounter)

	if err := Recover(dev, a, blockCount, spareCount, granularity); err != nil {
		return nil, err
	}

	return a, nil
}

// Recover checks whether the compaction pass that last ran against a
// was interrupted before it finished copying the block it started
// with, and if so, discards whatever partial copies survived and
// replays the pass. A store mounted cleanly (no crash mid-compaction)
// is always a no-op here.
func Recover(dev device.Device, a *alloc.Allocator, blockCount, spareCount, granularity uint32) error {
	blockSize := a.BlockSize()
	currentBlock := a.Bend() - blockSize

	interrupted, err := detectInterruptedCompaction(dev, blockSize, blockCount, spareCount, granularity, currentBlock, a.WrapCounter(), a.Pos())
	if err != nil {
		return err
	}
	if !interrupted {
		return nil
	}

	a.Seek(currentBlock, a.Bend(), a.WrapCounter())
	return gc.New(dev, a, blockCount, spareCount, granularity).Repair()
}

// detectInterruptedCompaction looks at exactly one block: the oldest
// block in the current write block's reclaim window (the first block
// WalkReclaimed would visit were compaction to run now). A completed
// compaction pass always starts by copying that block's entries
// forward, so if any of its still-live, not-yet-superseded entries has
// no corresponding copy anywhere between it and the write cursor, the
// compaction that should have carried it forward was cut short.
func detectInterruptedCompaction(dev device.Device, blockSize, blockCount, spareCount, granularity, currentBlock, wc, pos uint32) (bool, error) {
	victim := alloc.BlockAdvance(currentBlock, spareCount, blockSize, blockSize*blockCount)

	for e, err := range scan.WalkReclaimed(dev, blockSize, blockCount, spareCount, granularity, currentBlock, wc) {
		if err != nil {
			return false, err
		}
		if e.Block != victim {
			break
		}

		key := make([]byte, e.Header.KeyLen)
		if err := e.Key(dev).ReadAt(key, 0); err != nil {
			return false, err
		}

		later, err := scan.HasLaterMatch(dev, key, blockSize, blockCount, granularity, e.Block, e.Next, currentBlock, pos)
		if err != nil {
			return false, err
		}
		if !later {
			return true, nil
		}
	}

	return false, nil
}
