// Package gc implements compaction: walking every still-live entry in
// the log forward into a fresh block, so the blocks behind it become
// free for the write cursor to reclaim.
package gc

import (
	"github.com/flashkv/flashkv/device"
	"github.com/flashkv/flashkv/internal/alloc"
	"github.com/flashkv/flashkv/internal/scan"
)

// Compactor drives one round of compaction at a time, so a caller can
// bound how much work a single call does.
type Compactor struct {
	dev         device.Device
	alloc       *alloc.Allocator
	blockCount  uint32
	spareCount  uint32
	granularity uint32
}

// New returns a Compactor operating over alloc's log. spareCount is the
// number of blocks permanently reserved for compaction to copy into;
// it must match the value the store was configured with.
func New(dev device.Device, a *alloc.Allocator, blockCount, spareCount, granularity uint32) *Compactor {
	return &Compactor{dev: dev, alloc: a, blockCount: blockCount, spareCount: spareCount, granularity: granularity}
}

// CompactOne runs one round of the protocol spec.md describes: advance
// the write block once (that new block becomes the copy destination),
// then reclaim everything still live behind it.
func (c *Compactor) CompactOne() error {
	c.alloc.AdvanceBlock()
	return c.reclaim()
}

// Repair replays a compaction pass into the current block without
// advancing into a new one first. The caller must have already reset
// the allocator's cursor to the current block's start (discarding
// whatever partial copies a previous, interrupted compaction left
// there) before calling this; see internal/mount's recovery step.
func (c *Compactor) Repair() error {
	return c.reclaim()
}

// reclaim walks every entry that was part of the live window a moment
// ago — the window that block_advance(current block, spareCount) has
// just been demoted out of — and copies forward the ones that are not
// tombstones and not superseded by a later write. That source range
// never overlaps the current block. A retrying copy advances at most
// spareCount blocks, so its last retry can reach the first block of the
// range; by then that block has been read in full, because the copies
// taken from any run of source blocks fit in as many destination blocks.
func (c *Compactor) reclaim() error {
	blockSize := c.alloc.BlockSize()
	currentBlock := c.alloc.Bend() - blockSize
	wc := c.alloc.WrapCounter()

	for e, err := range scan.WalkReclaimed(c.dev, blockSize, c.blockCount, c.spareCount, c.granularity, currentBlock, wc) {
		if err != nil {
			return err
		}
		if e.Header.IsTombstone() {
			continue
		}

		key := make([]byte, e.Header.KeyLen)
		if err := e.Key(c.dev).ReadAt(key, 0); err != nil {
			return err
		}

		liveCurrentBlock := c.alloc.Bend() - blockSize
		superseded, err := scan.HasLaterMatch(c.dev, key, blockSize, c.blockCount, c.granularity, e.Block, e.Next, liveCurrentBlock, c.alloc.Pos())
		if err != nil {
			return err
		}
		if superseded {
			continue
		}

		if err := c.copyForward(e); err != nil {
			return err
		}
	}

	return nil
}

// copyForward appends e's key/value into the active write block,
// advancing into a fresh block and retrying up to spareCount times if
// the destination fills mid-copy.
func (c *Compactor) copyForward(e scan.Entry) error {
	key := e.Key(c.dev)
	value := e.Value(c.dev)

	for attempt := uint32(0); ; attempt++ {
		_, err := c.alloc.Append(key, value)
		if err == nil {
			return nil
		}
		if err != alloc.ErrNoSpace || attempt == c.spareCount {
			return err
		}
		c.alloc.AdvanceBlock()
	}
}
