// Package scan implements the read-side of the log: the forward
// per-block entry iterator, the block-header wrap-counter check that
// tells a scan where live data ends, the backward multi-block key
// lookup, and the whole-region walk used by compaction and by the
// public Walk/WalkUnique API.
package scan

import (
	"bytes"
	"iter"

	"github.com/flashkv/flashkv/device"
	"github.com/flashkv/flashkv/internal/entrycodec"
	"github.com/flashkv/flashkv/internal/le32"
)

// Entry is a decoded, positioned log entry: everything a caller needs to
// read its key/value back off the device, plus the base of the block it
// lives in.
type Entry struct {
	entrycodec.Decoded
	Block uint32
}

// Key returns a Source over this entry's on-disk key bytes.
func (e Entry) Key(dev device.Device) entrycodec.DeviceSource { return e.KeySource(dev) }

// Value returns a Source over this entry's on-disk value bytes.
func (e Entry) Value(dev device.Device) entrycodec.DeviceSource { return e.ValueSource(dev) }

// matchesKey reports whether e's on-disk key equals key.
func matchesKey(dev device.Device, e Entry, key []byte) (bool, error) {
	if int(e.Header.KeyLen) != len(key) {
		return false, nil
	}
	buf := make([]byte, len(key))
	if err := e.Key(dev).ReadAt(buf, 0); err != nil {
		return false, err
	}
	return bytes.Equal(buf, key), nil
}

// BlockWrapCounter reads the block header entry at a block's start, if
// any. hasHeader is false for a block that has never been written to in
// the current lap (an erased/fill-byte block, or a freshly provisioned
// one) — that is a normal condition, not an error.
func BlockWrapCounter(dev device.Device, base, blockSize, granularity uint32) (wrap uint32, hasHeader bool, err error) {
	d, err := entrycodec.DecodeAt(dev, base, base, blockSize, granularity)
	if err != nil {
		if err == entrycodec.ErrHeaderCRC || err == entrycodec.ErrOutOfBlock {
			return 0, false, nil
		}
		return 0, false, err
	}
	if !d.Header.IsBlockHeader() {
		return 0, false, nil
	}
	var buf [4]byte
	if err := d.ValueSource(dev).ReadAt(buf[:], 0); err != nil {
		return 0, false, err
	}
	return le32.Get(buf[:]), true, nil
}

// decodeBlock decodes entries starting at pos (which need not be base,
// so a caller can resume mid-block) and stops at end, treating a
// header-CRC failure or an entry that would cross the block boundary
// as the (silent) end of live data. It does not look at payload CRCs
// at all; see blockFrom and BlockRaw for the two different things
// callers do with that.
func decodeBlock(dev device.Device, pos, base, blockSize, granularity, end uint32) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for pos < end {
			d, err := entrycodec.DecodeAt(dev, pos, base, blockSize, granularity)
			if err != nil {
				if err == entrycodec.ErrHeaderCRC || err == entrycodec.ErrOutOfBlock {
					return
				}
				yield(Entry{}, err)
				return
			}
			if !yield(Entry{Decoded: d, Block: base}, nil) {
				return
			}
			pos = d.Next
		}
	}
}

// blockFrom is decodeBlock filtered down to entries whose payload
// CRC-32 also validates — the form every read/walk/GC-copy path needs.
// spec.md §4.3 calls the payload check lazy: done at the point an
// entry is about to be returned to a user or copied by GC, not on
// every scan step regardless of outcome. An entry that fails it is
// skipped, not yielded, the same way the original's walk() drops a
// bad-kvcrc entry with a bare continue and lets the scan fall back to
// an older version or NotFound, rather than handing back bytes that
// were never actually written.
func blockFrom(dev device.Device, pos, base, blockSize, granularity, end uint32) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for e, err := range decodeBlock(dev, pos, base, blockSize, granularity, end) {
			if err != nil {
				yield(Entry{}, err)
				return
			}
			ok, err := e.VerifyPayloadCRC(dev)
			if err != nil {
				yield(Entry{}, err)
				return
			}
			if !ok {
				continue
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

// BlockRaw yields every structurally decodable entry starting at base,
// without blockFrom's payload-CRC filtering. internal/mount's
// FindOffset is the one caller that needs this: it must treat the
// first payload CRC failure as the boundary between trusted and
// untrusted data and stop there, not silently skip past it the way
// every other consumer of a block does.
func BlockRaw(dev device.Device, base, blockSize, granularity, end uint32) iter.Seq2[Entry, error] {
	return decodeBlock(dev, base, base, blockSize, granularity, end)
}

// Block yields every decoded entry whose payload CRC-32 validates
// (including the block header entry itself, if present) starting at
// base, stopping at end (end must be <= base+blockSize). An entry whose
// payload CRC-32 fails is skipped. A genuine backend I/O error is
// yielded once, then iteration stops.
func Block(dev device.Device, base, blockSize, granularity, end uint32) iter.Seq2[Entry, error] {
	return blockFrom(dev, base, base, blockSize, granularity, end)
}

// searchBlockForKey scans [base, end) forward and returns the last
// (newest) non-block-header entry whose key matches, since later
// offsets within a block always supersede earlier ones.
func searchBlockForKey(dev device.Device, base, blockSize, granularity, end uint32, key []byte) (Entry, bool, error) {
	var (
		found Entry
		ok    bool
	)
	for e, err := range Block(dev, base, blockSize, granularity, end) {
		if err != nil {
			return Entry{}, false, err
		}
		if e.Header.IsBlockHeader() {
			continue
		}
		match, err := matchesKey(dev, e, key)
		if err != nil {
			return Entry{}, false, err
		}
		if match {
			found, ok = e, true
		}
	}
	return found, ok, nil
}

// expectedWrap returns the wrap counter a block at idx should carry
// given that the current write block is idx c with wrap counter wc.
// Block 0 always starts a new lap, so every block up to and including c
// was written in the current lap (wc); every later block still holds
// whatever it was written with last lap (wc-1), or was never written at
// all if this is the store's first lap (wc == 0).
func expectedWrap(idx, c, wc uint32) (expected uint32, neverWritten bool) {
	if idx <= c {
		return wc, false
	}
	if wc == 0 {
		return 0, true
	}
	return wc - 1, false
}

// EntryGet performs the bounded backward scan spec.md describes as the
// store's only lookup path: starting at the current write block (bounded
// by pos, the live write cursor) and walking backward block by block, it
// returns the newest entry for key. It searches at most
// blockCount-spareCount blocks (the spare window reserved for
// compaction is never part of the live, readable log) and stops early
// if it crosses into a block that does not carry the wrap counter the
// backward walk expects, since nothing beyond that point is part of the
// live log either. A tombstone for key masks any older write and is
// reported as not-found.
//
// wc is the allocator's current, authoritative wrap counter. It cannot
// be re-derived from the current block's on-disk header: immediately
// after AdvanceBlock, that block has not been written to yet in the new
// lap and its header (if any) is a stale leftover from the lap before.
func EntryGet(dev device.Device, key []byte, blockSize, blockCount, spareCount, granularity, currentBlock, pos, wc uint32) (Entry, bool, error) {
	c := currentBlock / blockSize

	if e, ok, err := searchBlockForKey(dev, currentBlock, blockSize, granularity, pos, key); err != nil {
		return Entry{}, false, err
	} else if ok {
		if e.Header.IsTombstone() {
			return Entry{}, false, nil
		}
		return e, true, nil
	}

	limit := blockCount - spareCount
	for step := uint32(1); step < limit; step++ {
		idx := (c + blockCount - step) % blockCount
		base := idx * blockSize

		expected, neverWritten := expectedWrap(idx, c, wc)

		wrap, has, err := BlockWrapCounter(dev, base, blockSize, granularity)
		if err != nil {
			return Entry{}, false, err
		}

		if neverWritten {
			break
		}
		if !has || wrap != expected {
			break
		}

		e, ok, err := searchBlockForKey(dev, base, blockSize, granularity, base+blockSize, key)
		if err != nil {
			return Entry{}, false, err
		}
		if ok {
			if e.Header.IsTombstone() {
				return Entry{}, false, nil
			}
			return e, true, nil
		}
	}

	return Entry{}, false, nil
}

// Walk yields every live, non-block-header entry in the region in
// chronological order: from the oldest live block (spareCount blocks
// past the current write block, the spare window itself is never
// live) forward to the current write block, bounded by pos in that
// final block. It stops as soon as a block fails the same wrap-counter
// check EntryGet uses, since blocks past that point (if any remain
// unvisited) hold stale data from before the log's current lap. wc is
// the allocator's authoritative wrap counter; see EntryGet for why it
// cannot be re-derived from the current block's on-disk header.
func Walk(dev device.Device, blockSize, blockCount, spareCount, granularity, currentBlock, pos, wc uint32) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		c := currentBlock / blockSize
		limit := blockCount - spareCount

		for step := uint32(1); step < limit; step++ {
			idx := (c + spareCount + step) % blockCount
			base := idx * blockSize

			expected, neverWritten := expectedWrap(idx, c, wc)

			wrap, has, err := BlockWrapCounter(dev, base, blockSize, granularity)
			if err != nil {
				yield(Entry{}, err)
				return
			}

			if neverWritten {
				if has {
					// A block that should still be untouched this lap
					// carries a header: treat as corruption and stop.
					return
				}
				continue
			}
			if !has || wrap != expected {
				return
			}

			for e, err := range Block(dev, base, blockSize, granularity, base+blockSize) {
				if err != nil {
					yield(Entry{}, err)
					return
				}
				if e.Header.IsBlockHeader() {
					continue
				}
				if !yield(e, nil) {
					return
				}
			}
		}

		for e, err := range Block(dev, currentBlock, blockSize, granularity, pos) {
			if err != nil {
				yield(Entry{}, err)
				return
			}
			if e.Header.IsBlockHeader() {
				continue
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

// WalkReclaimed yields every live, non-block-header entry that was part
// of the live window immediately before currentBlock became the current
// write block — the exact set of data compaction must carry forward
// before the block at block_advance(currentBlock, spareCount) is
// demoted into the spare window. This window has the same length as
// Walk's own live window but sits one block earlier, ending at the
// block before currentBlock instead of at currentBlock: Walk deliberately never
// reads the block adjacent to the spare window (by invariant it should
// already be empty, having been vacated by the compaction that demoted
// it last time), but the round of compaction doing that vacating has to
// read it once to find out. wc is the allocator's wrap counter as of
// currentBlock becoming current.
func WalkReclaimed(dev device.Device, blockSize, blockCount, spareCount, granularity, currentBlock, wc uint32) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		c := currentBlock / blockSize
		limit := blockCount - spareCount

		for step := uint32(0); step < limit; step++ {
			idx := (c + spareCount + step) % blockCount
			base := idx * blockSize

			expected, neverWritten := expectedWrap(idx, c, wc)

			wrap, has, err := BlockWrapCounter(dev, base, blockSize, granularity)
			if err != nil {
				yield(Entry{}, err)
				return
			}

			if neverWritten {
				if has {
					return
				}
				continue
			}
			if !has || wrap != expected {
				return
			}

			for e, err := range Block(dev, base, blockSize, granularity, base+blockSize) {
				if err != nil {
					yield(Entry{}, err)
					return
				}
				if e.Header.IsBlockHeader() {
					continue
				}
				if !yield(e, nil) {
					return
				}
			}
		}
	}
}

// WalkUnique collects the result of Walk and drops every entry that is
// superseded by a later one with the same key, and every entry whose
// latest occurrence is a tombstone. This is the O(n^2) dedup spec.md
// describes: for each entry it linearly checks whether any later entry
// in the same walk carries the same key.
func WalkUnique(dev device.Device, blockSize, blockCount, spareCount, granularity, currentBlock, pos, wc uint32) ([]Entry, error) {
	var all []Entry
	for e, err := range Walk(dev, blockSize, blockCount, spareCount, granularity, currentBlock, pos, wc) {
		if err != nil {
			return nil, err
		}
		all = append(all, e)
	}

	keys := make([][]byte, len(all))
	for i, e := range all {
		buf := make([]byte, e.Header.KeyLen)
		if err := e.Key(dev).ReadAt(buf, 0); err != nil {
			return nil, err
		}
		keys[i] = buf
	}

	var out []Entry
	for i, e := range all {
		superseded := false
		for j := i + 1; j < len(all); j++ {
			if bytes.Equal(keys[i], keys[j]) {
				superseded = true
				break
			}
		}
		if superseded || e.Header.IsTombstone() {
			continue
		}
		out = append(out, e)
	}

	return out, nil
}

// HasLaterMatch reports whether an entry with the given key appears
// anywhere between (startBlock, start) — typically an entry's own Next
// offset — and the current write cursor, scanning forward across as
// many block boundaries as necessary. It is compaction's own
// duplicate check, not the public read path's: it deliberately is not
// bounded by block_count-spare_count, because compaction needs to look
// into the very blocks (the victim block and the spare window ahead of
// it) that EntryGet and Walk never search. It does not validate wrap
// counters along the way, on the assumption that the caller already
// knows startBlock holds live data from the current lap; a block
// scanned in between that turns out to hold nothing decodable (the
// normal state of an empty spare block) simply contributes no matches.
func HasLaterMatch(dev device.Device, key []byte, blockSize, blockCount, granularity, startBlock, start, currentBlock, pos uint32) (bool, error) {
	c := currentBlock / blockSize
	idx := startBlock / blockSize
	from := start

	for {
		base := idx * blockSize
		end := base + blockSize
		if idx == c {
			end = pos
		}

		for e, err := range blockFrom(dev, from, base, blockSize, granularity, end) {
			if err != nil {
				return false, err
			}
			if e.Header.IsBlockHeader() {
				continue
			}
			match, err := matchesKey(dev, e, key)
			if err != nil {
				return false, err
			}
			if match {
				return true, nil
			}
		}

		if idx == c {
			return false, nil
		}
		idx = (idx + 1) % blockCount
		from = idx * blockSize
	}
}
