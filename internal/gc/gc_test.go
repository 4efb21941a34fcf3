package gc

import (
	"testing"

	"github.com/flashkv/flashkv/device/memdevice"
	"github.com/flashkv/flashkv/internal/alloc"
	"github.com/flashkv/flashkv/internal/entrycodec"
	"github.com/flashkv/flashkv/internal/scan"
)

const (
	blockSize   = 64
	blockCount  = 4
	spareCount  = 1
	granularity = 4
)

func newLog(t *testing.T) (*memdevice.Device, *alloc.Allocator, *Compactor) {
	t.Helper()
	dev := memdevice.NewWithEraseUnit(blockSize*blockCount, 0xFF, blockSize)
	a := alloc.New(dev, blockSize, blockCount, granularity, nil)
	a.Seek(0, blockSize, 0)
	c := New(dev, a, blockCount, spareCount, granularity)
	return dev, a, c
}

func put(t *testing.T, a *alloc.Allocator, key, value string) {
	t.Helper()
	if _, err := a.Append(entrycodec.BytesSource(key), entrycodec.BytesSource(value)); err != nil {
		t.Fatalf("append %q=%q: %v", key, value, err)
	}
}

func currentBlock(a *alloc.Allocator) uint32 {
	return a.Bend() - a.BlockSize()
}

func lookup(t *testing.T, dev *memdevice.Device, a *alloc.Allocator, key string) (string, bool) {
	t.Helper()
	e, ok, err := scan.EntryGet(dev, []byte(key), blockSize, blockCount, spareCount, granularity, currentBlock(a), a.Pos(), a.WrapCounter())
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		return "", false
	}
	buf := make([]byte, e.Header.ValLen)
	if err := e.Value(dev).ReadAt(buf, 0); err != nil {
		t.Fatal(err)
	}
	return string(buf), true
}

// With blockCount=4 and spareCount=1, the live window holds at most 3
// blocks at a time. These tests fill exactly those 3 blocks (0, 1, 2)
// before calling CompactOne, matching the point at which a real write
// attempting to advance into block 3 would trigger compaction. A single
// CompactOne call advances into block 3 (the destination) and sweeps
// the entire window it just vacated — blocks 0, 1, and 2 — copying
// forward whatever in them is still live.

func TestCompactOneCopiesLiveEntryForward(t *testing.T) {
	dev, a, c := newLog(t)

	put(t, a, "k", "original")
	a.AdvanceBlock()
	put(t, a, "filler1", "x")
	a.AdvanceBlock()
	put(t, a, "filler2", "y")

	if err := c.CompactOne(); err != nil {
		t.Fatal(err)
	}

	got, ok := lookup(t, dev, a, "k")
	if !ok {
		t.Fatal("\"k\" was lost by compaction")
	}
	if got != "original" {
		t.Fatalf("got %q, want %q", got, "original")
	}
	for _, want := range []struct{ key, value string }{{"filler1", "x"}, {"filler2", "y"}} {
		got, ok := lookup(t, dev, a, want.key)
		if !ok || got != want.value {
			t.Fatalf("%q: got (%q, %v), want (%q, true)", want.key, got, ok, want.value)
		}
	}
}

func TestCompactOneDropsSupersededEntry(t *testing.T) {
	dev, a, c := newLog(t)

	put(t, a, "k", "stale")
	a.AdvanceBlock()
	put(t, a, "k", "fresh")
	a.AdvanceBlock()
	put(t, a, "filler", "y")

	if err := c.CompactOne(); err != nil {
		t.Fatal(err)
	}

	got, ok := lookup(t, dev, a, "k")
	if !ok {
		t.Fatal("\"k\" should still resolve to the fresher write")
	}
	if got != "fresh" {
		t.Fatalf("got %q, want %q (the stale copy should not have been resurrected)", got, "fresh")
	}
}

func TestCompactOneDropsTombstone(t *testing.T) {
	dev, a, c := newLog(t)

	put(t, a, "k", "v")
	a.AdvanceBlock()
	put(t, a, "k", "") // tombstone, in block 1
	a.AdvanceBlock()
	put(t, a, "filler", "y")

	// The tombstone is in the same pass as the write it masks, so both
	// are resolved in one CompactOne call: "k" does not resurface.
	if err := c.CompactOne(); err != nil {
		t.Fatal(err)
	}
	if _, ok := lookup(t, dev, a, "k"); ok {
		t.Fatal("tombstoned key resurfaced after compaction")
	}
}

func TestCompactOneAdvancesCursorPastVictimWindow(t *testing.T) {
	_, a, c := newLog(t)

	put(t, a, "k", "v")
	a.AdvanceBlock()
	put(t, a, "filler", "y")
	a.AdvanceBlock()
	put(t, a, "filler2", "z")

	before := currentBlock(a)
	if err := c.CompactOne(); err != nil {
		t.Fatal(err)
	}
	if currentBlock(a) == before {
		t.Fatal("CompactOne did not advance the allocator into the destination block")
	}
}

func TestCompactOneDropsPayloadCorruptedEntry(t *testing.T) {
	dev, a, c := newLog(t)

	put(t, a, "k", "v")
	e, ok, err := scan.EntryGet(dev, []byte("k"), blockSize, blockCount, spareCount, granularity, currentBlock(a), a.Pos(), a.WrapCounter())
	if err != nil || !ok {
		t.Fatalf("setup: EntryGet(%q) = %v, %v, %v", "k", e, ok, err)
	}
	src := e.Value(dev)
	if err := dev.Prog(src.Off, []byte{0x00}); err != nil {
		t.Fatal(err)
	}

	a.AdvanceBlock()
	put(t, a, "filler1", "x")
	a.AdvanceBlock()
	put(t, a, "filler2", "y")

	if err := c.CompactOne(); err != nil {
		t.Fatal(err)
	}

	if _, ok := lookup(t, dev, a, "k"); ok {
		t.Fatal("compaction copied forward a payload-corrupted entry")
	}
}

func TestCompactOneSkipsUnwrittenBlocksOnFirstLap(t *testing.T) {
	// Only block 0 has ever been written; blocks 1 and 2 are still
	// pristine (0xFF). Compacting after advancing out of block 0 must
	// not treat those untouched blocks as corrupt.
	dev, a, c := newLog(t)

	put(t, a, "k", "v")

	if err := c.CompactOne(); err != nil {
		t.Fatal(err)
	}

	got, ok := lookup(t, dev, a, "k")
	if !ok || got != "v" {
		t.Fatalf("got (%q, %v), want (\"v\", true)", got, ok)
	}
}
