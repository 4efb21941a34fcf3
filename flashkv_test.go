package flashkv

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/flashkv/flashkv/device/memdevice"
)

const (
	testBlockSize   = 256
	testBlockCount  = 4
	testSpareCount  = 1
	testGranularity = 1
)

func newTestStore(t *testing.T) (*memdevice.Device, *Store) {
	t.Helper()
	dev := memdevice.NewWithEraseUnit(testBlockSize*testBlockCount, 0xFF, testBlockSize)
	s, err := New(dev, testBlockSize, testBlockCount, WithSpareCount(testSpareCount), WithProgramGranularity(testGranularity))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Mount(); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	return dev, s
}

func u32(n uint32) []byte {
	return []byte{byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24)}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	dev := memdevice.New(1024, 0xFF)

	tests := []struct {
		name string
		opts []Option
		size uint32
		cnt  uint32
	}{
		{"block size not power of two", nil, 200, 4},
		{"block count zero", nil, 256, 0},
		{"spare count zero", []Option{WithSpareCount(0)}, 256, 4},
		{"spare count equals block count", []Option{WithSpareCount(4)}, 256, 4},
		{"granularity not power of two", []Option{WithProgramGranularity(3)}, 256, 4},
		{"granularity exceeds block size", []Option{WithProgramGranularity(512)}, 256, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(dev, tt.size, tt.cnt, tt.opts...); !errors.Is(err, ErrInvalidArg) {
				t.Fatalf("New() error = %v, want ErrInvalidArg", err)
			}
		})
	}
}

func TestMountEmptyRegion(t *testing.T) {
	_, s := newTestStore(t)

	var buf [4]byte
	if _, err := s.Read([]byte("k"), buf[:]); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read on empty store = %v, want ErrNotFound", err)
	}
}

func TestMountTwiceFails(t *testing.T) {
	_, s := newTestStore(t)

	if err := s.Mount(); !errors.Is(err, ErrAlreadyMounted) {
		t.Fatalf("second Mount() = %v, want ErrAlreadyMounted", err)
	}
}

func TestRoundTrip(t *testing.T) {
	_, s := newTestStore(t)

	if err := s.Write([]byte("/cnt"), u32(0)); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 4)
	if _, err := s.Read([]byte("/cnt"), buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, u32(0)) {
		t.Fatalf("got %v, want %v", buf, u32(0))
	}

	if err := s.Write([]byte("/cnt"), u32(7)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Read([]byte("/cnt"), buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, u32(7)) {
		t.Fatalf("got %v, want %v", buf, u32(7))
	}
}

func TestWriteIsIdempotent(t *testing.T) {
	_, s := newTestStore(t)

	if err := s.Write([]byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	before := s.alloc.Pos()

	if err := s.Write([]byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	if after := s.alloc.Pos(); after != before {
		t.Fatalf("pos changed on identical write: before=%d after=%d", before, after)
	}
}

func TestDeleteThenRead(t *testing.T) {
	_, s := newTestStore(t)

	if err := s.Write([]byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete([]byte("k")); err != nil {
		t.Fatal(err)
	}

	var buf [1]byte
	if _, err := s.Read([]byte("k"), buf[:]); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read after delete = %v, want ErrNotFound", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	_, s := newTestStore(t)

	if err := s.Delete([]byte("never-written")); err != nil {
		t.Fatalf("deleting an absent key should be a no-op, got %v", err)
	}

	if err := s.Write([]byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete([]byte("k")); err != nil {
		t.Fatal(err)
	}
	before := s.alloc.Pos()
	if err := s.Delete([]byte("k")); err != nil {
		t.Fatal(err)
	}
	if after := s.alloc.Pos(); after != before {
		t.Fatalf("deleting an already-tombstoned key should not append again: before=%d after=%d", before, after)
	}
}

func TestWalkVsWalkUnique(t *testing.T) {
	_, s := newTestStore(t)

	for _, kv := range [][2]string{{"/a", "1"}, {"/a", "2"}, {"/b", "3"}} {
		if err := s.Write([]byte(kv[0]), []byte(kv[1])); err != nil {
			t.Fatal(err)
		}
	}

	var walked []string
	if err := s.Walk([]byte("/"), func(key, value []byte) error {
		walked = append(walked, string(value))
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(walked) != 3 {
		t.Fatalf("Walk invoked callback %d times, want 3: %v", len(walked), walked)
	}

	var unique []string
	if err := s.WalkUnique([]byte("/"), func(key, value []byte) error {
		unique = append(unique, string(value))
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(unique) != 2 {
		t.Fatalf("WalkUnique invoked callback %d times, want 2: %v", len(unique), unique)
	}
}

func TestWalkStopsOnErrStop(t *testing.T) {
	_, s := newTestStore(t)

	for _, k := range []string{"/a", "/b", "/c"} {
		if err := s.Write([]byte(k), []byte("v")); err != nil {
			t.Fatal(err)
		}
	}

	count := 0
	err := s.Walk([]byte("/"), func(key, value []byte) error {
		count++
		return ErrStop
	})
	if err != nil {
		t.Fatalf("Walk with ErrStop should return nil, got %v", err)
	}
	if count != 1 {
		t.Fatalf("callback ran %d times, want exactly 1 before stopping", count)
	}
}

func TestWalkPropagatesCallbackError(t *testing.T) {
	_, s := newTestStore(t)
	if err := s.Write([]byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}

	boom := fmt.Errorf("boom")
	err := s.Walk(nil, func(key, value []byte) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("Walk() error = %v, want %v", err, boom)
	}
}

func TestGCPreservesLatestValueAcrossWraps(t *testing.T) {
	dev, s := newTestStore(t)

	n := uint32(0)
	for s.alloc.WrapCounter() < 2 {
		if err := s.Write([]byte("/cnt"), u32(n)); err != nil {
			t.Fatalf("write %d: %v", n, err)
		}
		n++
	}

	buf := make([]byte, 4)
	if _, err := s.Read([]byte("/cnt"), buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, u32(n-1)) {
		t.Fatalf("after %d writes and wrap to lap %d, got %v, want %v", n, s.alloc.WrapCounter(), buf, u32(n-1))
	}
	_ = dev
}

func TestTombstoneSurvivesGC(t *testing.T) {
	_, s := newTestStore(t)

	if err := s.Write([]byte("/bas"), u32(0)); err != nil {
		t.Fatal(err)
	}
	if err := s.Write([]byte("/cnt"), u32(0)); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete([]byte("/bas")); err != nil {
		t.Fatal(err)
	}

	n := uint32(1)
	for s.alloc.WrapCounter() < 2 {
		if err := s.Write([]byte("/cnt"), u32(n)); err != nil {
			t.Fatalf("write %d: %v", n, err)
		}
		n++
	}

	var buf [1]byte
	if _, err := s.Read([]byte("/bas"), buf[:]); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read(/bas) after GC = %v, want ErrNotFound", err)
	}

	got := make([]byte, 4)
	if _, err := s.Read([]byte("/cnt"), got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, u32(n-1)) {
		t.Fatalf("Read(/cnt) after GC = %v, want %v", got, u32(n-1))
	}
}

func TestRemountRediscoversState(t *testing.T) {
	dev, s := newTestStore(t)

	if err := s.Write([]byte("a"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := s.Write([]byte("b"), []byte("2")); err != nil {
		t.Fatal(err)
	}
	if err := s.Unmount(); err != nil {
		t.Fatal(err)
	}

	s2, err := New(dev, testBlockSize, testBlockCount, WithSpareCount(testSpareCount), WithProgramGranularity(testGranularity))
	if err != nil {
		t.Fatal(err)
	}
	if err := s2.Mount(); err != nil {
		t.Fatal(err)
	}

	for _, want := range []struct{ key, value string }{{"a", "1"}, {"b", "2"}} {
		buf := make([]byte, len(want.value))
		if _, err := s2.Read([]byte(want.key), buf); err != nil {
			t.Fatalf("Read(%q): %v", want.key, err)
		}
		if string(buf) != want.value {
			t.Fatalf("Read(%q) = %q, want %q", want.key, buf, want.value)
		}
	}
}

func TestEntryGetAndRead(t *testing.T) {
	_, s := newTestStore(t)

	if err := s.Write([]byte("k"), []byte("hello world")); err != nil {
		t.Fatal(err)
	}

	e, ok, err := s.EntryGet([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("EntryGet did not find \"k\"")
	}
	if e.ValueLen() != len("hello world") {
		t.Fatalf("ValueLen() = %d, want %d", e.ValueLen(), len("hello world"))
	}

	tail := make([]byte, 5)
	if err := e.Read(tail, 6); err != nil {
		t.Fatal(err)
	}
	if string(tail) != "world" {
		t.Fatalf("Read(offset=6) = %q, want %q", tail, "world")
	}

	if err := e.Read(make([]byte, 1), e.ValueLen()); !errors.Is(err, ErrInvalidArg) {
		t.Fatalf("out-of-range Read() = %v, want ErrInvalidArg", err)
	}
}

func TestCookieRoundTripsThroughMount(t *testing.T) {
	dev := memdevice.NewWithEraseUnit(testBlockSize*testBlockCount, 0xFF, testBlockSize)
	cookie := []byte{0xCA, 0xFE}

	s, err := New(dev, testBlockSize, testBlockCount, WithCookie(cookie))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Mount(); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(s.Cookie(), cookie) {
		t.Fatalf("Cookie() = %v, want %v", s.Cookie(), cookie)
	}
	if s.CookieSize() != len(cookie) {
		t.Fatalf("CookieSize() = %d, want %d", s.CookieSize(), len(cookie))
	}
}

func TestEraseRequiresUnmounted(t *testing.T) {
	_, s := newTestStore(t)

	if err := s.Erase(); !errors.Is(err, ErrAlreadyMounted) {
		t.Fatalf("Erase while mounted = %v, want ErrAlreadyMounted", err)
	}
}

func TestEraseFillsRegionAndUnblocksRemount(t *testing.T) {
	dev, s := newTestStore(t)

	if err := s.Write([]byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	if err := s.Unmount(); err != nil {
		t.Fatal(err)
	}
	if err := s.Erase(); err != nil {
		t.Fatal(err)
	}

	snap := dev.Snapshot()
	for i, b := range snap {
		if b != 0xFF {
			t.Fatalf("byte %d = %#02x after Erase, want 0xFF", i, b)
		}
	}

	if err := s.Mount(); err != nil {
		t.Fatal(err)
	}
	var buf [1]byte
	if _, err := s.Read([]byte("k"), buf[:]); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read after erase+remount = %v, want ErrNotFound", err)
	}
}

func TestOperationsRequireMount(t *testing.T) {
	dev := memdevice.NewWithEraseUnit(testBlockSize*testBlockCount, 0xFF, testBlockSize)
	s, err := New(dev, testBlockSize, testBlockCount)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Write([]byte("k"), []byte("v")); !errors.Is(err, ErrInvalidArg) {
		t.Fatalf("Write before Mount = %v, want ErrInvalidArg", err)
	}
	if _, err := s.Read([]byte("k"), make([]byte, 1)); !errors.Is(err, ErrInvalidArg) {
		t.Fatalf("Read before Mount = %v, want ErrInvalidArg", err)
	}
	if err := s.Unmount(); !errors.Is(err, ErrInvalidArg) {
		t.Fatalf("Unmount before Mount = %v, want ErrInvalidArg", err)
	}
}
