// Package flashkv implements a log-structured key-value store over a
// circular append log of fixed-size blocks, for byte-addressable
// storage devices (flash, EEPROM, or an in-memory simulation). A Store
// is single-owner: mutating methods (Write, Delete, Compact, Mount,
// Unmount, Erase) serialize through the backend's optional lock;
// read-only methods (Read, Walk, WalkUnique, EntryGet) do not, and are
// safe only when the caller guarantees no concurrent mutation.
package flashkv

import (
	"fmt"
	"sync"

	"github.com/flashkv/flashkv/device"
	"github.com/flashkv/flashkv/internal/alloc"
	"github.com/flashkv/flashkv/internal/entrycodec"
	"github.com/flashkv/flashkv/internal/gc"
	"github.com/flashkv/flashkv/internal/mount"
	"github.com/flashkv/flashkv/internal/scan"
)

// Store is a mounted or unmounted key-value store over a single
// backend. The zero value is not usable; construct one with New.
type Store struct {
	mu  sync.Mutex
	dev device.Device
	cfg Config

	mounted bool
	alloc   *alloc.Allocator
	gc      *gc.Compactor
}

// New validates cfg (after applying opts over geometry-driven defaults)
// and returns an unmounted Store over dev. It does not touch the
// backend; call Mount before any Read/Write/Delete/Walk call.
func New(dev device.Device, blockSize, blockCount uint32, opts ...Option) (*Store, error) {
	cfg := Config{
		BlockSize:          blockSize,
		BlockCount:         blockCount,
		SpareCount:         defaultSpareCount,
		ProgramGranularity: defaultProgramGranularity,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return &Store{dev: dev, cfg: cfg}, nil
}

// Mount initializes the backend, discovers the write cursor by
// scanning the region (internal/mount.Run), replays any compaction
// pass that was interrupted by a crash, and makes the store ready for
// Read/Write/Delete/Walk.
func (s *Store) Mount() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mounted {
		return ErrAlreadyMounted
	}

	if err := device.Lock(s.dev); err != nil {
		return wrapIO(err)
	}
	defer device.Unlock(s.dev)

	if err := device.Init(s.dev); err != nil {
		return wrapIO(err)
	}

	a, err := mount.Run(s.dev, s.cfg.BlockSize, s.cfg.BlockCount, s.cfg.SpareCount, s.cfg.ProgramGranularity, s.cfg.Cookie)
	if err != nil {
		return wrapIO(err)
	}

	s.alloc = a
	s.gc = gc.New(s.dev, a, s.cfg.BlockCount, s.cfg.SpareCount, s.cfg.ProgramGranularity)
	s.mounted = true
	return nil
}

// Unmount releases the backend and marks the store not ready. It does
// not flush anything: every append is already durable by the time
// Write/Delete return.
func (s *Store) Unmount() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.mounted {
		return ErrInvalidArg
	}

	if err := device.Lock(s.dev); err != nil {
		return wrapIO(err)
	}
	defer device.Unlock(s.dev)

	if err := device.Release(s.dev); err != nil {
		return wrapIO(err)
	}

	s.mounted = false
	s.alloc = nil
	s.gc = nil
	return nil
}

// Erase overwrites the entire region with the fill byte by programming
// the program buffer repeatedly. Only permitted while unmounted.
func (s *Store) Erase() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mounted {
		return ErrAlreadyMounted
	}

	if err := device.Lock(s.dev); err != nil {
		return wrapIO(err)
	}
	defer device.Unlock(s.dev)

	if err := device.Init(s.dev); err != nil {
		return wrapIO(err)
	}
	defer device.Release(s.dev)

	buf := make([]byte, s.cfg.ProgramGranularity)
	for i := range buf {
		buf[i] = entrycodec.FillByte
	}

	region := s.cfg.BlockSize * s.cfg.BlockCount
	for off := uint32(0); off < region; off += s.cfg.ProgramGranularity {
		if err := s.dev.Prog(off, buf); err != nil {
			return wrapIO(err)
		}
	}
	return nil
}

// Cookie returns the opaque bytes stored in every block header.
func (s *Store) Cookie() []byte { return s.cfg.Cookie }

// CookieSize returns len(Cookie()).
func (s *Store) CookieSize() int { return len(s.cfg.Cookie) }

// currentBlock returns the base offset of the block currently being
// written, derived from the allocator's bend the same way internal/gc
// and internal/mount do.
func (s *Store) currentBlock() uint32 {
	return s.alloc.Bend() - s.alloc.BlockSize()
}

// entryGet runs the bounded backward scan for key against the
// allocator's current cursor state.
func (s *Store) entryGet(key []byte) (scan.Entry, bool, error) {
	return scan.EntryGet(s.dev, key, s.cfg.BlockSize, s.cfg.BlockCount, s.cfg.SpareCount, s.cfg.ProgramGranularity, s.currentBlock(), s.alloc.Pos(), s.alloc.WrapCounter())
}

// wrapIO reports err as both ErrIO and itself, so callers can match
// either with errors.Is while the original backend error survives
// errors.Unwrap.
func wrapIO(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("flashkv: %w: %w", ErrIO, err)
}
