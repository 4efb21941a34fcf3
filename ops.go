package flashkv

import (
	"bytes"

	"github.com/flashkv/flashkv/device"
	"github.com/flashkv/flashkv/internal/alloc"
	"github.com/flashkv/flashkv/internal/entrycodec"
)

// Read copies the value prefix of length len(buf) for key's newest,
// non-tombstoned record into buf, and returns the number of bytes
// copied (min(len(buf), len(value))). It does not take the backend
// lock; the caller must guarantee no concurrent Write/Delete/Compact.
func (s *Store) Read(key []byte, buf []byte) (int, error) {
	if !s.mounted {
		return 0, ErrInvalidArg
	}
	if len(key) == 0 || len(key) > entrycodec.MaxKeyLen {
		return 0, ErrInvalidArg
	}

	e, ok, err := s.entryGet(key)
	if err != nil {
		return 0, wrapIO(err)
	}
	if !ok {
		return 0, ErrNotFound
	}

	n := len(buf)
	if n > int(e.Header.ValLen) {
		n = int(e.Header.ValLen)
	}
	if err := e.Value(s.dev).ReadAt(buf[:n], 0); err != nil {
		return 0, wrapIO(err)
	}
	return n, nil
}

// Write appends a fresh record for key/value, triggering compaction
// (up to block_count attempts) when the current block has no room. If
// the newest existing record for key already carries the identical
// value, Write is a no-op (the idempotence short-circuit spec.md §4.7
// requires).
func (s *Store) Write(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.mounted {
		return ErrInvalidArg
	}
	if len(key) == 0 || len(key) > entrycodec.MaxKeyLen {
		return ErrInvalidArg
	}
	if len(value) > entrycodec.MaxValueLen {
		return ErrInvalidArg
	}

	if err := device.Lock(s.dev); err != nil {
		return wrapIO(err)
	}
	defer device.Unlock(s.dev)

	same, err := s.sameAsLatest(key, value)
	if err != nil {
		return wrapIO(err)
	}
	if same {
		return nil
	}

	return s.appendWithGC(key, entrycodec.BytesSource(value))
}

// Delete is equivalent to Write(key, nil) (a tombstone). Deleting a key
// with no live record, or one already tombstoned, is a no-op: entryGet
// reports both cases as not-found, and writing a second tombstone over
// an existing one would only waste log space.
func (s *Store) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.mounted {
		return ErrInvalidArg
	}
	if len(key) == 0 || len(key) > entrycodec.MaxKeyLen {
		return ErrInvalidArg
	}

	if err := device.Lock(s.dev); err != nil {
		return wrapIO(err)
	}
	defer device.Unlock(s.dev)

	_, ok, err := s.entryGet(key)
	if err != nil {
		return wrapIO(err)
	}
	if !ok {
		return nil
	}

	return s.appendWithGC(key, entrycodec.BytesSource(nil))
}

// Compact runs one round of compaction: advance into a fresh block and
// copy every still-live entry behind it forward. It is best-effort and
// leaves no API-visible state change on success.
func (s *Store) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.mounted {
		return ErrInvalidArg
	}

	if err := device.Lock(s.dev); err != nil {
		return wrapIO(err)
	}
	defer device.Unlock(s.dev)

	if err := s.gc.CompactOne(); err != nil {
		return wrapIO(err)
	}
	return nil
}

// sameAsLatest reports whether key's newest record already holds value,
// byte for byte.
func (s *Store) sameAsLatest(key, value []byte) (bool, error) {
	e, ok, err := s.entryGet(key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if int(e.Header.ValLen) != len(value) {
		return false, nil
	}
	buf := make([]byte, len(value))
	if err := e.Value(s.dev).ReadAt(buf, 0); err != nil {
		return false, err
	}
	return bytes.Equal(buf, value), nil
}

// appendWithGC appends key/value, running compaction and retrying when
// the current block is full. spec.md §4.5 point 4 bounds this at
// block_count attempts before giving up with NoSpace.
func (s *Store) appendWithGC(key []byte, value entrycodec.Source) error {
	keySrc := entrycodec.BytesSource(key)

	for attempt := uint32(0); attempt < s.cfg.BlockCount; attempt++ {
		if _, err := s.alloc.Append(keySrc, value); err == nil {
			return nil
		} else if err != alloc.ErrNoSpace {
			return wrapIO(err)
		}

		if err := s.gc.CompactOne(); err != nil {
			return wrapIO(err)
		}
	}

	return ErrNoSpace
}
