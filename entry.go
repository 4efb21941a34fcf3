package flashkv

import "github.com/flashkv/flashkv/internal/scan"

// Entry is a read-only handle to a record found by EntryGet, borrowed
// from the store it came from. It lets a caller stream a large value in
// pieces via Read instead of buffering the whole thing, mirroring
// kvs_entry_get/kvs_entry_read in the original C API. An Entry is only
// valid as long as the store it came from stays mounted and no
// compaction has run since.
type Entry struct {
	store *Store
	inner scan.Entry
}

// KeyLen returns the entry's key length in bytes.
func (e Entry) KeyLen() int { return int(e.inner.Header.KeyLen) }

// ValueLen returns the entry's value length in bytes.
func (e Entry) ValueLen() int { return int(e.inner.Header.ValLen) }

// Key copies the entry's key into buf, which must be exactly KeyLen()
// bytes.
func (e Entry) Key(buf []byte) error {
	if len(buf) != e.KeyLen() {
		return ErrInvalidArg
	}
	return wrapIO(e.inner.Key(e.store.dev).ReadAt(buf, 0))
}

// Read copies len(buf) bytes of the entry's value starting at offset
// into buf. offset+len(buf) must not exceed ValueLen().
func (e Entry) Read(buf []byte, offset int) error {
	if offset < 0 || offset+len(buf) > e.ValueLen() {
		return ErrInvalidArg
	}
	return wrapIO(e.inner.Value(e.store.dev).ReadAt(buf, uint32(offset)))
}

// EntryGet performs the same bounded backward scan as Read, but returns
// a handle instead of copying the value immediately. It does not take
// the backend lock; see the package doc's concurrency note.
func (s *Store) EntryGet(key []byte) (Entry, bool, error) {
	if !s.mounted {
		return Entry{}, false, ErrInvalidArg
	}

	e, ok, err := s.entryGet(key)
	if err != nil {
		return Entry{}, false, wrapIO(err)
	}
	if !ok {
		return Entry{}, false, nil
	}
	return Entry{store: s, inner: e}, true, nil
}
