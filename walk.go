package flashkv

import (
	"bytes"
	"errors"

	"github.com/flashkv/flashkv/internal/scan"
)

// WalkFunc is the callback passed to Walk and WalkUnique. Returning
// ErrStop ends the walk early without producing an error; any other
// non-nil error aborts the walk and is returned by the caller.
type WalkFunc func(key, value []byte) error

// Walk invokes fn for every entry whose key has the given prefix, in
// write order, including historical versions and tombstones (whose
// value is reported as a zero-length slice). An entry matches when its
// key is at least len(prefix) bytes and its first len(prefix) bytes
// equal prefix.
func (s *Store) Walk(prefix []byte, fn WalkFunc) error {
	if !s.mounted {
		return ErrInvalidArg
	}

	for e, err := range scan.Walk(s.dev, s.cfg.BlockSize, s.cfg.BlockCount, s.cfg.SpareCount, s.cfg.ProgramGranularity, s.currentBlock(), s.alloc.Pos(), s.alloc.WrapCounter()) {
		if err != nil {
			return wrapIO(err)
		}
		key, value, match, err := s.readIfMatch(e, prefix)
		if err != nil {
			return wrapIO(err)
		}
		if !match {
			continue
		}
		if err := fn(key, value); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
	return nil
}

// WalkUnique invokes fn at most once per distinct key among matches,
// for the newest version of each key with the given prefix; a key whose
// newest version is a tombstone is not reported.
func (s *Store) WalkUnique(prefix []byte, fn WalkFunc) error {
	if !s.mounted {
		return ErrInvalidArg
	}

	all, err := scan.WalkUnique(s.dev, s.cfg.BlockSize, s.cfg.BlockCount, s.cfg.SpareCount, s.cfg.ProgramGranularity, s.currentBlock(), s.alloc.Pos(), s.alloc.WrapCounter())
	if err != nil {
		return wrapIO(err)
	}

	for _, e := range all {
		key, value, match, err := s.readIfMatch(e, prefix)
		if err != nil {
			return wrapIO(err)
		}
		if !match {
			continue
		}
		if err := fn(key, value); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
	return nil
}

// readIfMatch reads e's key and, if it has the given prefix, its value,
// reporting match=false without an I/O error for non-matches so Walk
// never pays to read values it will discard.
func (s *Store) readIfMatch(e scan.Entry, prefix []byte) (key, value []byte, match bool, err error) {
	if int(e.Header.KeyLen) < len(prefix) {
		return nil, nil, false, nil
	}

	key = make([]byte, e.Header.KeyLen)
	if err := e.Key(s.dev).ReadAt(key, 0); err != nil {
		return nil, nil, false, err
	}
	if !bytes.HasPrefix(key, prefix) {
		return nil, nil, false, nil
	}

	value = make([]byte, e.Header.ValLen)
	if err := e.Value(s.dev).ReadAt(value, 0); err != nil {
		return nil, nil, false, err
	}

	return key, value, true, nil
}
