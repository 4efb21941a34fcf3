package flashkv

import "errors"

// Sentinel errors returned by Store methods, checked with errors.Is. A
// backend I/O failure is reported as an error that both wraps ErrIO and
// the original backend error, so callers can match either.
var (
	ErrInvalidArg     = errors.New("flashkv: invalid argument")
	ErrNotFound       = errors.New("flashkv: key not found")
	ErrNoSpace        = errors.New("flashkv: no space")
	ErrIO             = errors.New("flashkv: io error")
	ErrAlreadyMounted = errors.New("flashkv: already mounted")
	ErrStop           = errors.New("flashkv: stop walk")
)
