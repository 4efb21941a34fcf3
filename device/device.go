// Package device defines the block-device contract the store is built
// against, and the capability interfaces a backend may optionally
// implement. The store never assumes a capability is present; it type
//-asserts for it and falls back to a no-op.
package device

// Device is the mandatory surface every backend must provide: byte-range
// read and program (write) over a fixed persistent region.
type Device interface {
	// Read copies len(data) bytes starting at off into data.
	Read(off uint32, data []byte) error

	// Prog writes data at off. A backend that requires erase-before-write
	// must wipe the whole erase unit on the first program to its first
	// byte, so the store never needs to know erase-unit geometry.
	Prog(off uint32, data []byte) error
}

// Comparer is an optional read-back compare, used as a program
// verification step. A backend without one is always treated as if the
// compare succeeded.
type Comparer interface {
	Comp(off uint32, data []byte) error
}

// Syncer is an optional per-append notification, invoked after every
// successful entry append with the post-write offset. EEPROM backends
// use this to stamp an end-marker; flash backends typically no-op.
type Syncer interface {
	Sync(nextPos uint32) error
}

// Initializer is an optional lifecycle hook run once before mount.
type Initializer interface {
	Init() error
}

// Releaser is an optional lifecycle hook run once after unmount.
type Releaser interface {
	Release() error
}

// Locker is an optional mutual-exclusion hook. Mutating store operations
// take the lock around their critical section; read-only operations do
// not.
type Locker interface {
	Lock() error
	Unlock() error
}

// Comp calls dev.Comp if dev implements Comparer, otherwise succeeds.
func Comp(dev Device, off uint32, data []byte) error {
	if c, ok := dev.(Comparer); ok {
		return c.Comp(off, data)
	}
	return nil
}

// Sync calls dev.Sync if dev implements Syncer, otherwise succeeds.
func Sync(dev Device, nextPos uint32) error {
	if s, ok := dev.(Syncer); ok {
		return s.Sync(nextPos)
	}
	return nil
}

// Init calls dev.Init if dev implements Initializer, otherwise succeeds.
func Init(dev Device) error {
	if i, ok := dev.(Initializer); ok {
		return i.Init()
	}
	return nil
}

// Release calls dev.Release if dev implements Releaser, otherwise succeeds.
func Release(dev Device) error {
	if r, ok := dev.(Releaser); ok {
		return r.Release()
	}
	return nil
}

// Lock calls dev.Lock if dev implements Locker, otherwise succeeds.
func Lock(dev Device) error {
	if l, ok := dev.(Locker); ok {
		return l.Lock()
	}
	return nil
}

// Unlock calls dev.Unlock if dev implements Locker, otherwise succeeds.
func Unlock(dev Device) error {
	if l, ok := dev.(Locker); ok {
		return l.Unlock()
	}
	return nil
}
