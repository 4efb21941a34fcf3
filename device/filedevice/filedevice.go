// Package filedevice implements device.Device over a single fixed-size
// region file, for real persistence on a regular filesystem.
package filedevice

import (
	"bytes"
	"fmt"
	"os"
	"sync"

	"github.com/natefinch/atomic"
)

// FillByte is written across a freshly provisioned region, matching the
// erased state the store's recovery logic expects of a fresh flash part.
const FillByte = 0xFF

// Device is a device.Device backed by a single region file of a fixed
// size. It implements device.Initializer (to provision the file on first
// use), device.Locker (an in-process mutex; the region file itself is
// not flock'd), and device.Syncer (an fsync after every append).
type Device struct {
	mu        sync.Mutex // guards f across Init/Release
	lockMu    sync.Mutex // held between Lock and Unlock
	path      string
	size      int64
	eraseUnit int64
	f         *os.File
}

// New returns a Device for path with the given region size and erase
// unit size (the store's block size). Per the Device.Prog contract, a
// program that lands on the first byte of an erase unit wipes that
// whole unit to FillByte before writing, so the allocator never has to
// erase a reclaimed block itself. The file is not touched until Init is
// called (mount always calls Init first).
func New(path string, size, eraseUnit int64) *Device {
	return &Device{path: path, size: size, eraseUnit: eraseUnit}
}

// Init provisions the region file if it does not already exist, filling
// it with FillByte via an atomic write so a crash mid-provision can never
// leave a partially-initialized file behind. An existing file is opened
// as-is and must already be exactly size bytes.
func (d *Device) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := os.Stat(d.path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("filedevice: stat %s: %w", d.path, err)
		}

		fill := bytes.Repeat([]byte{FillByte}, int(d.size))
		if err := atomic.WriteFile(d.path, bytes.NewReader(fill)); err != nil {
			return fmt.Errorf("filedevice: provision %s: %w", d.path, err)
		}
	}

	f, err := os.OpenFile(d.path, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("filedevice: open %s: %w", d.path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("filedevice: stat %s: %w", d.path, err)
	}
	if info.Size() != d.size {
		f.Close()
		return fmt.Errorf("filedevice: %s is %d bytes, want %d", d.path, info.Size(), d.size)
	}

	d.f = f
	return nil
}

// Release closes the region file.
func (d *Device) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

func (d *Device) Lock() error {
	d.lockMu.Lock()
	return nil
}

func (d *Device) Unlock() error {
	d.lockMu.Unlock()
	return nil
}

func (d *Device) Read(off uint32, data []byte) error {
	_, err := d.f.ReadAt(data, int64(off))
	return err
}

func (d *Device) Prog(off uint32, data []byte) error {
	if int64(off)%d.eraseUnit == 0 {
		fill := bytes.Repeat([]byte{FillByte}, int(d.eraseUnit))
		if _, err := d.f.WriteAt(fill, int64(off)); err != nil {
			return fmt.Errorf("filedevice: erase unit at %d: %w", off, err)
		}
	}
	_, err := d.f.WriteAt(data, int64(off))
	return err
}

func (d *Device) Comp(off uint32, data []byte) error {
	buf := make([]byte, len(data))
	if _, err := d.f.ReadAt(buf, int64(off)); err != nil {
		return err
	}
	if !bytes.Equal(buf, data) {
		return fmt.Errorf("filedevice: compare mismatch at offset %d", off)
	}
	return nil
}

func (d *Device) Sync(uint32) error {
	return d.f.Sync()
}
