package main

import (
	"encoding/hex"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/flashkv/flashkv"
	"github.com/flashkv/flashkv/device/filedevice"
)

// regionFlags holds the store geometry flags shared by every subcommand
// that opens a region file.
type regionFlags struct {
	path        string
	blockSize   uint32
	blockCount  uint32
	spareCount  uint32
	granularity uint32
	cookieHex   string
}

func addRegionFlags(fs *flag.FlagSet) *regionFlags {
	rf := &regionFlags{}
	fs.StringVar(&rf.path, "region", "", "path to the region file")
	fs.Uint32Var(&rf.blockSize, "block-size", 4096, "block size in bytes")
	fs.Uint32Var(&rf.blockCount, "block-count", 16, "number of blocks in the region")
	fs.Uint32Var(&rf.spareCount, "spare-count", 1, "blocks reserved for compaction")
	fs.Uint32Var(&rf.granularity, "granularity", 1, "program granularity in bytes")
	fs.StringVar(&rf.cookieHex, "cookie", "", "hex-encoded cookie bytes")
	return rf
}

func (rf *regionFlags) cookie() ([]byte, error) {
	if rf.cookieHex == "" {
		return nil, nil
	}
	c, err := hex.DecodeString(rf.cookieHex)
	if err != nil {
		return nil, fmt.Errorf("--cookie: %w", err)
	}
	return c, nil
}

func (rf *regionFlags) newStore() (*flashkv.Store, error) {
	if rf.path == "" {
		return nil, fmt.Errorf("--region is required")
	}

	cookie, err := rf.cookie()
	if err != nil {
		return nil, err
	}

	dev := filedevice.New(rf.path, int64(rf.blockSize)*int64(rf.blockCount), int64(rf.blockSize))
	return flashkv.New(dev, rf.blockSize, rf.blockCount,
		flashkv.WithSpareCount(rf.spareCount),
		flashkv.WithProgramGranularity(rf.granularity),
		flashkv.WithCookie(cookie),
	)
}

// open builds and mounts a store over the region file.
func (rf *regionFlags) open() (*flashkv.Store, error) {
	s, err := rf.newStore()
	if err != nil {
		return nil, err
	}
	if err := s.Mount(); err != nil {
		return nil, err
	}
	return s, nil
}
