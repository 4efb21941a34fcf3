package main

import (
	"fmt"
	"io"

	flag "github.com/spf13/pflag"

	"github.com/flashkv/flashkv/device"
	"github.com/flashkv/flashkv/device/filedevice"
	"github.com/flashkv/flashkv/internal/mount"
)

// cmdInfo reports the region's recovered write head and per-block
// occupancy without going through flashkv.Store, so it can inspect a
// region that a buggy mount would refuse to open.
func cmdInfo(out, errOut io.Writer, args []string) int {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	rf := addRegionFlags(fs)

	if err := fs.Parse(args); err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}
	if len(fs.Args()) != 0 {
		fprintln(errOut, "usage: flashkvctl info --region=<path>")
		return 1
	}
	if rf.path == "" {
		fprintln(errOut, "error: --region is required")
		return 1
	}

	dev := filedevice.New(rf.path, int64(rf.blockSize)*int64(rf.blockCount), int64(rf.blockSize))

	if err := device.Lock(dev); err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}
	defer device.Unlock(dev)

	if err := device.Init(dev); err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}
	defer device.Release(dev)

	head, err := mount.FindHead(dev, rf.blockSize, rf.blockCount, rf.granularity)
	if err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}

	currentBlock := head.Pos - head.Pos%rf.blockSize
	fmt.Fprintf(out, "pos=%d bend=%d wrap_counter=%d current_block=%d\n", head.Pos, head.Bend, head.WrapCounter, currentBlock/rf.blockSize)
	for i := uint32(0); i < rf.blockCount; i++ {
		state := "empty"
		if head.Populated.Test(uint(i)) {
			state = "populated"
		}
		fmt.Fprintf(out, "block %d: %s\n", i, state)
	}
	return 0
}
