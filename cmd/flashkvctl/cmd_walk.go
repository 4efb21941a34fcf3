package main

import (
	"fmt"
	"io"

	flag "github.com/spf13/pflag"

	"github.com/flashkv/flashkv"
)

func cmdWalk(out, errOut io.Writer, args []string) int {
	return walkCommand(out, errOut, args, "walk", (*flashkv.Store).Walk)
}

func cmdWalkUnique(out, errOut io.Writer, args []string) int {
	return walkCommand(out, errOut, args, "walk-unique", (*flashkv.Store).WalkUnique)
}

// walkCommand factors the shared flag parsing and output formatting
// between cmdWalk and cmdWalkUnique: they differ only in which Store
// method they call.
func walkCommand(out, errOut io.Writer, args []string, name string, walk func(*flashkv.Store, []byte, flashkv.WalkFunc) error) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	rf := addRegionFlags(fs)

	if err := fs.Parse(args); err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}

	var prefix []byte
	if rest := fs.Args(); len(rest) == 1 {
		prefix = []byte(rest[0])
	} else if len(rest) > 1 {
		fprintln(errOut, "usage: flashkvctl", name, "--region=<path> [prefix]")
		return 1
	}

	s, err := rf.open()
	if err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}
	defer s.Unmount()

	err = walk(s, prefix, func(key, value []byte) error {
		fmt.Fprintf(out, "%s\t%s\n", key, value)
		return nil
	})
	if err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}
	return 0
}
