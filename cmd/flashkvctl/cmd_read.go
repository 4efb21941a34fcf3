package main

import (
	"errors"
	"io"

	flag "github.com/spf13/pflag"

	"github.com/flashkv/flashkv"
)

func cmdRead(out, errOut io.Writer, args []string) int {
	fs := flag.NewFlagSet("read", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	rf := addRegionFlags(fs)
	maxLen := fs.Uint32("max-len", 4096, "maximum bytes to read")

	if err := fs.Parse(args); err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}

	rest := fs.Args()
	if len(rest) != 1 {
		fprintln(errOut, "usage: flashkvctl read --region=<path> <key>")
		return 1
	}

	s, err := rf.open()
	if err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}
	defer s.Unmount()

	buf := make([]byte, *maxLen)
	n, err := s.Read([]byte(rest[0]), buf)
	if err != nil {
		if errors.Is(err, flashkv.ErrNotFound) {
			fprintln(errOut, "not found:", rest[0])
		} else {
			fprintln(errOut, "error:", err)
		}
		return 1
	}

	out.Write(buf[:n])
	fprintln(out)
	return 0
}
