package main

import (
	"io"

	flag "github.com/spf13/pflag"
)

func cmdWrite(out, errOut io.Writer, args []string) int {
	fs := flag.NewFlagSet("write", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	rf := addRegionFlags(fs)

	if err := fs.Parse(args); err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}

	rest := fs.Args()
	if len(rest) != 2 {
		fprintln(errOut, "usage: flashkvctl write --region=<path> <key> <value>")
		return 1
	}

	s, err := rf.open()
	if err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}
	defer s.Unmount()

	if err := s.Write([]byte(rest[0]), []byte(rest[1])); err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}
	return 0
}
