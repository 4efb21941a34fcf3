package main

import (
	"io"

	flag "github.com/spf13/pflag"
)

func cmdCompact(out, errOut io.Writer, args []string) int {
	fs := flag.NewFlagSet("compact", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	rf := addRegionFlags(fs)

	if err := fs.Parse(args); err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}

	if len(fs.Args()) != 0 {
		fprintln(errOut, "usage: flashkvctl compact --region=<path>")
		return 1
	}

	s, err := rf.open()
	if err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}
	defer s.Unmount()

	if err := s.Compact(); err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}
	return 0
}
