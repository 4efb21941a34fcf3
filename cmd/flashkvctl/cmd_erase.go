package main

import (
	"io"

	flag "github.com/spf13/pflag"
)

// cmdErase wipes a region back to its initial blank state. Erase refuses
// a mounted store, so this builds the Store without calling Mount.
func cmdErase(out, errOut io.Writer, args []string) int {
	fs := flag.NewFlagSet("erase", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	rf := addRegionFlags(fs)

	if err := fs.Parse(args); err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}

	if len(fs.Args()) != 0 {
		fprintln(errOut, "usage: flashkvctl erase --region=<path>")
		return 1
	}

	s, err := rf.newStore()
	if err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}

	if err := s.Erase(); err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}
	return 0
}
