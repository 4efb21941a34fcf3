package main

import (
	"io"

	flag "github.com/spf13/pflag"
)

func cmdDelete(out, errOut io.Writer, args []string) int {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	rf := addRegionFlags(fs)

	if err := fs.Parse(args); err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}

	rest := fs.Args()
	if len(rest) != 1 {
		fprintln(errOut, "usage: flashkvctl delete --region=<path> <key>")
		return 1
	}

	s, err := rf.open()
	if err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}
	defer s.Unmount()

	if err := s.Delete([]byte(rest[0])); err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}
	return 0
}
