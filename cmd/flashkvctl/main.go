// Command flashkvctl is a diagnostic tool for exercising a flashkv
// store against a real file: a small, flag-driven front end over
// package flashkv's Read/Write/Delete/Walk/WalkUnique/Compact/Erase, in
// the one-function-per-command shape calvinalkan's internal/cli package
// uses for its own tk subcommands. It is a development aid, not part of
// the library's API surface.
package main

import (
	"fmt"
	"io"
	"os"
)

var commands = map[string]func(out, errOut io.Writer, args []string) int{
	"write":       cmdWrite,
	"read":        cmdRead,
	"delete":      cmdDelete,
	"walk":        cmdWalk,
	"walk-unique": cmdWalkUnique,
	"compact":     cmdCompact,
	"erase":       cmdErase,
	"info":        cmdInfo,
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 1
	}

	fn, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(errOut, "flashkvctl: unknown command %q\n", args[0])
		printUsage(errOut)
		return 1
	}

	return fn(out, errOut, args[1:])
}

func printUsage(w io.Writer) {
	fprintln(w, "usage: flashkvctl <command> --region=<path> [flags] [args]")
	fprintln(w, "commands: write read delete walk walk-unique compact erase info")
}

func fprintln(w io.Writer, a ...any) {
	fmt.Fprintln(w, a...)
}
