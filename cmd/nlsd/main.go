// Command nlsd is the language server binary: spec §6 EXTERNAL INTERFACES
// implemented over stdio, plus a one-shot `fmt` entrypoint and a
// `version` subcommand.
//
// Grounded on cmd/cuepls/main.go for the minimal-main shape (parse args,
// run, os.Exit on failure) and on cmd/cue/cmd's cobra command tree
// (root.go's New/Main split, fmt.go and version.go's per-subcommand
// RunE) for the subcommand layout, trimmed to this binary's much
// smaller surface: no stats/profiling flags, no _tool.cue task runner,
// no module registry commands.
package main

import (
	"fmt"
	"os"

	"nls.dev/nls/internal/cmd"
)

func main() {
	if err := cmd.New(os.Args[1:]).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
