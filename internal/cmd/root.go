// Package cmd builds nlsd's cobra command tree: serve, fmt, and version.
//
// Grounded on cmd/cue/cmd/root.go's New/Main split (a cobra.Command tree
// built once from an args slice, errors printed by the caller rather
// than by cobra itself) and cmd/cuepls/main.go's minimal entrypoint, both
// trimmed down: this binary has no _tool.cue task runner, no module
// registry subcommands, no CPU/memory profiling flags, and no stats
// encoder, none of which spec §6 names.
package cmd

import (
	"github.com/spf13/cobra"
)

// New builds the root nlsd command with args already attached (mirroring
// cmd/cue/cmd.New's own cmd.SetArgs(args) convention), ready for
// Execute().
func New(args []string) *cobra.Command {
	root := &cobra.Command{
		Use:   "nlsd",
		Short: "language server for the configuration language this repo implements",

		// Errors are printed by main, not by cobra itself, mirroring
		// cmd/cue/cmd.New's SilenceErrors/SilenceUsage.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newFmtCmd())
	root.AddCommand(newVersionCmd())

	root.SetArgs(args)
	return root
}
