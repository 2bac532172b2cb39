package cmd

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// version can be set at build time via -ldflags, mirroring cmd/cue/cmd's
// own version.go package-level var.
var version string

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print nlsd's version",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "nlsd version %s\n", moduleVersion())
			fmt.Fprintf(w, "go version %s\n", runtime.Version())
			return nil
		},
	}
}

// moduleVersion reports version if it was set at build time, falling
// back to the module version embedded by the Go toolchain (the same
// fallback cmd/cue/cmd's runVersion reads via debug.ReadBuildInfo).
func moduleVersion() string {
	if version != "" {
		return version
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" {
		return bi.Main.Version
	}
	return "(devel)"
}
