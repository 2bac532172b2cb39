package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"nls.dev/nls/internal/config"
	"nls.dev/nls/internal/format"
)

// newFmtCmd is a one-shot invocation of spec §6.3's formatting handler
// outside the RPC loop, mirroring gofmt's own stdout-by-default,
// -w-writes-in-place convention (cmd/cue/cmd's own `fmt` defaults to
// writing in place instead, but nlsd fmt is a thin pass-through to a
// single external binary rather than an in-process formatter, so
// gofmt's safer default fits better here).
func newFmtCmd() *cobra.Command {
	var write bool
	var formatterCmd []string

	cmd := &cobra.Command{
		Use:   "fmt <file>",
		Short: "format a file with the configured external formatter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			src, err := os.ReadFile(path)
			if err != nil {
				return err
			}

			fc := formatterCmd
			if len(fc) == 0 {
				if stack, _ := config.Load(path, ""); stack != nil && len(stack.FormatterCommand) > 0 {
					fc = stack.FormatterCommand
				}
			}

			out := format.Format(cmd.Context(), fc, src)
			if out == nil {
				return fmt.Errorf("nlsd fmt: formatter failed for %s", path)
			}

			if write {
				return os.WriteFile(path, out, 0o644)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	cmd.Flags().BoolVarP(&write, "write", "w", false, "write the formatted result back to the file instead of stdout")
	cmd.Flags().StringSliceVar(&formatterCmd, "formatter", nil, "formatter binary and arguments, overriding the configured/default one")

	return cmd
}
