package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"nls.dev/nls/internal/rpc"
)

// newServeCmd implements spec §6.1's wire protocol over stdio: nlsd serve
// reads framed requests/notifications from stdin and writes framed
// responses to stdout until exit, mirroring cmd/cuepls's role as the
// thing an editor actually spawns.
func newServeCmd() *cobra.Command {
	var installResourceDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the language server over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
			s := rpc.NewServer(installResourceDir, logger)
			return s.Serve(cmd.Context(), os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&installResourceDir, "install-resource-dir", "",
		"install-time resource directory searched last for a configuration file (spec §6.2)")

	return cmd
}
