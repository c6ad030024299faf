// Package cli defines the command line of the library service.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/libdesk/libdesk/internal/config"
	"github.com/libdesk/libdesk/internal/entrypoint"
)

// NewRootCommand builds the command tree. Without a subcommand it serves the API.
func NewRootCommand(version string) *cobra.Command {
	serve := newServeCommand(version)

	root := &cobra.Command{
		Use:           "libdesk",
		Short:         "Library management API server and tools",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}

	root.AddCommand(
		serve,
		newCreateAdminCommand(),
		newSweepOverdueCommand(),
		newClientCommand(),
	)
	return root
}

func newServeCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return entrypoint.Run(config.NewConfig(), version)
		},
	}
}
