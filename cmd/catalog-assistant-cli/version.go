package main

import (
	"runtime"

	"github.com/spf13/cobra"
)

// newVersionCmd creates the version subcommand.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := map[string]string{
				"version": version,
				"go":      runtime.Version(),
				"os_arch": runtime.GOOS + "/" + runtime.GOARCH,
			}
			if outputJSON {
				return printJSON(cmd.OutOrStdout(), info)
			}
			ui.KeyValue("Version", info["version"])
			ui.KeyValue("Go", info["go"])
			ui.KeyValue("Platform", info["os_arch"])
			return nil
		},
	}
}
