// Package main provides the catalog assistant CLI entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/config"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/observability"
)

// version is set at build time with -ldflags.
var version = "dev"

var (
	// Global flags
	cfgFile    string
	outputJSON bool
	verbose    bool
	noColor    bool

	// Configuration, logger and UI
	cfg    *config.Config
	logger *observability.Logger
	ui     *UI
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "catalog-assistant",
	Short: "Catalog assistant CLI for asking, evaluating and loading content",
	Long: `Catalog assistant CLI answers photography questions against the content
catalog (articles, events, services and products).

Use this tool to:
- Ask one-off questions or hold a multi-turn chat
- Run evaluation suites against the engine
- Load catalog fixtures into SQL or OpenSearch
- Apply database migrations

All commands support --json for automation.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logFormat := "console"
		if outputJSON {
			logFormat = "json"
		}
		level := cfg.Observability.LogLevel
		if verbose {
			level = "debug"
		} else if !outputJSON {
			level = "warn"
		}

		logger = observability.NewLogger(observability.LogConfig{
			Level:       level,
			Format:      logFormat,
			ServiceName: "catalog-assistant-cli",
			Output:      cmd.ErrOrStderr(),
		})
		ui = NewUI(cmd.OutOrStdout(), cmd.ErrOrStderr(), outputJSON, noColor)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(newAskCmd())
	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newEvalCmd())
	rootCmd.AddCommand(newLoadCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
