package main

import (
	"fmt"
	"os"

	"credence/internal/config"
	"credence/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	configPath string

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "credence",
	Short: "credence - group assistant over shared documents and tasks",
	Long: `credence answers questions inside a group workspace.

Each message is routed by intent, matched against the group's documents,
and answered by a language model with the group's recent conversation,
open tasks, and relevant file content in context. Replies that start with
COMMAND: are executed as task assignments after a permission check.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		lc := cfg.Logging.ToLogging()
		if verbose {
			lc.Level = zapcore.DebugLevel.String()
		}
		if err := logging.Initialize(lc); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "credence.yaml", "Path to the YAML config file")

	rootCmd.AddCommand(
		serveCmd,
		askCmd,
		filesCmd,
		uploadCmd,
		migrateCmd,
		seedCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
