// Package commands implements the regd CLI.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qenex/regd/internal/logger"
	"github.com/qenex/regd/pkg/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "regd",
	Short: "regd - domain registry server",
	Long: `regd is a domain registry back end. It speaks EPP (RFC 5730-5734)
to registrars over TLS, and answers public registration-data queries
over RDAP (HTTP/JSON) and WHOIS (port 43).

Use "regd [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: /etc/regd/regd.yaml, $HOME/.regd/regd.yaml, ./regd.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(registrarCmd)
}

// loadConfig loads the configuration honoring the global --config flag.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// initLogger initializes the structured logger from configuration.
func initLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}
