// =============================================================================
// Freight Reconciler - Root Command
// =============================================================================
//
// This file defines the root command of the CLI. All other commands are
// attached to it.
//
// COBRA CLI STRUCTURE:
//   rootCmd (reconciler)
//   ├── reconcileCmd (reconciler reconcile)
//   ├── validateCmd  (reconciler validate)
//   └── versionCmd   (reconciler version)
//
// CONFIGURATION:
//   The root command owns the flags shared by every subcommand (--config,
//   --verbose) and the helpers that turn them into a loaded configuration
//   and a logger.
//
// =============================================================================

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ginjaninja78/freight-reconciler/internal/config"
	"github.com/ginjaninja78/freight-reconciler/internal/logging"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the configuration file.
var cfgFile string

// verbose forces debug logging regardless of the configured level.
var verbose bool

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "Freight Reconciler - match transport orders against credit notes",
	Long: `Freight Reconciler pairs carrier transport orders with the credit notes
(Gutschriften) the payer issued for them, flags distance and payment
deviations and writes a color-coded Excel report.

Key Features:
  - Matching by order identifier with a route/date/distance fallback
  - OK / WARNING / CRITICAL classification with configurable thresholds
  - CSV, XLSX and labeled-text inputs
  - Five-sheet report with totals, statistics and an error list

Example Usage:
  reconciler reconcile                      # Use the directories from config.yaml
  reconciler reconcile --dry-run            # Print the summary, write nothing
  reconciler reconcile --config ./prod.yaml # Use a custom configuration file
  reconciler validate                       # Validate configuration only`,

	SilenceUsage:  true,
	SilenceErrors: true,

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute runs the CLI. It is called by main.main() and exits with status 1
// on error. SIGINT and SIGTERM cancel the command's context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yaml",
		"Path to the configuration file (built-in defaults if the default file is absent)",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable debug logging",
	)
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// loadConfig loads the file named by --config. A missing config.yaml is not
// an error as long as the flag was left at its default.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err == nil {
		return cfg, nil
	}

	if !cmd.Flags().Changed("config") && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, err
}

// newLogger builds the run logger from the configuration.
func newLogger(cfg *config.Config) (zerolog.Logger, io.Closer, error) {
	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	return logging.New(level, cfg.LogFile)
}
