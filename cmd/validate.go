// =============================================================================
// Freight Reconciler - Validate Command
// =============================================================================
//
// This file defines the 'validate' command, which loads the configuration
// and reports whether it is usable without touching any document.
//
// COMMAND USAGE:
//   reconciler validate [--config path]
//
// CHECKS:
//   - YAML syntax
//   - Thresholds (ranges, warning <= critical, epsilon)
//   - Log level and severity colors
//   - Text extraction patterns compile and have one capture group
//   - Input directories exist (reported as warnings only)
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/freight-reconciler/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration without processing documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("%s: %w", cfgFile, err)
		}

		fmt.Println("Configuration is valid.")
		printConfig(cfg)

		for _, dir := range []string{cfg.OrdersDir, cfg.CreditNotesDir} {
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				fmt.Printf("  ! input directory %s does not exist\n", dir)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func printConfig(cfg *config.Config) {
	t := cfg.Thresholds
	fmt.Printf("  Orders:            %s\n", cfg.OrdersDir)
	fmt.Printf("  Credit notes:      %s\n", cfg.CreditNotesDir)
	fmt.Printf("  Output:            %s\n", cfg.OutputDir)
	fmt.Printf("  km critical/warn:  %g / %g\n", t.KmDeltaCriticalPct, t.KmDeltaWarningPct)
	fmt.Printf("  Payment loss:      %g\n", t.PaymentLossCriticalAbs)
	fmt.Printf("  Fallback:          ±%g km share, %d day(s)\n", t.FallbackDistanceTolerancePct, t.FallbackDateWindowDays)
	fmt.Printf("  Epsilon:           %g\n", t.Epsilon)
}
