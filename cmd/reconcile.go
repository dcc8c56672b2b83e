// =============================================================================
// Freight Reconciler - Reconcile Command
// =============================================================================
//
// This file defines the 'reconcile' command, the main command of the tool.
//
// COMMAND USAGE:
//   reconciler reconcile [flags]
//
// FLAGS:
//   --orders   : Directory with transport order documents (overrides config)
//   --notes    : Directory with credit note documents (overrides config)
//   --output   : Output directory for the report (overrides config)
//   --dry-run  : Build the report and print the summary, write nothing
//   --archive  : Move processed inputs to the archive directory
//
// PROCESSING PIPELINE:
//   1. Load configuration and set up logging
//   2. Discover order and credit note documents
//   3. Extract both document sets (concurrently)
//   4. Run the reconciliation pipeline
//   5. Write the Excel report and the error log
//   6. Archive processed inputs
//   7. Print the summary
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ginjaninja78/freight-reconciler/internal/config"
	"github.com/ginjaninja78/freight-reconciler/internal/extraction"
	"github.com/ginjaninja78/freight-reconciler/internal/pipeline"
	"github.com/ginjaninja78/freight-reconciler/internal/report"
	"github.com/ginjaninja78/freight-reconciler/internal/xlsxwriter"
	"github.com/ginjaninja78/freight-reconciler/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	ordersDir string
	notesDir  string
	outputDir string
	dryRun    bool
	archive   bool
)

// =============================================================================
// RECONCILE COMMAND DEFINITION
// =============================================================================

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Match transport orders against credit notes and write the report",
	Long: `The reconcile command reads every transport order and credit note document
from the configured directories, pairs them, classifies deviations and
writes a five-sheet Excel report to the output directory.

Unreadable documents and invalid records are skipped, counted and listed on
the Statistik sheet and in an error log next to the report. Only an invalid
configuration aborts the run.

With --archive, processed inputs are moved to the archive directory after
the report has been written.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runReconcile(cmd)
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVar(&ordersDir, "orders", "", "Directory with transport order documents")
	reconcileCmd.Flags().StringVar(&notesDir, "notes", "", "Directory with credit note documents")
	reconcileCmd.Flags().StringVar(&outputDir, "output", "", "Output directory for the report")
	reconcileCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the summary without writing any file")
	reconcileCmd.Flags().BoolVar(&archive, "archive", false, "Move processed inputs to the archive directory")
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

func runReconcile(cmd *cobra.Command) error {
	startTime := time.Now()
	ctx := cmd.Context()

	// =========================================================================
	// STEP 1: LOAD CONFIGURATION
	// =========================================================================

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyFlagOverrides(cfg)

	log, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	fmt.Println("=== Freight Reconciler ===")

	// =========================================================================
	// STEP 2: DISCOVER INPUT FILES
	// =========================================================================

	archiveDir := ""
	if archive {
		archiveDir = cfg.ArchiveDir
	}
	fm := utils.NewFileManager(cfg.OutputDir, archiveDir, cfg.InputExtensions)
	fm.UseTimestampSubdirs = cfg.ArchiveDateSubdirs

	orderFiles, err := fm.DiscoverInputFiles(cfg.OrdersDir)
	if err != nil {
		return fmt.Errorf("failed to discover order documents: %w", err)
	}
	noteFiles, err := fm.DiscoverInputFiles(cfg.CreditNotesDir)
	if err != nil {
		return fmt.Errorf("failed to discover credit notes: %w", err)
	}

	fmt.Printf("Found %d order document(s) and %d credit note document(s)\n", len(orderFiles), len(noteFiles))

	if len(orderFiles) == 0 {
		fmt.Println("No transport order documents found.")
		return nil
	}

	// =========================================================================
	// STEP 3: EXTRACT DOCUMENTS
	// =========================================================================

	orderDocs, noteDocs, err := extractAll(ctx, cfg, orderFiles, noteFiles, log)
	if err != nil {
		return err
	}

	// =========================================================================
	// STEP 4: RECONCILE
	// =========================================================================

	model, err := pipeline.Process(orderDocs, noteDocs, cfg, log)
	if err != nil {
		return err
	}

	// =========================================================================
	// STEP 5: WRITE REPORT
	// =========================================================================

	var outputFile, errorLog string
	if !dryRun {
		if err := fm.EnsureDirectories(); err != nil {
			return err
		}

		outputFile = fm.OutputPath(cfg.OutputNameFormat, map[string]string{"run": model.RunID})
		writer := xlsxwriter.New(xlsxwriter.ColorsFromConfig(cfg.SeverityColors))
		if err := writer.WriteFile(model, outputFile); err != nil {
			return err
		}
		log.Info().Str("file", outputFile).Msg("report written")

		if errorLog, err = utils.WriteErrorLog(model.Errors, outputFile, model.RunID); err != nil {
			log.Warn().Err(err).Msg("error log not written")
		}

		// =====================================================================
		// STEP 6: ARCHIVE INPUTS
		// =====================================================================

		if archive {
			archiveInputs(fm, orderFiles, "orders", log)
			archiveInputs(fm, noteFiles, "credit_notes", log)
		}
	}

	// =========================================================================
	// STEP 7: PRINT SUMMARY
	// =========================================================================

	printSummary(model, outputFile, errorLog, time.Since(startTime))
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func applyFlagOverrides(cfg *config.Config) {
	if ordersDir != "" {
		cfg.OrdersDir = ordersDir
	}
	if notesDir != "" {
		cfg.CreditNotesDir = notesDir
	}
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}
}

// newRouter builds the extractor used for one document type. Text
// documents need the layout of that type; tabular ones do not.
func newRouter(layout config.TextLayout) (*extraction.Router, error) {
	text, err := extraction.NewTextExtractor(layout)
	if err != nil {
		return nil, err
	}
	return extraction.NewRouter().
		Register(".csv", extraction.NewCSVExtractor("")).
		Register(".xlsx", extraction.NewXLSXExtractor("")).
		Register(".txt", text), nil
}

// extractAll reads orders and credit notes in parallel.
func extractAll(ctx context.Context, cfg *config.Config, orderFiles, noteFiles []string, log zerolog.Logger) (orders, notes []extraction.Document, err error) {
	orderRouter, err := newRouter(cfg.TextPatterns.Orders)
	if err != nil {
		return nil, nil, err
	}
	noteRouter, err := newRouter(cfg.TextPatterns.CreditNotes)
	if err != nil {
		return nil, nil, err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		orders = extraction.Load(ctx, orderRouter, orderFiles, log.With().Str("kind", "orders").Logger())
	}()
	go func() {
		defer wg.Done()
		notes = extraction.Load(ctx, noteRouter, noteFiles, log.With().Str("kind", "credit_notes").Logger())
	}()
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("extraction interrupted: %w", err)
	}
	return orders, notes, nil
}

// archiveInputs moves processed files; a failure leaves the file in place.
func archiveInputs(fm *utils.FileManager, files []string, kind string, log zerolog.Logger) {
	for _, file := range files {
		dst, err := fm.ArchiveInputFile(file, kind)
		if err != nil {
			log.Warn().Err(err).Str("file", file).Msg("not archived")
			continue
		}
		log.Debug().Str("file", file).Str("archive", dst).Msg("archived")
	}
}

func printSummary(m *report.Model, outputFile, errorLog string, elapsed time.Duration) {
	s := m.Summary

	fmt.Println("\n=== Reconciliation Complete ===")
	fmt.Printf("Run ID:              %s\n", m.RunID)
	fmt.Printf("Transport orders:    %d\n", s.TotalOrders)
	fmt.Printf("Credit notes:        %d\n", s.CreditNotes)
	fmt.Printf("Matched:             %d (by ID %d, fallback %d)\n", s.Matched, s.MatchedByID, s.MatchedByFallback)
	fmt.Printf("Unmatched:           %d\n", s.Unmatched)
	fmt.Printf("Ambiguous:           %d\n", s.Ambiguous)
	fmt.Printf("Match rate:          %s\n", s.MatchRatePercent())
	fmt.Printf("OK / WARN / CRIT:    %d / %d / %d\n", s.OK, s.Warning, s.Critical)
	fmt.Printf("Planned / credited:  %s / %s (difference %s)\n",
		s.PlannedAmount.StringFixed(2), s.CreditedAmount.StringFixed(2), s.PaymentDelta.StringFixed(2))
	fmt.Printf("Unreadable docs:     %d\n", s.ExtractionFailures)
	fmt.Printf("Invalid records:     %d\n", s.NormalizationFailures())
	fmt.Printf("Time elapsed:        %s\n", elapsed)

	if outputFile != "" {
		fmt.Printf("\nReport: %s\n", filepath.Clean(outputFile))
	} else {
		fmt.Println("\nDry run: no files written.")
	}
	if errorLog != "" {
		fmt.Printf("Errors have been logged to %s\n", errorLog)
	}
}
