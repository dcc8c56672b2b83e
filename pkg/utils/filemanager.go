// =============================================================================
// Freight Reconciler - File Manager Utility
// =============================================================================
//
// File handling around a reconciliation run:
//   - Input discovery per directory, filtered by extension
//   - Output naming (uuid and timestamp placeholders, .xlsx enforced)
//   - Archival of processed inputs
//   - The plain-text error log written next to the workbook
//
// ARCHIVAL STRATEGY:
//   - Inputs are moved to <archive_dir>/<orders|credit_notes>/ after the
//     workbook has been written
//   - With UseTimestampSubdirs a YYYY/MM/DD level is inserted
//   - Nothing is archived on a dry run or when the run failed
//
// =============================================================================

package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ginjaninja78/freight-reconciler/internal/types"
)

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager handles the directories of a run.
type FileManager struct {
	// OutputDir receives the workbook and the error log.
	OutputDir string

	// ArchiveDir receives processed inputs. Empty disables archival.
	ArchiveDir string

	// Extensions lists the accepted input extensions, lower case with dot.
	Extensions []string

	// UseTimestampSubdirs inserts a date level below the archive directory.
	// Example: archive/orders/2024/03/01/orders.csv
	UseTimestampSubdirs bool

	now func() time.Time
}

// NewFileManager creates a FileManager for the given directories.
func NewFileManager(outputDir, archiveDir string, extensions []string) *FileManager {
	exts := make([]string, 0, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, e)
	}
	return &FileManager{
		OutputDir:  outputDir,
		ArchiveDir: archiveDir,
		Extensions: exts,
		now:        time.Now,
	}
}

// =============================================================================
// DIRECTORY MANAGEMENT
// =============================================================================

// EnsureDirectories creates the output directory and, if set, the archive
// directory.
func (fm *FileManager) EnsureDirectories() error {
	dirs := []string{fm.OutputDir}
	if fm.ArchiveDir != "" {
		dirs = append(dirs, fm.ArchiveDir)
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// =============================================================================
// FILE DISCOVERY
// =============================================================================

// DiscoverInputFiles walks dir and returns every file with an accepted
// extension, sorted by path so that runs over the same directory see the
// documents in the same order.
//
// PARAMETERS:
//   - dir: The directory to scan, including subdirectories.
//
// RETURNS:
//   - A sorted slice of file paths. Hidden files are skipped.
//   - An error if the directory cannot be read.
func (fm *FileManager) DiscoverInputFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		if strings.HasPrefix(info.Name(), ".") {
			return nil
		}

		if fm.accepts(path) {
			files = append(files, path)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan input directory %s: %w", dir, err)
	}

	sort.Strings(files)
	return files, nil
}

func (fm *FileManager) accepts(path string) bool {
	if len(fm.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range fm.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// =============================================================================
// FILE ARCHIVAL
// =============================================================================

// ArchiveInputFile moves a processed input below the archive directory.
//
// PARAMETERS:
//   - filePath: The path to the file to archive.
//   - kind: The subdirectory to use, e.g. "orders" or "credit_notes".
//
// RETURNS:
//   - The path to the archived file. An existing file of the same name is
//     not overwritten; a numeric suffix is added instead.
//   - An error if archival fails. The input then stays where it was.
func (fm *FileManager) ArchiveInputFile(filePath, kind string) (string, error) {
	if fm.ArchiveDir == "" {
		return filePath, nil
	}

	archivePath := fm.archivePath(filePath, kind)

	if err := os.MkdirAll(filepath.Dir(archivePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	if err := os.Rename(filePath, archivePath); err != nil {
		// Cross-device moves fall back to copy and delete.
		if err := copyFile(filePath, archivePath); err != nil {
			return "", fmt.Errorf("failed to copy file to archive: %w", err)
		}
		if err := os.Remove(filePath); err != nil {
			return "", fmt.Errorf("failed to remove original file: %w", err)
		}
	}

	return archivePath, nil
}

func (fm *FileManager) archivePath(filePath, kind string) string {
	dir := filepath.Join(fm.ArchiveDir, kind)

	if fm.UseTimestampSubdirs {
		now := fm.now()
		dir = filepath.Join(
			dir,
			fmt.Sprintf("%d", now.Year()),
			fmt.Sprintf("%02d", now.Month()),
			fmt.Sprintf("%02d", now.Day()),
		)
	}

	name := filepath.Base(filePath)
	target := filepath.Join(dir, name)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; FileExists(target); i++ {
		target = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
	}
	return target
}

// =============================================================================
// OUTPUT FILE NAMING
// =============================================================================

// GenerateOutputFileName expands the placeholders of format.
//
// PARAMETERS:
//   - format: The format string for the file name.
//             Placeholders:
//               {uuid}      - A random UUID
//               {timestamp} - Current timestamp (YYYYMMDD_HHMMSS)
//               {date}      - Current date (YYYYMMDD)
//               {time}      - Current time (HHMMSS)
//   - params: Additional placeholder values, e.g. {"run": runID}.
//
// RETURNS:
//   - The generated file name, always ending in .xlsx.
//
// EXAMPLE:
//   format: "abgleich_{timestamp}.xlsx"
//   output: "abgleich_20240301_083000.xlsx"
func GenerateOutputFileName(format string, params map[string]string) string {
	return generateOutputFileName(format, params, time.Now())
}

func generateOutputFileName(format string, params map[string]string, now time.Time) string {
	if format == "" {
		format = "abgleich_{timestamp}.xlsx"
	}

	replacements := map[string]string{
		"{uuid}":      uuid.New().String(),
		"{timestamp}": now.Format("20060102_150405"),
		"{date}":      now.Format("20060102"),
		"{time}":      now.Format("150405"),
	}
	for key, value := range params {
		replacements["{"+key+"}"] = value
	}

	result := format
	for placeholder, value := range replacements {
		result = strings.ReplaceAll(result, placeholder, value)
	}

	if !strings.HasSuffix(strings.ToLower(result), ".xlsx") {
		result += ".xlsx"
	}

	return result
}

// OutputPath joins the output directory and a generated file name.
func (fm *FileManager) OutputPath(format string, params map[string]string) string {
	return filepath.Join(fm.OutputDir, generateOutputFileName(format, params, fm.now()))
}

// =============================================================================
// ERROR LOG GENERATION
// =============================================================================

// WriteErrorLog writes the error side-list of a run as plain text next to
// the workbook.
//
// PARAMETERS:
//   - entries: The excluded documents and records of the run.
//   - workbookPath: The path of the workbook; the log gets the same name
//     with a _fehler.txt suffix.
//   - runID: The run the entries belong to.
//
// RETURNS:
//   - The path to the error log, or "" if there was nothing to write.
//   - An error if writing fails.
func WriteErrorLog(entries []types.RecordError, workbookPath, runID string) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}

	logPath := strings.TrimSuffix(workbookPath, filepath.Ext(workbookPath)) + "_fehler.txt"

	file, err := os.Create(logPath)
	if err != nil {
		return "", fmt.Errorf("failed to create error log: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	fmt.Fprintf(writer, "Freight Reconciler - Error Log\n"+
		"Run:          %s\n"+
		"Generated:    %s\n"+
		"Total Errors: %d\n"+
		"================================================================================\n\n",
		runID,
		time.Now().Format("2006-01-02 15:04:05"),
		len(entries))

	for i, entry := range entries {
		fmt.Fprintf(writer, "Error #%d\n"+
			"  Type:    %s\n"+
			"  Source:  %s\n",
			i+1, entry.Kind, entry.Source)
		if entry.Field != "" {
			fmt.Fprintf(writer, "  Field:   %s\n", entry.Field)
		}
		if entry.Raw != "" {
			fmt.Fprintf(writer, "  Value:   %s\n", entry.Raw)
		}
		fmt.Fprintf(writer, "  Message: %s\n\n", entry.Message)
	}

	writer.WriteString("================================================================================\n" +
		"End of Error Log\n")

	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush error log: %w", err)
	}

	return logPath, nil
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}

	return destFile.Sync()
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
