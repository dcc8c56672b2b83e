// =============================================================================
// Freight Reconciler - Main Entry Point
// =============================================================================
//
// USAGE:
//   reconciler reconcile     - Reconcile orders against credit notes
//   reconciler validate      - Validate the configuration
//   reconciler version       - Display the application version
//
// ARCHITECTURE:
//   - cmd/        : CLI command definitions (Cobra)
//   - internal/   : Extraction, normalization, matching, classification,
//                   report model and Excel rendering
//   - pkg/utils/  : File discovery, naming and archival
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/freight-reconciler/cmd"
)

func main() {
	cmd.Execute()
}
