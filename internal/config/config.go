// =============================================================================
// Freight Reconciler - Configuration Module
// =============================================================================
//
// This module is responsible for loading and validating the configuration of
// a reconciliation run.
//
// CONFIGURATION FILE:
//   A single YAML file (config.yaml by default) holds:
//   1. Directory settings (where orders, credit notes and reports live)
//   2. Logging settings
//   3. Business thresholds used by the matcher and the classifier
//   4. Field name aliases used by the normalizer
//   5. Text patterns used by the labeled-text extractor
//   6. Fill colors used by the report renderer
//
// VALIDATION:
//   Invalid thresholds are fatal. A run with a wrong threshold would silently
//   mis-classify every record, so Load and Validate return a *ConfigError and
//   no record is processed.
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// Config holds the complete configuration of the reconciler.
type Config struct {
	// =========================================================================
	// DIRECTORY SETTINGS
	// =========================================================================

	// OrdersDir is scanned for transport order documents.
	// Default: "./documents/orders"
	OrdersDir string `yaml:"orders_dir"`

	// CreditNotesDir is scanned for credit note (Gutschrift) documents.
	// Default: "./documents/gutschriften"
	CreditNotesDir string `yaml:"credit_notes_dir"`

	// OutputDir receives the generated spreadsheet.
	// Default: "./output"
	OutputDir string `yaml:"output_dir"`

	// ArchiveDir receives processed input documents when archival is enabled.
	// Default: "./archive"
	ArchiveDir string `yaml:"archive_dir"`

	// ArchiveDateSubdirs files archived documents under a YYYY/MM/DD level.
	// Default: false
	ArchiveDateSubdirs bool `yaml:"archive_date_subdirs"`

	// InputExtensions lists the document extensions picked up from the input
	// directories.
	// Default: [".csv", ".xlsx", ".txt"]
	InputExtensions []string `yaml:"input_extensions"`

	// OutputNameFormat defines the report file name.
	// Placeholders:
	//   {uuid}      - A random UUID
	//   {timestamp} - Current timestamp (YYYYMMDD_HHMMSS)
	//   {date}      - Current date (YYYYMMDD)
	// Default: "abgleich_{timestamp}.xlsx"
	OutputNameFormat string `yaml:"output_name_format"`

	// =========================================================================
	// LOGGING SETTINGS
	// =========================================================================

	// LogFile is the path to the log file. Empty logs to stderr only.
	LogFile string `yaml:"log_file"`

	// LogLevel controls the verbosity of logging.
	// Valid values: "debug", "info", "warn", "error"
	// Default: "info"
	LogLevel string `yaml:"log_level"`

	// =========================================================================
	// BUSINESS RULES
	// =========================================================================

	// Thresholds drive matching and classification.
	Thresholds Thresholds `yaml:"thresholds"`

	// Fields maps typed attributes to raw field names.
	Fields FieldsConfig `yaml:"fields"`

	// DateFormats are Go time layouts tried in order.
	// Default: ["02.01.2006", "02.01.06", "2006-01-02"]
	DateFormats []string `yaml:"date_formats"`

	// DecimalSeparator fixes the decimal separator of numeric fields: ","
	// or ".". Empty detects the notation per value, reading a single period
	// followed by three digits ("1.234") as a group separator.
	// Default: ""
	DecimalSeparator string `yaml:"decimal_separator"`

	// TextPatterns configure the labeled-text extractor.
	TextPatterns TextPatterns `yaml:"text_patterns"`

	// =========================================================================
	// REPORT SETTINGS
	// =========================================================================

	// SeverityColors maps a severity tag (OK, WARNING, CRITICAL) to a fill
	// color given as six hex digits. A tag without color is not filled.
	SeverityColors map[string]string `yaml:"severity_colors"`
}

// =============================================================================
// THRESHOLDS
// =============================================================================

// Thresholds are the fixed business constants, exposed as configuration.
type Thresholds struct {
	// KmDeltaCriticalPct: a relative distance deviation above this value is
	// CRITICAL. Default: 0.10
	KmDeltaCriticalPct float64 `yaml:"km_delta_critical_pct"`

	// KmDeltaWarningPct: a relative distance deviation above this value (but
	// not above the critical one) is WARNING. Default: 0.05, lowered to
	// KmDeltaCriticalPct when only the critical level is configured below it
	KmDeltaWarningPct float64 `yaml:"km_delta_warning_pct"`

	// PaymentLossCriticalAbs: an underpayment of more than this many currency
	// units is CRITICAL. Default: 50
	PaymentLossCriticalAbs float64 `yaml:"payment_loss_critical_abs"`

	// FallbackDistanceTolerancePct: maximum relative distance deviation for a
	// note without order reference to be considered by the fallback match.
	// Default: 0.05
	FallbackDistanceTolerancePct float64 `yaml:"fallback_distance_tolerance_pct"`

	// FallbackDateWindowDays: maximum distance in days between order and note
	// dates for the fallback match. Default: 3
	FallbackDateWindowDays int `yaml:"fallback_date_window_days"`

	// Epsilon is the tolerance applied to every threshold comparison.
	// Default: 1e-6
	Epsilon float64 `yaml:"epsilon"`
}

// DefaultThresholds returns the documented business defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		KmDeltaCriticalPct:           0.10,
		KmDeltaWarningPct:            0.05,
		PaymentLossCriticalAbs:       50,
		FallbackDistanceTolerancePct: 0.05,
		FallbackDateWindowDays:       3,
		Epsilon:                      1e-6,
	}
}

// =============================================================================
// FIELD NAMES
// =============================================================================

// FieldsConfig lists, per document type, the raw field names accepted for
// each typed attribute. Lookups are case-insensitive and the first alias
// present in a record wins.
type FieldsConfig struct {
	Orders      OrderFields `yaml:"orders"`
	CreditNotes NoteFields  `yaml:"credit_notes"`
}

// OrderFields are the aliases for transport order attributes.
type OrderFields struct {
	ID              []string `yaml:"id"`
	Origin          []string `yaml:"origin"`
	Destination     []string `yaml:"destination"`
	Vehicle         []string `yaml:"vehicle"`
	DistanceKm      []string `yaml:"distance_km"`
	EmptyKm         []string `yaml:"empty_km"`
	LoadedKm        []string `yaml:"loaded_km"`
	ExpectedPayment []string `yaml:"expected_payment"`
	Freight         []string `yaml:"freight"`
	Toll            []string `yaml:"toll"`
	PaymentPercent  []string `yaml:"payment_percent"`
	Date            []string `yaml:"date"`
}

// NoteFields are the aliases for credit note attributes.
type NoteFields struct {
	ID             []string `yaml:"id"`
	DocumentNumber []string `yaml:"document_number"`
	OrderRef       []string `yaml:"order_ref"`
	Origin         []string `yaml:"origin"`
	Destination    []string `yaml:"destination"`
	Vehicle        []string `yaml:"vehicle"`
	DistanceKm     []string `yaml:"distance_km"`
	PaidAmount     []string `yaml:"paid_amount"`
	Freight        []string `yaml:"freight"`
	Toll           []string `yaml:"toll"`
	Date           []string `yaml:"date"`
}

// DefaultFields returns the canonical field names plus the German labels
// found on the source documents.
func DefaultFields() FieldsConfig {
	return FieldsConfig{
		Orders: OrderFields{
			ID:              []string{"id", "order_id", "Tournummer", "Auftragsnummer"},
			Origin:          []string{"origin", "Ladestelle", "Beladeort"},
			Destination:     []string{"destination", "Entladestelle", "Entladeort"},
			Vehicle:         []string{"vehicle", "LKW", "LKW-Kennzeichen"},
			DistanceKm:      []string{"distance_km", "Auftrag_km", "km"},
			EmptyKm:         []string{"empty_km", "LEERKM", "Leer_km"},
			LoadedKm:        []string{"loaded_km", "LASTKM", "Last_km"},
			ExpectedPayment: []string{"expected_payment", "Preis_Plan", "Summe"},
			Freight:         []string{"freight", "Frachtpreis", "Fracht"},
			Toll:            []string{"toll", "Maut"},
			PaymentPercent:  []string{"payment_percent", "Prozent"},
			Date:            []string{"date", "issue_date", "Datum"},
		},
		CreditNotes: NoteFields{
			ID:             []string{"id", "note_id", "line_id"},
			DocumentNumber: []string{"document_number", "GS_Nummer", "Nummer"},
			OrderRef:       []string{"order_ref", "referenced_order_id", "Transport_Auftrag", "Tournummer"},
			Origin:         []string{"origin", "Ladestelle"},
			Destination:    []string{"destination", "Entladestelle"},
			Vehicle:        []string{"vehicle", "LKW"},
			DistanceKm:     []string{"distance_km", "GS_km", "km"},
			PaidAmount:     []string{"paid_amount", "Summe", "Betrag"},
			Freight:        []string{"freight", "Fracht"},
			Toll:           []string{"toll", "Maut", "Mautkosten"},
			Date:           []string{"date", "issue_date", "Datum"},
		},
	}
}

// =============================================================================
// TEXT PATTERNS
// =============================================================================

// TextPatterns configure the labeled-text extractor per document type.
type TextPatterns struct {
	Orders      TextLayout `yaml:"orders"`
	CreditNotes TextLayout `yaml:"credit_notes"`
}

// TextLayout describes how fields are found in the plain text of a document.
//
// HOW IT WORKS:
//   - Header patterns run against the whole text.
//   - If Separator is set, the text is split at every match of it and each
//     block becomes one record; Record patterns run against the block.
//     Without a separator the whole text is one record.
//   - Every pattern must have one capture group; its first match is the value.
//   - Required names the field that must be found, otherwise the document is
//     reported as unreadable.
type TextLayout struct {
	Separator string            `yaml:"separator"`
	Header    map[string]string `yaml:"header"`
	Record    map[string]string `yaml:"record"`
	Required  string            `yaml:"required"`
}

// DefaultTextPatterns returns the label patterns of the carrier's documents.
func DefaultTextPatterns() TextPatterns {
	return TextPatterns{
		Orders: TextLayout{
			Record: map[string]string{
				"id":              `TRN-(\d{4}\s?\d{2})`,
				"date":            `Datum:\s*(\d{2}\.\d{2}\.\d{4})`,
				"vehicle":         `LKW-Kennzeichen:\s*([A-Z][A-Z\s\-]*\d+)`,
				"empty_km":        `//\s*(\d+)\s*LEERKM`,
				"loaded_km":       `//\s*(\d+)\s*LAST\s*KM`,
				"payment_percent": `//\s*(\d+)\s*%`,
				"freight":         `Frachtpreis:\s*([\d.,]+)\s*EUR`,
				"toll":            `Maut:\s*([\d.,]+)\s*EUR`,
				"origin":          `Ladestelle:\s*([^\n]+)`,
				"destination":     `Entladestelle:\s*([^\n]+)`,
			},
			Required: "id",
		},
		CreditNotes: TextLayout{
			Separator: `Transp\.A\.`,
			Header: map[string]string{
				"document_number": `Nr\.:\s*(\d+)`,
				"date":            `vom:\s*(\d{2}\.\d{2}\.\d{4})`,
			},
			Record: map[string]string{
				"order_ref":   `(?m)^\s*(\d{6})\s+\d{2}\.\d{2}\.\d{4}`,
				"date":        `(?m)^\s*\d{6}\s+(\d{2}\.\d{2}\.\d{4})`,
				"freight":     `(?s)Fracht.*?D\s+[\d,]+\s+([\d.,]+)\s+EUR`,
				"toll":        `(?s)Mautkosten.*?D\s+[\d,]+\s+([\d.,]+)\s+EUR`,
				"paid_amount": `Summe\s+([\d.,]+)\s+EUR`,
				"distance_km": `([\d.,]+)\s*km\b`,
			},
			Required: "document_number",
		},
	}
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// Default returns a fully defaulted configuration.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Load loads the configuration from a YAML file, applies defaults and
// validates it.
//
// PARAMETERS:
//   - path: The path to the configuration file. An empty path returns the
//     defaults.
//
// RETURNS:
//   - A pointer to the Config struct.
//   - An error if the file cannot be read or parsed, or a *ConfigError if a
//     value is invalid.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses YAML configuration data, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	// Thresholds start from the business defaults so that a file can
	// override a single value.
	cfg := Config{Thresholds: DefaultThresholds()}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// The warning level follows a lowered critical level unless the file
	// sets it. An explicit warning level above critical stays an error.
	var explicit struct {
		Thresholds struct {
			KmDeltaWarningPct *float64 `yaml:"km_delta_warning_pct"`
		} `yaml:"thresholds"`
	}
	if err := yaml.Unmarshal(data, &explicit); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if t := &cfg.Thresholds; explicit.Thresholds.KmDeltaWarningPct == nil {
		t.KmDeltaWarningPct = math.Min(t.KmDeltaWarningPct, t.KmDeltaCriticalPct)
	}

	ApplyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyDefaults sets default values for any unset configuration options.
func ApplyDefaults(cfg *Config) {
	if cfg.OrdersDir == "" {
		cfg.OrdersDir = "./documents/orders"
	}
	if cfg.CreditNotesDir == "" {
		cfg.CreditNotesDir = "./documents/gutschriften"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "./output"
	}
	if cfg.ArchiveDir == "" {
		cfg.ArchiveDir = "./archive"
	}
	if len(cfg.InputExtensions) == 0 {
		cfg.InputExtensions = []string{".csv", ".xlsx", ".txt"}
	}
	if cfg.OutputNameFormat == "" {
		cfg.OutputNameFormat = "abgleich_{timestamp}.xlsx"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}
	if len(cfg.DateFormats) == 0 {
		cfg.DateFormats = []string{"02.01.2006", "02.01.06", "2006-01-02"}
	}
	if cfg.SeverityColors == nil {
		cfg.SeverityColors = map[string]string{
			"CRITICAL": "FFE6E6",
			"WARNING":  "FFF9E6",
		}
	}

	applyFieldDefaults(&cfg.Fields)
	applyTextDefaults(&cfg.TextPatterns)
}

// applyFieldDefaults fills every alias list left empty by the file.
func applyFieldDefaults(f *FieldsConfig) {
	d := DefaultFields()

	fill := func(dst *[]string, def []string) {
		if len(*dst) == 0 {
			*dst = def
		}
	}

	fill(&f.Orders.ID, d.Orders.ID)
	fill(&f.Orders.Origin, d.Orders.Origin)
	fill(&f.Orders.Destination, d.Orders.Destination)
	fill(&f.Orders.Vehicle, d.Orders.Vehicle)
	fill(&f.Orders.DistanceKm, d.Orders.DistanceKm)
	fill(&f.Orders.EmptyKm, d.Orders.EmptyKm)
	fill(&f.Orders.LoadedKm, d.Orders.LoadedKm)
	fill(&f.Orders.ExpectedPayment, d.Orders.ExpectedPayment)
	fill(&f.Orders.Freight, d.Orders.Freight)
	fill(&f.Orders.Toll, d.Orders.Toll)
	fill(&f.Orders.PaymentPercent, d.Orders.PaymentPercent)
	fill(&f.Orders.Date, d.Orders.Date)

	fill(&f.CreditNotes.ID, d.CreditNotes.ID)
	fill(&f.CreditNotes.DocumentNumber, d.CreditNotes.DocumentNumber)
	fill(&f.CreditNotes.OrderRef, d.CreditNotes.OrderRef)
	fill(&f.CreditNotes.Origin, d.CreditNotes.Origin)
	fill(&f.CreditNotes.Destination, d.CreditNotes.Destination)
	fill(&f.CreditNotes.Vehicle, d.CreditNotes.Vehicle)
	fill(&f.CreditNotes.DistanceKm, d.CreditNotes.DistanceKm)
	fill(&f.CreditNotes.PaidAmount, d.CreditNotes.PaidAmount)
	fill(&f.CreditNotes.Freight, d.CreditNotes.Freight)
	fill(&f.CreditNotes.Toll, d.CreditNotes.Toll)
	fill(&f.CreditNotes.Date, d.CreditNotes.Date)
}

// applyTextDefaults replaces a layout that has no patterns at all.
func applyTextDefaults(t *TextPatterns) {
	d := DefaultTextPatterns()
	if len(t.Orders.Header) == 0 && len(t.Orders.Record) == 0 {
		t.Orders = d.Orders
	}
	if len(t.CreditNotes.Header) == 0 && len(t.CreditNotes.Record) == 0 {
		t.CreditNotes = d.CreditNotes
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ConfigError reports an invalid configuration value. It is the only fatal
// error of a run.
type ConfigError struct {
	Field  string
	Value  string
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s=%s: %s", e.Field, e.Value, e.Reason)
}

// IsConfigError reports whether err is or wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

var hexColor = regexp.MustCompile(`^[0-9A-Fa-f]{6}$`)

// Validate checks every value that would otherwise mis-classify records.
func (c *Config) Validate() error {
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}

	switch c.DecimalSeparator {
	case "", ",", ".":
	default:
		return &ConfigError{Field: "decimal_separator", Value: c.DecimalSeparator, Reason: `must be "," or "."`}
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return &ConfigError{Field: "log_level", Value: c.LogLevel, Reason: "must be one of debug, info, warn, error"}
	}

	for tag, color := range c.SeverityColors {
		switch tag {
		case "OK", "WARNING", "CRITICAL":
		default:
			return &ConfigError{Field: "severity_colors", Value: tag, Reason: "unknown severity tag"}
		}
		if !hexColor.MatchString(color) {
			return &ConfigError{Field: "severity_colors." + tag, Value: color, Reason: "must be six hex digits"}
		}
	}

	if err := validateLayout("text_patterns.orders", c.TextPatterns.Orders); err != nil {
		return err
	}
	if err := validateLayout("text_patterns.credit_notes", c.TextPatterns.CreditNotes); err != nil {
		return err
	}

	return nil
}

// Validate checks the thresholds on their own. The pipeline calls it before
// touching any record.
func (t Thresholds) Validate() error {
	checks := []struct {
		field string
		value float64
	}{
		{"km_delta_critical_pct", t.KmDeltaCriticalPct},
		{"km_delta_warning_pct", t.KmDeltaWarningPct},
		{"payment_loss_critical_abs", t.PaymentLossCriticalAbs},
		{"fallback_distance_tolerance_pct", t.FallbackDistanceTolerancePct},
		{"epsilon", t.Epsilon},
	}

	for _, c := range checks {
		if math.IsNaN(c.value) || math.IsInf(c.value, 0) {
			return &ConfigError{Field: c.field, Value: formatFloat(c.value), Reason: "must be a finite number"}
		}
		if c.value < 0 {
			return &ConfigError{Field: c.field, Value: formatFloat(c.value), Reason: "must not be negative"}
		}
	}

	if t.KmDeltaWarningPct > t.KmDeltaCriticalPct {
		return &ConfigError{
			Field:  "km_delta_warning_pct",
			Value:  formatFloat(t.KmDeltaWarningPct),
			Reason: "must not exceed km_delta_critical_pct",
		}
	}
	if t.FallbackDistanceTolerancePct >= 1 {
		return &ConfigError{
			Field:  "fallback_distance_tolerance_pct",
			Value:  formatFloat(t.FallbackDistanceTolerancePct),
			Reason: "must be below 1",
		}
	}
	if t.FallbackDateWindowDays < 0 {
		return &ConfigError{
			Field:  "fallback_date_window_days",
			Value:  fmt.Sprintf("%d", t.FallbackDateWindowDays),
			Reason: "must not be negative",
		}
	}
	if t.Epsilon == 0 || t.Epsilon >= 0.01 {
		return &ConfigError{Field: "epsilon", Value: formatFloat(t.Epsilon), Reason: "must be in (0, 0.01)"}
	}

	return nil
}

// validateLayout compiles every pattern of a text layout.
func validateLayout(prefix string, l TextLayout) error {
	if l.Separator != "" {
		if _, err := regexp.Compile(l.Separator); err != nil {
			return &ConfigError{Field: prefix + ".separator", Value: l.Separator, Reason: err.Error()}
		}
	}

	for _, group := range []struct {
		name     string
		patterns map[string]string
	}{{"header", l.Header}, {"record", l.Record}} {
		for field, pattern := range group.patterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return &ConfigError{Field: prefix + "." + group.name + "." + field, Value: pattern, Reason: err.Error()}
			}
			if re.NumSubexp() < 1 {
				return &ConfigError{Field: prefix + "." + group.name + "." + field, Value: pattern, Reason: "needs a capture group"}
			}
		}
	}

	return nil
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%g", v)
}
