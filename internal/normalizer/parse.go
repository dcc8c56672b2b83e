// =============================================================================
// Freight Reconciler - Field Parsing
// =============================================================================
//
// Parsing helpers for the raw strings produced by extraction.
//
// NUMBERS:
//   Documents mix conventions. All of these parse to 1234.56:
//     "1.234,56"   German (period groups, comma decimal)
//     "1,234.56"   English (comma groups, period decimal)
//     "1234.56", "1234,56", "1 234,56", "1.234,56 EUR", "€ 1234,56"
//   Rules when only one kind of separator is present:
//     - A single comma is always the decimal separator ("850,5").
//     - A single period is the decimal separator, unless it is followed by
//       exactly three digits ("1.234" is 1234, as on German documents).
//     - A separator occurring more than once is a group separator and every
//       group after the first must have exactly three digits.
//   With a configured decimal separator the other one is always the group
//   separator, so "123.450" reads as 123.45 when the separator is ".".
//
// DATES:
//   Layouts are tried in the configured order. Dates are informational, so
//   an unparseable date never excludes a record.
//
// =============================================================================

package normalizer

import (
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	errEmpty    = errors.New("empty value")
	errNotANum  = errors.New("not a number")
	errGrouping = errors.New("invalid digit grouping")
)

// unitSuffixes are stripped from the end of a number (case-insensitive).
var unitSuffixes = []string{"eur", "€", "km", "%"}

// ParseDecimal parses a number written in German, English or plain notation.
func ParseDecimal(raw string) (decimal.Decimal, error) {
	return ParseDecimalWith(raw, "")
}

// ParseDecimalWith parses a number whose decimal separator is decimalSep
// ("," or "."). An empty decimalSep detects the notation like ParseDecimal.
func ParseDecimalWith(raw, decimalSep string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "€")
	s = trimUnits(s)

	// Spaces (including non-breaking ones) and apostrophes are group marks.
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '\'' {
			return -1
		}
		return r
	}, s)

	if s == "" {
		return decimal.Zero, errEmpty
	}

	sign := ""
	if s[0] == '-' || s[0] == '+' {
		if s[0] == '-' {
			sign = "-"
		}
		s = s[1:]
	}

	for _, r := range s {
		if !(r >= '0' && r <= '9') && r != '.' && r != ',' {
			return decimal.Zero, errNotANum
		}
	}

	var canonical string
	var err error
	if decimalSep == "" {
		canonical, err = canonicalize(s)
	} else {
		canonical, err = canonicalizeWith(s, decimalSep)
	}
	if err != nil {
		return decimal.Zero, err
	}

	d, err := decimal.NewFromString(sign + canonical)
	if err != nil {
		return decimal.Zero, errNotANum
	}
	return d, nil
}

// trimUnits removes a trailing unit or currency token.
func trimUnits(s string) string {
	lower := strings.ToLower(s)
	for _, suffix := range unitSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return strings.TrimSpace(s[:len(s)-len(suffix)])
		}
	}
	return s
}

// canonicalize rewrites digits and separators to "1234.56".
func canonicalize(s string) (string, error) {
	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")

	switch {
	case dots == 0 && commas == 0:
		return s, nil

	case dots > 0 && commas > 0:
		// The separator used last is the decimal one and occurs once.
		lastDot := strings.LastIndex(s, ".")
		lastComma := strings.LastIndex(s, ",")
		group, dec := ".", ","
		if lastDot > lastComma {
			group, dec = ",", "."
		}
		if strings.Count(s, dec) != 1 {
			return "", errGrouping
		}
		parts := strings.SplitN(s, dec, 2)
		intPart, err := ungroup(parts[0], group)
		if err != nil {
			return "", err
		}
		return joinParts(intPart, parts[1])

	case commas == 1:
		parts := strings.SplitN(s, ",", 2)
		return joinParts(parts[0], parts[1])

	case dots == 1:
		parts := strings.SplitN(s, ".", 2)
		if len(parts[1]) == 3 && len(parts[0]) >= 1 && len(parts[0]) <= 3 && parts[0][0] != '0' {
			return parts[0] + parts[1], nil
		}
		return joinParts(parts[0], parts[1])

	case commas > 1:
		return ungroup(s, ",")

	default:
		return ungroup(s, ".")
	}
}

// canonicalizeWith rewrites s using a known decimal separator.
func canonicalizeWith(s, dec string) (string, error) {
	group := "."
	if dec == "." {
		group = ","
	}

	switch strings.Count(s, dec) {
	case 0:
		return ungroup(s, group)
	case 1:
		parts := strings.SplitN(s, dec, 2)
		intPart := parts[0]
		if intPart != "" {
			var err error
			if intPart, err = ungroup(intPart, group); err != nil {
				return "", err
			}
		}
		return joinParts(intPart, parts[1])
	default:
		return "", errGrouping
	}
}

// ungroup removes group separators after checking the group widths.
func ungroup(s, sep string) (string, error) {
	if !strings.Contains(s, sep) {
		if s == "" {
			return "", errGrouping
		}
		return s, nil
	}

	groups := strings.Split(s, sep)
	if len(groups[0]) == 0 || len(groups[0]) > 3 {
		return "", errGrouping
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return "", errGrouping
		}
	}
	return strings.Join(groups, ""), nil
}

func joinParts(intPart, fracPart string) (string, error) {
	if fracPart == "" || strings.ContainsAny(fracPart, ".,") || strings.ContainsAny(intPart, ".,") {
		return "", errNotANum
	}
	if intPart == "" {
		intPart = "0"
	}
	return intPart + "." + fracPart, nil
}

// ParseDate parses raw with the first matching layout. ok is false for empty
// or unparseable input.
func ParseDate(raw string, layouts []string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeID returns the comparison key of an identifier: whitespace
// removed and case folded. Printed order numbers such as "1234 56" and
// "123456" compare equal.
func NormalizeID(id string) string {
	id = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, id)
	return strings.ToLower(id)
}

// NormalizeRoute folds a route for comparison: case folded, inner whitespace
// collapsed.
func NormalizeRoute(route string) string {
	return strings.ToLower(strings.Join(strings.Fields(route), " "))
}
