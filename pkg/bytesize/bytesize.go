// Package bytesize parses and formats human-readable byte sizes, as
// used for storage limits in configuration ("5MB", "1.5 GB", "500KB").
//
// All units are binary: KB/K and KiB both mean 1024 bytes, MB/M and
// MiB 1024^2, and so on up to PB/P and PiB. Unit matching is
// case-insensitive and a bare number means bytes.
package bytesize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Size represents a byte size as int64.
type Size int64

// Common size constants using binary (1024) base.
const (
	B  Size = 1
	KB Size = 1024
	MB Size = 1024 * KB
	GB Size = 1024 * MB
	TB Size = 1024 * GB
	PB Size = 1024 * TB
)

// unitMultipliers maps unit names to their byte multiplier.
var unitMultipliers = map[string]Size{
	// Bytes
	"b":     B,
	"byte":  B,
	"bytes": B,

	// Kilobytes (binary)
	"k":   KB,
	"kb":  KB,
	"kib": KB,

	// Megabytes (binary)
	"m":   MB,
	"mb":  MB,
	"mib": MB,

	// Gigabytes (binary)
	"g":   GB,
	"gb":  GB,
	"gib": GB,

	// Terabytes (binary)
	"t":   TB,
	"tb":  TB,
	"tib": TB,

	// Petabytes (binary)
	"p":   PB,
	"pb":  PB,
	"pib": PB,
}

// sizePattern matches a number (int or float) followed by optional unit.
var sizePattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([a-z]*)\s*$`)

// Parse parses a size like "5MB", "1.5 GB" or "1024". Fractional
// values are allowed; a missing unit means bytes.
func Parse(s string) (Size, error) {
	if s == "" {
		return 0, fmt.Errorf("bytesize: empty string")
	}

	matches := sizePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("bytesize: invalid format %q", s)
	}

	valueStr := matches[1]
	unitStr := strings.ToLower(matches[2])

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("bytesize: invalid number %q: %w", valueStr, err)
	}

	var multiplier Size = B
	if unitStr != "" {
		var ok bool
		multiplier, ok = unitMultipliers[unitStr]
		if !ok {
			return 0, fmt.Errorf("bytesize: unknown unit %q", unitStr)
		}
	}

	return Size(value * float64(multiplier)), nil
}

// MustParse is like Parse but panics if the string cannot be parsed.
// Use only for compile-time constants.
func MustParse(s string) Size {
	size, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return size
}

// Format renders a size with the largest unit that keeps the value at
// or above 1, so 1536 bytes comes out as "1.5KB".
func Format(s Size) string {
	if s == 0 {
		return "0B"
	}

	negative := s < 0
	if negative {
		s = -s
	}

	var result string

	switch {
	case s >= PB:
		result = formatFloat(float64(s)/float64(PB), "PB")
	case s >= TB:
		result = formatFloat(float64(s)/float64(TB), "TB")
	case s >= GB:
		result = formatFloat(float64(s)/float64(GB), "GB")
	case s >= MB:
		result = formatFloat(float64(s)/float64(MB), "MB")
	case s >= KB:
		result = formatFloat(float64(s)/float64(KB), "KB")
	default:
		result = fmt.Sprintf("%dB", s)
	}

	if negative {
		return "-" + result
	}
	return result
}

// formatFloat prints whole values without a decimal point and
// everything else with up to two places, trailing zeros trimmed.
func formatFloat(value float64, unit string) string {
	if value == float64(int64(value)) {
		return fmt.Sprintf("%d%s", int64(value), unit)
	}
	formatted := fmt.Sprintf("%.2f", value)
	formatted = strings.TrimRight(formatted, "0")
	formatted = strings.TrimRight(formatted, ".")
	return formatted + unit
}

// Bytes returns the size in bytes as int64.
func (s Size) Bytes() int64 {
	return int64(s)
}

// String returns a human-readable string representation.
func (s Size) String() string {
	return Format(s)
}

// Int64 returns the size as int64 (alias for Bytes).
func (s Size) Int64() int64 {
	return int64(s)
}
