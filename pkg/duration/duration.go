// Package duration parses human-readable durations for settings like
// session retention, where values such as "2d" or "1 week" read better
// than "48h".
//
// It accepts everything time.ParseDuration does plus days (24h), weeks
// (7d), months (30d) and years (365d), with singular, plural and short
// unit spellings ("30d", "30 days", "1w2d12h"). Matching is
// case-insensitive and whitespace between number and unit is optional.
package duration

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// Day represents 24 hours.
	Day = 24 * time.Hour
	// Week represents 7 days.
	Week = 7 * Day
	// Month represents 30 days (approximate).
	Month = 30 * Day
	// Year represents 365 days (approximate).
	Year = 365 * Day
)

// unitMultipliers maps extended unit spellings to hours, the largest
// unit time.ParseDuration accepts.
var unitMultipliers = map[string]int64{
	// Years (365 days)
	"y":     365 * 24,
	"yr":    365 * 24,
	"yrs":   365 * 24,
	"year":  365 * 24,
	"years": 365 * 24,

	// Months (30 days)
	"mo":     30 * 24,
	"mos":    30 * 24,
	"month":  30 * 24,
	"months": 30 * 24,

	// Weeks
	"w":     7 * 24,
	"wk":    7 * 24,
	"wks":   7 * 24,
	"week":  7 * 24,
	"weeks": 7 * 24,

	// Days
	"d":    24,
	"day":  24,
	"days": 24,
}

// standardUnitReplacements maps spelled-out standard units to the
// short forms time.ParseDuration understands.
var standardUnitReplacements = map[string]string{
	// Hours
	"hour":  "h",
	"hours": "h",
	"hr":    "h",
	"hrs":   "h",

	// Minutes
	"minute":  "m",
	"minutes": "m",
	"min":     "m",
	"mins":    "m",

	// Seconds
	"second":  "s",
	"seconds": "s",
	"sec":     "s",
	"secs":    "s",

	// Milliseconds
	"millisecond":  "ms",
	"milliseconds": "ms",
	"milli":        "ms",
	"millis":       "ms",

	// Microseconds
	"microsecond":  "us",
	"microseconds": "us",
	"micro":        "us",
	"micros":       "us",

	// Nanoseconds
	"nanosecond":  "ns",
	"nanoseconds": "ns",
	"nano":        "ns",
	"nanos":       "ns",
}

// extendedUnitPattern matches the units time.ParseDuration lacks, with
// optional whitespace: "30d", "30 days", "2weeks", "1 month".
var extendedUnitPattern = regexp.MustCompile(`(?i)(\d+)\s*(years?|yrs?|y|months?|mos?|mo|weeks?|wks?|w|days?|d)`)

// standardUnitPattern matches standard units spelled out as words, with
// optional whitespace: "3 hours", "30 minutes", "5 seconds".
var standardUnitPattern = regexp.MustCompile(`(?i)(\d+)\s*(hours?|hrs?|minutes?|mins?|seconds?|secs?|milliseconds?|millis?|microseconds?|micros?|nanoseconds?|nanos?)`)

// Parse parses a duration like "2d", "1 week" or "720h". Extended
// units (d, w, mo, y) are converted to hours, then the whole string is
// handed to time.ParseDuration.
func Parse(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("duration: empty string")
	}

	s = strings.TrimSpace(s)

	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = strings.TrimPrefix(s, "-")
		s = strings.TrimSpace(s)
	}

	var totalHours int64

	// Fold every extended unit into an hour count, leaving the rest of
	// the string behind.
	remaining := extendedUnitPattern.ReplaceAllStringFunc(s, func(match string) string {
		matches := extendedUnitPattern.FindStringSubmatch(match)
		if len(matches) == 3 {
			value, _ := strconv.ParseInt(matches[1], 10, 64)
			unit := strings.ToLower(matches[2])
			if multiplier, ok := unitMultipliers[unit]; ok {
				totalHours += value * multiplier
			}
		}
		return ""
	})

	// Rewrite spelled-out standard units to their short form.
	remaining = standardUnitPattern.ReplaceAllStringFunc(remaining, func(match string) string {
		matches := standardUnitPattern.FindStringSubmatch(match)
		if len(matches) == 3 {
			value := matches[1]
			unit := strings.ToLower(matches[2])
			if shortUnit, ok := standardUnitReplacements[unit]; ok {
				return value + shortUnit
			}
		}
		return match
	})

	// time.ParseDuration rejects spaces between units.
	remaining = strings.TrimSpace(remaining)
	remaining = strings.Join(strings.Fields(remaining), "")

	var durationStr string
	if totalHours > 0 {
		durationStr = fmt.Sprintf("%dh", totalHours)
	}
	if remaining != "" {
		durationStr += remaining
	}
	if durationStr == "" {
		durationStr = "0s"
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return 0, fmt.Errorf("duration: %w", err)
	}

	if negative {
		d = -d
	}

	return d, nil
}

// MustParse is like Parse but panics if the string cannot be parsed.
// Use only for compile-time constants.
func MustParse(s string) time.Duration {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Format renders a duration with the largest units first, dropping
// zero components: 1h0m0s becomes "1h", 1h0m10s becomes "1h10s".
func Format(d time.Duration) string {
	if d == 0 {
		return "0s"
	}

	negative := d < 0
	if negative {
		d = -d
	}

	var result strings.Builder

	years := d / Year
	d -= years * Year

	months := d / Month
	d -= months * Month

	weeks := d / Week
	d -= weeks * Week

	days := d / Day
	d -= days * Day

	hours := d / time.Hour
	d -= hours * time.Hour

	minutes := d / time.Minute
	d -= minutes * time.Minute

	seconds := d / time.Second
	d -= seconds * time.Second

	if years > 0 {
		fmt.Fprintf(&result, "%dy", years)
	}
	if months > 0 {
		fmt.Fprintf(&result, "%dmo", months)
	}
	if weeks > 0 {
		fmt.Fprintf(&result, "%dw", weeks)
	}
	if days > 0 {
		fmt.Fprintf(&result, "%dd", days)
	}
	if hours > 0 {
		fmt.Fprintf(&result, "%dh", hours)
	}
	if minutes > 0 {
		fmt.Fprintf(&result, "%dm", minutes)
	}
	if seconds > 0 {
		fmt.Fprintf(&result, "%ds", seconds)
	}
	// Sub-second remainder, largest unit first.
	if d > 0 {
		if d >= time.Millisecond {
			ms := d / time.Millisecond
			d -= ms * time.Millisecond
			fmt.Fprintf(&result, "%dms", ms)
		}
		if d >= time.Microsecond {
			us := d / time.Microsecond
			d -= us * time.Microsecond
			fmt.Fprintf(&result, "%dµs", us)
		}
		if d > 0 {
			fmt.Fprintf(&result, "%dns", d)
		}
	}

	if result.Len() == 0 {
		return "0s"
	}

	if negative {
		return "-" + result.String()
	}
	return result.String()
}
