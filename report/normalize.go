package report

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/acarl005/stripansi"
)

var (
	nonNumeric  = regexp.MustCompile(`[^0-9.]`)
	compactJunk = regexp.MustCompile(`[\s+]`)
)

// ParseStatus maps free-form status text to a canonical status. Matching is
// case-insensitive on substrings in the order PASS/SUCCESS, FAIL/ERROR,
// SKIP/IGNORE, BLOCK, RETEST. Unmatched text yields SKIPPED and false.
func ParseStatus(text string) (Status, bool) {
	upper := strings.ToUpper(strings.TrimSpace(text))
	switch Status(upper) {
	case StatusPassed, StatusFailed, StatusSkipped, StatusBlocked, StatusRetest:
		return Status(upper), true
	}
	switch {
	case upper == "":
		return StatusSkipped, false
	case strings.Contains(upper, "PASS") || strings.Contains(upper, "SUCCESS"):
		return StatusPassed, true
	case strings.Contains(upper, "FAIL") || strings.Contains(upper, "ERROR"):
		return StatusFailed, true
	case strings.Contains(upper, "SKIP") || strings.Contains(upper, "IGNORE"):
		return StatusSkipped, true
	case strings.Contains(upper, "BLOCK"):
		return StatusBlocked, true
	case strings.Contains(upper, "RETEST"):
		return StatusRetest, true
	}
	return StatusSkipped, false
}

// NormalizeStatus is ParseStatus without the match flag. It never fails.
func NormalizeStatus(text string) Status {
	s, _ := ParseStatus(text)
	return s
}

// ParseDuration reads a human duration. Text without a recognizable unit is
// taken as seconds.
func ParseDuration(text string) (time.Duration, bool) {
	return ParseDurationIn(text, time.Second)
}

// ParseDurationIn reads a human duration, using unit when the text names none.
// Go duration syntax ("1m30s", "0h 0m 3s+123ms") is accepted first; otherwise
// every character except digits and '.' is stripped and the unit is inferred
// from ms/millisecond, sec/second, min, hour.
func ParseDurationIn(text string, unit time.Duration) (time.Duration, bool) {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(compactJunk.ReplaceAllString(lower, "")); err == nil && d >= 0 {
		return d, true
	}
	cleaned := nonNumeric.ReplaceAllString(lower, "")
	if cleaned == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	switch {
	case strings.Contains(lower, "ms") || strings.Contains(lower, "millisecond"):
		unit = time.Millisecond
	case strings.Contains(lower, "sec"):
		unit = time.Second
	case strings.Contains(lower, "min"):
		unit = time.Minute
	case strings.Contains(lower, "hour"):
		unit = time.Hour
	}
	return time.Duration(value * float64(unit)), true
}

// Seconds floors d to whole seconds. 3500ms is 3.
func Seconds(d time.Duration) int64 {
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

// CleanText strips ANSI escapes and normalizes line endings of captured output.
func CleanText(s string) string {
	s = stripansi.Strip(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(s)
}

// firstLine returns the first non-blank line of s.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
