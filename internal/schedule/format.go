// Package schedule reads and formats the read-only booking schedule.
package schedule

import (
	"sort"
	"strings"
	"unicode"
)

const (
	// NoTimePlaceholder is shown when a booking carries no parsable times.
	NoTimePlaceholder = "Время не указано"
	// noTimeSortKey sorts timeless bookings after everything else.
	noTimeSortKey = "99:99"
	// Raw interval blobs carry a fixed-length status suffix on every line.
	timeSuffixLen = 6
)

func timeLines(raw string) []string {
	var lines []string
	for _, line := range strings.Split(raw, "\r\n") {
		line = strings.TrimSpace(line)
		if !strings.Contains(line, "-") {
			continue
		}
		if !strings.ContainsFunc(line, unicode.IsDigit) {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// ExtractTimes turns a raw interval blob into display-ready time ranges,
// one per line, with the trailing status suffix stripped.
func ExtractTimes(raw string) string {
	if raw == "" {
		return NoTimePlaceholder
	}

	lines := timeLines(raw)
	if len(lines) == 0 {
		return NoTimePlaceholder
	}

	trimmed := make([]string, 0, len(lines))
	for _, line := range lines {
		runes := []rune(line)
		if len(runes) >= timeSuffixLen {
			line = string(runes[:len(runes)-timeSuffixLen])
		}
		trimmed = append(trimmed, line)
	}
	return strings.Join(trimmed, "\n")
}

// StartTimeKey returns the earliest start time in the blob as a sortable
// key. Bookings without a time get a sentinel key that sorts last.
func StartTimeKey(raw string) string {
	if raw == "" {
		return noTimeSortKey
	}

	lines := timeLines(raw)
	if len(lines) == 0 {
		return noTimeSortKey
	}

	sort.Strings(lines)
	start, _, _ := strings.Cut(lines[0], "-")
	return start
}
