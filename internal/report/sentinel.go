package report

import "strings"

// ReadySentinel is the marker the interviewer embeds once enough has been
// collected to generate the report.
const ReadySentinel = "[READY_TO_GENERATE]"

// DetectReadiness reports whether text carries the sentinel and returns the
// text with every occurrence removed.
func DetectReadiness(text string) (string, bool) {
	ready := strings.Contains(text, ReadySentinel)
	if !ready {
		return strings.TrimSpace(text), false
	}
	return strings.TrimSpace(strings.ReplaceAll(text, ReadySentinel, "")), true
}
