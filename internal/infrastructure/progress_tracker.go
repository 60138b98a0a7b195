package infrastructure

import (
	"strconv"
	"strings"

	"github.com/sridip-de/yt-dlp-gui/internal/domain"
)

// ProgressTracker recognizes yt-dlp progress lines such as
//
//	[download]  45.2% of 10.00MiB at 1.20MiB/s ETA 00:10
//
// A line is progress when it has a token containing '%' and a separate ETA
// token. Anything else is passed through as plain log output.
type ProgressTracker struct{}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{}
}

// OnLine classifies one output line. It never fails: a line that looks like
// progress but has no parseable percentage is reported without a fraction.
func (t *ProgressTracker) OnLine(line string) domain.ProgressEvent {
	event := domain.ProgressEvent{RawLine: line}

	fields := strings.Fields(line)
	for i := len(fields) - 1; i >= 0; i-- {
		if !strings.Contains(fields[i], "%") {
			continue
		}
		if !hasETAToken(fields, i) {
			return event
		}
		fraction, ok := parsePercent(fields[i])
		if !ok {
			return event
		}
		event.Fraction = &fraction
		event.ReplaceLast = true
		return event
	}

	return event
}

// hasETAToken reports whether any field other than fields[skip] is the ETA
// marker, optionally followed by a colon
func hasETAToken(fields []string, skip int) bool {
	for i, f := range fields {
		if i != skip && strings.EqualFold(strings.TrimSuffix(f, ":"), "eta") {
			return true
		}
	}
	return false
}

// parsePercent extracts a fraction in [0,1] from a token like "45.2%" or
// "45,2%". Only the first decimal separator is honored.
func parsePercent(token string) (float64, bool) {
	var b strings.Builder
	seenSep := false
	for _, c := range token {
		switch {
		case c >= '0' && c <= '9':
			b.WriteRune(c)
		case (c == '.' || c == ',') && !seenSep && b.Len() > 0:
			seenSep = true
			b.WriteByte('.')
		}
	}

	digits := strings.TrimSuffix(b.String(), ".")
	if digits == "" {
		return 0, false
	}

	value, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0, false
	}

	fraction := value / 100
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return fraction, true
}
