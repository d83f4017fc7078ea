package report

import (
	"fmt"
	"math"
	"strings"
)

// SafeName turns a feature or scenario name into a single path segment.
// Letters, digits, '-', '_' and '.' are kept; everything else becomes '_'.
func SafeName(name string) string {
	if name == "" {
		return "_"
	}

	var sb strings.Builder

	sb.Grow(len(name))

	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}

	out := sb.String()
	if out == "." || out == ".." {
		return strings.Repeat("_", len(out))
	}

	return out
}

// FormatDuration renders a duration in seconds for display, e.g.
// "23 ms", "0.13 sec", "1 min 5 sec" or "2 hr 3 min".
func FormatDuration(seconds float64) string {
	switch {
	case seconds <= 0:
		return "0 ms"
	case seconds < 0.1:
		return fmt.Sprintf("%d ms", int64(math.Round(seconds*1000)))
	case seconds < 60:
		return fmt.Sprintf("%.2f sec", seconds)
	}

	total := int64(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60

	if hours > 0 {
		return fmt.Sprintf("%d hr %d min", hours, minutes)
	}

	return fmt.Sprintf("%d min %d sec", minutes, secs)
}
