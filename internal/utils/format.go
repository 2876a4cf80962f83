package utils

import "fmt"

// FormatSeconds renders a second count as HH:MM:SS for display surfaces.
// Negative values clamp to zero.
func FormatSeconds(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
