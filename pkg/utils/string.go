package utils

import "github.com/charmbracelet/x/ansi"

// Truncate shortens s to at most maxLen terminal cells, ending in "..." when
// anything was cut. Escape sequences do not count toward the width.
func Truncate(s string, maxLen int) string {
	if ansi.StringWidth(s) <= maxLen {
		return s
	}
	return ansi.Truncate(s, maxLen, "...")
}
