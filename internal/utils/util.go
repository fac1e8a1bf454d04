package utils

import (
	"fmt"
	"strings"
)

func EscapeMd(s string) string {
	repl := []string{"*", "\\*", "_", "\\_", "`", "\\`", "~", "\\~"}
	r := strings.NewReplacer(repl...)
	return r.Replace(s)
}

func PrettyTime(sec int) string {
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// Truncate shortens s to at most width runes, appending "..." when cut.
func Truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width]) + "..."
}
