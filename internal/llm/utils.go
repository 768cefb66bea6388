package llm

import (
	"strings"
	"unicode"
)

// cleanCompletion drops invalid UTF-8 and control characters from a model
// answer so it can be stored in a text column, then trims the result.
func cleanCompletion(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || !unicode.IsControl(r) {
			return r
		}
		return -1
	}, s)
	return strings.TrimSpace(s)
}
