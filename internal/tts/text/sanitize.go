// Package text prepares request text before it reaches the speech model.
package text

import (
	"strings"
	"unicode/utf8"
)

// TERMINATORS lists the runes accepted as the end of a sanitized text.
const TERMINATORS = ".!?,:;"

const defaultTerminator = "."

// Sanitize trims surrounding whitespace and terminates the text with a period
// when it does not already end in one of TERMINATORS. Empty input is returned
// as is. Sanitize(Sanitize(s)) == Sanitize(s).
func Sanitize(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return trimmed
	}

	if IsTerminated(trimmed) {
		return trimmed
	}

	return trimmed + defaultTerminator
}

// IsTerminated reports whether s ends in one of TERMINATORS.
func IsTerminated(s string) bool {
	last, size := utf8.DecodeLastRuneInString(s)
	if size == 0 {
		return false
	}

	return strings.ContainsRune(TERMINATORS, last)
}
