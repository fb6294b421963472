package text

import (
	"regexp"
	"strings"
	"unicode"
)

// Regex patterns used by the normalizer.
const (
	referenceRegexPattern  = `\[\d+\]|[¹²³⁴⁵⁶⁷⁸⁹⁰]+`
	whitespaceRegexPattern = `\s+`
)

// Punctuation forms rewritten to their ASCII equivalent.
const (
	emDash       = "—"
	enDash       = "–"
	figureDash   = "‒"
	ellipsis     = "..."
	ellipsisChar = "…"
)

// Normalizer rewrites typographic noise that tends to derail the model:
// footnote markers, runs of whitespace, repeated punctuation, smart quotes
// and unicode dashes. It is language-agnostic; it never rewrites words.
type Normalizer struct {
	referencePattern  *regexp.Regexp
	whitespacePattern *regexp.Regexp
	punctReplacer     *strings.Replacer
}

// NewNormalizer compiles the normalizer's patterns.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		referencePattern:  regexp.MustCompile(referenceRegexPattern),
		whitespacePattern: regexp.MustCompile(whitespaceRegexPattern),
		punctReplacer: strings.NewReplacer(
			emDash, "-",
			enDash, "-",
			figureDash, "-",
			ellipsisChar, ellipsis,
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
	}
}

// Normalize returns the cleaned text. The result is not terminated; run
// Sanitize afterwards.
func (n *Normalizer) Normalize(s string) string {
	if s == "" {
		return s
	}

	s = n.referencePattern.ReplaceAllString(s, "")
	s = n.punctReplacer.Replace(s)
	s = collapseRepeatedPunctuation(s)
	s = n.whitespacePattern.ReplaceAllString(s, " ")

	return strings.TrimSpace(s)
}

// collapseRepeatedPunctuation keeps the first rune of each run of identical
// punctuation, except periods so that "..." survives.
func collapseRepeatedPunctuation(s string) string {
	var (
		builder strings.Builder
		last    rune
	)

	builder.Grow(len(s))

	for _, char := range s {
		if char == last && char != '.' && unicode.IsPunct(char) {
			continue
		}

		builder.WriteRune(char)

		last = char
	}

	return builder.String()
}
