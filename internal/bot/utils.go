package bot

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// sanitizeText trims and collapses whitespace runs. Punctuation is kept:
// flow input like 1/15 or 14:30 depends on it.
func sanitizeText(text string) string {
	text = strings.TrimSpace(text)
	return whitespaceRegex.ReplaceAllString(text, " ")
}
