package triage

import (
	"strings"
	"unicode"
)

// Normalize canonicalizes raw text for stem matching: lowercased, punctuation
// replaced by spaces so word boundaries survive ("unpatched," becomes
// "unpatched"), and runs of whitespace collapsed to single spaces.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	pendingSpace := false
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		pendingSpace = true
	}

	return b.String()
}
