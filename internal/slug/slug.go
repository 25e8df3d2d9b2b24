// Package slug derives URL- and anchor-safe identifiers from chapter titles.
package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes characters and drops combining marks, so "é" slugs
// to "e" instead of being dropped entirely.
var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Make converts an arbitrary title into a lowercase slug: diacritics are
// folded to their base letters, runs of non-alphanumerics collapse into a
// single hyphen, leading/trailing hyphens are trimmed.
func Make(s string) string {
	return slugify(s, false)
}

// HeadingID returns the anchor id for a heading title. Identical to Make
// except underscores are preserved, matching rendered heading anchors.
func HeadingID(s string) string {
	return slugify(s, true)
}

func slugify(s string, keepUnderscore bool) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		// Transform failures leave the input untouched; slugging still works,
		// accented characters just get dropped below.
		folded = s
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	lastHyphen := true // suppress leading hyphen
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case r == '_' && keepUnderscore:
			b.WriteRune(r)
			lastHyphen = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			// Non-Latin scripts survive as-is (anchors keep them).
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
