package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fold lower-cases s, strips diacritics and collapses whitespace so that
// "Atlético  Madrid" and "atletico madrid" compare equal.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}

	stripped = strings.ReplaceAll(stripped, "’", "'")

	return strings.Join(strings.Fields(cases.Fold().String(stripped)), " ")
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// boundedAt reports whether s[start:end] is delimited by non-word characters.
func boundedAt(s string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:start])
		if isWordRune(r) {
			return false
		}
	}

	if end < len(s) {
		r, _ := utf8.DecodeRuneInString(s[end:])
		if isWordRune(r) {
			return false
		}
	}

	return true
}

// indexAllWords returns the byte offsets of every word-bounded occurrence of needle in s.
func indexAllWords(s, needle string) []int {
	if needle == "" {
		return nil
	}

	var out []int

	for from := 0; from < len(s); {
		i := strings.Index(s[from:], needle)
		if i < 0 {
			break
		}

		start := from + i
		if boundedAt(s, start, start+len(needle)) {
			out = append(out, start)
		}

		from = start + 1
	}

	return out
}

// containsWord reports whether needle occurs in s on word boundaries.
func containsWord(s, needle string) bool {
	return len(indexAllWords(s, needle)) > 0
}
