// Package htmlutils builds Telegram HTML message fragments.
//
// The package handles:
//   - UTF-16 length calculation (Telegram's native encoding)
//   - Safe truncation by UTF-16 code units
//   - Escaped text and anchors with safe hrefs
package htmlutils

import (
	"html"
	"strings"
	"unicode/utf16"
)

// MaxMessageUnits is Telegram's message length limit in UTF-16 code units.
const MaxMessageUnits = 4096

const ellipsis = "…"

// dangerousProtocols lists URL protocols that are never linked.
var dangerousProtocols = []string{
	"javascript:",
	"vbscript:",
	"data:",
}

// utf16Len returns the number of UTF-16 code units needed to encode the string.
// Telegram counts message length in UTF-16 code units, not Unicode code points.
func utf16Len(s string) int {
	return len(utf16.Encode([]rune(s)))
}

// utf16Slice returns the longest prefix of s that fits in maxUnits UTF-16 code units.
func utf16Slice(s string, maxUnits int) string {
	units := 0

	for i, r := range s {
		runeUnits := 1
		if r > 0xFFFF {
			runeUnits = 2 // Surrogate pair needed
		}

		if units+runeUnits > maxUnits {
			return s[:i]
		}

		units += runeUnits
	}

	return s
}

// Truncate shortens plain text to maxUnits UTF-16 code units, ending with an
// ellipsis when anything was cut.
func Truncate(s string, maxUnits int) string {
	if maxUnits <= 0 {
		return ""
	}

	if utf16Len(s) <= maxUnits {
		return s
	}

	return strings.TrimSpace(utf16Slice(s, maxUnits-1)) + ellipsis
}

// Escape escapes plain text for Telegram HTML parse mode.
func Escape(s string) string {
	return html.EscapeString(s)
}

// Bold wraps escaped text in <b>.
func Bold(s string) string {
	return "<b>" + Escape(s) + "</b>"
}

// Link returns an anchor for href, or the escaped text alone when href is
// empty or uses a dangerous protocol.
func Link(href, text string) string {
	if !SafeHref(href) {
		return Escape(text)
	}

	return `<a href="` + html.EscapeString(strings.TrimSpace(href)) + `">` + Escape(text) + "</a>"
}

// SafeHref reports whether href may be used in an anchor.
func SafeHref(href string) bool {
	lower := strings.ToLower(strings.TrimSpace(href))
	if lower == "" {
		return false
	}

	for _, proto := range dangerousProtocols {
		if strings.HasPrefix(lower, proto) {
			return false
		}
	}

	return true
}
