package htmlutils

import (
	"testing"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		limit    int
		expected string
	}{
		{
			name:     "fits",
			input:    "Arsenal 1-0 Chelsea",
			limit:    50,
			expected: "Arsenal 1-0 Chelsea",
		},
		{
			name:     "cut with ellipsis",
			input:    "Arsenal 1-0 Chelsea",
			limit:    9,
			expected: "Arsenal…",
		},
		{
			name:     "surrogate pair is not split",
			input:    "⚽\U0001F525goal",
			limit:    3,
			expected: "⚽…",
		},
		{
			name:     "zero limit",
			input:    "anything",
			limit:    0,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.input, tt.limit)
			if got != tt.expected {
				t.Errorf("Truncate() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestLink(t *testing.T) {
	tests := []struct {
		name     string
		href     string
		text     string
		expected string
	}{
		{
			name:     "https",
			href:     "https://streamff.co/v/abc",
			text:     "Watch",
			expected: `<a href="https://streamff.co/v/abc">Watch</a>`,
		},
		{
			name:     "escapes href and text",
			href:     "https://example.com?q=a&b=c",
			text:     "A & B",
			expected: `<a href="https://example.com?q=a&amp;b=c">A &amp; B</a>`,
		},
		{
			name:     "javascript href dropped",
			href:     "javascript:alert(1)",
			text:     "Click",
			expected: "Click",
		},
		{
			name:     "data href dropped",
			href:     " DATA:text/html,x",
			text:     "Click",
			expected: "Click",
		},
		{
			name:     "empty href",
			href:     "",
			text:     "<b>",
			expected: "&lt;b&gt;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Link(tt.href, tt.text)
			if got != tt.expected {
				t.Errorf("Link() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestBold(t *testing.T) {
	if got := Bold("Brighton & Hove Albion"); got != "<b>Brighton &amp; Hove Albion</b>" {
		t.Errorf("Bold() = %q", got)
	}
}

func TestUTF16Len(t *testing.T) {
	if got := utf16Len("a⚽\U0001F525"); got != 4 {
		t.Errorf("utf16Len() = %d, want 4", got)
	}
}
