package grokipedia

import (
	"html"
	"strings"
)

// StripHTML removes HTML markup from s and decodes character entities. The
// unescape-then-strip pass repeats until the string stops changing, so nested
// escaping ("&amp;lt;em&amp;gt;") is fully unwound and applying StripHTML to
// its own output is a no-op. Each pass only shortens the string, so the loop
// terminates.
//
// A "<" is only treated as a tag opener when followed by a letter, "/" or
// "!", so prose like "a < b" survives intact.
func StripHTML(s string) string {
	for {
		out := stripTags(html.UnescapeString(s))
		if out == s {
			return out
		}
		s = out
	}
}

func stripTags(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	inTag := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inTag {
			if c == '>' {
				inTag = false
			}
			continue
		}
		if c == '<' && i+1 < len(s) && isTagStart(s[i+1]) {
			inTag = true
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isTagStart(c byte) bool {
	return c == '/' || c == '!' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
