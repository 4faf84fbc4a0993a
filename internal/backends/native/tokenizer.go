package native

import (
	"regexp"
	"strings"
)

var (
	nonAlphanumeric = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	// "HTTPRequest" -> "HTTP Request"
	acronymBoundary = regexp.MustCompile(`(\p{Lu}+)(\p{Lu}\p{Ll})`)
	// "theOffice" -> "the Office"
	camelBoundary = regexp.MustCompile(`([\p{Ll}\p{N}])(\p{Lu})`)
)

// tokenize splits camel case, lowercases and splits on anything that is not
// a letter or digit.
func tokenize(text string) []string {
	text = acronymBoundary.ReplaceAllString(text, "$1 $2")
	text = camelBoundary.ReplaceAllString(text, "$1 $2")

	parts := nonAlphanumeric.Split(strings.ToLower(text), -1)
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

// prefixes returns the proper prefixes of token ("sea" -> "s", "se"),
// rune-aligned so multibyte letters are never split.
func prefixes(token string) []string {
	runes := []rune(token)
	if len(runes) < 2 {
		return nil
	}
	out := make([]string, 0, len(runes)-1)
	for i := 1; i < len(runes); i++ {
		out = append(out, string(runes[:i]))
	}
	return out
}
