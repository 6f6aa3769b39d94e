package textutil

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Clean strips byte order marks and surrounding whitespace.
func Clean(s string) string {
	s = strings.ReplaceAll(s, "\ufeff", "")
	return strings.TrimSpace(s)
}

// NormalizeName lowercases a name and collapses its whitespace so names
// typed by a person can be compared with names served by a portal.
func NormalizeName(name string) string {
	name = strings.ToLower(Clean(name))
	name = strings.NewReplacer(".", " ", ",", " ").Replace(name)
	name = whitespaceRegex.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// IsDigits reports whether s is a non-empty run of ASCII digits.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

var unsafeRegex = regexp.MustCompile(`[^A-Za-z0-9_\-]+`)

// SafeLabel replaces every run of characters that are unsafe in a path
// segment with "_", an empty result becomes fallback.
func SafeLabel(s, fallback string) string {
	s = unsafeRegex.ReplaceAllString(Clean(s), "_")
	if s == "" {
		return fallback
	}
	return s
}
