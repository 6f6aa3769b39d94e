package records

import (
	"courtfetch/pkg/textutil"
	"strings"
)

// Option is one entry of a lookup feed such as the judge list.
type Option struct {
	Value string
	Label string
}

// ParseOptions parses a "value~label#value~label" feed. Entries without a
// label separator and placeholder entries valued "0" are skipped.
func ParseOptions(raw string) []Option {
	var out []Option
	for _, part := range strings.Split(textutil.Clean(raw), "#") {
		value, label, ok := strings.Cut(part, fieldDelimiter)
		if !ok {
			continue
		}
		value = textutil.Clean(value)
		label = textutil.Clean(label)
		if value == "" || value == "0" {
			continue
		}
		out = append(out, Option{Value: value, Label: label})
	}
	return out
}
