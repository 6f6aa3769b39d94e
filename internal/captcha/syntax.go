package captcha

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type SyntaxKind string

const (
	SyntaxAlphanumeric SyntaxKind = "alphanumeric"
	SyntaxArithmetic   SyntaxKind = "arithmetic"
)

// Syntax describes what a valid answer looks like for a portal.
//
//   - alphanumeric: exactly Length characters of [A-Za-z0-9], a zero Length
//     accepts any non-empty length.
//   - arithmetic: the image shows "a op b" and the answer is the evaluated
//     integer, negative results are rejected unless AllowNegative is set.
type Syntax struct {
	Kind          SyntaxKind `json:"kind"`
	Length        int        `json:"length"`
	AllowNegative bool       `json:"allow_negative"`
}

const (
	alphanumericCharset = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	arithmeticCharset   = "0123456789+-"
)

// Charset is the set of glyphs a recognizer should consider for this syntax.
func (s Syntax) Charset() string {
	if s.Kind == SyntaxArithmetic {
		return arithmeticCharset
	}
	return alphanumericCharset
}

var (
	alphanumericRegex = regexp.MustCompile(`^[A-Za-z0-9]+$`)
	integerRegex      = regexp.MustCompile(`^-?[0-9]+$`)
)

// Validate reports whether text may be submitted as an answer.
func (s Syntax) Validate(text string) error {
	switch s.Kind {
	case SyntaxArithmetic:
		if !integerRegex.MatchString(text) {
			return fmt.Errorf("%w: %q is not an integer", ErrInvalidAnswer, text)
		}
		if strings.HasPrefix(text, "-") && !s.AllowNegative {
			return fmt.Errorf("%w: %q is negative", ErrInvalidAnswer, text)
		}
		return nil
	case SyntaxAlphanumeric, "":
		if !alphanumericRegex.MatchString(text) {
			return fmt.Errorf("%w: %q is not alphanumeric", ErrInvalidAnswer, text)
		}
		if s.Length > 0 && len(text) != s.Length {
			return fmt.Errorf("%w: %q is not %d characters long", ErrInvalidAnswer, text, s.Length)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown syntax kind %q", ErrInvalidAnswer, s.Kind)
}

var expressionRegex = regexp.MustCompile(`^([0-9]+)([+\-])([0-9]+)$`)

// cleanExpression drops everything that cannot be part of an arithmetic
// expression, recognizers and remote services tend to add "=" or "?".
func cleanExpression(raw string) string {
	var out strings.Builder
	for _, r := range raw {
		if strings.ContainsRune(arithmeticCharset, r) {
			out.WriteRune(r)
		}
	}
	return out.String()
}

// Evaluate computes "a+b" or "a-b", ok is false when raw is not such an
// expression.
func Evaluate(raw string) (result int, ok bool) {
	groups := expressionRegex.FindStringSubmatch(cleanExpression(raw))
	if groups == nil {
		return 0, false
	}
	a, err := strconv.Atoi(groups[1])
	if err != nil {
		return 0, false
	}
	b, err := strconv.Atoi(groups[3])
	if err != nil {
		return 0, false
	}
	if groups[2] == "+" {
		return a + b, true
	}
	return a - b, true
}

// apply combines two operands with an operator rune.
func apply(a, b int, op rune) int {
	if op == '-' {
		return a - b
	}
	return a + b
}
