package captcha

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// LocalSolver recognizes challenge text by binarizing the image, segmenting
// it into glyphs and matching each glyph against bitmap font templates.
type LocalSolver struct {
	name       string
	preprocess Preprocess
	// minScore is the lowest template similarity a glyph may have before it
	// is treated as noise.
	minScore float64
	minInk   int
	// charset overrides the syntax charset when not empty.
	charset string
}

type LocalOptions struct {
	Name       string
	Preprocess Preprocess
	MinScore   float64
	MinInk     int
	Charset    string
}

// DefaultPreprocess is tuned for light background challenges with dark text.
var DefaultPreprocess = Preprocess{
	BlockSize: 15,
	Offset:    12,
	DarkFloor: 64,
}

// FallbackPreprocess trades precision for recall, it is used after the
// other tiers failed.
var FallbackPreprocess = Preprocess{
	Scale:     2,
	BlockSize: 31,
	Offset:    6,
	DarkFloor: 96,
	Dilate:    true,
}

func NewLocalSolver(opts LocalOptions) LocalSolver {
	if opts.Name == "" {
		opts.Name = "local"
	}
	if opts.Preprocess.BlockSize <= 0 {
		opts.Preprocess = DefaultPreprocess
	}
	if opts.MinScore <= 0 {
		opts.MinScore = 0.55
	}
	if opts.MinInk <= 0 {
		opts.MinInk = 3
	}
	return LocalSolver{
		name:       opts.Name,
		preprocess: opts.Preprocess,
		minScore:   opts.MinScore,
		minInk:     opts.MinInk,
		charset:    opts.Charset,
	}
}

func (s LocalSolver) Name() string {
	return s.name
}

// recognize returns the glyphs that matched a template well enough, in
// reading order.
func (s LocalSolver) recognize(bm *bitmap, charset string) []glyph {
	templates := templatesFor(charset)
	var out []glyph
	for _, r := range segment(bm, s.minInk) {
		g := classify(bm, r, templates)
		if g.score < s.minScore {
			continue
		}
		out = append(out, g)
	}
	return out
}

func (s LocalSolver) Solve(ctx context.Context, challenge Challenge, syntax Syntax) (Answer, error) {
	if err := ctx.Err(); err != nil {
		return Answer{}, err
	}
	bm, err := preprocess(challenge.Image, s.preprocess)
	if err != nil {
		return Answer{}, err
	}

	charset := s.charset
	if charset == "" {
		charset = syntax.Charset()
	}
	glyphs := s.recognize(bm, charset)
	if len(glyphs) == 0 {
		return Answer{}, fmt.Errorf("%s: no glyphs recognized", s.name)
	}

	if syntax.Kind != SyntaxArithmetic {
		text := glyphText(glyphs)
		err := syntax.Validate(text)
		if err != nil {
			return Answer{}, err
		}
		return Answer{Text: text, Confidence: ConfidenceLocal}, nil
	}
	return solveArithmetic(bm, glyphs, syntax)
}

func glyphText(glyphs []glyph) string {
	var text strings.Builder
	for _, g := range glyphs {
		text.WriteRune(g.r)
	}
	return text.String()
}

func solveArithmetic(bm *bitmap, glyphs []glyph, syntax Syntax) (Answer, error) {
	text := glyphText(glyphs)
	if result, ok := Evaluate(text); ok {
		answer := strconv.Itoa(result)
		if err := syntax.Validate(answer); err != nil {
			return Answer{}, err
		}
		return Answer{Text: answer, Confidence: ConfidenceLocal}, nil
	}

	// the operator was lost, look for it between each pair of neighbouring
	// digits and accept only an unambiguous split
	digits := make([]glyph, 0, len(glyphs))
	for _, g := range glyphs {
		if unicode.IsDigit(g.r) {
			digits = append(digits, g)
		}
	}
	if len(digits) != len(glyphs) || len(digits) < 2 {
		return Answer{}, fmt.Errorf("%w: %q is not an expression", ErrInvalidAnswer, text)
	}

	split := -1
	var op rune
	for i := 0; i+1 < len(digits); i++ {
		found := detectOperator(bm, digits[i].box, digits[i+1].box)
		if found == 0 {
			continue
		}
		if split >= 0 {
			return Answer{}, fmt.Errorf("%w: more than one operator in %q", ErrInvalidAnswer, text)
		}
		split = i + 1
		op = found
	}
	if split < 0 {
		return Answer{}, fmt.Errorf("%w: no operator found in %q", ErrInvalidAnswer, text)
	}

	a, err := strconv.Atoi(glyphText(digits[:split]))
	if err != nil {
		return Answer{}, err
	}
	b, err := strconv.Atoi(glyphText(digits[split:]))
	if err != nil {
		return Answer{}, err
	}
	answer := strconv.Itoa(apply(a, b, op))
	if err := syntax.Validate(answer); err != nil {
		return Answer{}, err
	}
	return Answer{Text: answer, Confidence: ConfidenceHybrid}, nil
}

// recoverOperator is used when another tier read two bare digits, it
// segments the image locally and looks for the operator between the
// outermost glyphs.
func recoverOperator(image []byte, p Preprocess, minInk int) (rune, error) {
	bm, err := preprocess(image, p)
	if err != nil {
		return 0, err
	}
	boxes := segment(bm, minInk)
	if len(boxes) < 2 {
		return 0, fmt.Errorf("expected at least two glyphs, found %d", len(boxes))
	}
	first, last := boxes[0], boxes[len(boxes)-1]
	for _, r := range boxes[1 : len(boxes)-1] {
		// the operator has its own segment when it does not touch the digits
		if op := operatorBetween(bm, first, r, last); op != 0 {
			return op, nil
		}
	}
	if op := detectOperator(bm, first, last); op != 0 {
		return op, nil
	}
	return 0, fmt.Errorf("no operator found")
}

func operatorBetween(bm *bitmap, left, candidate, right box) rune {
	top, bottom := lineBounds(left, right)
	lineHeight := bottom - top + 1
	center := (candidate.minY + candidate.maxY) / 2
	if center < top+int(float64(lineHeight)*operatorBandTop) ||
		center > top+int(float64(lineHeight)*operatorBandBottom) {
		return 0
	}
	return operatorShape(bm, candidate)
}
