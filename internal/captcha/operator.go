package captcha

const (
	operatorBandTop    = 0.35
	operatorBandBottom = 0.65
)

// detectOperator looks at the ink between two digit boxes and decides if it
// is a '+' or a '-'. The ink has to sit in the central band (35% to 65%) of
// the text line, a flat bar is '-' and a bar crossed by a vertical stroke
// through its center is '+'. It returns 0 when neither shape is found.
func detectOperator(b *bitmap, left, right box) rune {
	if right.minX-left.maxX < 2 {
		return 0
	}
	top, bottom := lineBounds(left, right)
	lineHeight := bottom - top + 1
	bandTop := top + int(float64(lineHeight)*operatorBandTop)
	bandBottom := top + int(float64(lineHeight)*operatorBandBottom)

	ink, ok := b.inkBounds(box{
		minX: left.maxX + 1,
		minY: top,
		maxX: right.minX - 1,
		maxY: bottom,
	})
	if !ok {
		return 0
	}
	center := (ink.minY + ink.maxY) / 2
	if center < bandTop || center > bandBottom {
		return 0
	}
	return operatorShape(b, ink)
}

// operatorShape classifies the ink inside r, which must already be cropped
// to its ink bounds.
func operatorShape(b *bitmap, r box) rune {
	w, h := r.width(), r.height()
	if w < 2 {
		return 0
	}
	if float64(h) <= max(2, float64(w)/2.5) {
		return '-'
	}

	midY := (r.minY + r.maxY) / 2
	midX := (r.minX + r.maxX) / 2
	horizontal := 0
	for x := r.minX; x <= r.maxX; x++ {
		if b.at(x, midY) || b.at(x, midY-1) || b.at(x, midY+1) {
			horizontal++
		}
	}
	vertical := 0
	for y := r.minY; y <= r.maxY; y++ {
		if b.at(midX, y) || b.at(midX-1, y) || b.at(midX+1, y) {
			vertical++
		}
	}
	if float64(horizontal) >= 0.6*float64(w) && float64(vertical) >= 0.6*float64(h) {
		return '+'
	}
	return 0
}
