package captcha

// segment splits the bitmap into glyph boxes by column projection, left to
// right. Runs of inked columns separated by at least one empty column form
// one glyph each, runs with fewer than minInk pixels are dropped as noise.
func segment(b *bitmap, minInk int) []box {
	projection := make([]int, b.width)
	for x := 0; x < b.width; x++ {
		for y := 0; y < b.height; y++ {
			if b.at(x, y) {
				projection[x]++
			}
		}
	}

	var out []box
	start := -1
	total := 0
	flush := func(end int) {
		if start < 0 {
			return
		}
		if total >= minInk {
			bounds, ok := b.inkBounds(box{minX: start, minY: 0, maxX: end, maxY: b.height - 1})
			if ok {
				out = append(out, bounds)
			}
		}
		start = -1
		total = 0
	}

	for x := 0; x < b.width; x++ {
		if projection[x] == 0 {
			flush(x - 1)
			continue
		}
		if start < 0 {
			start = x
		}
		total += projection[x]
	}
	flush(b.width - 1)
	return out
}

// lineBounds is the vertical extent shared by a set of glyph boxes.
func lineBounds(boxes ...box) (top, bottom int) {
	if len(boxes) == 0 {
		return 0, 0
	}
	top, bottom = boxes[0].minY, boxes[0].maxY
	for _, b := range boxes[1:] {
		top = min(top, b.minY)
		bottom = max(bottom, b.maxY)
	}
	return top, bottom
}
