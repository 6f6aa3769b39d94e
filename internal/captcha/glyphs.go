package captcha

import (
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// gridSize is the side of the square every glyph is normalized into before
// comparison.
const gridSize = 16

// grid is a normalized glyph, aspect ratio is preserved and the glyph is
// centered.
type grid [gridSize * gridSize]bool

func normalize(b *bitmap, r box) grid {
	var out grid
	w, h := r.width(), r.height()
	side := max(w, h)
	dw := max(w*gridSize/side, 1)
	dh := max(h*gridSize/side, 1)
	offX := (gridSize - dw) / 2
	offY := (gridSize - dh) / 2

	for gy := 0; gy < dh; gy++ {
		sy := r.minY + (2*gy+1)*h/(2*dh)
		for gx := 0; gx < dw; gx++ {
			sx := r.minX + (2*gx+1)*w/(2*dw)
			out[(gy+offY)*gridSize+gx+offX] = b.at(sx, sy)
		}
	}
	return out
}

// similarity is the Jaccard index of the inked cells of two grids.
func similarity(a, b grid) float64 {
	intersection, union := 0, 0
	for i := range a {
		if a[i] && b[i] {
			intersection++
		}
		if a[i] || b[i] {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

type template struct {
	r    rune
	grid grid
}

// renderGlyph rasterizes a single rune of the face into a bitmap cropped to
// its ink.
func renderGlyph(face font.Face, r rune) (*bitmap, box, bool) {
	dr, mask, maskp, _, ok := face.Glyph(fixed.Point26_6{}, r)
	if !ok || dr.Empty() {
		return nil, box{}, false
	}
	bm := newBitmap(dr.Dx(), dr.Dy())
	for y := 0; y < dr.Dy(); y++ {
		for x := 0; x < dr.Dx(); x++ {
			_, _, _, a := mask.At(maskp.X+x, maskp.Y+y).RGBA()
			if a > 0x7fff {
				bm.set(x, y, true)
			}
		}
	}
	bounds, ok := bm.inkBounds(box{maxX: bm.width - 1, maxY: bm.height - 1})
	return bm, bounds, ok
}

var (
	templateMutex sync.Mutex
	templateCache = map[string][]template{}
)

// templatesFor renders one template per rune of the charset, rendered sets
// are cached per charset.
func templatesFor(charset string) []template {
	templateMutex.Lock()
	defer templateMutex.Unlock()

	if cached, ok := templateCache[charset]; ok {
		return cached
	}
	var out []template
	for _, r := range charset {
		bm, bounds, ok := renderGlyph(basicfont.Face7x13, r)
		if !ok {
			continue
		}
		out = append(out, template{r: r, grid: normalize(bm, bounds)})
	}
	templateCache[charset] = out
	return out
}

type glyph struct {
	r     rune
	score float64
	box   box
}

// classify returns the best matching rune for the glyph in r.
func classify(b *bitmap, r box, templates []template) glyph {
	sample := normalize(b, r)
	best := glyph{box: r}
	for _, t := range templates {
		score := similarity(sample, t.grid)
		if score > best.score {
			best.r = t.r
			best.score = score
		}
	}
	return best
}
