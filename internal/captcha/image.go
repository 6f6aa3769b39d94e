package captcha

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
)

// bitmap is a binarized image, true means ink.
type bitmap struct {
	width  int
	height int
	ink    []bool
}

func newBitmap(width, height int) *bitmap {
	return &bitmap{width: width, height: height, ink: make([]bool, width*height)}
}

func (b *bitmap) at(x, y int) bool {
	if x < 0 || y < 0 || x >= b.width || y >= b.height {
		return false
	}
	return b.ink[y*b.width+x]
}

func (b *bitmap) set(x, y int, v bool) {
	b.ink[y*b.width+x] = v
}

// box is an inclusive pixel rectangle.
type box struct {
	minX, minY, maxX, maxY int
}

func (r box) width() int  { return r.maxX - r.minX + 1 }
func (r box) height() int { return r.maxY - r.minY + 1 }

// inkBounds returns the bounding box of the ink inside the columns and rows
// of r, ok is false when there is no ink.
func (b *bitmap) inkBounds(r box) (box, bool) {
	out := box{minX: r.maxX + 1, minY: r.maxY + 1, maxX: r.minX - 1, maxY: r.minY - 1}
	found := false
	for y := r.minY; y <= r.maxY; y++ {
		for x := r.minX; x <= r.maxX; x++ {
			if !b.at(x, y) {
				continue
			}
			found = true
			out.minX = min(out.minX, x)
			out.maxX = max(out.maxX, x)
			out.minY = min(out.minY, y)
			out.maxY = max(out.maxY, y)
		}
	}
	return out, found
}

// Preprocess controls how a challenge image is binarized.
type Preprocess struct {
	// Scale upsamples the image before thresholding, values <= 1 disable it.
	Scale int
	// BlockSize is the side of the window used for the adaptive mean.
	BlockSize int
	// Offset is how much darker than the local mean a pixel must be to count as ink.
	Offset int
	// DarkFloor marks every pixel darker than it as ink regardless of the mean,
	// this keeps the inside of thick strokes filled.
	DarkFloor int
	// Dilate thickens strokes by one pixel after despeckling.
	Dilate bool
}

func decodeGray(data []byte, scale int) (*image.Gray, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode challenge image: %w", err)
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("decode challenge image: empty image")
	}

	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(gray, gray.Bounds(), img, bounds.Min, draw.Src)
	if scale <= 1 {
		return gray, nil
	}

	scaled := image.NewGray(image.Rect(0, 0, bounds.Dx()*scale, bounds.Dy()*scale))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), gray, gray.Bounds(), xdraw.Src, nil)
	return scaled, nil
}

// binarize applies adaptive mean thresholding using an integral image.
func binarize(gray *image.Gray, p Preprocess) *bitmap {
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	integral := make([]int64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var rowSum int64
		for x := 0; x < w; x++ {
			rowSum += int64(gray.Pix[y*gray.Stride+x])
			integral[(y+1)*(w+1)+x+1] = integral[y*(w+1)+x+1] + rowSum
		}
	}

	half := max(p.BlockSize/2, 1)
	out := newBitmap(w, h)
	for y := 0; y < h; y++ {
		y0, y1 := max(y-half, 0), min(y+half+1, h)
		for x := 0; x < w; x++ {
			x0, x1 := max(x-half, 0), min(x+half+1, w)
			sum := integral[y1*(w+1)+x1] - integral[y0*(w+1)+x1] - integral[y1*(w+1)+x0] + integral[y0*(w+1)+x0]
			mean := sum / int64((x1-x0)*(y1-y0))

			v := int64(gray.Pix[y*gray.Stride+x])
			if v < int64(p.DarkFloor) || v < mean-int64(p.Offset) {
				out.set(x, y, true)
			}
		}
	}
	return out
}

func (b *bitmap) neighbors(x, y int) int {
	n := 0
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if (dx != 0 || dy != 0) && b.at(x+dx, y+dy) {
				n++
			}
		}
	}
	return n
}

// despeckle removes ink pixels without any inked neighbor.
func despeckle(b *bitmap) {
	var isolated []int
	for y := 0; y < b.height; y++ {
		for x := 0; x < b.width; x++ {
			if b.at(x, y) && b.neighbors(x, y) == 0 {
				isolated = append(isolated, y*b.width+x)
			}
		}
	}
	for _, i := range isolated {
		b.ink[i] = false
	}
}

func dilate(b *bitmap) *bitmap {
	out := newBitmap(b.width, b.height)
	for y := 0; y < b.height; y++ {
		for x := 0; x < b.width; x++ {
			out.set(x, y, b.at(x, y) || b.neighbors(x, y) > 0)
		}
	}
	return out
}

func preprocess(data []byte, p Preprocess) (*bitmap, error) {
	gray, err := decodeGray(data, p.Scale)
	if err != nil {
		return nil, err
	}
	bm := binarize(gray, p)
	despeckle(bm)
	if p.Dilate {
		bm = dilate(bm)
	}
	return bm, nil
}
