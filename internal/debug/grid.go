package debug

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// DrawChunkGrid draws chunk border lines every chunkPixels world pixels.
func DrawChunkGrid(img *image.RGBA, chunkPixels int, c color.RGBA) {
	b := img.Bounds()
	line := &image.Uniform{C: c}

	// Vertical lines
	for x := firstLine(b.Min.X, chunkPixels); x < b.Max.X; x += chunkPixels {
		draw.Draw(img, image.Rect(x, b.Min.Y, x+1, b.Max.Y), line, image.Point{}, draw.Over)
	}
	// Horizontal lines
	for y := firstLine(b.Min.Y, chunkPixels); y < b.Max.Y; y += chunkPixels {
		draw.Draw(img, image.Rect(b.Min.X, y, b.Max.X, y+1), line, image.Point{}, draw.Over)
	}
}

// firstLine returns the first multiple of step at or after v.
func firstLine(v, step int) int {
	r := v % step
	if r == 0 {
		return v
	}
	if r < 0 {
		return v - r
	}
	return v + step - r
}
