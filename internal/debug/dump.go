// Package debug writes chunk rasters to disk for inspection.
package debug

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	"github.com/Faultbox/tilestream/internal/chunk"
)

// Dumper writes chunk rasters and frame mosaics as PNG files.
type Dumper struct {
	outputDir string
	prefix    string
	frame     int

	// Grid draws chunk borders on mosaics when non-zero alpha.
	Grid color.RGBA
}

// NewDumper creates a dumper writing into outputDir.
func NewDumper(outputDir, prefix string) *Dumper {
	return &Dumper{
		outputDir: outputDir,
		prefix:    prefix,
		Grid:      color.RGBA{R: 255, G: 255, B: 255, A: 160},
	}
}

// Frames returns the number of mosaics written.
func (d *Dumper) Frames() int {
	return d.frame
}

// DumpChunks writes one PNG per drawable, named after its chunk coordinate.
func (d *Dumper) DumpChunks(drawables []chunk.Drawable) ([]string, error) {
	if err := d.ensureDir(); err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(drawables))
	for _, dr := range drawables {
		path := d.path(fmt.Sprintf("%s_chunk_%d_%d.png", d.prefix, dr.Coord.X, dr.Coord.Y))
		if err := writePNG(path, dr.Image); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Select returns the drawables whose chunk is in coords, keeping their order.
func Select(drawables []chunk.Drawable, coords []chunk.Coord) []chunk.Drawable {
	want := make(chunk.Set, len(coords))
	for _, c := range coords {
		want.Add(c)
	}
	var out []chunk.Drawable
	for _, dr := range drawables {
		if want.Has(dr.Coord) {
			out = append(out, dr)
		}
	}
	return out
}

// DumpMosaic writes the drawables composed at their world positions as one
// numbered frame. chunkPixels is the edge of a chunk raster, used for the grid.
func (d *Dumper) DumpMosaic(drawables []chunk.Drawable, chunkPixels int) (string, error) {
	img := Mosaic(drawables)
	if img == nil {
		return "", fmt.Errorf("no drawables to dump")
	}
	if d.Grid.A != 0 && chunkPixels > 0 {
		DrawChunkGrid(img, chunkPixels, d.Grid)
	}
	if err := d.ensureDir(); err != nil {
		return "", err
	}

	path := d.path(fmt.Sprintf("%s_%04d.png", d.prefix, d.frame))
	if err := writePNG(path, img); err != nil {
		return "", err
	}
	d.frame++
	return path, nil
}

// Mosaic composes drawables into one image covering their union.
// The image bounds are in world pixels. Returns nil for no drawables.
func Mosaic(drawables []chunk.Drawable) *image.RGBA {
	if len(drawables) == 0 {
		return nil
	}
	var union image.Rectangle
	for _, dr := range drawables {
		union = union.Union(worldRect(dr))
	}

	img := image.NewRGBA(union)
	for _, dr := range drawables {
		draw.Draw(img, worldRect(dr), dr.Image, dr.Image.Bounds().Min, draw.Over)
	}
	return img
}

func worldRect(dr chunk.Drawable) image.Rectangle {
	at := image.Pt(int(dr.X), int(dr.Y))
	return image.Rectangle{Min: at, Max: at.Add(dr.Image.Bounds().Size())}
}

func (d *Dumper) ensureDir() error {
	if d.outputDir == "" {
		return nil
	}
	if err := os.MkdirAll(d.outputDir, 0755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	return nil
}

func (d *Dumper) path(name string) string {
	if d.outputDir == "" {
		return name
	}
	return filepath.Join(d.outputDir, name)
}

func writePNG(path string, img image.Image) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return fmt.Errorf("encoding PNG: %w", err)
	}
	return nil
}
