package terrain

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	_ "image/png" // PNG decoder registration
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	_ "golang.org/x/image/bmp" // BMP decoder registration
	"golang.org/x/image/draw"

	"github.com/Faultbox/tilestream/pkg/tga"
)

// Palette holds the tile variants of both layers, scaled to one tile size.
type Palette struct {
	TileSize   int
	Ground     []image.Image
	Decoration []image.Image
}

// Spec builds the layer spec for kind from the palette.
func (p *Palette) Spec(kind LayerKind, biasKeep, placeChance float64) LayerSpec {
	variants := p.Ground
	if kind == LayerDecoration {
		variants = p.Decoration
	}
	return LayerSpec{
		Kind:        kind,
		Variants:    variants,
		BiasKeep:    biasKeep,
		PlaceChance: placeChance,
	}
}

// paletteSchema validates palette manifests before any image is opened.
const paletteSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["ground", "decoration"],
	"additionalProperties": false,
	"properties": {
		"ground": {
			"type": "array",
			"minItems": 1,
			"items": {"type": "string", "minLength": 1}
		},
		"decoration": {
			"type": "array",
			"minItems": 1,
			"items": {"type": "string", "minLength": 1}
		},
		"magenta_key": {"type": "boolean"}
	}
}`

var compiledPaletteSchema = jsonschema.MustCompileString("palette.schema.json", paletteSchema)

// manifest is the on-disk palette description. Image paths are relative to
// the manifest's directory; the first entry of each list is the common variant.
type manifest struct {
	Ground     []string `json:"ground"`
	Decoration []string `json:"decoration"`
	MagentaKey bool     `json:"magenta_key"` // Treat magenta as transparent
}

// LoadPalette reads a JSON palette manifest and decodes its PNG, BMP or TGA
// tiles, scaling each to tileSize.
func LoadPalette(path string, tileSize int) (*Palette, error) {
	if tileSize <= 0 {
		return nil, fmt.Errorf("%w: tile size %d", ErrInvalidSize, tileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading palette %s: %w", path, err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing palette %s: %w", path, err)
	}
	if err := compiledPaletteSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("validating palette %s: %w", path, err)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing palette %s: %w", path, err)
	}

	base := filepath.Dir(path)
	p := &Palette{TileSize: tileSize}
	if p.Ground, err = loadVariants(base, m.Ground, tileSize, m.MagentaKey); err != nil {
		return nil, err
	}
	if p.Decoration, err = loadVariants(base, m.Decoration, tileSize, m.MagentaKey); err != nil {
		return nil, err
	}
	return p, nil
}

func loadVariants(base string, names []string, tileSize int, magentaKey bool) ([]image.Image, error) {
	out := make([]image.Image, 0, len(names))
	for _, name := range names {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(base, name)
		}
		img, err := decodeImageFile(path)
		if err != nil {
			return nil, err
		}
		tile := ScaleTile(img, tileSize)
		if magentaKey {
			tga.ApplyMagentaKey(tile)
		}
		out = append(out, tile)
	}
	return out, nil
}

func decodeImageFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening tile %s: %w", path, err)
	}
	defer f.Close()

	var img image.Image
	if strings.EqualFold(filepath.Ext(path), ".tga") {
		img, err = tga.Decode(f)
	} else {
		img, _, err = image.Decode(f)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding tile %s: %w", path, err)
	}
	return img, nil
}

// ScaleTile returns img resized to a tileSize square RGBA image.
// Images already at that size are copied without resampling.
func ScaleTile(img image.Image, tileSize int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, tileSize, tileSize))
	b := img.Bounds()
	if b.Dx() == tileSize && b.Dy() == tileSize {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// DefaultPalette draws a built-in palette: two grass tones and dirt for the
// ground, and tree, bush and rock decorations. Pixels are either fully
// opaque or fully transparent.
func DefaultPalette(tileSize int) *Palette {
	return &Palette{
		TileSize: tileSize,
		Ground: []image.Image{
			speckled(tileSize, color.RGBA{R: 76, G: 140, B: 58, A: 255}, color.RGBA{R: 64, G: 122, B: 48, A: 255}, 1),
			speckled(tileSize, color.RGBA{R: 98, G: 160, B: 70, A: 255}, color.RGBA{R: 84, G: 146, B: 60, A: 255}, 2),
			speckled(tileSize, color.RGBA{R: 134, G: 104, B: 70, A: 255}, color.RGBA{R: 116, G: 88, B: 58, A: 255}, 3),
		},
		Decoration: []image.Image{
			tree(tileSize),
			blob(tileSize, 0.5, 0.62, 0.26, color.RGBA{R: 46, G: 110, B: 40, A: 255}),
			blob(tileSize, 0.5, 0.6, 0.2, color.RGBA{R: 128, G: 128, B: 132, A: 255}),
		},
	}
}

// speckled fills a tile with base colour and a deterministic scatter of accent pixels.
func speckled(size int, base, accent color.RGBA, salt uint32) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := base
			if mix(uint32(x), uint32(y), salt)%7 == 0 {
				c = accent
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// tree draws a trunk with a round canopy on a transparent tile.
func tree(size int) *image.RGBA {
	img := blob(size, 0.5, 0.4, 0.32, color.RGBA{R: 34, G: 96, B: 36, A: 255})
	trunk := color.RGBA{R: 96, G: 64, B: 36, A: 255}
	x0, x1 := size*7/16, size*9/16
	y0, y1 := size*11/16, size*15/16
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			img.SetRGBA(x, y, trunk)
		}
	}
	return img
}

// blob draws a filled circle at fractional centre (cx, cy) with fractional radius r.
func blob(size int, cx, cy, r float64, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	fs := float64(size)
	rr := (r * fs) * (r * fs)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx := float64(x) + 0.5 - cx*fs
			dy := float64(y) + 0.5 - cy*fs
			if dx*dx+dy*dy <= rr {
				img.SetRGBA(x, y, c)
			}
		}
	}
	return img
}

// mix is a small integer hash for texture noise.
func mix(x, y, salt uint32) uint32 {
	h := x*374761393 + y*668265263 + salt*2246822519
	h = (h ^ (h >> 13)) * 1274126177
	return h ^ (h >> 16)
}
