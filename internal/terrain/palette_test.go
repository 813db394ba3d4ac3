package terrain

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/image/bmp"
)

func writeTile(t *testing.T, path string, size int, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if strings.HasSuffix(path, ".bmp") {
		err = bmp.Encode(f, img)
	} else {
		err = png.Encode(f, img)
	}
	if err != nil {
		t.Fatal(err)
	}
}

func TestLoadPalette(t *testing.T) {
	dir := t.TempDir()
	writeTile(t, filepath.Join(dir, "grass.png"), 16, color.RGBA{G: 200, A: 255})
	writeTile(t, filepath.Join(dir, "dirt.bmp"), 8, color.RGBA{R: 120, G: 80, A: 255})
	writeTile(t, filepath.Join(dir, "tree.png"), 4, color.RGBA{G: 90, A: 255})

	manifest := `{"ground": ["grass.png", "dirt.bmp"], "decoration": ["tree.png"]}`
	path := filepath.Join(dir, "palette.json")
	if err := os.WriteFile(path, []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadPalette(path, 8)
	if err != nil {
		t.Fatalf("LoadPalette: %v", err)
	}
	if len(p.Ground) != 2 || len(p.Decoration) != 1 {
		t.Fatalf("got %d ground and %d decoration variants", len(p.Ground), len(p.Decoration))
	}
	for _, img := range append(p.Ground, p.Decoration...) {
		if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 8 {
			t.Errorf("variant not scaled to tile size: %v", b)
		}
	}
	if r, g, _, _ := p.Ground[0].At(3, 3).RGBA(); r != 0 || g>>8 != 200 {
		t.Errorf("common ground variant has wrong colour")
	}
	if r, _, _, _ := p.Ground[1].At(0, 0).RGBA(); r>>8 != 120 {
		t.Errorf("BMP variant decoded incorrectly")
	}
}

func TestLoadPalette_TGAWithMagentaKey(t *testing.T) {
	dir := t.TempDir()
	writeTile(t, filepath.Join(dir, "grass.png"), 4, color.RGBA{G: 200, A: 255})

	// 2x1 uncompressed 24-bit TGA, top-to-bottom: magenta, brown
	tgaData := make([]byte, 18)
	tgaData[2] = 2
	tgaData[12], tgaData[14] = 2, 1
	tgaData[16], tgaData[17] = 24, 0x20
	tgaData = append(tgaData, 255, 0, 255, 40, 80, 120)
	if err := os.WriteFile(filepath.Join(dir, "bush.TGA"), tgaData, 0644); err != nil {
		t.Fatal(err)
	}

	manifest := `{"ground": ["grass.png"], "decoration": ["bush.TGA"], "magenta_key": true}`
	path := filepath.Join(dir, "palette.json")
	if err := os.WriteFile(path, []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadPalette(path, 4)
	if err != nil {
		t.Fatalf("LoadPalette: %v", err)
	}
	bush := p.Decoration[0]
	if _, _, _, a := bush.At(0, 0).RGBA(); a != 0 {
		t.Error("magenta half should be transparent")
	}
	if r, _, _, a := bush.At(3, 3).RGBA(); a != 0xffff || r>>8 != 120 {
		t.Errorf("brown half = %v", bush.At(3, 3))
	}
}

func TestLoadPalette_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{"not json", `{ground`},
		{"missing decoration", `{"ground": ["a.png"]}`},
		{"empty ground", `{"ground": [], "decoration": ["a.png"]}`},
		{"unknown field", `{"ground": ["a.png"], "decoration": ["a.png"], "water": ["w.png"]}`},
		{"missing image", `{"ground": ["nope.png"], "decoration": ["nope.png"]}`},
		{"bad color key", `{"ground": ["a.png"], "decoration": ["a.png"], "magenta_key": "yes"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "palette.json")
			if err := os.WriteFile(path, []byte(tt.manifest), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadPalette(path, 8); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := LoadPalette(filepath.Join(t.TempDir(), "missing.json"), 8); err == nil {
		t.Error("expected error for missing manifest")
	}
	if _, err := LoadPalette("unused.json", 0); err == nil {
		t.Error("expected error for zero tile size")
	}
}

func TestDefaultPalette(t *testing.T) {
	p := DefaultPalette(32)
	if len(p.Ground) < 2 || len(p.Decoration) < 2 {
		t.Fatalf("default palette too small: %d ground, %d decoration", len(p.Ground), len(p.Decoration))
	}

	for i, img := range p.Ground {
		b := img.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
					t.Fatalf("ground variant %d has non-opaque pixel at (%d,%d)", i, x, y)
				}
			}
		}
	}

	for i, img := range p.Decoration {
		opaque, clear := 0, 0
		b := img.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				switch _, _, _, a := img.At(x, y).RGBA(); a {
				case 0:
					clear++
				case 0xffff:
					opaque++
				default:
					t.Fatalf("decoration variant %d has partial alpha at (%d,%d)", i, x, y)
				}
			}
		}
		if opaque == 0 || clear == 0 {
			t.Errorf("decoration variant %d: %d opaque, %d clear pixels", i, opaque, clear)
		}
	}
}

func TestPaletteSpec(t *testing.T) {
	p := DefaultPalette(8)
	spec := p.Spec(LayerDecoration, 0.5, 0.1)
	if spec.Kind != LayerDecoration || len(spec.Variants) != len(p.Decoration) {
		t.Errorf("unexpected decoration spec %+v", spec)
	}
	if spec.BiasKeep != 0.5 || spec.PlaceChance != 0.1 {
		t.Errorf("spec parameters not carried: %+v", spec)
	}
	if g := p.Spec(LayerGround, 0.7, 1); len(g.Variants) != len(p.Ground) {
		t.Errorf("ground spec has %d variants", len(g.Variants))
	}
}

func TestScaleTile(t *testing.T) {
	src := image.NewRGBA(image.Rect(10, 10, 12, 12))
	src.SetRGBA(10, 10, color.RGBA{R: 255, A: 255})

	out := ScaleTile(src, 4)
	if out.Bounds() != image.Rect(0, 0, 4, 4) {
		t.Fatalf("bounds = %v", out.Bounds())
	}
	// Top-left source pixel covers the top-left quadrant
	if c := out.RGBAAt(1, 1); c.R != 255 {
		t.Errorf("pixel (1,1) = %v", c)
	}
	if c := out.RGBAAt(3, 3); c.A != 0 {
		t.Errorf("pixel (3,3) = %v", c)
	}
}
