package cache

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/image/draw"
)

// Codec encodes baked layer rasters to and from their on-disk form.
type Codec interface {
	// Name is the config value selecting this codec.
	Name() string
	// Ext is the file extension, including the leading dot.
	Ext() string
	Encode(w io.Writer, img *image.RGBA) error
	Decode(r io.Reader) (*image.RGBA, error)
}

// CodecByName returns the codec for a cache.format config value.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "png":
		return PNGCodec{}, nil
	case "zstd":
		return ZstdCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown cache format %q", name)
	}
}

// MaxRasterPixels bounds the raster size a codec will allocate on decode.
const MaxRasterPixels = 1 << 28

// pngHeaderLen covers the PNG signature and the IHDR chunk.
const pngHeaderLen = 33

func checkRasterSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid raster size %dx%d", width, height)
	}
	if width > MaxRasterPixels/height {
		return fmt.Errorf("raster size %dx%d exceeds %d pixels", width, height, MaxRasterPixels)
	}
	return nil
}

// PNGCodec stores rasters as PNG files.
type PNGCodec struct{}

func (PNGCodec) Name() string { return "png" }
func (PNGCodec) Ext() string  { return ".png" }

func (PNGCodec) Encode(w io.Writer, img *image.RGBA) error {
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	return enc.Encode(w, img)
}

func (PNGCodec) Decode(r io.Reader) (*image.RGBA, error) {
	br := bufio.NewReader(r)
	if hdr, err := br.Peek(pngHeaderLen); err == nil {
		if cfg, err := png.DecodeConfig(bytes.NewReader(hdr)); err == nil {
			if err := checkRasterSize(cfg.Width, cfg.Height); err != nil {
				return nil, err
			}
		}
	}

	img, err := png.Decode(br)
	if err != nil {
		return nil, fmt.Errorf("decoding PNG: %w", err)
	}
	return toRGBA(img), nil
}

// rawHeader is the first line of a zstd raster file.
type rawHeader struct {
	Version int `json:"version"`
	Width   int `json:"width"`
	Height  int `json:"height"`
}

const rawVersion = 1

// ZstdCodec stores rasters as a JSON header line followed by raw RGBA
// pixels, zstd-compressed as one stream.
type ZstdCodec struct {
	Level zstd.EncoderLevel // zero means zstd.SpeedDefault
}

func (ZstdCodec) Name() string { return "zstd" }
func (ZstdCodec) Ext() string  { return ".rgba.zst" }

func (c ZstdCodec) Encode(w io.Writer, img *image.RGBA) error {
	level := c.Level
	if level == 0 {
		level = zstd.SpeedDefault
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(level))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 256*1024)
	b := img.Bounds()
	hb, _ := json.Marshal(rawHeader{Version: rawVersion, Width: b.Dx(), Height: b.Dy()})
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		enc.Close()
		return err
	}

	rowSize := b.Dx() * 4
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		if _, err := bw.Write(img.Pix[off : off+rowSize]); err != nil {
			enc.Close()
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

func (ZstdCodec) Decode(r io.Reader) (*image.RGBA, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("reading raster header: %w", err)
	}
	var h rawHeader
	if err := json.Unmarshal(line, &h); err != nil {
		return nil, fmt.Errorf("parsing raster header: %w", err)
	}
	if h.Version != rawVersion {
		return nil, fmt.Errorf("unsupported raster version %d", h.Version)
	}
	if err := checkRasterSize(h.Width, h.Height); err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, h.Width, h.Height))
	if _, err := io.ReadFull(br, img.Pix); err != nil {
		return nil, fmt.Errorf("raster pixel data truncated: %w", err)
	}
	return img, nil
}

// toRGBA converts any decoded image to a zero-origin *image.RGBA.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}
