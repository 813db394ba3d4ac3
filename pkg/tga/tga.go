// Package tga decodes true-color TGA images and applies magenta color keys.
package tga

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
)

// TGA image type constants.
const (
	TypeUncompressed = 2  // Uncompressed true-color
	TypeRLE          = 10 // RLE compressed true-color
)

const headerSize = 18

// ErrFormat is wrapped by every decoding error.
var ErrFormat = errors.New("tga: invalid format")

// Decode reads an uncompressed or RLE true-color TGA image.
func Decode(r io.Reader) (*image.RGBA, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return DecodeBytes(data)
}

// DecodeBytes decodes a TGA image held in memory.
func DecodeBytes(data []byte) (*image.RGBA, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: header truncated", ErrFormat)
	}

	idLength := int(data[0])
	colorMapType := data[1]
	imageType := data[2]
	width := int(data[12]) | int(data[13])<<8
	height := int(data[14]) | int(data[15])<<8
	bpp := int(data[16])
	topToBottom := data[17]&0x20 != 0

	if colorMapType != 0 {
		return nil, fmt.Errorf("%w: color-mapped images not supported", ErrFormat)
	}
	if imageType != TypeUncompressed && imageType != TypeRLE {
		return nil, fmt.Errorf("%w: unsupported type %d", ErrFormat, imageType)
	}
	if bpp != 24 && bpp != 32 {
		return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrFormat, bpp)
	}

	offset := headerSize + idLength
	if offset > len(data) {
		return nil, fmt.Errorf("%w: image ID truncated", ErrFormat)
	}

	p := pixelReader{
		data:          data[offset:],
		bytesPerPixel: bpp / 8,
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	set := func(i int, c color.RGBA) {
		x, y := i%width, i/width
		if !topToBottom {
			y = height - 1 - y
		}
		img.SetRGBA(x, y, c)
	}

	if imageType == TypeUncompressed {
		if len(p.data) < width*height*p.bytesPerPixel {
			return nil, fmt.Errorf("%w: pixel data truncated", ErrFormat)
		}
		for i := 0; i < width*height; i++ {
			c, _ := p.next()
			set(i, c)
		}
		return img, nil
	}

	decodeRLE(&p, width*height, set)
	return img, nil
}

// decodeRLE expands run-length packets. Truncated data leaves the
// remaining pixels transparent.
func decodeRLE(p *pixelReader, pixelCount int, set func(int, color.RGBA)) {
	i := 0
	for i < pixelCount && p.pos < len(p.data) {
		packet := p.data[p.pos]
		p.pos++
		count := int(packet&0x7F) + 1

		if packet&0x80 != 0 {
			c, ok := p.next()
			if !ok {
				return
			}
			for n := 0; n < count && i < pixelCount; n++ {
				set(i, c)
				i++
			}
			continue
		}

		for n := 0; n < count && i < pixelCount; n++ {
			c, ok := p.next()
			if !ok {
				return
			}
			set(i, c)
			i++
		}
	}
}

// pixelReader reads BGR(A) pixels.
type pixelReader struct {
	data          []byte
	pos           int
	bytesPerPixel int
}

func (p *pixelReader) next() (color.RGBA, bool) {
	if p.pos+p.bytesPerPixel > len(p.data) {
		return color.RGBA{}, false
	}
	px := p.data[p.pos : p.pos+p.bytesPerPixel]
	p.pos += p.bytesPerPixel

	c := color.RGBA{R: px[2], G: px[1], B: px[0], A: 255}
	if p.bytesPerPixel == 4 {
		c.A = px[3]
	}
	return c, true
}

// IsMagentaKey reports whether an RGB color is the magenta transparency key.
// The tolerance absorbs small encoder rounding.
func IsMagentaKey(r, g, b uint8) bool {
	return r >= 250 && g <= 10 && b >= 250
}

// ApplyMagentaKey makes magenta pixels transparent black, in place.
func ApplyMagentaKey(img *image.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := img.PixOffset(x, y)
			if IsMagentaKey(img.Pix[i], img.Pix[i+1], img.Pix[i+2]) {
				img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 0, 0, 0, 0
			}
		}
	}
}
