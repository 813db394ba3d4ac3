package chunk

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// TileSource provides tile content for composition.
// terrain.TileGrid implements it.
type TileSource interface {
	// Bounds returns the grid size in tiles.
	Bounds() (tilesX, tilesY int)
	// Tile returns the tile image, or false when there is no content.
	Tile(x, y int) (image.Image, bool)
}

// Chunk is a square block of tiles composed into one raster.
// Only the Store that owns a chunk mutates it.
type Chunk struct {
	coord  Coord
	size   int // Tiles per side
	raster *image.RGBA

	handle   Handle
	attached bool
}

// View is a snapshot of a resident chunk handed out by Store.Chunk.
type View struct {
	Coord    Coord
	Size     int
	Attached bool
	Raster   Raster
}

func (c *Chunk) view() View {
	return View{Coord: c.coord, Size: c.size, Attached: c.attached, Raster: Raster{img: c.raster}}
}

// Raster is a read-only chunk raster.
type Raster struct {
	img *image.RGBA
}

func (r Raster) ColorModel() color.Model {
	return color.RGBAModel
}

func (r Raster) Bounds() image.Rectangle {
	return r.img.Bounds()
}

func (r Raster) At(x, y int) color.Color {
	return r.img.At(x, y)
}

func (r Raster) RGBAAt(x, y int) color.RGBA {
	return r.img.RGBAAt(x, y)
}

// Same reports whether r and o share pixel storage.
func (r Raster) Same(o Raster) bool {
	return r.img != nil && r.img == o.img
}

// compose blits every tile of the chunk from each source in order.
// Tiles a source has no content for are left empty.
func compose(c Coord, m Mapper, sources []TileSource) *image.RGBA {
	px := m.ChunkPixels()
	raster := image.NewRGBA(image.Rect(0, 0, px, px))
	ox, oy := m.ChunkTileOrigin(c)
	ts := m.TileSize

	for _, src := range sources {
		for y := 0; y < m.ChunkSize; y++ {
			for x := 0; x < m.ChunkSize; x++ {
				tile, ok := src.Tile(ox+x, oy+y)
				if !ok || tile == nil {
					continue
				}
				dst := image.Rect(x*ts, y*ts, (x+1)*ts, (y+1)*ts)
				draw.Draw(raster, dst, tile, tile.Bounds().Min, draw.Over)
			}
		}
	}
	return raster
}
