// Package chunk streams a tile grid into fixed-size chunks around a viewer.
package chunk

import (
	"fmt"
	"math"
)

// Coord is a chunk coordinate: tile index divided by the chunk size.
type Coord struct {
	X, Y int
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// Mapper converts between world, tile and chunk coordinates.
// World units are pixels; the grid origin is (0,0).
type Mapper struct {
	ChunkSize int // Tiles per chunk side
	TileSize  int // Pixels per tile side
}

// Valid reports whether both sizes are positive.
func (m Mapper) Valid() bool {
	return m.ChunkSize > 0 && m.TileSize > 0
}

// ChunkPixels returns the edge length of a chunk raster.
func (m Mapper) ChunkPixels() int {
	return m.ChunkSize * m.TileSize
}

// WorldToTile returns the tile containing a world position.
func (m Mapper) WorldToTile(x, y float64) (tx, ty int) {
	ts := float64(m.TileSize)
	return int(math.Floor(x / ts)), int(math.Floor(y / ts))
}

// WorldToChunk returns the chunk containing a world position.
func (m Mapper) WorldToChunk(x, y float64) Coord {
	return m.TileToChunk(m.WorldToTile(x, y))
}

// TileToChunk returns the chunk containing a tile.
func (m Mapper) TileToChunk(tx, ty int) Coord {
	return Coord{X: floorDiv(tx, m.ChunkSize), Y: floorDiv(ty, m.ChunkSize)}
}

// ChunkTileOrigin returns the top-left tile of a chunk.
func (m Mapper) ChunkTileOrigin(c Coord) (tx, ty int) {
	return c.X * m.ChunkSize, c.Y * m.ChunkSize
}

// ChunkToWorldOrigin returns the world position of a chunk's top-left corner.
func (m Mapper) ChunkToWorldOrigin(c Coord) (x, y float64) {
	px := m.ChunkPixels()
	return float64(c.X * px), float64(c.Y * px)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
