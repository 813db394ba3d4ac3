// Package terrain generates tile layers procedurally and bakes them into
// cached rasters.
package terrain

import (
	"errors"
	"fmt"
	"image"
	"strings"
)

// Terrain errors.
var (
	ErrInvalidIdentity = errors.New("invalid map identity")
	ErrEmptyPalette    = errors.New("layer has no variants")
	ErrInvalidSize     = errors.New("invalid grid size")
)

// Identity names one generated world. The cache is keyed by Name only;
// Seed drives generation but never invalidates a cached layer.
type Identity struct {
	Name string
	Seed int64
}

// Validate checks that Name can be used as a cache file prefix.
func (id Identity) Validate() error {
	if strings.TrimSpace(id.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidIdentity)
	}
	if strings.ContainsAny(id.Name, `/\`) || id.Name == "." || id.Name == ".." {
		return fmt.Errorf("%w: name %q is not a plain file name", ErrInvalidIdentity, id.Name)
	}
	return nil
}

// LayerKind identifies a terrain layer.
type LayerKind int

// Layer kinds, in draw order.
const (
	LayerGround LayerKind = iota
	LayerDecoration
)

// Role returns the cache file role, e.g. "ground" in overworld_ground.png.
func (k LayerKind) Role() string {
	switch k {
	case LayerGround:
		return "ground"
	case LayerDecoration:
		return "trees"
	default:
		return fmt.Sprintf("layer%d", int(k))
	}
}

// String returns a human-readable layer name.
func (k LayerKind) String() string {
	switch k {
	case LayerGround:
		return "Ground"
	case LayerDecoration:
		return "Decoration"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// LayerSpec describes how one layer is filled.
type LayerSpec struct {
	Kind     LayerKind
	Variants []image.Image // Pre-scaled to the tile size; Variants[0] is the common choice
	BiasKeep float64       // Probability of forcing Variants[0]
	// PlaceChance gates placement per tile on decoration layers. Ground
	// layers ignore it and fill every tile. Values >= 1 place on every tile
	// without consuming randomness.
	PlaceChance float64
}

// gated reports whether each tile draws a placement gate before its variant.
func (s LayerSpec) gated() bool {
	return s.Kind != LayerGround && s.PlaceChance < 1
}

// TileGrid is one baked layer: a flattened raster cut into fixed-size tiles.
// It is immutable once returned by the generator.
type TileGrid struct {
	Kind     LayerKind
	TilesX   int
	TilesY   int
	TileSize int
	Raster   *image.RGBA

	// Variants holds the per-tile variant index in row-major order, -1 for
	// empty tiles. It is nil when the grid was loaded from the cache.
	Variants []int

	// Cached reports whether the raster came from disk.
	Cached bool
}

// Bounds returns the grid size in tiles.
func (g *TileGrid) Bounds() (tilesX, tilesY int) {
	return g.TilesX, g.TilesY
}

// InBounds reports whether (x, y) is a tile of the grid.
func (g *TileGrid) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.TilesX && y < g.TilesY
}

// Tile returns the tile's region of the raster. Out-of-bounds tiles report false.
func (g *TileGrid) Tile(x, y int) (image.Image, bool) {
	if !g.InBounds(x, y) || g.Raster == nil {
		return nil, false
	}
	r := image.Rect(x*g.TileSize, y*g.TileSize, (x+1)*g.TileSize, (y+1)*g.TileSize)
	return g.Raster.SubImage(r), true
}

// Variant returns the variant index assigned to a tile.
// It reports false when the tile is out of bounds or assignments are unknown.
func (g *TileGrid) Variant(x, y int) (int, bool) {
	if !g.InBounds(x, y) || g.Variants == nil {
		return 0, false
	}
	return g.Variants[y*g.TilesX+x], true
}

// Layers holds the baked layers of one map.
type Layers struct {
	Identity   Identity
	Ground     *TileGrid
	Decoration *TileGrid
}

// Grids returns the layers in draw order.
func (l *Layers) Grids() []*TileGrid {
	return []*TileGrid{l.Ground, l.Decoration}
}
