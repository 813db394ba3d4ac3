package terrain

import (
	"context"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/tilestream/internal/cache"
	"github.com/Faultbox/tilestream/internal/logger"
)

// Generator fills tile layers and bakes them through a LayerCache.
type Generator struct {
	cache    *cache.LayerCache
	index    *cache.Index // optional ledger
	tileSize int
	log      *zap.Logger

	picks atomic.Int64
}

// NewGenerator creates a generator that bakes tileSize-pixel tiles into c.
// index may be nil.
func NewGenerator(c *cache.LayerCache, index *cache.Index, tileSize int) *Generator {
	return &Generator{
		cache:    c,
		index:    index,
		tileSize: tileSize,
		log:      logger.Named("terrain"),
	}
}

// TileSize returns the tile edge in pixels.
func (g *Generator) TileSize() int {
	return g.tileSize
}

// Cache returns the layer cache.
func (g *Generator) Cache() *cache.LayerCache {
	return g.cache
}

// Picks returns the number of random picks made by this generator so far.
// It stays zero as long as every layer is served from the cache.
func (g *Generator) Picks() int64 {
	return g.picks.Load()
}

// GenerateOrLoad returns the baked layer for id. A cached raster is used
// as-is, without checking it against the current seed or parameters.
// Otherwise the layer is generated, persisted, and then returned.
func (g *Generator) GenerateOrLoad(ctx context.Context, id Identity, spec LayerSpec, tilesX, tilesY int) (*TileGrid, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if tilesX <= 0 || tilesY <= 0 || g.tileSize <= 0 {
		return nil, fmt.Errorf("%w: %dx%d tiles of %dpx", ErrInvalidSize, tilesX, tilesY, g.tileSize)
	}
	role := spec.Kind.Role()

	if g.cache.Exists(id.Name, role) {
		return g.load(ctx, id, spec.Kind, tilesX, tilesY)
	}

	if len(spec.Variants) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyPalette, spec.Kind)
	}

	start := time.Now()
	grid, err := g.generate(ctx, id, spec, tilesX, tilesY)
	if err != nil {
		return nil, err
	}

	path, size, err := g.cache.Store(id.Name, role, grid.Raster)
	if err != nil {
		return nil, fmt.Errorf("baking %s layer of %s: %w", role, id.Name, err)
	}

	g.log.Info("layer generated",
		zap.String("map", id.Name),
		zap.String("layer", role),
		zap.Int64("seed", id.Seed),
		zap.Int("tilesX", tilesX),
		zap.Int("tilesY", tilesY),
		zap.Duration("took", time.Since(start)))

	g.record(ctx, id, role, tilesX, tilesY, path, size)
	return grid, nil
}

// load reads a cached layer. Grid dimensions follow the raster on disk.
func (g *Generator) load(ctx context.Context, id Identity, kind LayerKind, tilesX, tilesY int) (*TileGrid, error) {
	role := kind.Role()
	raster, err := g.cache.Load(id.Name, role)
	if err != nil {
		return nil, fmt.Errorf("loading %s layer of %s: %w", role, id.Name, err)
	}

	b := raster.Bounds()
	grid := &TileGrid{
		Kind:     kind,
		TilesX:   b.Dx() / g.tileSize,
		TilesY:   b.Dy() / g.tileSize,
		TileSize: g.tileSize,
		Raster:   raster,
		Cached:   true,
	}
	if grid.TilesX != tilesX || grid.TilesY != tilesY {
		g.log.Warn("cached layer size differs from requested size",
			zap.String("map", id.Name),
			zap.String("layer", role),
			zap.Int("cachedTilesX", grid.TilesX),
			zap.Int("cachedTilesY", grid.TilesY),
			zap.Int("tilesX", tilesX),
			zap.Int("tilesY", tilesY))
	}
	g.warnIfStale(ctx, id, role)

	g.log.Info("layer loaded from cache",
		zap.String("map", id.Name),
		zap.String("layer", role))
	return grid, nil
}

// warnIfStale consults the ledger; a mismatch is reported but the cached
// layer is still used.
func (g *Generator) warnIfStale(ctx context.Context, id Identity, role string) {
	if g.index == nil {
		return
	}
	e, ok, err := g.index.Lookup(ctx, id.Name, role)
	if err != nil {
		g.log.Warn("cache index lookup failed", zap.String("map", id.Name), zap.Error(err))
		return
	}
	if ok && e.Seed != id.Seed {
		g.log.Warn("cached layer was generated with a different seed",
			zap.String("map", id.Name),
			zap.String("layer", role),
			zap.Int64("cachedSeed", e.Seed),
			zap.Int64("seed", id.Seed))
	}
}

func (g *Generator) record(ctx context.Context, id Identity, role string, tilesX, tilesY int, path string, size int64) {
	if g.index == nil {
		return
	}
	err := g.index.Record(ctx, cache.Entry{
		RunID:    cache.NewRunID(),
		Map:      id.Name,
		Role:     role,
		Seed:     id.Seed,
		TilesX:   tilesX,
		TilesY:   tilesY,
		TileSize: g.tileSize,
		Path:     path,
		Bytes:    size,
	})
	if err != nil {
		g.log.Warn("cache index update failed", zap.String("map", id.Name), zap.Error(err))
	}
}

// generate decides every tile in row-major order and composes the raster.
// The context is checked once per row; cancellation abandons the whole layer.
func (g *Generator) generate(ctx context.Context, id Identity, spec LayerSpec, tilesX, tilesY int) (*TileGrid, error) {
	picker := NewPicker(id.Seed, uint64(spec.Kind))
	defer func() { g.picks.Add(int64(picker.Calls())) }()

	ts := g.tileSize
	raster := image.NewRGBA(image.Rect(0, 0, tilesX*ts, tilesY*ts))
	variants := make([]int, tilesX*tilesY)
	gated := spec.gated()

	for y := 0; y < tilesY; y++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("generating %s layer of %s: %w", spec.Kind.Role(), id.Name, err)
		}
		for x := 0; x < tilesX; x++ {
			v := -1
			if !gated || picker.Chance(spec.PlaceChance) {
				v = picker.Pick(len(spec.Variants), spec.BiasKeep)
			}
			variants[y*tilesX+x] = v
			if v < 0 {
				continue
			}
			src := spec.Variants[v]
			dst := image.Rect(x*ts, y*ts, (x+1)*ts, (y+1)*ts)
			draw.Draw(raster, dst, src, src.Bounds().Min, draw.Over)
		}
	}

	return &TileGrid{
		Kind:     spec.Kind,
		TilesX:   tilesX,
		TilesY:   tilesY,
		TileSize: ts,
		Raster:   raster,
		Variants: variants,
	}, nil
}

// GenerateLayers generates or loads the ground and decoration layers
// concurrently. Either both layers are returned or an error is.
func (g *Generator) GenerateLayers(ctx context.Context, id Identity, ground, decoration LayerSpec, tilesX, tilesY int) (*Layers, error) {
	layers := &Layers{Identity: id}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		grid, err := g.GenerateOrLoad(ctx, id, ground, tilesX, tilesY)
		layers.Ground = grid
		return err
	})
	eg.Go(func() error {
		grid, err := g.GenerateOrLoad(ctx, id, decoration, tilesX, tilesY)
		layers.Decoration = grid
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return layers, nil
}

// Forget removes the cached layers of a map and their ledger rows, so the
// next GenerateOrLoad regenerates them.
func (g *Generator) Forget(ctx context.Context, name string) error {
	if err := (Identity{Name: name}).Validate(); err != nil {
		return err
	}
	for _, kind := range []LayerKind{LayerGround, LayerDecoration} {
		role := kind.Role()
		if err := g.cache.Remove(name, role); err != nil {
			return err
		}
		if g.index != nil {
			if err := g.index.Forget(ctx, name, role); err != nil {
				return fmt.Errorf("forgetting %s layer of %s: %w", role, name, err)
			}
		}
	}
	g.log.Info("cached layers removed", zap.String("map", name))
	return nil
}
