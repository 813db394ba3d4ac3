// Package world handles map setup and per-tick chunk streaming.
package world

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/tilestream/internal/chunk"
	"github.com/Faultbox/tilestream/internal/config"
	"github.com/Faultbox/tilestream/internal/logger"
	"github.com/Faultbox/tilestream/internal/terrain"
	"github.com/Faultbox/tilestream/pkg/math"
)

// ErrNoMap is returned when an operation needs a loaded map.
var ErrNoMap = errors.New("no map loaded")

// Map is a generated map with its chunk store.
type Map struct {
	Identity terrain.Identity
	Layers   *terrain.Layers
	Chunks   *chunk.Store

	// Tiles blocked by decoration
	Obstacles *Obstacles
}

// NewMap wires generated layers into a chunk store.
func NewMap(layers *terrain.Layers, opts chunk.Options) (*Map, error) {
	store, err := chunk.NewStore(opts, layers.Ground, layers.Decoration)
	if err != nil {
		return nil, fmt.Errorf("creating chunk store for %s: %w", layers.Identity.Name, err)
	}
	return &Map{
		Identity:  layers.Identity,
		Layers:    layers,
		Chunks:    store,
		Obstacles: ObstaclesFromLayer(layers.Decoration),
	}, nil
}

// Size returns the map size in tiles.
func (m *Map) Size() (tilesX, tilesY int) {
	return m.Chunks.GridSize()
}

// WorldSize returns the map size in world units.
func (m *Map) WorldSize() math.Vec2 {
	tx, ty := m.Size()
	ts := float64(m.Chunks.Mapper().TileSize)
	return math.Vec2{X: float64(tx) * ts, Y: float64(ty) * ts}
}

// PathFinder returns a pathfinder over the map's obstacles.
func (m *Map) PathFinder() *PathFinder {
	return NewPathFinder(m.Obstacles)
}

// Manager manages the current map and map transitions.
type Manager struct {
	mu      sync.Mutex
	cfg     config.Config
	gen     *terrain.Generator
	palette *terrain.Palette
	scene   chunk.Scene
	log     *zap.Logger

	current *Map
	pending *terrain.Bake
}

// NewManager creates a world manager. scene may be nil, in which case each
// map gets its own chunk.DrawList.
func NewManager(cfg config.Config, gen *terrain.Generator, palette *terrain.Palette, scene chunk.Scene) *Manager {
	return &Manager{
		cfg:     cfg,
		gen:     gen,
		palette: palette,
		scene:   scene,
		log:     logger.Named("world"),
	}
}

// Current returns the current map, or nil.
func (m *Manager) Current() *Map {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// IsLoading returns whether a background load is in flight.
func (m *Manager) IsLoading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending != nil
}

func (m *Manager) specs() (ground, decoration terrain.LayerSpec) {
	t := m.cfg.Terrain
	ground = m.palette.Spec(terrain.LayerGround, t.GroundBiasKeep, 1)
	decoration = m.palette.Spec(terrain.LayerDecoration, t.DecorationBiasKeep, t.DecorationChance)
	return ground, decoration
}

func (m *Manager) chunkOptions() chunk.Options {
	c := m.cfg.Chunks
	return chunk.Options{
		Mapper:         chunk.Mapper{ChunkSize: c.Size, TileSize: m.gen.TileSize()},
		Window:         chunk.Window{RadiusX: c.RadiusX, RadiusY: c.RadiusY},
		RetainDetached: c.RetainDetached,
		Scene:          m.scene,
	}
}

// LoadMap generates or loads the layers of id and makes it the current map.
// Any background load in flight is cancelled.
func (m *Manager) LoadMap(ctx context.Context, id terrain.Identity) error {
	m.cancelPending()

	ground, decoration := m.specs()
	layers, err := m.gen.GenerateLayers(ctx, id, ground, decoration, m.cfg.World.TilesX, m.cfg.World.TilesY)
	if err != nil {
		return fmt.Errorf("loading map %s: %w", id.Name, err)
	}
	return m.install(layers)
}

// LoadMapAsync starts generating id in the background. The current map keeps
// streaming until Update hands the finished map over.
func (m *Manager) LoadMapAsync(ctx context.Context, id terrain.Identity) {
	m.cancelPending()

	ground, decoration := m.specs()
	bake := m.gen.BakeAsync(ctx, id, ground, decoration, m.cfg.World.TilesX, m.cfg.World.TilesY)

	m.mu.Lock()
	m.pending = bake
	m.mu.Unlock()

	m.log.Info("map load started", zap.String("map", id.Name))
}

// Wait blocks until a background load finishes and installs its map.
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	bake := m.pending
	m.mu.Unlock()
	if bake == nil {
		return nil
	}

	select {
	case <-bake.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return m.handOff()
}

// Update streams chunks around the viewer. A finished background load is
// installed first; its error, if any, is returned and the previous map keeps
// streaming.
func (m *Manager) Update(viewer math.Vec2) (chunk.UpdateResult, error) {
	handOffErr := m.handOff()

	cur := m.Current()
	if cur == nil {
		return chunk.UpdateResult{Skipped: true}, errors.Join(handOffErr, ErrNoMap)
	}
	return cur.Chunks.Update(viewer.X, viewer.Y), handOffErr
}

// handOff installs the pending map once its bake is done.
func (m *Manager) handOff() error {
	m.mu.Lock()
	bake := m.pending
	m.mu.Unlock()
	if bake == nil {
		return nil
	}

	layers, ok, err := bake.Poll()
	if !ok {
		return nil
	}

	m.mu.Lock()
	if m.pending == bake {
		m.pending = nil
	}
	m.mu.Unlock()

	if err != nil {
		m.log.Error("background map load failed", zap.Error(err))
		return fmt.Errorf("loading map in background: %w", err)
	}
	return m.install(layers)
}

func (m *Manager) install(layers *terrain.Layers) error {
	next, err := NewMap(layers, m.chunkOptions())
	if err != nil {
		return err
	}

	m.mu.Lock()
	prev := m.current
	m.current = next
	m.mu.Unlock()

	if prev != nil {
		prev.Chunks.Clear()
	}

	tx, ty := next.Size()
	m.log.Info("map ready",
		zap.String("map", layers.Identity.Name),
		zap.Int("tilesX", tx),
		zap.Int("tilesY", ty),
		zap.Bool("groundCached", layers.Ground.Cached),
		zap.Bool("decorationCached", layers.Decoration.Cached),
		zap.Int("obstacles", next.Obstacles.Count()))
	return nil
}

func (m *Manager) cancelPending() {
	m.mu.Lock()
	bake := m.pending
	m.pending = nil
	m.mu.Unlock()

	if bake != nil {
		bake.Cancel()
		<-bake.Done()
	}
}

// Close cancels any background load and detaches the current map's chunks.
func (m *Manager) Close() {
	m.cancelPending()

	m.mu.Lock()
	cur := m.current
	m.current = nil
	m.mu.Unlock()

	if cur != nil {
		cur.Chunks.Clear()
	}
}
