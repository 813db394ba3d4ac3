package chunk

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"go.uber.org/zap"

	"github.com/Faultbox/tilestream/internal/logger"
)

// ErrInvalidOptions is returned by NewStore for unusable options.
var ErrInvalidOptions = errors.New("invalid chunk store options")

// Options configures a Store.
type Options struct {
	Mapper Mapper
	Window Window

	// Grid extent in tiles. Zero means the largest source bounds.
	TilesX int
	TilesY int

	// RetainDetached keeps up to this many evicted chunks with their rasters
	// so they can be reattached without recomposing. Zero drops evicted
	// chunks immediately.
	RetainDetached int

	// Scene receives chunk drawables. Defaults to a new DrawList.
	Scene Scene
}

// UpdateResult describes what one Update changed.
type UpdateResult struct {
	Center   Coord
	Loaded   []Coord // Attached by this update, composed or reattached
	Unloaded []Coord // Detached by this update

	Reattached int  // Loaded chunks taken from the retained set
	Clamped    bool // The position was outside the grid and was clamped
	Skipped    bool // The position was not finite; nothing changed
}

// Changed reports whether the update attached or detached anything.
func (r UpdateResult) Changed() bool {
	return len(r.Loaded) > 0 || len(r.Unloaded) > 0
}

// Stats holds chunk lifecycle counters.
type Stats struct {
	Resident   int
	Retained   int
	Updates    int
	Skipped    int
	Composed   int
	Reattached int
	Evicted    int
	Dropped    int // Chunks whose raster was discarded
}

// Store owns the resident chunks and keeps them equal to the visible set.
type Store struct {
	mu      sync.Mutex
	opts    Options
	sources []TileSource
	tilesX  int
	tilesY  int
	log     *zap.Logger

	resident map[Coord]*Chunk
	center   Coord
	hasPos   bool

	// Detached chunks kept for reattachment; nil when RetainDetached is 0
	retained *simplelru.LRU[Coord, *Chunk]

	stats Stats
}

// NewStore creates a store streaming chunks from sources, drawn in order.
func NewStore(opts Options, sources ...TileSource) (*Store, error) {
	if !opts.Mapper.Valid() {
		return nil, fmt.Errorf("%w: chunk size %d, tile size %d", ErrInvalidOptions, opts.Mapper.ChunkSize, opts.Mapper.TileSize)
	}
	if opts.Window.RadiusX < 0 || opts.Window.RadiusY < 0 {
		return nil, fmt.Errorf("%w: negative window radius", ErrInvalidOptions)
	}
	if opts.Window.RadiusX > MaxRadius || opts.Window.RadiusY > MaxRadius {
		return nil, fmt.Errorf("%w: window radius %dx%d above %d", ErrInvalidOptions, opts.Window.RadiusX, opts.Window.RadiusY, MaxRadius)
	}
	if opts.RetainDetached < 0 {
		return nil, fmt.Errorf("%w: negative retain count", ErrInvalidOptions)
	}
	if opts.Scene == nil {
		opts.Scene = NewDrawList()
	}

	s := &Store{
		opts:     opts,
		sources:  sources,
		tilesX:   opts.TilesX,
		tilesY:   opts.TilesY,
		log:      logger.Named("chunk"),
		resident: make(map[Coord]*Chunk),
	}
	if opts.RetainDetached > 0 {
		lru, err := simplelru.NewLRU[Coord, *Chunk](opts.RetainDetached, s.onRetainedEvict)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
		}
		s.retained = lru
	}
	for _, src := range sources {
		x, y := src.Bounds()
		if opts.TilesX == 0 {
			s.tilesX = max(s.tilesX, x)
		}
		if opts.TilesY == 0 {
			s.tilesY = max(s.tilesY, y)
		}
	}
	return s, nil
}

// Scene returns the scene chunks are attached to.
func (s *Store) Scene() Scene {
	return s.opts.Scene
}

// Mapper returns the coordinate mapper.
func (s *Store) Mapper() Mapper {
	return s.opts.Mapper
}

// GridSize returns the grid extent in tiles.
func (s *Store) GridSize() (tilesX, tilesY int) {
	return s.tilesX, s.tilesY
}

// Update makes the resident set equal to the chunks visible from the viewer
// at world position (x, y). A non-finite position leaves everything as is.
func (s *Store) Update(x, y float64) UpdateResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Updates++
	if !isFinite(x) || !isFinite(y) {
		s.stats.Skipped++
		s.log.Debug("skipping update for invalid viewer position",
			zap.Float64("x", x), zap.Float64("y", y))
		return UpdateResult{Center: s.center, Skipped: true}
	}

	m := s.opts.Mapper
	ts := float64(m.TileSize)
	cx, cy := clampWorld(x, ts, s.tilesX), clampWorld(y, ts, s.tilesY)
	center := m.WorldToChunk(cx, cy)
	res := UpdateResult{Center: center}
	if cx != x || cy != y {
		res.Clamped = true
		s.log.Debug("viewer position clamped to grid",
			zap.Float64("x", x), zap.Float64("y", y),
			zap.Float64("clampedX", cx), zap.Float64("clampedY", cy))
	}

	visible := s.opts.Window.Visible(center, m, s.tilesX, s.tilesY)

	for _, c := range visible.Sorted() {
		if _, ok := s.resident[c]; ok {
			continue
		}
		if s.attach(c) {
			res.Reattached++
		}
		res.Loaded = append(res.Loaded, c)
	}

	for _, c := range s.residentCoords() {
		if visible.Has(c) {
			continue
		}
		s.evict(c)
		res.Unloaded = append(res.Unloaded, c)
	}

	s.center, s.hasPos = center, true
	if res.Changed() {
		s.log.Debug("visible chunks updated",
			zap.Stringer("center", center),
			zap.Int("loaded", len(res.Loaded)),
			zap.Int("unloaded", len(res.Unloaded)),
			zap.Int("resident", len(s.resident)))
	}
	return res
}

// clampWorld moves v onto the grid: below zero to 0, past the end to the
// start of the last tile. An unbounded axis is only limited below.
func clampWorld(v, tileSize float64, tiles int) float64 {
	if v < 0 {
		return 0
	}
	if tiles > 0 {
		if limit := float64(tiles) * tileSize; v >= limit {
			return limit - tileSize
		}
	}
	return v
}

// attach makes c resident, reusing a retained chunk when possible.
// It reports whether the chunk was reattached.
func (s *Store) attach(c Coord) bool {
	ch, reused := s.takeRetained(c)
	if !reused {
		ch = &Chunk{
			coord:  c,
			size:   s.opts.Mapper.ChunkSize,
			raster: compose(c, s.opts.Mapper, s.sources),
		}
		s.stats.Composed++
	} else {
		s.stats.Reattached++
	}

	x, y := s.opts.Mapper.ChunkToWorldOrigin(c)
	ch.handle = s.opts.Scene.Attach(Drawable{Coord: c, X: x, Y: y, Image: ch.raster})
	ch.attached = true
	s.resident[c] = ch

	s.log.Debug("chunk attached",
		zap.Int("cx", c.X), zap.Int("cy", c.Y),
		zap.Bool("reattached", reused))
	return reused
}

// evict detaches c and either retains or drops it.
func (s *Store) evict(c Coord) {
	ch := s.resident[c]
	delete(s.resident, c)
	s.opts.Scene.Detach(ch.handle)
	ch.handle, ch.attached = 0, false
	s.stats.Evicted++

	s.log.Debug("chunk detached", zap.Int("cx", c.X), zap.Int("cy", c.Y))

	if s.retained == nil {
		s.drop(ch)
		return
	}
	s.retained.Add(c, ch)
}

// takeRetained removes c from the retained set without dropping it.
func (s *Store) takeRetained(c Coord) (*Chunk, bool) {
	if s.retained == nil {
		return nil, false
	}
	ch, ok := s.retained.Peek(c)
	if !ok {
		return nil, false
	}
	ch.attached = true
	s.retained.Remove(c)
	return ch, true
}

// onRetainedEvict drops chunks pushed out of the retained set. Chunks being
// reattached are already marked attached and are kept.
func (s *Store) onRetainedEvict(_ Coord, ch *Chunk) {
	if ch.attached {
		return
	}
	s.drop(ch)
}

func (s *Store) drop(ch *Chunk) {
	ch.raster = nil
	s.stats.Dropped++
}

func (s *Store) residentCoords() []Coord {
	set := make(Set, len(s.resident))
	for c := range s.resident {
		set.Add(c)
	}
	return set.Sorted()
}

// Resident returns the coordinates of the attached chunks.
func (s *Store) Resident() Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(Set, len(s.resident))
	for c := range s.resident {
		set.Add(c)
	}
	return set
}

// Chunk returns a snapshot of the resident chunk at c.
func (s *Store) Chunk(c Coord) (View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.resident[c]
	if !ok {
		return View{}, false
	}
	return ch.view(), true
}

// Center returns the chunk of the last accepted viewer position.
func (s *Store) Center() (Coord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.center, s.hasPos
}

// Drawables returns the resident chunks as drawables in row-major order.
func (s *Store) Drawables() []Drawable {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Drawable, 0, len(s.resident))
	for _, c := range s.residentCoords() {
		ch := s.resident[c]
		x, y := s.opts.Mapper.ChunkToWorldOrigin(c)
		out = append(out, Drawable{Coord: c, X: x, Y: y, Image: Raster{img: ch.raster}})
	}
	return out
}

// Stats returns a snapshot of the lifecycle counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Resident = len(s.resident)
	if s.retained != nil {
		st.Retained = s.retained.Len()
	}
	return st
}

// Clear detaches every resident chunk and drops all retained ones.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for c, ch := range s.resident {
		s.opts.Scene.Detach(ch.handle)
		ch.handle, ch.attached = 0, false
		s.drop(ch)
		delete(s.resident, c)
	}
	if s.retained != nil {
		s.retained.Purge()
	}
	s.hasPos = false
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
