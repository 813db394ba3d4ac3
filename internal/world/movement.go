package world

import (
	"github.com/Faultbox/tilestream/pkg/math"
)

// Walker moves a viewer along pathfinder routes at a fixed speed.
type Walker struct {
	pathFinder *PathFinder
	tileSize   float64
	speed      float64 // World units per second

	position  math.Vec2
	path      [][2]int
	pathIndex int
}

// NewWalker creates a walker starting at start.
func NewWalker(pathFinder *PathFinder, tileSize, speed float64, start math.Vec2) *Walker {
	return &Walker{
		pathFinder: pathFinder,
		tileSize:   tileSize,
		speed:      speed,
		position:   start,
	}
}

// Position returns the current world position.
func (w *Walker) Position() math.Vec2 {
	return w.position
}

// MoveTo routes to a destination tile. Returns the path, or nil if the
// destination cannot be reached.
func (w *Walker) MoveTo(destTileX, destTileY int) [][2]int {
	if w.pathFinder == nil {
		return nil
	}
	tx, ty := w.WorldToTile(w.position)
	path := w.pathFinder.FindPath(tx, ty, destTileX, destTileY)
	if len(path) == 0 {
		return nil
	}

	// The first node is the current tile
	w.path = path[1:]
	w.pathIndex = 0
	return path
}

// Moving reports whether waypoints remain.
func (w *Walker) Moving() bool {
	return w.pathIndex < len(w.path)
}

// Step advances the walker by dt seconds and returns the new position.
func (w *Walker) Step(dt float64) math.Vec2 {
	budget := w.speed * dt
	for budget > 0 && w.Moving() {
		target := w.TileToWorld(w.path[w.pathIndex][0], w.path[w.pathIndex][1])
		d := w.position.Distance(target)
		if d > budget {
			w.position = w.position.MoveTowards(target, budget)
			break
		}
		w.position = target
		budget -= d
		w.pathIndex++
	}
	return w.position
}

// ClearPath stops following the current path.
func (w *Walker) ClearPath() {
	w.path = nil
	w.pathIndex = 0
}

// Path returns the remaining waypoints.
func (w *Walker) Path() [][2]int {
	return w.path[w.pathIndex:]
}

// WorldToTile converts a world position to tile coordinates.
func (w *Walker) WorldToTile(p math.Vec2) (int, int) {
	return int(p.X / w.tileSize), int(p.Y / w.tileSize)
}

// TileToWorld returns the world position of a tile's center.
func (w *Walker) TileToWorld(tileX, tileY int) math.Vec2 {
	return math.Vec2{
		X: (float64(tileX) + 0.5) * w.tileSize,
		Y: (float64(tileY) + 0.5) * w.tileSize,
	}
}
