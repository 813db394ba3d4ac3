package chunk

import (
	"cmp"
	"slices"
)

// Set is a set of chunk coordinates.
type Set map[Coord]struct{}

// Has reports whether c is in the set.
func (s Set) Has(c Coord) bool {
	_, ok := s[c]
	return ok
}

// Add inserts c.
func (s Set) Add(c Coord) {
	s[c] = struct{}{}
}

// Sorted returns the coordinates in row-major order.
func (s Set) Sorted() []Coord {
	out := make([]Coord, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	slices.SortFunc(out, compareCoords)
	return out
}

// Equal reports whether both sets hold the same coordinates.
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for c := range s {
		if !other.Has(c) {
			return false
		}
	}
	return true
}

func compareCoords(a, b Coord) int {
	if c := cmp.Compare(a.Y, b.Y); c != 0 {
		return c
	}
	return cmp.Compare(a.X, b.X)
}

// MaxRadius bounds each window radius. Visible caps larger radii.
const MaxRadius = 256

// Window is the rectangle of chunks kept around the viewer's chunk.
type Window struct {
	RadiusX int
	RadiusY int
}

// DefaultWindow is wider than it is tall, like a landscape viewport.
func DefaultWindow() Window {
	return Window{RadiusX: 2, RadiusY: 1}
}

// Visible returns the chunks of the window around center that have their
// origin tile on the grid. Chunks that hang over the right or bottom edge
// are included. A non-positive tilesX or tilesY leaves that axis unbounded
// above; coordinates below zero are always excluded.
func (w Window) Visible(center Coord, m Mapper, tilesX, tilesY int) Set {
	rx := min(max(w.RadiusX, 0), MaxRadius)
	ry := min(max(w.RadiusY, 0), MaxRadius)
	set := make(Set, (2*rx+1)*(2*ry+1))
	for cy := center.Y - ry; cy <= center.Y+ry; cy++ {
		for cx := center.X - rx; cx <= center.X+rx; cx++ {
			if cx < 0 || cy < 0 {
				continue
			}
			c := Coord{X: cx, Y: cy}
			tx, ty := m.ChunkTileOrigin(c)
			if tilesX > 0 && tx >= tilesX {
				continue
			}
			if tilesY > 0 && ty >= tilesY {
				continue
			}
			set.Add(c)
		}
	}
	return set
}
