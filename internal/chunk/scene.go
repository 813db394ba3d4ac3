package chunk

import (
	"image"
	"slices"
	"sync"

	"golang.org/x/image/draw"
)

// Handle identifies an attached drawable.
type Handle uint64

// Drawable is a chunk raster placed at its world origin.
type Drawable struct {
	Coord Coord
	X, Y  float64
	Image image.Image
}

// Scene is the render graph chunks are attached to.
type Scene interface {
	Attach(d Drawable) Handle
	Detach(h Handle)
}

// DrawList is an in-memory Scene.
type DrawList struct {
	mu    sync.Mutex
	next  Handle
	items map[Handle]Drawable
}

// NewDrawList creates an empty draw list.
func NewDrawList() *DrawList {
	return &DrawList{items: make(map[Handle]Drawable)}
}

// Attach adds d and returns its handle.
func (l *DrawList) Attach(d Drawable) Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	l.items[l.next] = d
	return l.next
}

// Detach removes the drawable. Unknown handles are ignored.
func (l *DrawList) Detach(h Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.items, h)
}

// Len returns the number of attached drawables.
func (l *DrawList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Items returns the attached drawables in row-major chunk order.
func (l *DrawList) Items() []Drawable {
	l.mu.Lock()
	out := make([]Drawable, 0, len(l.items))
	for _, d := range l.items {
		out = append(out, d)
	}
	l.mu.Unlock()

	slices.SortFunc(out, func(a, b Drawable) int {
		return compareCoords(a.Coord, b.Coord)
	})
	return out
}

// Render draws every attached drawable whose area overlaps view into dst.
// view is in world pixels; dst's origin maps to view.Min.
func (l *DrawList) Render(dst *image.RGBA, view image.Rectangle) {
	for _, d := range l.Items() {
		b := d.Image.Bounds()
		at := image.Pt(int(d.X), int(d.Y)).Sub(view.Min)
		r := image.Rectangle{Min: at, Max: at.Add(b.Size())}.Intersect(dst.Bounds())
		if r.Empty() {
			continue
		}
		draw.Draw(dst, r, d.Image, b.Min.Add(r.Min.Sub(at)), draw.Over)
	}
}
