package world

import (
	"container/heap"
	"image"

	"github.com/Faultbox/tilestream/internal/terrain"
)

// Walkable reports which tiles a viewer may cross.
type Walkable interface {
	Bounds() (tilesX, tilesY int)
	IsWalkable(x, y int) bool
}

// Obstacles marks tiles blocked by decoration.
type Obstacles struct {
	width, height int
	blocked       []bool
}

// NewObstacles creates an obstacle grid with every tile walkable.
func NewObstacles(width, height int) *Obstacles {
	return &Obstacles{
		width:   width,
		height:  height,
		blocked: make([]bool, width*height),
	}
}

// ObstaclesFromLayer blocks every tile of grid that has visible content.
// It reads the raster, so it works for cached layers as well.
func ObstaclesFromLayer(grid *terrain.TileGrid) *Obstacles {
	o := NewObstacles(grid.TilesX, grid.TilesY)
	for y := 0; y < grid.TilesY; y++ {
		for x := 0; x < grid.TilesX; x++ {
			if tile, ok := grid.Tile(x, y); ok && hasContent(tile) {
				o.Block(x, y)
			}
		}
	}
	return o
}

func hasContent(img image.Image) bool {
	if rgba, ok := img.(*image.RGBA); ok {
		b := rgba.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := rgba.Pix[rgba.PixOffset(b.Min.X, y):rgba.PixOffset(b.Max.X, y)]
			for i := 3; i < len(row); i += 4 {
				if row[i] != 0 {
					return true
				}
			}
		}
		return false
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0 {
				return true
			}
		}
	}
	return false
}

// Bounds returns the grid size in tiles.
func (o *Obstacles) Bounds() (int, int) {
	return o.width, o.height
}

// Block marks a tile as not walkable.
func (o *Obstacles) Block(x, y int) {
	if o.inBounds(x, y) {
		o.blocked[y*o.width+x] = true
	}
}

// IsWalkable reports whether a tile is on the grid and unblocked.
func (o *Obstacles) IsWalkable(x, y int) bool {
	return o.inBounds(x, y) && !o.blocked[y*o.width+x]
}

// Count returns the number of blocked tiles.
func (o *Obstacles) Count() int {
	n := 0
	for _, b := range o.blocked {
		if b {
			n++
		}
	}
	return n
}

func (o *Obstacles) inBounds(x, y int) bool {
	return x >= 0 && x < o.width && y >= 0 && y < o.height
}

// PathNode represents a node in the A* search.
type PathNode struct {
	X, Y   int     // Tile coordinates
	G      float32 // Cost from start
	H      float32 // Heuristic (estimated cost to goal)
	F      float32 // Total cost (G + H)
	Parent *PathNode
	Index  int // Index in heap
}

// PathHeap implements a priority queue for A*.
type PathHeap []*PathNode

func (h PathHeap) Len() int           { return len(h) }
func (h PathHeap) Less(i, j int) bool { return h[i].F < h[j].F }
func (h PathHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].Index = i
	h[j].Index = j
}

func (h *PathHeap) Push(x any) {
	n := len(*h)
	node := x.(*PathNode)
	node.Index = n
	*h = append(*h, node)
}

func (h *PathHeap) Pop() any {
	old := *h
	n := len(old)
	node := old[n-1]
	old[n-1] = nil
	node.Index = -1
	*h = old[0 : n-1]
	return node
}

// 8-way movement, straight moves on even indices.
var directions = [8][2]int{
	{0, 1}, {-1, 1}, {-1, 0}, {-1, -1},
	{0, -1}, {1, -1}, {1, 0}, {1, 1},
}

const (
	straightCost = float32(1.0)
	diagonalCost = float32(1.414)
)

// PathFinder routes a viewer across walkable tiles.
type PathFinder struct {
	grid   Walkable
	width  int
	height int
}

// NewPathFinder creates a pathfinder over grid. Returns nil for a nil grid.
func NewPathFinder(grid Walkable) *PathFinder {
	if grid == nil {
		return nil
	}
	w, h := grid.Bounds()
	return &PathFinder{grid: grid, width: w, height: h}
}

// FindPath finds a path from start to goal, both included.
// Returns nil if no path exists.
func (pf *PathFinder) FindPath(startX, startY, goalX, goalY int) [][2]int {
	if pf == nil {
		return nil
	}
	if !pf.inBounds(startX, startY) || !pf.inBounds(goalX, goalY) {
		return nil
	}
	if !pf.grid.IsWalkable(goalX, goalY) {
		return nil
	}

	openSet := &PathHeap{}
	heap.Init(openSet)

	closedSet := make(map[int]bool)
	nodeMap := make(map[int]*PathNode)

	startNode := &PathNode{
		X: startX,
		Y: startY,
		H: heuristic(startX, startY, goalX, goalY),
	}
	startNode.F = startNode.H
	heap.Push(openSet, startNode)
	nodeMap[pf.key(startX, startY)] = startNode

	maxIterations := pf.width * pf.height
	for iterations := 0; openSet.Len() > 0 && iterations < maxIterations; iterations++ {
		current := heap.Pop(openSet).(*PathNode)
		if current.X == goalX && current.Y == goalY {
			return reconstructPath(current)
		}
		closedSet[pf.key(current.X, current.Y)] = true

		for i, dir := range directions {
			nx, ny := current.X+dir[0], current.Y+dir[1]
			if !pf.grid.IsWalkable(nx, ny) || closedSet[pf.key(nx, ny)] {
				continue
			}

			moveCost := straightCost
			if i%2 == 1 {
				// No corner cutting
				if !pf.grid.IsWalkable(current.X+dir[0], current.Y) ||
					!pf.grid.IsWalkable(current.X, current.Y+dir[1]) {
					continue
				}
				moveCost = diagonalCost
			}
			g := current.G + moveCost

			neighbor, exists := nodeMap[pf.key(nx, ny)]
			if !exists {
				neighbor = &PathNode{
					X:      nx,
					Y:      ny,
					G:      g,
					H:      heuristic(nx, ny, goalX, goalY),
					Parent: current,
				}
				neighbor.F = neighbor.G + neighbor.H
				nodeMap[pf.key(nx, ny)] = neighbor
				heap.Push(openSet, neighbor)
			} else if g < neighbor.G {
				neighbor.G = g
				neighbor.F = neighbor.G + neighbor.H
				neighbor.Parent = current
				heap.Fix(openSet, neighbor.Index)
			}
		}
	}
	return nil
}

// IsWalkable checks if a tile is walkable.
func (pf *PathFinder) IsWalkable(x, y int) bool {
	if pf == nil {
		return false
	}
	return pf.grid.IsWalkable(x, y)
}

// NearestWalkable returns the walkable tile closest to (x, y) by ring search.
func (pf *PathFinder) NearestWalkable(x, y int) (int, int, bool) {
	if pf == nil {
		return 0, 0, false
	}
	limit := max(pf.width, pf.height)
	for r := 0; r <= limit; r++ {
		for dy := -r; dy <= r; dy++ {
			for dx := -r; dx <= r; dx++ {
				if abs(dx) != r && abs(dy) != r {
					continue
				}
				if pf.grid.IsWalkable(x+dx, y+dy) {
					return x + dx, y + dy, true
				}
			}
		}
	}
	return 0, 0, false
}

// heuristic is the octile distance.
func heuristic(x1, y1, x2, y2 int) float32 {
	dx := abs(x2 - x1)
	dy := abs(y2 - y1)
	if dx < dy {
		return float32(dx)*diagonalCost + float32(dy-dx)
	}
	return float32(dy)*diagonalCost + float32(dx-dy)
}

func (pf *PathFinder) inBounds(x, y int) bool {
	return x >= 0 && x < pf.width && y >= 0 && y < pf.height
}

func (pf *PathFinder) key(x, y int) int {
	return y*pf.width + x
}

func reconstructPath(node *PathNode) [][2]int {
	var path [][2]int
	for node != nil {
		path = append(path, [2]int{node.X, node.Y})
		node = node.Parent
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
