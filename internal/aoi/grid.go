// Package aoi implements grid-based interest management. A rectangular
// world is split into uniform square cells; an object sees the occupants
// of the nine cells around its own. Cell migration is damped by a
// hysteresis band so an object oscillating on a boundary does not flap
// between neighborhoods.
//
// A grid belongs to one scene and is mutated only from that scene's
// logic thread; it carries no locks.
package aoi

import "math"

// Neighbor receives interest deltas. Appear and disappear are emitted
// symmetrically: when a transition makes A visible to B, the same
// transition makes B visible to A.
type Neighbor interface {
	OnAppear(peers []Neighbor)
	OnDisappear(peers []Neighbor)
}

type cellPos struct {
	row, col int
}

// Grid is the uniform cell grid.
type Grid struct {
	minX, minZ float64
	cellSize   float64
	hysteresis float64

	rows, cols int

	// cells is row-major: index = row*cols + col.
	cells []map[Neighbor]struct{}

	// committed maps each member to the cell it currently occupies.
	committed map[Neighbor]cellPos
}

// NewGrid builds a grid over [minX,maxX) x [minZ,maxZ). The hysteresis
// band must be strictly below half the cell size or an object could
// satisfy the enlarged rectangles of two cells at once.
func NewGrid(minX, minZ, maxX, maxZ, cellSize, hysteresis float64) *Grid {
	if cellSize <= 0 {
		panic("aoi: cell size must be positive")
	}
	if hysteresis < 0 || hysteresis >= cellSize/2 {
		panic("aoi: hysteresis must be in [0, cellSize/2)")
	}
	cols := int(math.Ceil((maxX - minX) / cellSize))
	rows := int(math.Ceil((maxZ - minZ) / cellSize))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	g := &Grid{
		minX:       minX,
		minZ:       minZ,
		cellSize:   cellSize,
		hysteresis: hysteresis,
		rows:       rows,
		cols:       cols,
		cells:      make([]map[Neighbor]struct{}, rows*cols),
		committed:  make(map[Neighbor]cellPos),
	}
	for i := range g.cells {
		g.cells[i] = make(map[Neighbor]struct{})
	}
	return g
}

// Len returns the number of tracked objects.
func (g *Grid) Len() int { return len(g.committed) }

// Contains reports whether n is tracked.
func (g *Grid) Contains(n Neighbor) bool {
	_, ok := g.committed[n]
	return ok
}

// Add inserts n at (x, z) and announces it to the occupants of the nine
// surrounding cells, symmetrically.
func (g *Grid) Add(n Neighbor, x, z float64) {
	checkCoords(x, z)
	if _, ok := g.committed[n]; ok {
		return
	}
	pos := g.clamp(cellPos{row: g.worldToRow(z), col: g.worldToCol(x)})
	g.committed[n] = pos
	g.cells[g.index(pos)][n] = struct{}{}

	nearby := g.collectAdjacent(pos, n)
	if len(nearby) == 0 {
		return
	}
	n.OnAppear(nearby)
	self := []Neighbor{n}
	for _, p := range nearby {
		p.OnAppear(self)
	}
}

// Remove deletes n from the grid and announces the disappearance to its
// former neighborhood, symmetrically.
func (g *Grid) Remove(n Neighbor) {
	pos, ok := g.committed[n]
	if !ok {
		return
	}

	nearby := g.collectAdjacent(pos, n)
	if len(nearby) > 0 {
		self := []Neighbor{n}
		for _, p := range nearby {
			p.OnDisappear(self)
		}
		n.OnDisappear(nearby)
	}

	delete(g.cells[g.index(pos)], n)
	delete(g.committed, n)
}

// UpdatePosition moves n to (x, z). No events fire while the position
// stays inside the committed cell's rectangle enlarged by the hysteresis
// band; past it, the object migrates and appear/disappear deltas are
// emitted both ways over the nine-cell neighborhoods.
func (g *Grid) UpdatePosition(n Neighbor, x, z float64) {
	checkCoords(x, z)
	old, ok := g.committed[n]
	if !ok {
		return
	}

	cellMinX := g.minX + float64(old.col)*g.cellSize
	cellMinZ := g.minZ + float64(old.row)*g.cellSize
	h := g.hysteresis
	inside := x >= cellMinX-h && x < cellMinX+g.cellSize+h &&
		z >= cellMinZ-h && z < cellMinZ+g.cellSize+h
	if inside {
		return
	}

	next := g.clamp(cellPos{row: g.worldToRow(z), col: g.worldToCol(x)})
	if next == old {
		return
	}

	oldAdj := g.adjacentSet(old, n)

	delete(g.cells[g.index(old)], n)
	g.cells[g.index(next)][n] = struct{}{}
	g.committed[n] = next

	newAdj := g.adjacentSet(next, n)

	var appeared, disappeared []Neighbor
	for p := range newAdj {
		if _, seen := oldAdj[p]; !seen {
			appeared = append(appeared, p)
		}
	}
	for p := range oldAdj {
		if _, seen := newAdj[p]; !seen {
			disappeared = append(disappeared, p)
		}
	}

	self := []Neighbor{n}
	if len(appeared) > 0 {
		n.OnAppear(appeared)
		for _, p := range appeared {
			p.OnAppear(self)
		}
	}
	if len(disappeared) > 0 {
		n.OnDisappear(disappeared)
		for _, p := range disappeared {
			p.OnDisappear(self)
		}
	}
}

// Nearby returns the occupants of the nine cells around (x, z),
// excluding exclude.
func (g *Grid) Nearby(x, z float64, exclude Neighbor) []Neighbor {
	checkCoords(x, z)
	pos := g.clamp(cellPos{row: g.worldToRow(z), col: g.worldToCol(x)})
	return g.collectAdjacent(pos, exclude)
}

// ForEachNearby visits the occupants of the nine cells around (x, z).
func (g *Grid) ForEachNearby(x, z float64, fn func(Neighbor)) {
	checkCoords(x, z)
	pos := g.clamp(cellPos{row: g.worldToRow(z), col: g.worldToCol(x)})
	g.visitAdjacent(pos, nil, fn)
}

func (g *Grid) worldToCol(x float64) int {
	return int(math.Floor((x - g.minX) / g.cellSize))
}

func (g *Grid) worldToRow(z float64) int {
	return int(math.Floor((z - g.minZ) / g.cellSize))
}

func (g *Grid) clamp(p cellPos) cellPos {
	if p.row < 0 {
		p.row = 0
	}
	if p.row >= g.rows {
		p.row = g.rows - 1
	}
	if p.col < 0 {
		p.col = 0
	}
	if p.col >= g.cols {
		p.col = g.cols - 1
	}
	return p
}

func (g *Grid) index(p cellPos) int { return p.row*g.cols + p.col }

func (g *Grid) visitAdjacent(center cellPos, exclude Neighbor, fn func(Neighbor)) {
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			r, c := center.row+dr, center.col+dc
			if r < 0 || r >= g.rows || c < 0 || c >= g.cols {
				continue
			}
			for p := range g.cells[r*g.cols+c] {
				if p != exclude {
					fn(p)
				}
			}
		}
	}
}

func (g *Grid) collectAdjacent(center cellPos, exclude Neighbor) []Neighbor {
	var out []Neighbor
	g.visitAdjacent(center, exclude, func(p Neighbor) {
		out = append(out, p)
	})
	return out
}

func (g *Grid) adjacentSet(center cellPos, exclude Neighbor) map[Neighbor]struct{} {
	out := make(map[Neighbor]struct{})
	g.visitAdjacent(center, exclude, func(p Neighbor) {
		out[p] = struct{}{}
	})
	return out
}

func checkCoords(x, z float64) {
	if math.IsNaN(x) || math.IsNaN(z) {
		panic("aoi: NaN coordinates")
	}
}
