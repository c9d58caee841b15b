package sim

import (
	"math"
	"sort"
)

// grid is the per-tick broad phase: a uniform cell hash over entity
// positions. It is rebuilt after integration each tick and never shared
// across ticks or goroutines. Candidate sets may contain false positives
// but never miss a genuinely overlapping pair, and they come out sorted
// by EntityID so downstream resolution stays deterministic.
type grid struct {
	cellSize float64
	width    float64
	height   float64
	cols     int
	rows     int
	cells    map[cellKey][]EntityID
}

type cellKey struct {
	Col int
	Row int
}

// newGrid sizes cells off the largest collidable radius so any overlap
// is contained within a 3x3 cell neighbourhood.
func newGrid(s *State) *grid {
	maxRadius := s.Tuning.AsteroidLargeRadius
	if s.Tuning.ShipRadius > maxRadius {
		maxRadius = s.Tuning.ShipRadius
	}
	cellSize := 2 * maxRadius
	if cellSize <= 0 {
		cellSize = 1
	}
	g := &grid{
		cellSize: cellSize,
		width:    s.Tuning.WorldWidth,
		height:   s.Tuning.WorldHeight,
		cols:     int(math.Ceil(s.Tuning.WorldWidth / cellSize)),
		rows:     int(math.Ceil(s.Tuning.WorldHeight / cellSize)),
		cells:    make(map[cellKey][]EntityID),
	}
	if g.cols < 1 {
		g.cols = 1
	}
	if g.rows < 1 {
		g.rows = 1
	}
	return g
}

// rebuild indexes every collidable entity. Insertion order follows the
// sorted ID slice, so cell buckets are already ordered.
func (g *grid) rebuild(s *State, ids []EntityID) {
	clear(g.cells)
	for _, id := range ids {
		ent := s.Entities[id]
		if !ent.Collidable() {
			continue
		}
		key := g.keyFor(ent.Pos)
		g.cells[key] = append(g.cells[key], id)
	}
}

func (g *grid) keyFor(pos Vec2) cellKey {
	col := int(math.Floor(pos.X/g.cellSize)) % g.cols
	row := int(math.Floor(pos.Y/g.cellSize)) % g.rows
	if col < 0 {
		col += g.cols
	}
	if row < 0 {
		row += g.rows
	}
	return cellKey{Col: col, Row: row}
}

// candidates returns every entity that may overlap ent, sorted by ID.
// Neighbour cells wrap around the world edges like the entities do.
func (g *grid) candidates(s *State, ent *Entity) []EntityID {
	base := g.keyFor(ent.Pos)
	var out []EntityID
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			col := (base.Col + dc + g.cols) % g.cols
			row := (base.Row + dr + g.rows) % g.rows
			for _, id := range g.cells[cellKey{Col: col, Row: row}] {
				if id == ent.ID {
					continue
				}
				out = append(out, id)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	// Wrapped worlds smaller than 3x3 cells can visit a cell twice.
	out = dedupeSorted(out)
	return out
}

func dedupeSorted(ids []EntityID) []EntityID {
	if len(ids) < 2 {
		return ids
	}
	kept := ids[:1]
	for _, id := range ids[1:] {
		if id != kept[len(kept)-1] {
			kept = append(kept, id)
		}
	}
	return kept
}
