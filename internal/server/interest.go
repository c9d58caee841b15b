package server

import "github.com/bstrzelecki/asteroids-server/internal/sim"

// interestFilter selects the entities a client should receive. A
// radius at or below zero admits everything, which is the default for
// this world size.
type interestFilter struct {
	radius float64
	width  float64
	height float64
}

// visible reports whether an entity falls inside the client's interest
// set centered on its ship. Distance is toroidal, matching the world
// metric, so interest does not pop at the seams.
func (f interestFilter) visible(center sim.Vec2, ent sim.Entity) bool {
	if f.radius <= 0 {
		return true
	}
	reach := f.radius + ent.Radius
	return sim.ToroidalDistanceSq(center, ent.Pos, f.width, f.height) <= reach*reach
}

// filter copies the entities visible to a client into a fresh map. With
// no ship to center on the full set is returned; a dead player still
// spectates the whole field.
func (f interestFilter) filter(entities map[sim.EntityID]sim.Entity, center sim.Vec2, hasCenter bool) map[sim.EntityID]sim.Entity {
	out := make(map[sim.EntityID]sim.Entity, len(entities))
	for id, ent := range entities {
		if f.radius > 0 && hasCenter && !f.visible(center, ent) {
			continue
		}
		out[id] = ent
	}
	return out
}
