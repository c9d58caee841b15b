package sim

import "sort"

// collisionPair orders the two participants so (A, B) with A < B is the
// canonical form regardless of which side the broad phase produced.
type collisionPair struct {
	A EntityID
	B EntityID
}

// collectPairs runs the narrow-phase circle test over broad-phase
// candidates and returns the overlapping pairs sorted by
// (min(EntityID), max(EntityID)). The sort is what makes resolution
// order independent of candidate iteration.
func collectPairs(s *State, g *grid, ids []EntityID) []collisionPair {
	seen := make(map[collisionPair]struct{})
	pairs := make([]collisionPair, 0)
	for _, id := range ids {
		ent := s.Entities[id]
		if ent == nil || !ent.Collidable() {
			continue
		}
		for _, otherID := range g.candidates(s, ent) {
			other := s.Entities[otherID]
			if other == nil || !other.Collidable() {
				continue
			}
			pair := collisionPair{A: id, B: otherID}
			if pair.B < pair.A {
				pair.A, pair.B = pair.B, pair.A
			}
			if _, dup := seen[pair]; dup {
				continue
			}
			if !circlesOverlap(s, ent, other) {
				continue
			}
			seen[pair] = struct{}{}
			pairs = append(pairs, pair)
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].A != pairs[j].A {
			return pairs[i].A < pairs[j].A
		}
		return pairs[i].B < pairs[j].B
	})
	return pairs
}

func circlesOverlap(s *State, a, b *Entity) bool {
	limit := a.Radius + b.Radius
	return ToroidalDistanceSq(a.Pos, b.Pos, s.Tuning.WorldWidth, s.Tuning.WorldHeight) < limit*limit
}

// resolveCollisions applies the collision matrix over the sorted pairs.
// Entities destroyed earlier in the pass no longer react, mirroring how
// the pairs were found: a projectile consumed by the first asteroid it
// hit cannot also destroy a second one in the same tick.
func (s *State) resolveCollisions(pairs []collisionPair, events *[]Event) {
	for _, pair := range pairs {
		a := s.Entities[pair.A]
		b := s.Entities[pair.B]
		if a == nil || b == nil {
			continue
		}
		switch {
		case a.Kind == KindProjectile && b.Kind == KindAsteroid:
			s.projectileHitsAsteroid(a, b, events)
		case a.Kind == KindAsteroid && b.Kind == KindProjectile:
			s.projectileHitsAsteroid(b, a, events)
		case a.Kind == KindShip && b.Kind == KindAsteroid:
			s.damageShip(a, b.ID, events)
		case a.Kind == KindAsteroid && b.Kind == KindShip:
			s.damageShip(b, a.ID, events)
		case a.Kind == KindProjectile && b.Kind == KindShip:
			s.projectileHitsShip(a, b, events)
		case a.Kind == KindShip && b.Kind == KindProjectile:
			s.projectileHitsShip(b, a, events)
		}
	}
}

func (s *State) projectileHitsAsteroid(projectile, asteroid *Entity, events *[]Event) {
	if s.Entities[projectile.ID] == nil || s.Entities[asteroid.ID] == nil {
		return
	}
	points := s.Tuning.ScoreSmallAsteroid
	if asteroid.Tier == TierLarge {
		points = s.Tuning.ScoreLargeAsteroid
	}
	if projectile.Owner != "" {
		s.Scores[projectile.Owner] += points
		*events = append(*events, Event{
			Tick:   s.Tick,
			Kind:   EventScore,
			Entity: asteroid.ID,
			Player: projectile.Owner,
			Points: points,
		})
	}
	s.destroyEntity(projectile.ID, events)
	s.shatterAsteroid(asteroid, events)
}

func (s *State) projectileHitsShip(projectile, ship *Entity, events *[]Event) {
	if s.Entities[projectile.ID] == nil || s.Entities[ship.ID] == nil {
		return
	}
	if projectile.Owner == ship.Owner {
		return
	}
	s.destroyEntity(projectile.ID, events)
	s.damageShip(ship, projectile.ID, events)
}

// damageShip applies one point of damage unless the ship is inside its
// post-hit grace window.
func (s *State) damageShip(ship *Entity, source EntityID, events *[]Event) {
	if s.Entities[ship.ID] == nil || ship.Grace > 0 {
		return
	}
	ship.Health--
	ship.Grace = s.Tuning.ShipGraceTicks
	*events = append(*events, Event{
		Tick:   s.Tick,
		Kind:   EventDamage,
		Entity: ship.ID,
		Other:  source,
		Pos:    ship.Pos,
		Player: ship.Owner,
	})
	if ship.Health <= 0 {
		delete(s.Ships, ship.Owner)
		s.destroyEntity(ship.ID, events)
	}
}

// shatterAsteroid despawns the asteroid and, for the large tier, spawns
// the configured number of small children at the impact point.
func (s *State) shatterAsteroid(asteroid *Entity, events *[]Event) {
	if s.Entities[asteroid.ID] == nil {
		return
	}
	tier := asteroid.Tier
	pos := asteroid.Pos
	s.destroyEntity(asteroid.ID, events)
	if tier != TierLarge {
		return
	}
	for i := 0; i < s.Tuning.SplitCount; i++ {
		s.spawnAsteroidAt(pos, TierSmall, s.randomVelocity(&s.splitRNG), s.Tuning.AsteroidGraceTicks, events)
	}
}

// destroyEntity removes the entity and records the Despawn event. All
// removal funnels through here so despawns are always explicit on the
// wire, never inferred from absence.
func (s *State) destroyEntity(id EntityID, events *[]Event) {
	ent := s.Entities[id]
	if ent == nil {
		return
	}
	delete(s.Entities, id)
	*events = append(*events, Event{
		Tick:    s.Tick,
		Kind:    EventDespawn,
		Entity:  id,
		Variant: ent.Kind,
		Pos:     ent.Pos,
	})
}
