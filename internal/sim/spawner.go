package sim

// advanceSpawner counts down to the next procedural asteroid and spawns
// it at a random edge of the world. Only the spawner RNG stream is
// consumed here, so spawn sequences depend on nothing but the seed and
// the tick count.
func (s *State) advanceSpawner(events *[]Event) {
	interval := s.Tuning.SpawnIntervalTicks
	if interval == 0 {
		return
	}
	if s.ticksToNext > 0 {
		s.ticksToNext--
		return
	}
	s.ticksToNext = interval - 1

	rng := &s.spawnRNG
	pos := Vec2{}
	if rng.Bool(0.5) {
		pos.X = rng.Range(0, s.Tuning.WorldWidth)
	} else {
		pos.Y = rng.Range(0, s.Tuning.WorldHeight)
	}
	tier := TierSmall
	if rng.Bool(s.Tuning.AsteroidLargeChance) {
		tier = TierLarge
	}
	s.spawnAsteroidAt(pos, tier, s.randomVelocity(rng), 0, events)
}

func (s *State) randomVelocity(rng *RNG) Vec2 {
	limit := s.Tuning.AsteroidMaxSpeed
	return Vec2{X: rng.Range(-limit, limit), Y: rng.Range(-limit, limit)}
}

func (s *State) spawnAsteroidAt(pos Vec2, tier AsteroidTier, vel Vec2, grace uint32, events *[]Event) *Entity {
	radius := s.Tuning.AsteroidSmallRadius
	if tier == TierLarge {
		radius = s.Tuning.AsteroidLargeRadius
	}
	asteroid := &Entity{
		ID:        s.AllocateID(),
		Kind:      KindAsteroid,
		Pos:       pos,
		Vel:       vel,
		Radius:    radius,
		Health:    1,
		Tier:      tier,
		Grace:     grace,
		WrapLimit: s.Tuning.AsteroidWraps,
	}
	s.Entities[asteroid.ID] = asteroid
	*events = append(*events, Event{
		Tick:    s.Tick,
		Kind:    EventSpawn,
		Entity:  asteroid.ID,
		Variant: KindAsteroid,
		Pos:     pos,
	})
	return asteroid
}

// spawnProjectile fires from the ship's nose, inheriting its velocity
// plus muzzle speed along the facing vector.
func (s *State) spawnProjectile(ship *Entity, events *[]Event) *Entity {
	dir := HeadingVec(ship.Heading)
	projectile := &Entity{
		ID:        s.AllocateID(),
		Kind:      KindProjectile,
		Pos:       ship.Pos.Add(dir.Scale(ship.Radius)),
		Vel:       ship.Vel.Add(dir.Scale(s.Tuning.ProjectileSpeed)),
		Heading:   ship.Heading,
		Radius:    s.Tuning.ProjectileRadius,
		Health:    1,
		Owner:     ship.Owner,
		WrapLimit: s.Tuning.ProjectileWraps,
	}
	projectile.Pos.X, _ = WrapCoord(projectile.Pos.X, s.Tuning.WorldWidth)
	projectile.Pos.Y, _ = WrapCoord(projectile.Pos.Y, s.Tuning.WorldHeight)
	s.Entities[projectile.ID] = projectile
	*events = append(*events, Event{
		Tick:    s.Tick,
		Kind:    EventSpawn,
		Entity:  projectile.ID,
		Variant: KindProjectile,
		Pos:     projectile.Pos,
		Player:  ship.Owner,
	})
	return projectile
}
