package sim

// Advance runs one fixed timestep over the state: apply inputs,
// integrate, resolve collisions, expire lifetimes, spawn. The phases run
// in this exact order and iterate entities by sorted ID, so two calls
// with identical state and inputs yield bit-identical results — the
// property rollback-and-replay stands on. The returned events are the
// tick's discrete gameplay notifications in emission order.
func Advance(s *State, inputs map[EntityID]Input) []Event {
	s.Tick++
	events := make([]Event, 0)

	ids := s.OrderedIDs()
	s.applyInputs(ids, inputs, &events)
	s.integrate(ids)

	// Rebuild the broad phase from post-integration positions, then
	// resolve the overlap set in canonical pair order.
	ids = s.OrderedIDs()
	g := newGrid(s)
	g.rebuild(s, ids)
	s.resolveCollisions(collectPairs(s, g, ids), &events)

	s.expireLifetimes(&events)
	s.advanceSpawner(&events)
	return events
}

// applyInputs updates ship velocity and orientation from the tick's
// inputs and fires queued projectiles. A ship with no entry in inputs
// gets the zero input: coasting, no turn, no fire.
func (s *State) applyInputs(ids []EntityID, inputs map[EntityID]Input, events *[]Event) {
	dt := TickSeconds
	for _, id := range ids {
		ship := s.Entities[id]
		if ship == nil || ship.Kind != KindShip {
			continue
		}
		in := inputs[id].Normalized()

		ship.Heading += in.Turn * s.Tuning.ShipTurnRate * dt
		if in.Thrust {
			ship.Vel = ship.Vel.Add(HeadingVec(ship.Heading).Scale(s.Tuning.ShipAccel * dt))
		}
		ship.Vel = ship.Vel.ClampLength(s.Tuning.ShipMaxSpeed)

		if ship.Cooldown > 0 {
			ship.Cooldown--
		}
		if ship.Grace > 0 {
			ship.Grace--
		}
		if in.Fire && ship.Cooldown == 0 {
			s.spawnProjectile(ship, events)
			ship.Cooldown = s.Tuning.FireCooldownTick
		}
	}
}

// integrate moves every entity by its velocity and folds positions back
// onto the toroidal world, counting wraps against the lifetime budget.
// Asteroid spawn grace also burns down here.
func (s *State) integrate(ids []EntityID) {
	for _, id := range ids {
		ent := s.Entities[id]
		if ent == nil {
			continue
		}
		ent.Pos = ent.Pos.Add(ent.Vel)

		var wrappedX, wrappedY bool
		ent.Pos.X, wrappedX = WrapCoord(ent.Pos.X, s.Tuning.WorldWidth)
		ent.Pos.Y, wrappedY = WrapCoord(ent.Pos.Y, s.Tuning.WorldHeight)
		if (wrappedX || wrappedY) && ent.WrapLimit > 0 {
			ent.Wraps++
		}
		if ent.Kind == KindAsteroid && ent.Grace > 0 {
			ent.Grace--
		}
	}
}

// expireLifetimes despawns everything whose wrap budget ran out.
func (s *State) expireLifetimes(events *[]Event) {
	for _, id := range s.OrderedIDs() {
		ent := s.Entities[id]
		if ent == nil || ent.Alive() {
			continue
		}
		if ent.Kind == KindShip {
			delete(s.Ships, ent.Owner)
		}
		s.destroyEntity(id, events)
	}
}
