package sim

import (
	"fmt"
	"math"
	"sort"
)

// State is the complete simulation state for one match. It has value
// semantics via Clone: everything replay depends on, including the RNG
// streams, lives here. Nothing in State references wall-clock time.
type State struct {
	Tick     uint64
	Seed     string
	Tuning   Tuning
	Entities map[EntityID]*Entity
	Scores   map[string]int

	// Ships indexes the controlling player to their ship. Entries are
	// removed when a ship is destroyed.
	Ships map[string]EntityID

	nextID      EntityID
	spawnRNG    RNG
	splitRNG    RNG
	ticksToNext uint64
}

// NewState seeds a match: one ship per roster entry, deterministic RNG
// streams derived from the root seed, tick zero.
func NewState(seed string, roster []string, tuning Tuning) *State {
	s := &State{
		Seed:     seed,
		Tuning:   tuning,
		Entities: make(map[EntityID]*Entity),
		Scores:   make(map[string]int),
		Ships:    make(map[string]EntityID),
		spawnRNG: NewRNG(seed, "asteroid-spawner"),
		splitRNG: NewRNG(seed, "asteroid-split"),
	}
	s.ticksToNext = tuning.SpawnIntervalTicks
	for i, player := range roster {
		s.SpawnShip(player, i)
	}
	return s
}

// Clone deep-copies the state. The copy shares nothing with the
// original, so speculative replay can mutate it freely.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	clone := &State{
		Tick:        s.Tick,
		Seed:        s.Seed,
		Tuning:      s.Tuning,
		Entities:    make(map[EntityID]*Entity, len(s.Entities)),
		Scores:      make(map[string]int, len(s.Scores)),
		Ships:       make(map[string]EntityID, len(s.Ships)),
		nextID:      s.nextID,
		spawnRNG:    s.spawnRNG,
		splitRNG:    s.splitRNG,
		ticksToNext: s.ticksToNext,
	}
	for id, ent := range s.Entities {
		copied := *ent
		clone.Entities[id] = &copied
	}
	for player, score := range s.Scores {
		clone.Scores[player] = score
	}
	for player, id := range s.Ships {
		clone.Ships[player] = id
	}
	return clone
}

// OrderedIDs returns every entity ID sorted ascending. All iteration in
// the step pipeline goes through this so map order never leaks into the
// result.
func (s *State) OrderedIDs() []EntityID {
	ids := make([]EntityID, 0, len(s.Entities))
	for id := range s.Entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// AllocateID hands out the next entity ID. IDs are match-unique and
// strictly increasing, which the collision tie-break relies on.
func (s *State) AllocateID() EntityID {
	s.nextID++
	return s.nextID
}

// AdoptID advances the allocator past an externally assigned ID. The
// client uses this when server snapshots introduce entities so any local
// speculative IDs never collide with authoritative ones.
func (s *State) AdoptID(id EntityID) {
	if id > s.nextID {
		s.nextID = id
	}
}

// SpawnShip creates a ship for the given player at a slot-offset spawn
// point around the world centre and records a pending Spawn event on the
// next tick's event list via the returned entity.
func (s *State) SpawnShip(player string, slot int) *Entity {
	t := s.Tuning
	angle := float64(slot) * (math.Pi / 4)
	offset := HeadingVec(angle).Scale(float64(slot) * 4 * t.ShipRadius)
	ship := &Entity{
		ID:      s.AllocateID(),
		Kind:    KindShip,
		Pos:     Vec2{X: t.WorldWidth / 2, Y: t.WorldHeight / 2}.Add(offset),
		Heading: math.Pi / 2,
		Radius:  t.ShipRadius,
		Health:  t.ShipHealth,
		Owner:   player,
	}
	ship.Pos.X, _ = WrapCoord(ship.Pos.X, t.WorldWidth)
	ship.Pos.Y, _ = WrapCoord(ship.Pos.Y, t.WorldHeight)
	s.Entities[ship.ID] = ship
	s.Ships[player] = ship.ID
	if _, ok := s.Scores[player]; !ok {
		s.Scores[player] = 0
	}
	return ship
}

// RemoveShip despawns the ship controlled by player, if any, and
// returns the despawn event so callers can put it on the wire. The
// score entry survives so Terminate still reports the player.
func (s *State) RemoveShip(player string) (Event, bool) {
	id, ok := s.Ships[player]
	if !ok {
		return Event{}, false
	}
	ev := Event{
		Tick:    s.Tick,
		Kind:    EventDespawn,
		Entity:  id,
		Variant: KindShip,
		Player:  player,
	}
	if ent := s.Entities[id]; ent != nil {
		ev.Pos = ent.Pos
	}
	delete(s.Entities, id)
	delete(s.Ships, player)
	return ev, true
}

// Entity returns the entity with the given ID or an error when absent.
func (s *State) Entity(id EntityID) (*Entity, error) {
	ent, ok := s.Entities[id]
	if !ok {
		return nil, fmt.Errorf("sim: no entity %d", id)
	}
	return ent, nil
}

// FinalScores copies the per-player score table.
func (s *State) FinalScores() map[string]int {
	scores := make(map[string]int, len(s.Scores))
	for player, score := range s.Scores {
		scores[player] = score
	}
	return scores
}
