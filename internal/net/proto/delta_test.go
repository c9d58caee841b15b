package proto

import (
	"reflect"
	"testing"

	"github.com/bstrzelecki/asteroids-server/internal/sim"
)

func baseEntities() map[sim.EntityID]EntityState {
	return map[sim.EntityID]EntityState{
		1: {ID: 1, Kind: sim.KindShip, Pos: sim.Vec2{X: 100, Y: 100}, Vel: sim.Vec2{X: 1}, Health: 3, Owner: "p1"},
		2: {ID: 2, Kind: sim.KindAsteroid, Pos: sim.Vec2{X: 300, Y: 300}, Health: 1, Tier: sim.TierLarge},
		3: {ID: 3, Kind: sim.KindProjectile, Pos: sim.Vec2{X: 150, Y: 100}, Vel: sim.Vec2{X: 10}, Health: 1, Owner: "p1"},
	}
}

func cloneEntities(in map[sim.EntityID]EntityState) map[sim.EntityID]EntityState {
	out := make(map[sim.EntityID]EntityState, len(in))
	for id, ent := range in {
		out[id] = ent
	}
	return out
}

func TestDiffThenApplyReconstructsState(t *testing.T) {
	base := baseEntities()
	current := cloneEntities(base)

	ship := current[1]
	ship.Pos = sim.Vec2{X: 110, Y: 104}
	ship.Vel = sim.Vec2{X: 2, Y: 0.5}
	ship.Health = 2
	ship.Grace = 64
	current[1] = ship

	delete(current, 3)
	current[7] = EntityState{ID: 7, Kind: sim.KindAsteroid, Pos: sim.Vec2{X: 50, Y: 50}, Health: 1, Tier: sim.TierSmall}

	patches, removed := Diff(base, current)

	view := cloneEntities(base)
	if err := Apply(view, patches, removed); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !reflect.DeepEqual(view, current) {
		t.Fatalf("applied view does not match current state:\n%+v\n%+v", view, current)
	}
}

func TestDiffEmitsExplicitRemovals(t *testing.T) {
	base := baseEntities()
	current := cloneEntities(base)
	delete(current, 2)
	delete(current, 3)

	patches, removed := Diff(base, current)
	if len(patches) != 0 {
		t.Fatalf("pure removal produced patches: %+v", patches)
	}
	if !reflect.DeepEqual(removed, []sim.EntityID{2, 3}) {
		t.Fatalf("removals not explicit and sorted: %v", removed)
	}
}

func TestDiffOfIdenticalStatesIsEmpty(t *testing.T) {
	base := baseEntities()
	patches, removed := Diff(base, cloneEntities(base))
	if len(patches) != 0 || len(removed) != 0 {
		t.Fatalf("identical states diffed to %d patches, %d removals", len(patches), len(removed))
	}
}

func TestDiffIsDeterministicallyOrdered(t *testing.T) {
	base := baseEntities()
	current := cloneEntities(base)
	for id := sim.EntityID(1); id <= 3; id++ {
		ent := current[id]
		ent.Pos.X += 5
		current[id] = ent
	}

	first, _ := Diff(base, current)
	for i := 0; i < 20; i++ {
		again, _ := Diff(base, current)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("diff order varies between runs")
		}
	}
	for i := 1; i < len(first); i++ {
		if first[i].Entity < first[i-1].Entity {
			t.Fatalf("patches not ordered by entity: %+v", first)
		}
	}
}

func TestApplyRejectsUnknownEntity(t *testing.T) {
	view := baseEntities()
	patches := []Patch{{
		Kind:   PatchPos,
		Entity: 99,
		Pos:    &PosPayload{Pos: sim.Vec2{X: 1, Y: 1}},
	}}
	if err := Apply(view, patches, nil); err == nil {
		t.Fatalf("patch for unknown entity applied silently")
	}
}

func TestApplyRejectsUnknownKind(t *testing.T) {
	view := baseEntities()
	if err := Apply(view, []Patch{{Kind: "resize", Entity: 1}}, nil); err == nil {
		t.Fatalf("unsupported patch kind applied silently")
	}
}
