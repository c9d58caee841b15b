package client

import (
	"errors"
	"testing"

	"github.com/bstrzelecki/asteroids-server/internal/input"
	"github.com/bstrzelecki/asteroids-server/internal/net/proto"
	"github.com/bstrzelecki/asteroids-server/internal/sim"
)

func quietTuning() sim.Tuning {
	t := sim.DefaultTuning()
	t.SpawnIntervalTicks = 0
	return t
}

func viewOf(s *sim.State) map[sim.EntityID]proto.EntityState {
	view := make(map[sim.EntityID]proto.EntityState, len(s.Entities))
	for id, ent := range s.Entities {
		view[id] = *ent
	}
	return view
}

func keyframeOf(s *sim.State) proto.Keyframe {
	entities := make([]proto.EntityState, 0, len(s.Entities))
	for _, id := range s.OrderedIDs() {
		entities = append(entities, *s.Entities[id])
	}
	return proto.Keyframe{
		Ver:      proto.Version,
		Type:     proto.TypeKeyframe,
		Tick:     s.Tick,
		Entities: entities,
		Scores:   s.FinalScores(),
	}
}

func TestPredictMatchesServerUnderIdenticalInputs(t *testing.T) {
	tuning := quietTuning()
	server := sim.NewState("match", nil, tuning)
	ship := server.SpawnShip("tok", 0)

	history := input.NewHistory(256)
	p := NewPredictor("match", "tok", ship.ID, tuning, history)
	p.ApplyKeyframe(keyframeOf(server))

	for tick := uint64(1); tick <= 40; tick++ {
		in := sim.Input{Thrust: tick%2 == 0, Turn: 0.5}
		history.Record(tick, in)
		sim.Advance(server, map[sim.EntityID]sim.Input{ship.ID: in})
	}

	predicted := p.Predict(40)
	got, err := predicted.Entity(ship.ID)
	if err != nil {
		t.Fatalf("predicted state lost the ship: %v", err)
	}
	want := server.Entities[ship.ID]
	if got.Pos != want.Pos || got.Vel != want.Vel || got.Heading != want.Heading {
		t.Fatalf("prediction diverged from server:\ngot  %+v\nwant %+v", got, want)
	}
}

func TestReconcileReportsCleanWhenServerAgrees(t *testing.T) {
	tuning := quietTuning()
	server := sim.NewState("clean", nil, tuning)
	ship := server.SpawnShip("tok", 0)

	history := input.NewHistory(256)
	p := NewPredictor("clean", "tok", ship.ID, tuning, history)
	p.ApplyKeyframe(keyframeOf(server))

	for tick := uint64(1); tick <= 10; tick++ {
		in := sim.Input{Thrust: true}
		history.Record(tick, in)
		sim.Advance(server, map[sim.EntityID]sim.Input{ship.ID: in})
	}
	p.Predict(10)

	// The server confirms the exact ticks the client predicted with the
	// same inputs, so rollback-and-replay lands on the same state.
	p.ApplyKeyframe(keyframeOf(server))
	correction := p.Reconcile(10)

	if correction.Corrected {
		t.Fatalf("agreeing server produced a correction: %+v", correction)
	}
	if correction.PositionError > 1e-9 {
		t.Fatalf("unexpected position error: %f", correction.PositionError)
	}
}

func TestReconcileCorrectsDivergentPrediction(t *testing.T) {
	tuning := quietTuning()
	server := sim.NewState("drift", nil, tuning)
	ship := server.SpawnShip("tok", 0)

	history := input.NewHistory(256)
	p := NewPredictor("drift", "tok", ship.ID, tuning, history)
	p.ApplyKeyframe(keyframeOf(server))

	// The client predicts sustained thrust, but the server never saw
	// those inputs and kept the ship coasting.
	for tick := uint64(1); tick <= 10; tick++ {
		history.Record(tick, sim.Input{Thrust: true})
		sim.Advance(server, nil)
	}
	p.Predict(10)

	p.ApplyKeyframe(keyframeOf(server))
	correction := p.Reconcile(10)

	if !correction.Corrected {
		t.Fatalf("divergent prediction reported clean: %+v", correction)
	}

	replayed, err := p.Predicted().Entity(ship.ID)
	if err != nil {
		t.Fatalf("replayed state lost the ship: %v", err)
	}
	want := server.Entities[ship.ID]
	if replayed.Pos != want.Pos || replayed.Vel != want.Vel {
		t.Fatalf("replay did not converge on the authoritative state:\ngot  %+v\nwant %+v", replayed, want)
	}
}

func TestPredictorNeverInventsAsteroids(t *testing.T) {
	tuning := sim.DefaultTuning() // spawner enabled server-side
	server := sim.NewState("spawn", nil, tuning)
	ship := server.SpawnShip("tok", 0)

	history := input.NewHistory(512)
	p := NewPredictor("spawn", "tok", ship.ID, tuning, history)
	p.ApplyKeyframe(keyframeOf(server))

	predicted := p.Predict(300)
	for _, ent := range predicted.Entities {
		if ent.Kind == sim.KindAsteroid {
			t.Fatalf("speculative replay invented an asteroid")
		}
	}
}

func TestReconcileFlagsExhaustedHistory(t *testing.T) {
	tuning := quietTuning()
	server := sim.NewState("exhaust", nil, tuning)
	ship := server.SpawnShip("tok", 0)

	history := input.NewHistory(4)
	p := NewPredictor("exhaust", "tok", ship.ID, tuning, history)
	p.ApplyKeyframe(keyframeOf(server))

	// The ring only keeps 4 ticks, so by tick 10 the inputs the replay
	// from tick 0 would need are long gone.
	for tick := uint64(1); tick <= 10; tick++ {
		history.Record(tick, sim.Input{Thrust: true})
	}
	p.Predict(10)

	correction := p.Reconcile(10)
	if !correction.BufferExhausted {
		t.Fatalf("exhausted input history not reported: %+v", correction)
	}
}

func TestApplyDeltaBeforeKeyframeFails(t *testing.T) {
	p := NewPredictor("seed", "tok", 1, quietTuning(), input.NewHistory(8))
	err := p.ApplyDelta(proto.Delta{Tick: 5})
	if !errors.Is(err, ErrNoBaseline) {
		t.Fatalf("expected ErrNoBaseline, got %v", err)
	}
}

func TestApplyDeltaUnknownBaseFails(t *testing.T) {
	tuning := quietTuning()
	server := sim.NewState("base", nil, tuning)
	ship := server.SpawnShip("tok", 0)

	p := NewPredictor("base", "tok", ship.ID, tuning, input.NewHistory(8))
	p.ApplyKeyframe(keyframeOf(server))

	err := p.ApplyDelta(proto.Delta{Tick: 90, BaseTick: 80})
	if !errors.Is(err, ErrBaseUnavailable) {
		t.Fatalf("expected ErrBaseUnavailable, got %v", err)
	}
}

func TestApplyDeltaAgainstOlderBaseDropsTransientEntity(t *testing.T) {
	tuning := quietTuning()
	server := sim.NewState("ghost", nil, tuning)
	ship := server.SpawnShip("tok", 0)

	history := input.NewHistory(64)
	p := NewPredictor("ghost", "tok", ship.ID, tuning, history)
	p.ApplyKeyframe(keyframeOf(server))

	// The hub keeps diffing against the last acked tick, so both deltas
	// below reference tick 0 even though the client has moved past it.
	acked := viewOf(server)

	sim.Advance(server, nil)
	ghostID := server.AllocateID()
	server.Entities[ghostID] = &sim.Entity{
		ID:        ghostID,
		Kind:      sim.KindProjectile,
		Pos:       sim.Vec2{X: 100, Y: 100},
		Vel:       sim.Vec2{X: tuning.ProjectileSpeed},
		Radius:    tuning.ProjectileRadius,
		Health:    1,
		Owner:     "tok",
		WrapLimit: tuning.ProjectileWraps,
	}
	patches, removed := proto.Diff(acked, viewOf(server))
	if err := p.ApplyDelta(proto.Delta{Tick: server.Tick, BaseTick: 0, Patches: patches, Removed: removed}); err != nil {
		t.Fatalf("apply first delta: %v", err)
	}
	if _, ok := p.view[ghostID]; !ok {
		t.Fatalf("spawned entity missing after first delta")
	}

	// The entity dies before the next snapshot. The diff against tick 0
	// mentions it on neither side, so only applying against the
	// referenced base removes it from the client's view.
	delete(server.Entities, ghostID)
	sim.Advance(server, nil)
	patches, removed = proto.Diff(acked, viewOf(server))
	if err := p.ApplyDelta(proto.Delta{Tick: server.Tick, BaseTick: 0, Patches: patches, Removed: removed}); err != nil {
		t.Fatalf("apply second delta: %v", err)
	}

	if _, ok := p.view[ghostID]; ok {
		t.Fatalf("entity that lived and died between snapshots lingers in the confirmed view")
	}
	if p.ConfirmedTick() != server.Tick {
		t.Fatalf("confirmed tick = %d, want %d", p.ConfirmedTick(), server.Tick)
	}
}

func TestApplyDeltaAdvancesConfirmedView(t *testing.T) {
	tuning := quietTuning()
	server := sim.NewState("delta", nil, tuning)
	ship := server.SpawnShip("tok", 0)

	history := input.NewHistory(64)
	p := NewPredictor("delta", "tok", ship.ID, tuning, history)
	p.ApplyKeyframe(keyframeOf(server))

	base := map[sim.EntityID]proto.EntityState{ship.ID: *server.Entities[ship.ID]}
	sim.Advance(server, map[sim.EntityID]sim.Input{ship.ID: {Thrust: true}})
	current := map[sim.EntityID]proto.EntityState{ship.ID: *server.Entities[ship.ID]}

	patches, removed := proto.Diff(base, current)
	if err := p.ApplyDelta(proto.Delta{Tick: server.Tick, Patches: patches, Removed: removed}); err != nil {
		t.Fatalf("apply delta: %v", err)
	}
	if p.ConfirmedTick() != server.Tick {
		t.Fatalf("confirmed tick = %d, want %d", p.ConfirmedTick(), server.Tick)
	}

	confirmed := p.confirmedState()
	got, err := confirmed.Entity(ship.ID)
	if err != nil {
		t.Fatalf("confirmed state lost the ship: %v", err)
	}
	if got.Vel != server.Entities[ship.ID].Vel {
		t.Fatalf("delta did not carry the velocity change")
	}
}
