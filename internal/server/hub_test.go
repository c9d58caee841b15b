package server

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bstrzelecki/asteroids-server/internal/sim"
)

func quietOptions() Options {
	tuning := sim.DefaultTuning()
	tuning.SpawnIntervalTicks = 0
	return Options{Seed: "test-seed", Tuning: &tuning}
}

func TestHubJoinSpawnsShip(t *testing.T) {
	hub := NewHub(zerolog.Nop(), quietOptions())

	join := hub.Join("alice")
	if join.Token == "" {
		t.Fatalf("join produced no session token")
	}
	if join.ShipID == 0 {
		t.Fatalf("join produced no ship")
	}
	if join.TickRate != sim.TickRate {
		t.Fatalf("join advertises tick rate %d", join.TickRate)
	}

	ship, err := hub.state.Entity(join.ShipID)
	if err != nil {
		t.Fatalf("ship missing from world: %v", err)
	}
	if ship.Owner != join.Token {
		t.Fatalf("ship owner %q does not match token", ship.Owner)
	}
}

func TestHubJoinsUseDistinctSlots(t *testing.T) {
	hub := NewHub(zerolog.Nop(), quietOptions())
	a := hub.Join("alice")
	b := hub.Join("bob")

	shipA, _ := hub.state.Entity(a.ShipID)
	shipB, _ := hub.state.Entity(b.ShipID)
	if shipA.Pos == shipB.Pos {
		t.Fatalf("two ships spawned on top of each other")
	}
}

func TestHubAdvanceAppliesQueuedInput(t *testing.T) {
	hub := NewHub(zerolog.Nop(), quietOptions())
	join := hub.Join("alice")

	hub.HandleInput(join.Token, 1, sim.Input{Thrust: true})
	hub.advanceTick(time.Now())

	ship, err := hub.state.Entity(join.ShipID)
	if err != nil {
		t.Fatalf("ship missing: %v", err)
	}
	if ship.Vel.Length() == 0 {
		t.Fatalf("queued thrust did not move the ship")
	}
}

func TestHubAdvanceRepeatsLastInputWhenQuiet(t *testing.T) {
	hub := NewHub(zerolog.Nop(), quietOptions())
	join := hub.Join("alice")

	hub.HandleInput(join.Token, 1, sim.Input{Thrust: true})
	hub.advanceTick(time.Now())
	ship, _ := hub.state.Entity(join.ShipID)
	afterFirst := ship.Vel.Length()

	hub.advanceTick(time.Now())
	if ship.Vel.Length() <= afterFirst {
		t.Fatalf("last known input was not repeated on a quiet tick")
	}
}

func TestHubRecordsJournalFrames(t *testing.T) {
	hub := NewHub(zerolog.Nop(), quietOptions())
	hub.Join("alice")

	for i := 0; i < 5; i++ {
		hub.advanceTick(time.Now())
	}

	size, oldest, newest := hub.journal.Window()
	if size != 5 || oldest != 1 || newest != 5 {
		t.Fatalf("unexpected journal window: size=%d oldest=%d newest=%d", size, oldest, newest)
	}
	frame, ok := hub.journal.ByTick(3)
	if !ok {
		t.Fatalf("mid-run frame missing")
	}
	if len(frame.Entities) == 0 {
		t.Fatalf("journal frame recorded no entities")
	}
}

func TestHubBroadcastCarriesCatchupEvents(t *testing.T) {
	opts := quietOptions()
	tuning := sim.DefaultTuning()
	tuning.SpawnIntervalTicks = 1
	opts.Tuning = &tuning
	hub := NewHub(zerolog.Nop(), opts)

	// Three ticks before a broadcast, as a stalled loop replays them.
	// The spawner fires on the second and third.
	for i := 0; i < 3; i++ {
		hub.advanceTick(time.Now())
	}

	hub.mu.Lock()
	spawns := 0
	for _, ev := range hub.lastEvents {
		if ev.Kind == sim.EventSpawn {
			spawns++
		}
	}
	hub.mu.Unlock()
	if spawns != 2 {
		t.Fatalf("events from replayed ticks were dropped: %d spawns", spawns)
	}

	hub.broadcast(time.Now())
	hub.mu.Lock()
	leftover := len(hub.lastEvents)
	hub.mu.Unlock()
	if leftover != 0 {
		t.Fatalf("broadcast did not flush the event queue: %d left", leftover)
	}
}

func TestHubDisconnectEmitsDespawnEvent(t *testing.T) {
	hub := NewHub(zerolog.Nop(), quietOptions())
	join := hub.Join("alice")
	hub.advanceTick(time.Now())

	hub.Disconnect(join.Token)

	hub.mu.Lock()
	defer hub.mu.Unlock()
	for _, ev := range hub.lastEvents {
		if ev.Kind == sim.EventDespawn && ev.Entity == join.ShipID && ev.Variant == sim.KindShip {
			return
		}
	}
	t.Fatalf("disconnect did not emit a ship despawn event")
}

func TestHubHeartbeatTimeoutDespawnsShip(t *testing.T) {
	opts := quietOptions()
	opts.DisconnectAfter = 10 * time.Millisecond
	hub := NewHub(zerolog.Nop(), opts)
	join := hub.Join("alice")

	hub.mu.Lock()
	hub.sessions[join.Token].lastHeartbeat = time.Now().Add(-time.Second)
	hub.mu.Unlock()

	hub.advanceTick(time.Now())

	if _, err := hub.state.Entity(join.ShipID); err == nil {
		t.Fatalf("timed-out player's ship still in the world")
	}
	hub.mu.Lock()
	_, stillThere := hub.sessions[join.Token]
	despawned := false
	for _, ev := range hub.lastEvents {
		if ev.Kind == sim.EventDespawn && ev.Entity == join.ShipID {
			despawned = true
		}
	}
	hub.mu.Unlock()
	if stillThere {
		t.Fatalf("timed-out session not removed")
	}
	if !despawned {
		t.Fatalf("timed-out ship removed without a despawn event")
	}
}

func TestHubViolationLimitSignalsDisconnect(t *testing.T) {
	opts := quietOptions()
	opts.ViolationLimit = 2
	hub := NewHub(zerolog.Nop(), opts)
	join := hub.Join("alice")

	if hub.NoteViolation(join.Token) {
		t.Fatalf("first violation tripped the limit")
	}
	if !hub.NoteViolation(join.Token) {
		t.Fatalf("limit did not trip at the configured count")
	}
}

func TestHubRejectsImplausibleAck(t *testing.T) {
	opts := quietOptions()
	opts.ViolationLimit = 1
	hub := NewHub(zerolog.Nop(), opts)
	join := hub.Join("alice")
	hub.advanceTick(time.Now())

	if !hub.HandleAck(join.Token, 500) {
		t.Fatalf("ack beyond the server tick was accepted")
	}

	hub.mu.Lock()
	hasAck := hub.sessions[join.Token].hasAck
	hub.mu.Unlock()
	if hasAck {
		t.Fatalf("implausible ack was recorded")
	}
}

func TestHubTerminateReturnsScores(t *testing.T) {
	hub := NewHub(zerolog.Nop(), quietOptions())
	join := hub.Join("alice")

	hub.mu.Lock()
	hub.state.Scores[join.Token] = 45
	hub.mu.Unlock()

	scores := hub.Terminate()
	if scores[join.Token] != 45 {
		t.Fatalf("terminate lost the final score: %+v", scores)
	}
	hub.mu.Lock()
	remaining := len(hub.sessions)
	hub.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("sessions survived terminate: %d", remaining)
	}
}

func TestHubKeyframeRequestFlagsSession(t *testing.T) {
	hub := NewHub(zerolog.Nop(), quietOptions())
	join := hub.Join("alice")

	hub.mu.Lock()
	hub.sessions[join.Token].needKeyframe = false
	hub.mu.Unlock()

	hub.HandleKeyframeRequest(join.Token)

	hub.mu.Lock()
	flagged := hub.sessions[join.Token].needKeyframe
	hub.mu.Unlock()
	if !flagged {
		t.Fatalf("keyframe request did not flag the session")
	}
	if hub.telemetry.Snapshot().KeyframeRequests != 1 {
		t.Fatalf("keyframe request not counted")
	}
}

func TestHubDiagnosticsReflectsSessions(t *testing.T) {
	hub := NewHub(zerolog.Nop(), quietOptions())
	hub.Join("alice")
	hub.advanceTick(time.Now())

	diag := hub.Diagnostics()
	if diag.Tick != 1 {
		t.Fatalf("diagnostics tick = %d", diag.Tick)
	}
	if len(diag.Sessions) != 1 || diag.Sessions[0].Player != "alice" {
		t.Fatalf("diagnostics sessions wrong: %+v", diag.Sessions)
	}
}
