package journal

import (
	"testing"
	"time"

	"github.com/bstrzelecki/asteroids-server/internal/sim"
)

func frameEntities() map[sim.EntityID]sim.Entity {
	return map[sim.EntityID]sim.Entity{
		1: {ID: 1, Kind: sim.KindShip, Pos: sim.Vec2{X: 10, Y: 10}, Health: 3},
	}
}

func TestJournalEvictsByCount(t *testing.T) {
	j := New(2, time.Minute)

	Record(j, 10, 1, frameEntities(), nil)
	Record(j, 11, 2, frameEntities(), nil)
	evicted := Record(j, 12, 3, frameEntities(), nil)

	if size, oldest, newest := j.Window(); size != 2 || oldest != 11 || newest != 12 {
		t.Fatalf("unexpected window: size=%d oldest=%d newest=%d", size, oldest, newest)
	}
	if len(evicted) != 1 || evicted[0].Tick != 10 || evicted[0].Reason != "count" {
		t.Fatalf("unexpected eviction record: %+v", evicted)
	}
	if _, ok := j.ByTick(10); ok {
		t.Fatalf("evicted frame still resolvable")
	}
}

func TestJournalEvictsByAge(t *testing.T) {
	j := New(8, 50*time.Millisecond)
	now := time.Unix(0, 0)
	j.now = func() time.Time { return now }

	Record(j, 5, 1, frameEntities(), nil)
	now = now.Add(100 * time.Millisecond)
	evicted := Record(j, 6, 2, frameEntities(), nil)

	if size, oldest, _ := j.Window(); size != 1 || oldest != 6 {
		t.Fatalf("expired frame not trimmed: size=%d oldest=%d", size, oldest)
	}
	if len(evicted) != 1 || evicted[0].Tick != 5 || evicted[0].Reason != "expired" {
		t.Fatalf("unexpected eviction record: %+v", evicted)
	}
}

func TestJournalByTick(t *testing.T) {
	j := New(8, time.Minute)
	entities := frameEntities()
	Record(j, 20, 1, entities, map[string]int{"p1": 35})

	frame, ok := j.ByTick(20)
	if !ok {
		t.Fatalf("recorded frame not found")
	}
	if frame.Scores["p1"] != 35 {
		t.Fatalf("scores not captured: %+v", frame.Scores)
	}

	// The frame owns copies; mutating the source must not leak in.
	ent := entities[1]
	ent.Health = 0
	entities[1] = ent
	if frame.Entities[1].Health != 3 {
		t.Fatalf("journal frame aliases caller state")
	}
}

func TestJournalLatest(t *testing.T) {
	j := New(4, time.Minute)
	if _, ok := j.Latest(); ok {
		t.Fatalf("empty journal reported a latest frame")
	}
	Record(j, 1, 1, frameEntities(), nil)
	Record(j, 2, 2, frameEntities(), nil)
	frame, ok := j.Latest()
	if !ok || frame.Tick != 2 {
		t.Fatalf("latest frame wrong: %+v %v", frame, ok)
	}
}
