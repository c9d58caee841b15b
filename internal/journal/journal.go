// Package journal retains recent authoritative keyframes so delta
// snapshots can be computed against whatever tick a client last
// acknowledged. Retention is bounded by count and age; acks that fall
// off the window force a keyframe resync instead of a stale delta.
package journal

import (
	"sync"
	"time"

	"github.com/bstrzelecki/asteroids-server/internal/sim"
)

// Frame is one retained tick: the full entity table plus the score
// sheet, deep-copied at record time.
type Frame struct {
	Tick       uint64
	Sequence   uint64
	Entities   map[sim.EntityID]sim.Entity
	Scores     map[string]int
	RecordedAt time.Time
}

// Eviction describes a frame dropped from the buffer and why.
type Eviction struct {
	Tick     uint64
	Sequence uint64
	Reason   string
}

// Journal is the bounded keyframe buffer. Safe for the simulation
// goroutine to write and network goroutines to read.
type Journal struct {
	mu        sync.RWMutex
	frames    []Frame
	maxFrames int
	maxAge    time.Duration
	now       func() time.Time
}

// New constructs a journal retaining up to maxFrames frames no older
// than maxAge. Zero disables the respective limit.
func New(maxFrames int, maxAge time.Duration) *Journal {
	if maxFrames < 0 {
		maxFrames = 0
	}
	if maxAge < 0 {
		maxAge = 0
	}
	return &Journal{
		frames:    make([]Frame, 0, maxFrames),
		maxFrames: maxFrames,
		maxAge:    maxAge,
		now:       time.Now,
	}
}

// Record captures the state at a tick. Entities and scores are copied;
// the caller may keep mutating its own maps. Returns the evictions the
// insert caused.
func Record(j *Journal, tick, sequence uint64, entities map[sim.EntityID]sim.Entity, scores map[string]int) []Eviction {
	frame := Frame{
		Tick:     tick,
		Sequence: sequence,
		Entities: make(map[sim.EntityID]sim.Entity, len(entities)),
		Scores:   make(map[string]int, len(scores)),
	}
	for id, ent := range entities {
		frame.Entities[id] = ent
	}
	for player, score := range scores {
		frame.Scores[player] = score
	}
	return j.record(frame)
}

func (j *Journal) record(frame Frame) []Eviction {
	j.mu.Lock()
	defer j.mu.Unlock()

	frame.RecordedAt = j.now()
	j.frames = append(j.frames, frame)

	evicted := make([]Eviction, 0)
	if j.maxAge > 0 {
		cutoff := frame.RecordedAt.Add(-j.maxAge)
		idx := 0
		for idx < len(j.frames) && j.frames[idx].RecordedAt.Before(cutoff) {
			evicted = append(evicted, Eviction{Tick: j.frames[idx].Tick, Sequence: j.frames[idx].Sequence, Reason: "expired"})
			idx++
		}
		if idx > 0 {
			copy(j.frames, j.frames[idx:])
			j.frames = j.frames[:len(j.frames)-idx]
		}
	}
	if j.maxFrames > 0 && len(j.frames) > j.maxFrames {
		overflow := len(j.frames) - j.maxFrames
		for i := 0; i < overflow; i++ {
			evicted = append(evicted, Eviction{Tick: j.frames[i].Tick, Sequence: j.frames[i].Sequence, Reason: "count"})
		}
		copy(j.frames, j.frames[overflow:])
		j.frames = j.frames[:len(j.frames)-overflow]
	}
	return evicted
}

// ByTick returns the frame recorded for the given tick.
func (j *Journal) ByTick(tick uint64) (Frame, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	for i := len(j.frames) - 1; i >= 0; i-- {
		if j.frames[i].Tick == tick {
			return j.frames[i], true
		}
	}
	return Frame{}, false
}

// Latest returns the most recent frame.
func (j *Journal) Latest() (Frame, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if len(j.frames) == 0 {
		return Frame{}, false
	}
	return j.frames[len(j.frames)-1], true
}

// Window reports the retained tick range.
func (j *Journal) Window() (size int, oldest, newest uint64) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	size = len(j.frames)
	if size == 0 {
		return size, 0, 0
	}
	return size, j.frames[0].Tick, j.frames[size-1].Tick
}
