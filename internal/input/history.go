package input

import "github.com/bstrzelecki/asteroids-server/internal/sim"

// History is a bounded, tick-keyed record of captured inputs. When the
// ring is full the oldest entry falls off; a replay reaching past the
// retained window is the prediction-buffer-exhausted condition the
// session answers with a full resync.
type History struct {
	entries []historyEntry
	cap     int
}

type historyEntry struct {
	tick  uint64
	input sim.Input
}

// NewHistory allocates a ring retaining up to capacity ticks.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{entries: make([]historyEntry, 0, capacity), cap: capacity}
}

// Record stores the input captured for a tick. Ticks are expected to
// arrive in increasing order; a repeated tick overwrites in place.
func (h *History) Record(tick uint64, in sim.Input) {
	if n := len(h.entries); n > 0 && h.entries[n-1].tick == tick {
		h.entries[n-1].input = in
		return
	}
	if len(h.entries) == h.cap {
		copy(h.entries, h.entries[1:])
		h.entries = h.entries[:h.cap-1]
	}
	h.entries = append(h.entries, historyEntry{tick: tick, input: in})
}

// At returns the input recorded for tick. Missing ticks yield the zero
// input and false; callers substitute it silently.
func (h *History) At(tick uint64) (sim.Input, bool) {
	for i := len(h.entries) - 1; i >= 0; i-- {
		if h.entries[i].tick == tick {
			return h.entries[i].input, true
		}
		if h.entries[i].tick < tick {
			break
		}
	}
	return sim.Input{}, false
}

// OldestTick reports the earliest retained tick, or false when empty.
func (h *History) OldestTick() (uint64, bool) {
	if len(h.entries) == 0 {
		return 0, false
	}
	return h.entries[0].tick, true
}

// LatestTick reports the most recent retained tick, or false when empty.
func (h *History) LatestTick() (uint64, bool) {
	if len(h.entries) == 0 {
		return 0, false
	}
	return h.entries[len(h.entries)-1].tick, true
}

// PruneThrough drops every entry at or before tick; the server has
// confirmed those and replay will never need them again.
func (h *History) PruneThrough(tick uint64) {
	idx := 0
	for idx < len(h.entries) && h.entries[idx].tick <= tick {
		idx++
	}
	if idx > 0 {
		copy(h.entries, h.entries[idx:])
		h.entries = h.entries[:len(h.entries)-idx]
	}
}

// Len reports the number of retained entries.
func (h *History) Len() int {
	return len(h.entries)
}
