// Package input captures per-tick logical actions for a locally
// controlled ship and retains the history prediction replays from.
package input

import (
	"encoding/json"
	"fmt"

	"github.com/bstrzelecki/asteroids-server/internal/sim"
)

// Source supplies the current logical action state. Implementations sit
// at the boundary to the device-mapping layer and must never block: the
// channel polls once per tick.
type Source interface {
	Sample() sim.Input
}

// SourceFunc adapts a plain function to the Source interface.
type SourceFunc func() sim.Input

// Sample implements Source.
func (f SourceFunc) Sample() sim.Input { return f() }

// Channel polls a Source once per tick and keeps the captured inputs in
// a bounded ring so reconciliation can replay them. Single-consumer: the
// owning client session is the only caller.
type Channel struct {
	source  Source
	history *History
}

// NewChannel wires a source to a history ring of the given capacity.
func NewChannel(source Source, capacity int) *Channel {
	return &Channel{source: source, history: NewHistory(capacity)}
}

// Capture samples the source for the given tick, records the input, and
// returns it. With a nil source the zero input is recorded, matching the
// "missing input is not an error" contract.
func (c *Channel) Capture(tick uint64) sim.Input {
	var in sim.Input
	if c.source != nil {
		in = c.source.Sample().Normalized()
	}
	c.history.Record(tick, in)
	return in
}

// History exposes the buffered input record.
func (c *Channel) History() *History {
	return c.history
}

// Encode serialises an input for transmission.
func Encode(in sim.Input) ([]byte, error) {
	return json.Marshal(in)
}

// Decode restores an input from its wire form. Encode and Decode
// round-trip exactly.
func Decode(payload []byte) (sim.Input, error) {
	var in sim.Input
	if err := json.Unmarshal(payload, &in); err != nil {
		return sim.Input{}, fmt.Errorf("input: decode: %w", err)
	}
	return in, nil
}
