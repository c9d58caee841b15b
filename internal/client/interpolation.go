package client

import (
	"math"
	"sort"

	"github.com/bstrzelecki/asteroids-server/internal/net/proto"
	"github.com/bstrzelecki/asteroids-server/internal/sim"
)

// InterpolationBuffer renders remote entities a fixed delay behind the
// newest confirmed tick, blending between the two snapshots that
// bracket the render time. The delay absorbs snapshot jitter; remote
// motion stays smooth at the cost of added latency for entities the
// local player does not control.
type InterpolationBuffer struct {
	frames     []interpFrame
	capacity   int
	delayTicks float64
	width      float64
	height     float64
}

type interpFrame struct {
	tick     uint64
	entities map[sim.EntityID]proto.EntityState
}

// NewInterpolationBuffer sizes a buffer for the given world dimensions.
// delayTicks is how far behind the confirmed tick rendering runs; two
// to three snapshot intervals is typical.
func NewInterpolationBuffer(delayTicks float64, capacity int, width, height float64) *InterpolationBuffer {
	if capacity < 2 {
		capacity = 2
	}
	return &InterpolationBuffer{
		frames:     make([]interpFrame, 0, capacity),
		capacity:   capacity,
		delayTicks: delayTicks,
		width:      width,
		height:     height,
	}
}

// Push records the confirmed entity view at a tick. Out-of-order ticks
// are inserted in place; duplicates overwrite.
func (b *InterpolationBuffer) Push(tick uint64, entities map[sim.EntityID]proto.EntityState) {
	frame := interpFrame{tick: tick, entities: make(map[sim.EntityID]proto.EntityState, len(entities))}
	for id, ent := range entities {
		frame.entities[id] = ent
	}

	idx := sort.Search(len(b.frames), func(i int) bool { return b.frames[i].tick >= tick })
	if idx < len(b.frames) && b.frames[idx].tick == tick {
		b.frames[idx] = frame
	} else {
		b.frames = append(b.frames, interpFrame{})
		copy(b.frames[idx+1:], b.frames[idx:])
		b.frames[idx] = frame
	}
	if len(b.frames) > b.capacity {
		drop := len(b.frames) - b.capacity
		copy(b.frames, b.frames[drop:])
		b.frames = b.frames[:b.capacity]
	}
}

// RenderTick converts the newest confirmed tick into the delayed
// position the buffer should be sampled at.
func (b *InterpolationBuffer) RenderTick(confirmedTick uint64) float64 {
	rt := float64(confirmedTick) - b.delayTicks
	if rt < 0 {
		rt = 0
	}
	return rt
}

// Sample blends the two frames bracketing renderTick and returns the
// interpolated entity list. Entities missing from the later frame are
// treated as despawned and omitted; entities that only just appeared
// hold at their first known position.
func (b *InterpolationBuffer) Sample(renderTick float64) []proto.EntityState {
	if len(b.frames) == 0 {
		return nil
	}
	if renderTick <= float64(b.frames[0].tick) {
		return b.frames[0].ordered()
	}
	last := b.frames[len(b.frames)-1]
	if renderTick >= float64(last.tick) {
		return last.ordered()
	}

	hi := sort.Search(len(b.frames), func(i int) bool { return float64(b.frames[i].tick) >= renderTick })
	from, to := b.frames[hi-1], b.frames[hi]
	span := float64(to.tick - from.tick)
	alpha := (renderTick - float64(from.tick)) / span

	out := make([]proto.EntityState, 0, len(to.entities))
	ids := make([]sim.EntityID, 0, len(to.entities))
	for id := range to.entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		after := to.entities[id]
		before, ok := from.entities[id]
		if !ok {
			out = append(out, after)
			continue
		}
		blended := after
		blended.Pos = b.lerpToroidal(before.Pos, after.Pos, alpha)
		blended.Vel = sim.Vec2{
			X: before.Vel.X + (after.Vel.X-before.Vel.X)*alpha,
			Y: before.Vel.Y + (after.Vel.Y-before.Vel.Y)*alpha,
		}
		blended.Heading = lerpAngle(before.Heading, after.Heading, alpha)
		out = append(out, blended)
	}
	return out
}

func (f interpFrame) ordered() []proto.EntityState {
	ids := make([]sim.EntityID, 0, len(f.entities))
	for id := range f.entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]proto.EntityState, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.entities[id])
	}
	return out
}

// lerpToroidal blends two positions along the shortest path on the
// torus, so an entity crossing a seam never sweeps across the screen.
func (b *InterpolationBuffer) lerpToroidal(from, to sim.Vec2, alpha float64) sim.Vec2 {
	dx := sim.ToroidalDelta(from.X, to.X, b.width)
	dy := sim.ToroidalDelta(from.Y, to.Y, b.height)
	x, _ := sim.WrapCoord(from.X+dx*alpha, b.width)
	y, _ := sim.WrapCoord(from.Y+dy*alpha, b.height)
	return sim.Vec2{X: x, Y: y}
}

// lerpAngle blends headings along the shorter arc.
func lerpAngle(from, to, alpha float64) float64 {
	diff := math.Mod(to-from, 2*math.Pi)
	if diff > math.Pi {
		diff -= 2 * math.Pi
	} else if diff < -math.Pi {
		diff += 2 * math.Pi
	}
	return from + diff*alpha
}
