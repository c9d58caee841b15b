// Package client implements the predicting side of the replication
// protocol: speculative local simulation ahead of the last confirmed
// server tick, rollback-and-replay reconciliation when snapshots land,
// and delayed interpolation for remote entities.
package client

import (
	"errors"
	"fmt"
	"math"

	"github.com/bstrzelecki/asteroids-server/internal/input"
	"github.com/bstrzelecki/asteroids-server/internal/net/proto"
	"github.com/bstrzelecki/asteroids-server/internal/sim"
)

// ErrNoBaseline reports a delta arriving before any keyframe; the
// session answers it with a keyframe request.
var ErrNoBaseline = errors.New("client: delta before baseline keyframe")

// ErrBaseUnavailable reports a delta referencing a base tick the
// predictor no longer retains. The session answers it with a keyframe
// request.
var ErrBaseUnavailable = errors.New("client: delta base outside retained views")

// confirmedViewRetention is how many ticks of confirmed views the
// predictor keeps. The hub diffs against the client's last acked tick,
// which trails the newest confirmed view by the ack round trip; one
// second of views covers that comfortably.
const confirmedViewRetention = 64

// Correction reports what one reconciliation pass found: how far the
// speculative state had drifted from the authoritative result at the
// confirmed tick.
type Correction struct {
	Tick          uint64
	PositionError float64
	VelocityError float64
	// Offset is the toroidal displacement from the replayed ship
	// position to the previously displayed one. Presentation smooths
	// this out over a few frames instead of snapping.
	Offset sim.Vec2
	// Corrected is set when the drift exceeded the epsilons and the
	// replayed state replaced the speculative one wholesale.
	Corrected bool
	// BufferExhausted is set when the input history no longer covered
	// the ticks between the confirmed tick and the replay head, so part
	// of the replay ran on substituted zero inputs.
	BufferExhausted bool
}

// Predictor runs the local speculative simulation. It keeps the last
// confirmed state exactly as the server reported it and rebuilds the
// predicted state from it by replaying buffered local inputs.
//
// The predictor's tuning disables the procedural asteroid spawner:
// replay must never invent entities the server has not confirmed, so
// new asteroids only ever arrive through snapshots.
type Predictor struct {
	seed   string
	tuning sim.Tuning
	owner  string
	shipID sim.EntityID

	history *input.History

	view          map[sim.EntityID]proto.EntityState
	views         map[uint64]map[sim.EntityID]proto.EntityState
	scores        map[string]int
	confirmedTick uint64
	hasBaseline   bool

	predicted *sim.State

	posEpsilon float64
	velEpsilon float64
}

// NewPredictor builds a predictor for the local ship. The history ring
// is shared with the input channel that fills it.
func NewPredictor(seed, owner string, shipID sim.EntityID, tuning sim.Tuning, history *input.History) *Predictor {
	tuning.SpawnIntervalTicks = 0
	return &Predictor{
		seed:       seed,
		tuning:     tuning,
		owner:      owner,
		shipID:     shipID,
		history:    history,
		view:       make(map[sim.EntityID]proto.EntityState),
		views:      make(map[uint64]map[sim.EntityID]proto.EntityState),
		scores:     make(map[string]int),
		posEpsilon: 0.01,
		velEpsilon: 0.01,
	}
}

// ApplyKeyframe replaces the confirmed view with a full snapshot.
// Earlier retained views are dropped; the keyframe is the only base a
// later delta can reference.
func (p *Predictor) ApplyKeyframe(kf proto.Keyframe) {
	p.view = make(map[sim.EntityID]proto.EntityState, len(kf.Entities))
	for _, ent := range kf.Entities {
		p.view[ent.ID] = ent
	}
	p.views = map[uint64]map[sim.EntityID]proto.EntityState{kf.Tick: p.view}
	if kf.Scores != nil {
		p.scores = kf.Scores
	}
	if kf.ShipID != 0 {
		p.shipID = kf.ShipID
	}
	p.confirmedTick = kf.Tick
	p.hasBaseline = true
}

// ApplyDelta builds the confirmed view for d.Tick by patching the
// retained view at d.BaseTick. The hub diffs against the last acked
// tick, which usually trails the newest confirmed view, so applying
// against the current view would keep entities that spawned and died
// entirely between the two around as ghosts. An error means the delta
// referenced state this client does not have; the caller must fall
// back to Synchronizing and request a keyframe.
func (p *Predictor) ApplyDelta(d proto.Delta) error {
	if !p.hasBaseline {
		return ErrNoBaseline
	}
	base, ok := p.views[d.BaseTick]
	if !ok {
		return fmt.Errorf("%w: tick %d", ErrBaseUnavailable, d.BaseTick)
	}
	next := make(map[sim.EntityID]proto.EntityState, len(base))
	for id, ent := range base {
		next[id] = ent
	}
	if err := proto.Apply(next, d.Patches, d.Removed); err != nil {
		return err
	}
	p.view = next
	p.views[d.Tick] = next
	for tick := range p.views {
		if tick+confirmedViewRetention < d.Tick {
			delete(p.views, tick)
		}
	}
	if d.Scores != nil {
		p.scores = d.Scores
	}
	p.confirmedTick = d.Tick
	return nil
}

// ConfirmedTick reports the newest authoritative tick applied.
func (p *Predictor) ConfirmedTick() uint64 {
	return p.confirmedTick
}

// Scores returns the latest replicated score sheet.
func (p *Predictor) Scores() map[string]int {
	return p.scores
}

// confirmedState materialises the wire view as a simulation state so
// Advance can run on it. Entity IDs are adopted so speculative spawns
// never collide with authoritative ones.
func (p *Predictor) confirmedState() *sim.State {
	st := sim.NewState(p.seed, nil, p.tuning)
	st.Tick = p.confirmedTick
	for id, ent := range p.view {
		copied := ent
		st.Entities[id] = &copied
		st.AdoptID(id)
		if ent.Kind == sim.KindShip && ent.Owner != "" {
			st.Ships[ent.Owner] = id
		}
	}
	for player, score := range p.scores {
		st.Scores[player] = score
	}
	return st
}

// Predict replays buffered local inputs from the confirmed tick up to
// targetTick and returns the resulting speculative state. Ticks with no
// recorded input replay the zero input.
func (p *Predictor) Predict(targetTick uint64) *sim.State {
	st := p.confirmedState()
	for st.Tick < targetTick {
		inputs := map[sim.EntityID]sim.Input{}
		if _, ok := st.Entities[p.shipID]; ok {
			in, _ := p.history.At(st.Tick + 1)
			inputs[p.shipID] = in
		}
		sim.Advance(st, inputs)
	}
	p.predicted = st
	return st
}

// Predicted returns the current speculative state, which may be nil
// before the first Predict call.
func (p *Predictor) Predicted() *sim.State {
	return p.predicted
}

// Reconcile rolls the speculative state back to the newly confirmed
// tick and replays the unacknowledged inputs on top, measuring how far
// the previous prediction had drifted. Inputs at or before the
// confirmed tick are pruned; the server has absorbed them.
func (p *Predictor) Reconcile(targetTick uint64) Correction {
	correction := Correction{Tick: p.confirmedTick}

	var prevPos, prevVel sim.Vec2
	hadPrev := false
	if p.predicted != nil {
		if ship, err := p.predicted.Entity(p.shipID); err == nil {
			prevPos, prevVel = ship.Pos, ship.Vel
			hadPrev = true
		}
	}

	if oldest, ok := p.history.OldestTick(); ok && p.confirmedTick+1 < oldest && p.confirmedTick < targetTick {
		correction.BufferExhausted = true
	}

	replayed := p.Predict(targetTick)
	p.history.PruneThrough(p.confirmedTick)

	if !hadPrev {
		return correction
	}
	ship, err := replayed.Entity(p.shipID)
	if err != nil {
		// The server despawned the local ship; the replay wins outright.
		correction.Corrected = true
		return correction
	}

	correction.Offset = sim.Vec2{
		X: sim.ToroidalDelta(ship.Pos.X, prevPos.X, p.tuning.WorldWidth),
		Y: sim.ToroidalDelta(ship.Pos.Y, prevPos.Y, p.tuning.WorldHeight),
	}
	correction.PositionError = math.Sqrt(sim.ToroidalDistanceSq(prevPos, ship.Pos, p.tuning.WorldWidth, p.tuning.WorldHeight))
	correction.VelocityError = ship.Vel.Sub(prevVel).Length()
	correction.Corrected = correction.PositionError > p.posEpsilon || correction.VelocityError > p.velEpsilon
	return correction
}
