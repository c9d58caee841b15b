package client

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bstrzelecki/asteroids-server/internal/input"
	"github.com/bstrzelecki/asteroids-server/internal/net/proto"
	"github.com/bstrzelecki/asteroids-server/internal/sim"
)

// Phase is the client's view of the replication lifecycle.
type Phase string

const (
	// PhaseSynchronizing means the session is waiting on a baseline
	// keyframe; deltas cannot apply yet.
	PhaseSynchronizing Phase = "synchronizing"
	// PhaseConnected is steady state: deltas apply, prediction runs.
	PhaseConnected Phase = "connected"
	// PhaseDisconnected is terminal.
	PhaseDisconnected Phase = "disconnected"
)

// SessionOptions tunes a client session. Zero values use the noted
// defaults.
type SessionOptions struct {
	// HistoryTicks bounds the input replay buffer. Default 256.
	HistoryTicks int
	// InterpolationDelayTicks is how far behind confirmed ticks remote
	// entities render. Default 6.
	InterpolationDelayTicks float64
	// InterpolationFrames bounds the snapshot buffer. Default 32.
	InterpolationFrames int
	// SnapshotTimeout forces a resync when no snapshot arrives for this
	// long. Default 2s.
	SnapshotTimeout time.Duration
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.HistoryTicks == 0 {
		o.HistoryTicks = 256
	}
	if o.InterpolationDelayTicks == 0 {
		o.InterpolationDelayTicks = 6
	}
	if o.InterpolationFrames == 0 {
		o.InterpolationFrames = 32
	}
	if o.SnapshotTimeout == 0 {
		o.SnapshotTimeout = 2 * time.Second
	}
	return o
}

// Session drives one client: it captures inputs, predicts forward,
// applies inbound snapshots with reconciliation, and keeps remote
// entities on the interpolation delay. Single goroutine ownership; the
// transport reader hands payloads in via HandleMessage.
type Session struct {
	log  zerolog.Logger
	opts SessionOptions
	send func([]byte) error

	token  string
	shipID sim.EntityID
	phase  Phase

	channel   *input.Channel
	predictor *Predictor
	interp    *InterpolationBuffer

	localTick      uint64
	sendSeq        uint64
	lastServerSeq  uint64
	lastSnapshotAt time.Time
	lastCorrection Correction
	pendingEvents  []sim.Event
}

// NewSession assembles a session from the join handshake. The send
// callback delivers encoded client messages to the transport and must
// not block indefinitely.
func NewSession(log zerolog.Logger, token string, shipID sim.EntityID, seed string, startTick uint64, tuning sim.Tuning, source input.Source, send func([]byte) error, opts SessionOptions) *Session {
	opts = opts.withDefaults()
	channel := input.NewChannel(source, opts.HistoryTicks)
	return &Session{
		log:            log,
		opts:           opts,
		send:           send,
		token:          token,
		shipID:         shipID,
		phase:          PhaseSynchronizing,
		channel:        channel,
		predictor:      NewPredictor(seed, token, shipID, tuning, channel.History()),
		interp:         NewInterpolationBuffer(opts.InterpolationDelayTicks, opts.InterpolationFrames, tuning.WorldWidth, tuning.WorldHeight),
		localTick:      startTick,
		lastSnapshotAt: time.Now(),
	}
}

// Phase reports the current lifecycle phase.
func (s *Session) Phase() Phase {
	return s.phase
}

// LastCorrection reports the most recent reconciliation result.
func (s *Session) LastCorrection() Correction {
	return s.lastCorrection
}

// Step advances the local clock one tick: capture the input, ship it
// to the server, and refresh the speculative state. Before the first
// keyframe only capture happens; there is nothing to predict from.
func (s *Session) Step() (*sim.State, error) {
	s.localTick++
	in := s.channel.Capture(s.localTick)

	s.sendSeq++
	payload, err := proto.EncodeInput(s.localTick, s.sendSeq, in)
	if err != nil {
		return nil, fmt.Errorf("client: encode input: %w", err)
	}
	if err := s.send(payload); err != nil {
		return nil, fmt.Errorf("client: send input: %w", err)
	}

	if s.phase != PhaseConnected {
		return nil, nil
	}
	return s.predictor.Predict(s.localTick), nil
}

// HandleMessage applies one inbound server payload. Stale sequence
// numbers are discarded silently; malformed payloads or deltas with no
// usable baseline trigger a keyframe request.
func (s *Session) HandleMessage(payload []byte, now time.Time) error {
	env, err := proto.DecodeServerEnvelope(payload)
	if err != nil {
		return fmt.Errorf("client: %w", err)
	}
	if env.Seq != 0 && env.Seq <= s.lastServerSeq && env.Type != proto.TypeHeartbeat {
		return nil
	}

	switch env.Type {
	case proto.TypeKeyframe:
		kf, err := proto.DecodeKeyframe(payload)
		if err != nil {
			return fmt.Errorf("client: %w", err)
		}
		s.lastServerSeq = env.Seq
		s.lastSnapshotAt = now
		s.predictor.ApplyKeyframe(kf)
		s.pendingEvents = append(s.pendingEvents, kf.Events...)
		if kf.ShipID != 0 {
			s.shipID = kf.ShipID
		}
		s.phase = PhaseConnected
		if s.localTick < kf.Tick {
			s.localTick = kf.Tick
		}
		s.afterSnapshot(kf.Tick)

	case proto.TypeDelta:
		d, err := proto.DecodeDelta(payload)
		if err != nil {
			return fmt.Errorf("client: %w", err)
		}
		if s.phase != PhaseConnected {
			return s.requestKeyframe()
		}
		s.lastServerSeq = env.Seq
		s.lastSnapshotAt = now
		if err := s.predictor.ApplyDelta(d); err != nil {
			s.log.Warn().Err(err).Uint64("tick", d.Tick).Msg("delta did not apply, resynchronizing")
			s.phase = PhaseSynchronizing
			return s.requestKeyframe()
		}
		s.pendingEvents = append(s.pendingEvents, d.Events...)
		s.afterSnapshot(d.Tick)

	case proto.TypeHeartbeat:
		// RTT bookkeeping only; nothing to apply.

	default:
		return fmt.Errorf("client: unknown server message type %q", env.Type)
	}
	return nil
}

// afterSnapshot runs the shared post-apply path: acknowledge the tick,
// reconcile the speculative state, and feed the interpolation buffer.
func (s *Session) afterSnapshot(tick uint64) {
	s.sendSeq++
	if ack, err := proto.EncodeAck(tick, s.sendSeq); err == nil {
		if err := s.send(ack); err != nil {
			s.log.Warn().Err(err).Msg("ack send failed")
		}
	}

	if s.localTick < tick {
		s.localTick = tick
	}
	s.lastCorrection = s.predictor.Reconcile(s.localTick)
	if s.lastCorrection.BufferExhausted {
		s.log.Warn().Uint64("tick", tick).Msg("input history exhausted, requesting keyframe")
		if err := s.requestKeyframe(); err != nil {
			s.log.Warn().Err(err).Msg("keyframe request failed")
		}
	}
	if s.lastCorrection.Corrected {
		s.log.Debug().
			Uint64("tick", s.lastCorrection.Tick).
			Float64("posError", s.lastCorrection.PositionError).
			Msg("prediction corrected")
	}

	s.interp.Push(tick, s.predictor.view)
}

// CheckTimeout forces a resync when the snapshot stream has gone
// quiet past the configured window.
func (s *Session) CheckTimeout(now time.Time) error {
	if s.phase != PhaseConnected {
		return nil
	}
	if now.Sub(s.lastSnapshotAt) <= s.opts.SnapshotTimeout {
		return nil
	}
	s.log.Warn().Dur("quiet", now.Sub(s.lastSnapshotAt)).Msg("snapshot stream stalled, resynchronizing")
	s.phase = PhaseSynchronizing
	return s.requestKeyframe()
}

// Heartbeat ships one liveness probe.
func (s *Session) Heartbeat(now time.Time) error {
	s.sendSeq++
	payload, err := proto.EncodeHeartbeat(s.sendSeq, now.UnixMilli())
	if err != nil {
		return fmt.Errorf("client: encode heartbeat: %w", err)
	}
	return s.send(payload)
}

func (s *Session) requestKeyframe() error {
	s.sendSeq++
	payload, err := proto.EncodeKeyframeRequest(s.sendSeq)
	if err != nil {
		return fmt.Errorf("client: encode keyframe request: %w", err)
	}
	return s.send(payload)
}

// Render samples the delayed remote view for drawing. The local ship
// should be drawn from the predicted state instead; it is excluded
// here.
func (s *Session) Render() []proto.EntityState {
	frame := s.interp.Sample(s.interp.RenderTick(s.predictor.ConfirmedTick()))
	out := frame[:0]
	for _, ent := range frame {
		if ent.ID == s.shipID {
			continue
		}
		out = append(out, ent)
	}
	return out
}

// Scores exposes the replicated score sheet.
func (s *Session) Scores() map[string]int {
	return s.predictor.Scores()
}

// DrainEvents returns the confirmed gameplay events applied since the
// last drain, in arrival order, and clears the queue. Presentation
// consumers pull these each frame for particles, audio, and the HUD.
func (s *Session) DrainEvents() []sim.Event {
	events := s.pendingEvents
	s.pendingEvents = nil
	return events
}
