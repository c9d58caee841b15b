// Package server hosts the authoritative simulation behind a websocket
// transport: a mutex-guarded hub advances the world on a fixed ticker
// and streams delta or keyframe snapshots to every attached session.
package server

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/bstrzelecki/asteroids-server/internal/journal"
	"github.com/bstrzelecki/asteroids-server/internal/net/proto"
	"github.com/bstrzelecki/asteroids-server/internal/sim"
)

const writeWait = 10 * time.Second

// Options configures a hub. Zero values fall back to the defaults
// noted per field.
type Options struct {
	// Seed labels the deterministic random streams for this session.
	Seed string
	// Tuning holds the gameplay constants; the zero value means
	// sim.DefaultTuning.
	Tuning *sim.Tuning
	// KeyframeIntervalTicks forces a full snapshot this often even for
	// healthy clients. Default 128.
	KeyframeIntervalTicks uint64
	// JournalFrames bounds keyframe retention by count. Default 256.
	JournalFrames int
	// JournalMaxAge bounds keyframe retention by age. Default 5s.
	JournalMaxAge time.Duration
	// InterestRadius limits per-client replication; zero or negative
	// replicates the whole field.
	InterestRadius float64
	// InputQueueCap bounds each session's pending input queue. Default 8.
	InputQueueCap int
	// ViolationLimit disconnects a session after this many protocol
	// violations. Default 10.
	ViolationLimit int
	// DisconnectAfter drops sessions whose heartbeat went quiet.
	// Default 6s.
	DisconnectAfter time.Duration
	// MaxCatchupTicks clamps how many ticks a stalled loop replays in
	// one wakeup. Default 4.
	MaxCatchupTicks int
}

func (o Options) withDefaults() Options {
	if o.Tuning == nil {
		def := sim.DefaultTuning()
		o.Tuning = &def
	}
	if o.KeyframeIntervalTicks == 0 {
		o.KeyframeIntervalTicks = 128
	}
	if o.JournalFrames == 0 {
		o.JournalFrames = 256
	}
	if o.JournalMaxAge == 0 {
		o.JournalMaxAge = 5 * time.Second
	}
	if o.InputQueueCap == 0 {
		o.InputQueueCap = 8
	}
	if o.ViolationLimit == 0 {
		o.ViolationLimit = 10
	}
	if o.DisconnectAfter == 0 {
		o.DisconnectAfter = 6 * time.Second
	}
	if o.MaxCatchupTicks == 0 {
		o.MaxCatchupTicks = 4
	}
	return o
}

// Hub owns the authoritative world state and every live session. All
// state behind mu; the tick loop, readers, and HTTP handlers contend
// on it briefly and copy out.
type Hub struct {
	mu       sync.Mutex
	opts     Options
	log      zerolog.Logger
	state    *sim.State
	sessions map[string]*session
	nextSlot int

	journal   *journal.Journal
	telemetry *telemetryCounters

	// lastEvents accumulates gameplay events from every tick advanced
	// since the last broadcast; catch-up replays several ticks per
	// wakeup and all of them go on the wire.
	lastEvents []sim.Event
}

// NewHub builds a hub around a fresh world seeded from opts.Seed.
func NewHub(log zerolog.Logger, opts Options) *Hub {
	opts = opts.withDefaults()
	return &Hub{
		opts:      opts,
		log:       log,
		state:     sim.NewState(opts.Seed, nil, *opts.Tuning),
		sessions:  make(map[string]*session),
		journal:   journal.New(opts.JournalFrames, opts.JournalMaxAge),
		telemetry: newTelemetryCounters(),
	}
}

// JoinResponse is the handshake payload for a new player.
type JoinResponse struct {
	Token    string       `json:"token"`
	ShipID   sim.EntityID `json:"shipId"`
	Seed     string       `json:"seed"`
	Tick     uint64       `json:"t"`
	TickRate int          `json:"tickRate"`
	Ver      int          `json:"ver"`
	Tuning   sim.Tuning   `json:"tuning"`
}

// Join registers a player, spawns their ship, and hands back the
// session token the websocket attach authenticates with.
func (h *Hub) Join(name string) JoinResponse {
	token := uuid.NewString()

	h.mu.Lock()
	defer h.mu.Unlock()

	slot := h.nextSlot
	h.nextSlot++
	sess := newSession(token, name, slot, h.opts.InputQueueCap)
	ship := h.state.SpawnShip(token, slot)
	sess.shipID = ship.ID
	h.sessions[token] = sess

	h.log.Info().Str("player", name).Str("token", token).Uint64("ship", uint64(ship.ID)).Msg("player joined")

	return JoinResponse{
		Token:    token,
		ShipID:   ship.ID,
		Seed:     h.opts.Seed,
		Tick:     h.state.Tick,
		TickRate: sim.TickRate,
		Ver:      proto.Version,
		Tuning:   *h.opts.Tuning,
	}
}

// Subscribe attaches a websocket connection to an existing session and
// moves it to Synchronizing; the next broadcast delivers its baseline
// keyframe. A second attach for the same token replaces the first.
func (h *Hub) Subscribe(token string, conn *websocket.Conn) (*session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sess, ok := h.sessions[token]
	if !ok || sess.state == StateDisconnected {
		return nil, false
	}
	if sess.conn != nil {
		sess.conn.Close()
	}
	sess.conn = conn
	sess.state = StateSynchronizing
	sess.needKeyframe = true
	sess.hasAck = false
	sess.lastHeartbeat = time.Now()
	return sess, true
}

// Disconnect tears a session down: the ship despawns with an explicit
// removal marker in the next snapshot and the final score is logged.
func (h *Hub) Disconnect(token string) {
	h.mu.Lock()
	sess, ok := h.sessions[token]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, token)
	sess.state = StateDisconnected
	conn := sess.conn
	sess.conn = nil
	if ev, removed := h.state.RemoveShip(token); removed {
		h.lastEvents = append(h.lastEvents, ev)
	}
	score := h.state.Scores[token]
	h.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	h.log.Info().Str("player", sess.player).Str("token", token).Int("score", score).Msg("player disconnected")
}

// Terminate disconnects everyone and returns the final score sheet.
func (h *Hub) Terminate() map[string]int {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.sessions))
	for token, sess := range h.sessions {
		sess.state = StateDisconnected
		if sess.conn != nil {
			conns = append(conns, sess.conn)
			sess.conn = nil
		}
		delete(h.sessions, token)
	}
	scores := h.state.FinalScores()
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
	return scores
}

// RunSimulation drives the fixed-rate tick loop until stop closes.
// When the loop falls behind it replays up to MaxCatchupTicks ticks in
// one wakeup and abandons the rest; simulated time may lag wall time
// but the timestep never stretches.
func (h *Hub) RunSimulation(stop <-chan struct{}) {
	interval := time.Second / time.Duration(sim.TickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			pending := int(now.Sub(last) / interval)
			if pending < 1 {
				pending = 1
			}
			if pending > h.opts.MaxCatchupTicks {
				h.log.Warn().Int("pending", pending).Int("clamp", h.opts.MaxCatchupTicks).Msg("tick loop behind, clamping catchup")
				pending = h.opts.MaxCatchupTicks
			}
			last = now

			for i := 0; i < pending; i++ {
				start := time.Now()
				h.advanceTick(now)
				h.telemetry.RecordTick(time.Since(start))
			}
			h.broadcast(now)
		}
	}
}

// advanceTick applies queued inputs, steps the world once, and records
// the resulting keyframe in the journal.
func (h *Hub) advanceTick(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	stale := make([]*session, 0)
	inputs := make(map[sim.EntityID]sim.Input, len(h.sessions))
	for token, sess := range h.sessions {
		if now.Sub(sess.lastHeartbeat) > h.opts.DisconnectAfter {
			stale = append(stale, sess)
			delete(h.sessions, token)
			continue
		}
		if _, err := h.state.Entity(sess.shipID); err == nil {
			inputs[sess.shipID] = sess.drainInput()
		}
	}

	h.lastEvents = append(h.lastEvents, sim.Advance(h.state, inputs)...)

	snapshot := make(map[sim.EntityID]sim.Entity, len(h.state.Entities))
	for id, ent := range h.state.Entities {
		snapshot[id] = *ent
	}
	journal.Record(h.journal, h.state.Tick, 0, snapshot, h.state.Scores)
	size, oldest, newest := h.journal.Window()
	h.telemetry.RecordJournalWindow(size, oldest, newest)

	for _, sess := range stale {
		sess.state = StateDisconnected
		if ev, removed := h.state.RemoveShip(sess.token); removed {
			h.lastEvents = append(h.lastEvents, ev)
		}
		if sess.conn != nil {
			sess.conn.Close()
			sess.conn = nil
		}
		h.log.Warn().Str("player", sess.player).Msg("heartbeat timeout")
	}
}

// broadcast sends each attached session its snapshot for the current
// tick: a keyframe when it has no usable baseline or the cadence is
// due, otherwise a delta against its acknowledged tick.
func (h *Hub) broadcast(now time.Time) {
	h.mu.Lock()

	tick := h.state.Tick
	filter := interestFilter{
		radius: h.opts.InterestRadius,
		width:  h.opts.Tuning.WorldWidth,
		height: h.opts.Tuning.WorldHeight,
	}
	current := make(map[sim.EntityID]sim.Entity, len(h.state.Entities))
	for id, ent := range h.state.Entities {
		current[id] = *ent
	}
	scores := make(map[string]int, len(h.state.Scores))
	for player, score := range h.state.Scores {
		scores[player] = score
	}
	events := append([]sim.Event(nil), h.lastEvents...)
	h.lastEvents = nil

	type outbound struct {
		sess     *session
		payload  []byte
		keyframe bool
	}
	sends := make([]outbound, 0, len(h.sessions))

	for _, sess := range h.sessions {
		if sess.conn == nil || (sess.state != StateSynchronizing && sess.state != StateConnected) {
			continue
		}

		center, hasCenter := sim.Vec2{}, false
		if ship, err := h.state.Entity(sess.shipID); err == nil {
			center, hasCenter = ship.Pos, true
		}
		visible := filter.filter(current, center, hasCenter)

		keyframe := sess.needKeyframe || !sess.hasAck
		var base journal.Frame
		if !keyframe {
			if h.opts.KeyframeIntervalTicks > 0 && tick-sess.ackTick >= h.opts.KeyframeIntervalTicks {
				keyframe = true
			} else if frame, ok := h.journal.ByTick(sess.ackTick); ok {
				base = frame
			} else {
				// Ack fell off the retention window; resync.
				keyframe = true
				h.telemetry.RecordResync()
			}
		}

		var payload []byte
		var err error
		if keyframe {
			payload, err = h.encodeKeyframeLocked(sess, tick, now, visible, scores, events)
		} else {
			baseVisible := filter.filter(base.Entities, center, hasCenter)
			patches, removed := proto.Diff(baseVisible, visible)
			payload, err = proto.EncodeDelta(proto.Delta{
				Tick:     tick,
				BaseTick: base.Tick,
				Seq:      sess.nextSeq(),
				Patches:  patches,
				Removed:  removed,
				Scores:   scores,
				Events:   events,
			})
		}
		if err != nil {
			h.log.Error().Err(err).Str("player", sess.player).Msg("encode snapshot")
			continue
		}
		if keyframe {
			sess.needKeyframe = false
			sess.state = StateConnected
		}
		sends = append(sends, outbound{sess: sess, payload: payload, keyframe: keyframe})
	}
	h.mu.Unlock()

	for _, out := range sends {
		if err := out.sess.write(out.payload, writeWait); err != nil {
			h.log.Warn().Err(err).Str("player", out.sess.player).Msg("snapshot write failed")
			h.Disconnect(out.sess.token)
			continue
		}
		h.telemetry.RecordSend(len(out.payload), out.keyframe)
	}
}

func (h *Hub) encodeKeyframeLocked(sess *session, tick uint64, now time.Time, visible map[sim.EntityID]sim.Entity, scores map[string]int, events []sim.Event) ([]byte, error) {
	ids := make([]sim.EntityID, 0, len(visible))
	for id := range visible {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	entities := make([]proto.EntityState, 0, len(ids))
	for _, id := range ids {
		entities = append(entities, visible[id])
	}
	return proto.EncodeKeyframe(proto.Keyframe{
		Tick:       tick,
		Seq:        sess.nextSeq(),
		ServerTime: now.UnixMilli(),
		Entities:   entities,
		Scores:     scores,
		Events:     events,
		ShipID:     sess.shipID,
	})
}

// HandleAck records the highest snapshot tick a client has applied. An
// ack for a tick the server has not reached yet is implausible and
// counts as a protocol violation; the return value mirrors
// NoteViolation.
func (h *Hub) HandleAck(token string, tick uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	sess, ok := h.sessions[token]
	if !ok {
		return false
	}
	if tick > h.state.Tick {
		h.telemetry.RecordViolation()
		return sess.noteViolation(h.opts.ViolationLimit)
	}
	sess.recordAck(tick)
	return false
}

// HandleInput queues an input sample for the next tick.
func (h *Hub) HandleInput(token string, seq uint64, in sim.Input) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sess, ok := h.sessions[token]; ok {
		h.telemetry.RecordInputsDropped(sess.pushInput(seq, in))
	}
}

// HandleKeyframeRequest flags the session for a full snapshot on the
// next broadcast.
func (h *Hub) HandleKeyframeRequest(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sess, ok := h.sessions[token]; ok {
		sess.needKeyframe = true
		h.telemetry.RecordKeyframeRequest()
	}
}

// HandleHeartbeat refreshes the session's liveness window and returns
// the measured round trip.
func (h *Hub) HandleHeartbeat(token string, receivedAt time.Time, clientSent int64) (time.Duration, uint64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sess, ok := h.sessions[token]
	if !ok {
		return 0, 0, false
	}
	sess.lastHeartbeat = receivedAt
	if clientSent > 0 {
		sent := time.UnixMilli(clientSent)
		if rtt := receivedAt.Sub(sent); rtt >= 0 {
			sess.lastRTT = rtt
		}
	}
	return sess.lastRTT, h.state.Tick, true
}

// NoteViolation counts a protocol violation against the session and
// reports whether it should be force-disconnected.
func (h *Hub) NoteViolation(token string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.telemetry.RecordViolation()
	if sess, ok := h.sessions[token]; ok {
		return sess.noteViolation(h.opts.ViolationLimit)
	}
	return false
}

// DiagnosticsSnapshot exposes per-session liveness plus the hot-path
// counters for the diagnostics endpoint.
type DiagnosticsSnapshot struct {
	Tick      uint64               `json:"t"`
	Sessions  []diagnosticsSession `json:"sessions"`
	Telemetry telemetrySnapshot    `json:"telemetry"`
}

type diagnosticsSession struct {
	Player        string       `json:"player"`
	State         SessionState `json:"state"`
	ShipID        sim.EntityID `json:"shipId"`
	AckTick       uint64       `json:"ackTick"`
	Violations    int          `json:"violations"`
	LastHeartbeat int64        `json:"lastHeartbeat"`
	RTTMillis     int64        `json:"rtt"`
	Score         int          `json:"score"`
}

// Diagnostics assembles the current diagnostics view.
func (h *Hub) Diagnostics() DiagnosticsSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessions := make([]diagnosticsSession, 0, len(h.sessions))
	for token, sess := range h.sessions {
		sessions = append(sessions, diagnosticsSession{
			Player:        sess.player,
			State:         sess.state,
			ShipID:        sess.shipID,
			AckTick:       sess.ackTick,
			Violations:    sess.violations,
			LastHeartbeat: sess.lastHeartbeat.UnixMilli(),
			RTTMillis:     sess.lastRTT.Milliseconds(),
			Score:         h.state.Scores[token],
		})
	}
	return DiagnosticsSnapshot{
		Tick:      h.state.Tick,
		Sessions:  sessions,
		Telemetry: h.telemetry.Snapshot(),
	}
}
