package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bstrzelecki/asteroids-server/internal/sim"
)

// SessionState tracks where a client sits in the replication lifecycle.
type SessionState string

const (
	// StateConnecting covers the window between /join and the websocket
	// attach. No snapshots flow yet.
	StateConnecting SessionState = "connecting"
	// StateSynchronizing means the transport is up but the client has no
	// baseline; the next broadcast must be a keyframe.
	StateSynchronizing SessionState = "synchronizing"
	// StateConnected is steady state: deltas against the acked tick,
	// keyframes on cadence or on demand.
	StateConnected SessionState = "connected"
	// StateDisconnected is terminal for this session; a returning player
	// joins again from scratch.
	StateDisconnected SessionState = "disconnected"
)

type queuedInput struct {
	seq   uint64
	input sim.Input
}

// session is the hub's view of one client. Mutable fields are guarded
// by the hub mutex; conn writes additionally serialize on writeMu so
// the tick broadcast and the reader's heartbeat acks never interleave.
type session struct {
	token  string
	player string
	slot   int

	conn    *websocket.Conn
	writeMu sync.Mutex

	state  SessionState
	shipID sim.EntityID

	queue        []queuedInput
	queueCap     int
	lastInput    sim.Input
	lastInputSeq uint64

	ackTick uint64
	hasAck  bool

	sendSeq      uint64
	needKeyframe bool

	violations    int
	lastHeartbeat time.Time
	lastRTT       time.Duration
}

func newSession(token, player string, slot, queueCap int) *session {
	if queueCap < 1 {
		queueCap = 1
	}
	return &session{
		token:         token,
		player:        player,
		slot:          slot,
		state:         StateConnecting,
		queue:         make([]queuedInput, 0, queueCap),
		queueCap:      queueCap,
		needKeyframe:  true,
		lastHeartbeat: time.Now(),
	}
}

// pushInput enqueues an input sample, dropping the oldest pending entry
// when the bounded queue is full. Samples older than one already seen
// are discarded; the transport may reorder. Returns how many entries
// were dropped to make room.
func (s *session) pushInput(seq uint64, in sim.Input) int {
	if seq != 0 && seq <= s.lastInputSeq {
		return 0
	}
	s.lastInputSeq = seq
	dropped := 0
	for len(s.queue) >= s.queueCap {
		copy(s.queue, s.queue[1:])
		s.queue = s.queue[:len(s.queue)-1]
		dropped++
	}
	s.queue = append(s.queue, queuedInput{seq: seq, input: in})
	return dropped
}

// drainInput consumes the pending queue and returns the input to apply
// this tick. With nothing queued the last known input repeats; a ship
// that goes quiet keeps doing what it was doing.
func (s *session) drainInput() sim.Input {
	if len(s.queue) > 0 {
		s.lastInput = s.queue[len(s.queue)-1].input
		s.queue = s.queue[:0]
	}
	return s.lastInput
}

// recordAck moves the acknowledged tick forward. Regressions are
// ignored; acks are fire-and-forget and may arrive out of order.
func (s *session) recordAck(tick uint64) {
	if s.hasAck && tick <= s.ackTick {
		return
	}
	s.ackTick = tick
	s.hasAck = true
}

// noteViolation counts a protocol violation and reports whether the
// session crossed the disconnect threshold.
func (s *session) noteViolation(limit int) bool {
	s.violations++
	return limit > 0 && s.violations >= limit
}

func (s *session) nextSeq() uint64 {
	s.sendSeq++
	return s.sendSeq
}

// write sends one prepared frame under the write lock with a deadline.
func (s *session) write(payload []byte, deadline time.Duration) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.conn == nil {
		return websocket.ErrCloseSent
	}
	s.conn.SetWriteDeadline(time.Now().Add(deadline))
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}
