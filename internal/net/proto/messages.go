// Package proto defines the versioned wire format between the
// authoritative hub and predicting clients. Every message carries the
// protocol revision, the tick it corresponds to, and a sequence number;
// receivers discard anything stale or from an unknown revision.
package proto

import (
	"encoding/json"
	"fmt"

	"github.com/bstrzelecki/asteroids-server/internal/sim"
)

// Version tracks the wire-protocol revision expected by clients.
const Version = 1

// Client message type identifiers.
const (
	TypeInput       = "input"
	TypeAck         = "ack"
	TypeHeartbeat   = "heartbeat"
	TypeKeyframeReq = "keyframeRequest"
)

// Server message type identifiers.
const (
	TypeKeyframe = "keyframe"
	TypeDelta    = "delta"
)

// ErrVersionMismatch reports a payload from an unknown protocol
// revision. It counts as a protocol violation.
var ErrVersionMismatch = fmt.Errorf("proto: unsupported protocol version")

// ClientMessage captures an inbound message from the client. A single
// struct covers every client payload kind, mirroring how small the
// upstream direction is.
type ClientMessage struct {
	Ver    int     `json:"ver,omitempty"`
	Type   string  `json:"type"`
	Seq    uint64  `json:"seq,omitempty"`
	Tick   uint64  `json:"t,omitempty"`
	Thrust bool    `json:"thrust,omitempty"`
	Turn   float64 `json:"turn,omitempty"`
	Fire   bool    `json:"fire,omitempty"`
	SentAt int64   `json:"sentAt,omitempty"`
}

// DecodeClientMessage converts a raw payload into a structured message,
// rejecting unknown protocol revisions.
func DecodeClientMessage(payload []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, fmt.Errorf("proto: decode client message: %w", err)
	}
	if msg.Ver == 0 {
		msg.Ver = Version
	}
	if msg.Ver != Version {
		return msg, fmt.Errorf("%w: %d", ErrVersionMismatch, msg.Ver)
	}
	return msg, nil
}

// Input extracts the simulation input carried by an input message.
func (m ClientMessage) Input() sim.Input {
	return sim.Input{Thrust: m.Thrust, Turn: m.Turn, Fire: m.Fire}.Normalized()
}

// EncodeInput renders an input message for the given client tick.
func EncodeInput(tick, seq uint64, in sim.Input) ([]byte, error) {
	return json.Marshal(ClientMessage{
		Ver:    Version,
		Type:   TypeInput,
		Seq:    seq,
		Tick:   tick,
		Thrust: in.Thrust,
		Turn:   in.Turn,
		Fire:   in.Fire,
	})
}

// EncodeAck renders a fire-and-forget acknowledgment of the highest
// applied snapshot tick.
func EncodeAck(tick, seq uint64) ([]byte, error) {
	return json.Marshal(ClientMessage{Ver: Version, Type: TypeAck, Seq: seq, Tick: tick})
}

// EncodeKeyframeRequest asks the hub for a fresh full snapshot.
func EncodeKeyframeRequest(seq uint64) ([]byte, error) {
	return json.Marshal(ClientMessage{Ver: Version, Type: TypeKeyframeReq, Seq: seq})
}

// EncodeHeartbeat renders the client half of the RTT/offset exchange.
func EncodeHeartbeat(seq uint64, sentAt int64) ([]byte, error) {
	return json.Marshal(ClientMessage{Ver: Version, Type: TypeHeartbeat, Seq: seq, SentAt: sentAt})
}

// EntityState is the wire form of one entity. It is a plain copy of the
// simulation record; versioning happens at the envelope.
type EntityState = sim.Entity

// Keyframe is a full snapshot of a client's interest set at one tick.
// It supersedes all previously applied state.
type Keyframe struct {
	Ver        int            `json:"ver"`
	Type       string         `json:"type"`
	Tick       uint64         `json:"t"`
	Seq        uint64         `json:"seq"`
	ServerTime int64          `json:"serverTime"`
	Entities   []EntityState  `json:"entities"`
	Scores     map[string]int `json:"scores,omitempty"`
	Events     []sim.Event    `json:"events,omitempty"`
	ShipID     sim.EntityID   `json:"shipId,omitempty"`
}

// EncodeKeyframe renders a keyframe message.
func EncodeKeyframe(msg Keyframe) ([]byte, error) {
	msg.Ver = Version
	msg.Type = TypeKeyframe
	return json.Marshal(msg)
}

// Delta carries only what changed between the reference tick (the last
// tick the client acknowledged) and the current one. Removals are
// explicit markers; absence never implies despawn.
type Delta struct {
	Ver      int            `json:"ver"`
	Type     string         `json:"type"`
	Tick     uint64         `json:"t"`
	BaseTick uint64         `json:"baseTick"`
	Seq      uint64         `json:"seq"`
	Patches  []Patch        `json:"patches"`
	Removed  []sim.EntityID `json:"removed,omitempty"`
	Scores   map[string]int `json:"scores,omitempty"`
	Events   []sim.Event    `json:"events,omitempty"`
}

// EncodeDelta renders a delta snapshot message.
func EncodeDelta(msg Delta) ([]byte, error) {
	msg.Ver = Version
	msg.Type = TypeDelta
	return json.Marshal(msg)
}

// DecodeKeyframe parses a keyframe payload.
func DecodeKeyframe(payload []byte) (Keyframe, error) {
	var msg Keyframe
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, fmt.Errorf("proto: decode keyframe: %w", err)
	}
	if msg.Ver != Version {
		return msg, fmt.Errorf("%w: %d", ErrVersionMismatch, msg.Ver)
	}
	return msg, nil
}

// DecodeDelta parses a delta payload.
func DecodeDelta(payload []byte) (Delta, error) {
	var msg Delta
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, fmt.Errorf("proto: decode delta: %w", err)
	}
	if msg.Ver != Version {
		return msg, fmt.Errorf("%w: %d", ErrVersionMismatch, msg.Ver)
	}
	return msg, nil
}

// HeartbeatAck is the server half of the heartbeat exchange. The tick
// lets the client keep its server-tick offset estimate current.
type HeartbeatAck struct {
	Ver        int    `json:"ver"`
	Type       string `json:"type"`
	Tick       uint64 `json:"t"`
	ServerTime int64  `json:"serverTime"`
	ClientTime int64  `json:"clientTime"`
	RTTMillis  int64  `json:"rtt"`
}

// EncodeHeartbeatAck renders a heartbeat acknowledgment.
func EncodeHeartbeatAck(msg HeartbeatAck) ([]byte, error) {
	msg.Ver = Version
	msg.Type = TypeHeartbeat
	return json.Marshal(msg)
}

// ServerEnvelope is the minimal header decoded first to dispatch on the
// payload kind.
type ServerEnvelope struct {
	Ver  int    `json:"ver"`
	Type string `json:"type"`
	Tick uint64 `json:"t"`
	Seq  uint64 `json:"seq"`
}

// DecodeServerEnvelope peeks at a server payload's header.
func DecodeServerEnvelope(payload []byte) (ServerEnvelope, error) {
	var env ServerEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return env, fmt.Errorf("proto: decode envelope: %w", err)
	}
	if env.Ver != Version {
		return env, fmt.Errorf("%w: %d", ErrVersionMismatch, env.Ver)
	}
	return env, nil
}
