package sim

// EventKind identifies a discrete gameplay event emitted by a tick.
type EventKind string

const (
	EventSpawn   EventKind = "spawn"
	EventDespawn EventKind = "despawn"
	EventDamage  EventKind = "damage"
	EventScore   EventKind = "score"
)

// Event is a one-shot gameplay notification. Presentation collaborators
// (particles, audio, HUD) consume these; the simulation never calls out.
type Event struct {
	Tick    uint64     `json:"t"`
	Kind    EventKind  `json:"kind"`
	Entity  EntityID   `json:"entityId,omitempty"`
	Other   EntityID   `json:"otherId,omitempty"`
	Variant EntityKind `json:"variant,omitempty"`
	Pos     Vec2       `json:"pos,omitempty"`
	Player  string     `json:"player,omitempty"`
	Points  int        `json:"points,omitempty"`
}
