package proto

import (
	"fmt"
	"sort"

	"github.com/bstrzelecki/asteroids-server/internal/sim"
)

// PatchKind identifies which entity fields a diff entry carries.
type PatchKind string

const (
	// PatchSpawned introduces an entity the reference state lacked; the
	// payload is the complete record.
	PatchSpawned PatchKind = "spawned"
	// PatchPos updates position only.
	PatchPos PatchKind = "pos"
	// PatchMotion updates velocity and heading.
	PatchMotion PatchKind = "motion"
	// PatchStatus updates health, cooldown, and grace.
	PatchStatus PatchKind = "status"
)

// Patch is one diff entry. Exactly one payload pointer is set,
// matching Kind; typed pointers keep client-side application free of
// any-to-struct conversions.
type Patch struct {
	Kind   PatchKind      `json:"kind"`
	Entity sim.EntityID   `json:"entityId"`
	Pos    *PosPayload    `json:"pos,omitempty"`
	Motion *MotionPayload `json:"motion,omitempty"`
	Status *StatusPayload `json:"status,omitempty"`
	Spawn  *EntityState   `json:"spawn,omitempty"`
}

// PosPayload carries the wrapped world position.
type PosPayload struct {
	Pos   sim.Vec2 `json:"pos"`
	Wraps uint8    `json:"wraps,omitempty"`
}

// MotionPayload carries velocity and orientation.
type MotionPayload struct {
	Vel     sim.Vec2 `json:"vel"`
	Heading float64  `json:"heading"`
}

// StatusPayload carries the slow-moving ship fields.
type StatusPayload struct {
	Health   int    `json:"health"`
	Cooldown uint32 `json:"cooldown"`
	Grace    uint32 `json:"grace"`
}

// Diff computes the patch list and removal markers that transform base
// into current. Both maps hold entity values keyed by ID; output is
// ordered by EntityID, with per-entity patches in a fixed kind order,
// so encoding is deterministic.
func Diff(base, current map[sim.EntityID]EntityState) ([]Patch, []sim.EntityID) {
	ids := make([]sim.EntityID, 0, len(current))
	for id := range current {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	patches := make([]Patch, 0)
	for _, id := range ids {
		now := current[id]
		before, existed := base[id]
		if !existed {
			spawn := now
			patches = append(patches, Patch{Kind: PatchSpawned, Entity: id, Spawn: &spawn})
			continue
		}
		if before.Pos != now.Pos || before.Wraps != now.Wraps {
			patches = append(patches, Patch{
				Kind:   PatchPos,
				Entity: id,
				Pos:    &PosPayload{Pos: now.Pos, Wraps: now.Wraps},
			})
		}
		if before.Vel != now.Vel || before.Heading != now.Heading {
			patches = append(patches, Patch{
				Kind:   PatchMotion,
				Entity: id,
				Motion: &MotionPayload{Vel: now.Vel, Heading: now.Heading},
			})
		}
		if before.Health != now.Health || before.Cooldown != now.Cooldown || before.Grace != now.Grace {
			patches = append(patches, Patch{
				Kind:   PatchStatus,
				Entity: id,
				Status: &StatusPayload{Health: now.Health, Cooldown: now.Cooldown, Grace: now.Grace},
			})
		}
	}

	removed := make([]sim.EntityID, 0)
	for id := range base {
		if _, ok := current[id]; !ok {
			removed = append(removed, id)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
	return patches, removed
}

// Apply replays a delta onto the entity view in place. Patches for
// unknown entities are an error except spawns; the caller treats that
// as a gap and requests a keyframe.
func Apply(view map[sim.EntityID]EntityState, patches []Patch, removed []sim.EntityID) error {
	for _, patch := range patches {
		switch patch.Kind {
		case PatchSpawned:
			if patch.Spawn == nil {
				return fmt.Errorf("proto: spawned patch for %d without payload", patch.Entity)
			}
			view[patch.Entity] = *patch.Spawn
		case PatchPos:
			ent, ok := view[patch.Entity]
			if !ok {
				return fmt.Errorf("proto: pos patch for unknown entity %d", patch.Entity)
			}
			if patch.Pos == nil {
				return fmt.Errorf("proto: pos patch for %d without payload", patch.Entity)
			}
			ent.Pos = patch.Pos.Pos
			ent.Wraps = patch.Pos.Wraps
			view[patch.Entity] = ent
		case PatchMotion:
			ent, ok := view[patch.Entity]
			if !ok {
				return fmt.Errorf("proto: motion patch for unknown entity %d", patch.Entity)
			}
			if patch.Motion == nil {
				return fmt.Errorf("proto: motion patch for %d without payload", patch.Entity)
			}
			ent.Vel = patch.Motion.Vel
			ent.Heading = patch.Motion.Heading
			view[patch.Entity] = ent
		case PatchStatus:
			ent, ok := view[patch.Entity]
			if !ok {
				return fmt.Errorf("proto: status patch for unknown entity %d", patch.Entity)
			}
			if patch.Status == nil {
				return fmt.Errorf("proto: status patch for %d without payload", patch.Entity)
			}
			ent.Health = patch.Status.Health
			ent.Cooldown = patch.Status.Cooldown
			ent.Grace = patch.Status.Grace
			view[patch.Entity] = ent
		default:
			return fmt.Errorf("proto: unsupported patch kind %q", patch.Kind)
		}
	}
	for _, id := range removed {
		delete(view, id)
	}
	return nil
}
