package sim

// EntityID is a stable, network-visible identifier. The server allocates
// IDs from a monotonic counter and never reuses one within a match.
type EntityID uint64

// EntityKind tags the variant stored in an Entity.
type EntityKind string

const (
	KindShip       EntityKind = "ship"
	KindAsteroid   EntityKind = "asteroid"
	KindProjectile EntityKind = "projectile"
)

// AsteroidTier enumerates the two asteroid sizes.
type AsteroidTier string

const (
	TierSmall AsteroidTier = "small"
	TierLarge AsteroidTier = "large"
)

// Entity is the tagged-variant record stored in the world arena. Variant
// fields are flat rather than nested so snapshots and deltas stay cheap
// to copy and compare.
type Entity struct {
	ID      EntityID   `json:"id"`
	Kind    EntityKind `json:"kind"`
	Pos     Vec2       `json:"pos"`
	Vel     Vec2       `json:"vel"`
	Heading float64    `json:"heading"`
	Radius  float64    `json:"radius"`
	Health  int        `json:"health"`

	// Ship and projectile ownership. Ships carry the controlling player
	// ID; projectiles carry the player whose ship fired them.
	Owner string `json:"owner,omitempty"`

	// Ship-only: ticks until the next shot is allowed and remaining
	// damage-grace ticks after a hit.
	Cooldown uint32 `json:"cooldown,omitempty"`
	Grace    uint32 `json:"grace,omitempty"`

	// Asteroid-only.
	Tier AsteroidTier `json:"tier,omitempty"`

	// Lifetime bookkeeping: entities expire once they have wrapped
	// around the world WrapLimit times. A zero limit means no expiry.
	Wraps     uint8 `json:"wraps,omitempty"`
	WrapLimit uint8 `json:"wrapLimit,omitempty"`
}

// Alive reports whether the entity should remain in the arena.
func (e *Entity) Alive() bool {
	if e == nil {
		return false
	}
	if e.WrapLimit > 0 && e.Wraps >= e.WrapLimit {
		return false
	}
	return e.Health > 0
}

// Collidable reports whether the entity currently participates in
// collision resolution. Freshly split asteroids sit out their post-spawn
// grace window so they do not instantly re-collide at the split point.
func (e *Entity) Collidable() bool {
	if e == nil {
		return false
	}
	if e.Kind == KindAsteroid && e.Grace > 0 {
		return false
	}
	return true
}
