package sim

// Tuning collects every gameplay constant as configuration. The values
// here are not implied by the protocol, so they live in the tuning file
// rather than in code; the defaults mirror the original game feel.
type Tuning struct {
	WorldWidth  float64 `json:"worldWidth" mapstructure:"world_width" jsonschema:"minimum=1"`
	WorldHeight float64 `json:"worldHeight" mapstructure:"world_height" jsonschema:"minimum=1"`

	ShipRadius       float64 `json:"shipRadius" mapstructure:"ship_radius"`
	ShipHealth       int     `json:"shipHealth" mapstructure:"ship_health"`
	ShipAccel        float64 `json:"shipAccel" mapstructure:"ship_accel"`
	ShipTurnRate     float64 `json:"shipTurnRate" mapstructure:"ship_turn_rate"`
	ShipMaxSpeed     float64 `json:"shipMaxSpeed" mapstructure:"ship_max_speed"`
	ShipGraceTicks   uint32  `json:"shipGraceTicks" mapstructure:"ship_grace_ticks"`
	FireCooldownTick uint32  `json:"fireCooldownTicks" mapstructure:"fire_cooldown_ticks"`

	ProjectileRadius float64 `json:"projectileRadius" mapstructure:"projectile_radius"`
	ProjectileSpeed  float64 `json:"projectileSpeed" mapstructure:"projectile_speed"`
	ProjectileWraps  uint8   `json:"projectileWraps" mapstructure:"projectile_wraps"`

	AsteroidSmallRadius float64 `json:"asteroidSmallRadius" mapstructure:"asteroid_small_radius"`
	AsteroidLargeRadius float64 `json:"asteroidLargeRadius" mapstructure:"asteroid_large_radius"`
	AsteroidWraps       uint8   `json:"asteroidWraps" mapstructure:"asteroid_wraps"`
	AsteroidMaxSpeed    float64 `json:"asteroidMaxSpeed" mapstructure:"asteroid_max_speed"`
	AsteroidLargeChance float64 `json:"asteroidLargeChance" mapstructure:"asteroid_large_chance" jsonschema:"minimum=0,maximum=1"`
	AsteroidGraceTicks  uint32  `json:"asteroidGraceTicks" mapstructure:"asteroid_grace_ticks"`
	SplitCount          int     `json:"splitCount" mapstructure:"split_count"`

	// SpawnIntervalTicks controls the procedural asteroid spawner. Zero
	// disables it, which is how a predicting client replays without
	// inventing asteroids the server never confirmed.
	SpawnIntervalTicks uint64 `json:"spawnIntervalTicks" mapstructure:"spawn_interval_ticks"`

	ScoreLargeAsteroid int `json:"scoreLargeAsteroid" mapstructure:"score_large_asteroid"`
	ScoreSmallAsteroid int `json:"scoreSmallAsteroid" mapstructure:"score_small_asteroid"`
}

// DefaultTuning mirrors the original game constants: 1920x1080 toroidal
// world, 64 Hz timestep, thrust 5 units/tick^2, 3 units/tick speed cap.
func DefaultTuning() Tuning {
	return Tuning{
		WorldWidth:  1920,
		WorldHeight: 1080,

		ShipRadius:       15,
		ShipHealth:       3,
		ShipAccel:        5.0,
		ShipTurnRate:     8.0,
		ShipMaxSpeed:     3.0,
		ShipGraceTicks:   64,
		FireCooldownTick: 32,

		ProjectileRadius: 10,
		ProjectileSpeed:  10.0,
		ProjectileWraps:  1,

		AsteroidSmallRadius: 20,
		AsteroidLargeRadius: 50,
		AsteroidWraps:       5,
		AsteroidMaxSpeed:    3.0,
		AsteroidLargeChance: 0.2,
		AsteroidGraceTicks:  64,
		SplitCount:          2,

		SpawnIntervalTicks: 64,

		ScoreLargeAsteroid: 25,
		ScoreSmallAsteroid: 10,
	}
}

// TickRate is the fixed simulation frequency in Hz. The timestep itself
// is not tunable: prediction and reconciliation replay server ticks
// one-for-one, so both ends must agree on it at compile time.
const TickRate = 64

// TickSeconds is the fixed timestep applied on every Advance call.
const TickSeconds = 1.0 / float64(TickRate)
