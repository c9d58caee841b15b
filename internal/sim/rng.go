package sim

import "hash/fnv"

// RNG is a small value-type xorshift64* generator. Unlike math/rand.Rand
// its full state is a single copyable word, which lets State.Clone carry
// the generator along for rollback-and-replay without re-seeding.
type RNG struct {
	state uint64
}

// DeterministicSeedValue hashes a root seed and a stream label into a
// non-zero seed word. Separate labels give independent streams from one
// match seed.
func DeterministicSeedValue(rootSeed, label string) uint64 {
	hasher := fnv.New64a()
	hasher.Write([]byte(rootSeed))
	hasher.Write([]byte{0})
	hasher.Write([]byte(label))
	sum := hasher.Sum64()
	if sum == 0 {
		sum = 1
	}
	return sum
}

// NewRNG derives a labelled stream from the match root seed.
func NewRNG(rootSeed, label string) RNG {
	return RNG{state: DeterministicSeedValue(rootSeed, label)}
}

// Uint64 advances the stream and returns the next word.
func (r *RNG) Uint64() uint64 {
	x := r.state
	x ^= x >> 12
	x ^= x << 25
	x ^= x >> 27
	r.state = x
	return x * 0x2545F4914F6CDD1D
}

// Float64 returns a uniformly distributed value in [0, 1).
func (r *RNG) Float64() float64 {
	return float64(r.Uint64()>>11) / (1 << 53)
}

// Range returns a uniformly distributed value in [min, max).
func (r *RNG) Range(min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + r.Float64()*(max-min)
}

// Bool returns true with probability p.
func (r *RNG) Bool(p float64) bool {
	return r.Float64() < p
}
