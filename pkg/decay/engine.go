// Package decay implements temporal weight decay for memory events.
//
// The package provides:
//   - Exponential half-life decay of stored event weights
//   - Reinforcement with diminishing returns on repeated access
//   - Batch re-weighting and pruning over the full event set
//   - Diagnostic aggregates over the weight distribution
package decay

import (
	"math"
	"time"

	"github.com/kgraphio/tempomem-go/pkg/storage"
)

const (
	// DefaultHalfLifeHours is the time for a weight to decay to 50% (1 week).
	DefaultHalfLifeHours = 168.0

	// DefaultReinforcementBoost is the multiplicative bonus scale per reinforcement.
	DefaultReinforcementBoost = 0.2

	// DefaultMinWeight is the effective weight floor below which an event
	// becomes eligible for pruning.
	DefaultMinWeight = 0.1

	// DefaultMaxAgeHours is the hard age ceiling regardless of weight (90 days).
	DefaultMaxAgeHours = 2160.0

	// maxBaseWeight caps the stored base weight reachable through reinforcement.
	maxBaseWeight = 2.0

	// reinforceFactor is the multiplier applied to the current effective
	// weight when an event is reinforced.
	reinforceFactor = 1.1
)

// Config contains configuration for the decay engine.
//
// Zero values are replaced by the package defaults, so an empty Config is a
// valid starting point.
type Config struct {
	// HalfLifeHours is the time for a weight to decay to 50%.
	// Default: 168 (1 week).
	HalfLifeHours float64 `json:"half_life_hours,omitempty"`

	// ReinforcementBoost is the multiplicative bonus scale per reinforcement.
	// Default: 0.2.
	ReinforcementBoost float64 `json:"reinforcement_boost,omitempty"`

	// MinWeight is the effective weight floor below which an event is
	// eligible for pruning. Default: 0.1.
	MinWeight float64 `json:"min_weight,omitempty"`

	// MaxAgeHours is the hard age ceiling regardless of weight.
	// Default: 2160 (90 days).
	MaxAgeHours float64 `json:"max_age_hours,omitempty"`
}

// withDefaults returns a copy of the config with zero values filled in.
func (c Config) withDefaults() Config {
	if c.HalfLifeHours <= 0 {
		c.HalfLifeHours = DefaultHalfLifeHours
	}
	if c.ReinforcementBoost <= 0 {
		c.ReinforcementBoost = DefaultReinforcementBoost
	}
	if c.MinWeight <= 0 {
		c.MinWeight = DefaultMinWeight
	}
	if c.MaxAgeHours <= 0 {
		c.MaxAgeHours = DefaultMaxAgeHours
	}
	return c
}

// Engine computes effective memory weights from stored event attributes.
//
// All computations are pure functions of (createdAt, baseWeight,
// reinforcedCount, now); the engine holds no mutable state and is safe to
// call from any number of concurrent goroutines without locking. The current
// time is supplied by an injectable clock so tests can pin it.
//
// Example:
//
//	engine := decay.NewEngine(decay.Config{HalfLifeHours: 24})
//	weight := engine.EffectiveWeight(event.CreatedAt, event.BaseWeight, event.ReinforcedCount)
type Engine struct {
	config Config
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithNow overrides the engine's time source. Intended for tests.
//
// Example:
//
//	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
//	engine := decay.NewEngine(decay.Config{}, decay.WithNow(func() time.Time { return fixed }))
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates a decay engine with the given configuration.
//
// Zero config fields fall back to the package defaults.
func NewEngine(cfg Config, opts ...Option) *Engine {
	engine := &Engine{
		config: cfg.withDefaults(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// Config returns the engine's effective configuration (defaults applied).
func (e *Engine) Config() Config {
	return e.config
}

// lambda returns the decay constant derived from the configured half-life.
func (e *Engine) lambda() float64 {
	return math.Ln2 / e.config.HalfLifeHours
}

// ageHours returns the event age in hours at the engine's current time.
func (e *Engine) ageHours(createdAt time.Time) float64 {
	return e.now().Sub(createdAt).Hours()
}

// Decay computes the time-decayed weight of an event.
//
// The formula is:
//
//	weight = baseWeight * e^(-λ * ageHours)
//
// where λ = ln(2) / HalfLifeHours, so a weight halves every half-life.
// The result is floored at 0 and is never negative.
func (e *Engine) Decay(createdAt time.Time, baseWeight float64) float64 {
	age := e.ageHours(createdAt)
	if age < 0 {
		age = 0
	}
	weight := baseWeight * math.Exp(-e.lambda()*age)
	if weight < 0 {
		return 0
	}
	return weight
}

// EffectiveWeight computes the decayed-and-reinforced salience of an event.
//
// The formula is:
//
//	Decay(createdAt, baseWeight) * (1 + ReinforcementBoost * log2(reinforcedCount + 1))
//
// The log2 term gives diminishing returns: the first reinforcement adds a
// full boost increment, each subsequent reinforcement adds progressively less.
func (e *Engine) EffectiveWeight(createdAt time.Time, baseWeight float64, reinforcedCount int) float64 {
	boost := 1.0 + e.config.ReinforcementBoost*math.Log2(float64(reinforcedCount)+1.0)
	return e.Decay(createdAt, baseWeight) * boost
}

// Reinforce boosts an event's stored weight in response to a repeated access.
//
// The event's current effective weight is recomputed, then the stored base
// weight is replaced by:
//
//	min(effectiveWeight * 1.1, 2.0)
//
// and the reinforcement count is incremented. Because the stored base weight
// is replaced by an already-decayed-and-boosted value, repeated reinforcement
// in quick succession ratchets the weight toward the 2.0 cap faster than a
// naive "10% per access" reading suggests. Downstream ranking depends on this
// curve shape; do not "correct" it.
//
// Reinforce mutates the in-memory record only; persisting the updated weight
// fields is the caller's responsibility.
func (e *Engine) Reinforce(event *storage.MemoryEvent) {
	effective := e.EffectiveWeight(event.CreatedAt, event.BaseWeight, event.ReinforcedCount)
	event.BaseWeight = math.Min(effective*reinforceFactor, maxBaseWeight)
	event.ReinforcedCount++
	event.UpdatedAt = e.now()
}

// Expired reports whether an event has passed its explicit TTL or the hard
// age ceiling.
func (e *Engine) Expired(event *storage.MemoryEvent) bool {
	now := e.now()
	if event.ExpiresAt != nil && event.ExpiresAt.Before(now) {
		return true
	}
	return e.ageHours(event.CreatedAt) > e.config.MaxAgeHours
}

// BelowMinWeight reports whether an event's effective weight has fallen
// below the pruning floor.
func (e *Engine) BelowMinWeight(event *storage.MemoryEvent) bool {
	return e.EffectiveWeight(event.CreatedAt, event.BaseWeight, event.ReinforcedCount) < e.config.MinWeight
}
