package decay_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgraphio/tempomem-go/pkg/decay"
	"github.com/kgraphio/tempomem-go/pkg/storage"
)

func fixedEngine(now time.Time, cfg decay.Config) *decay.Engine {
	return decay.NewEngine(cfg, decay.WithNow(func() time.Time { return now }))
}

func TestNewEngineDefaults(t *testing.T) {
	engine := decay.NewEngine(decay.Config{})
	require.NotNil(t, engine)

	config := engine.Config()
	assert.Equal(t, decay.DefaultHalfLifeHours, config.HalfLifeHours)
	assert.Equal(t, decay.DefaultReinforcementBoost, config.ReinforcementBoost)
	assert.Equal(t, decay.DefaultMinWeight, config.MinWeight)
	assert.Equal(t, decay.DefaultMaxAgeHours, config.MaxAgeHours)
}

func TestDecayFreshEventIsFullWeight(t *testing.T) {
	now := time.Now()
	engine := fixedEngine(now, decay.Config{})

	weight := engine.Decay(now, 1.0)
	assert.InDelta(t, 1.0, weight, 1e-9, "No time elapsed means no decay")
}

func TestDecayHalfLife(t *testing.T) {
	now := time.Now()
	engine := fixedEngine(now, decay.Config{})

	// One half-life back, the weight should be exactly halved.
	createdAt := now.Add(-time.Duration(decay.DefaultHalfLifeHours * float64(time.Hour)))
	weight := engine.Decay(createdAt, 1.0)
	assert.InDelta(t, 0.5, weight, 1e-6)

	// Two half-lives back, quartered.
	createdAt = now.Add(-2 * time.Duration(decay.DefaultHalfLifeHours*float64(time.Hour)))
	weight = engine.Decay(createdAt, 1.0)
	assert.InDelta(t, 0.25, weight, 1e-6)
}

func TestDecayMonotonicInAge(t *testing.T) {
	now := time.Now()
	engine := fixedEngine(now, decay.Config{})

	previous := engine.Decay(now, 1.0)
	for _, hours := range []float64{1, 6, 24, 168, 720, 2160} {
		weight := engine.Decay(now.Add(-time.Duration(hours*float64(time.Hour))), 1.0)
		assert.Less(t, weight, previous, "Weight should strictly decrease with age (%v hours)", hours)
		assert.Greater(t, weight, 0.0)
		previous = weight
	}
}

func TestDecayFutureTimestampClamped(t *testing.T) {
	now := time.Now()
	engine := fixedEngine(now, decay.Config{})

	// Clock skew: created "in the future" must not inflate the weight.
	weight := engine.Decay(now.Add(time.Hour), 1.0)
	assert.InDelta(t, 1.0, weight, 1e-9)
}

func TestEffectiveWeightDiminishingReturns(t *testing.T) {
	now := time.Now()
	engine := fixedEngine(now, decay.Config{})

	createdAt := now.Add(-24 * time.Hour)
	w0 := engine.EffectiveWeight(createdAt, 1.0, 0)
	w1 := engine.EffectiveWeight(createdAt, 1.0, 1)
	w2 := engine.EffectiveWeight(createdAt, 1.0, 2)
	w3 := engine.EffectiveWeight(createdAt, 1.0, 3)

	assert.Less(t, w0, w1, "Reinforcement should increase weight")
	assert.Less(t, w1, w2)
	assert.Less(t, w2, w3)

	// Each extra reinforcement is worth less than the previous one.
	assert.Greater(t, w1-w0, w2-w1)
	assert.Greater(t, w2-w1, w3-w2)
}

func TestEffectiveWeightZeroCountEqualsDecay(t *testing.T) {
	now := time.Now()
	engine := fixedEngine(now, decay.Config{})

	createdAt := now.Add(-100 * time.Hour)
	assert.Equal(t, engine.Decay(createdAt, 1.0), engine.EffectiveWeight(createdAt, 1.0, 0))
}

func TestReinforceRatchet(t *testing.T) {
	now := time.Now()
	engine := fixedEngine(now, decay.Config{})

	event := &storage.MemoryEvent{
		BaseWeight: 1.0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	engine.Reinforce(event)
	assert.Equal(t, 1, event.ReinforcedCount)
	// Fresh event: effective weight 1.0, ratcheted by 10%.
	assert.InDelta(t, 1.1, event.BaseWeight, 1e-6)

	engine.Reinforce(event)
	assert.Equal(t, 2, event.ReinforcedCount)
	assert.Greater(t, event.BaseWeight, 1.1)
}

func TestReinforceBaseWeightCap(t *testing.T) {
	now := time.Now()
	engine := fixedEngine(now, decay.Config{})

	event := &storage.MemoryEvent{
		BaseWeight: 1.0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for i := 0; i < 50; i++ {
		engine.Reinforce(event)
	}

	assert.LessOrEqual(t, event.BaseWeight, 2.0, "Base weight must never exceed the cap")
	assert.Equal(t, 50, event.ReinforcedCount)
}

func TestExpired(t *testing.T) {
	now := time.Now()
	engine := fixedEngine(now, decay.Config{})

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.True(t, engine.Expired(&storage.MemoryEvent{CreatedAt: now, ExpiresAt: &past}))
	assert.False(t, engine.Expired(&storage.MemoryEvent{CreatedAt: now, ExpiresAt: &future}))

	// No explicit expiry: the maximum-age policy applies.
	tooOld := now.Add(-time.Duration((decay.DefaultMaxAgeHours + 1) * float64(time.Hour)))
	assert.True(t, engine.Expired(&storage.MemoryEvent{CreatedAt: tooOld}))
	assert.False(t, engine.Expired(&storage.MemoryEvent{CreatedAt: now}))
}

func TestBelowMinWeight(t *testing.T) {
	now := time.Now()
	engine := fixedEngine(now, decay.Config{})

	// 600 hours is over three half-lives: weight well under 0.1.
	old := &storage.MemoryEvent{BaseWeight: 1.0, CreatedAt: now.Add(-600 * time.Hour)}
	assert.True(t, engine.BelowMinWeight(old))

	fresh := &storage.MemoryEvent{BaseWeight: 1.0, CreatedAt: now}
	assert.False(t, engine.BelowMinWeight(fresh))
}

func TestCustomHalfLife(t *testing.T) {
	now := time.Now()
	engine := fixedEngine(now, decay.Config{HalfLifeHours: 24})

	weight := engine.Decay(now.Add(-24*time.Hour), 1.0)
	assert.InDelta(t, 0.5, weight, 1e-6)
}
