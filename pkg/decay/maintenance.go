package decay

import (
	"context"
	"math"

	"github.com/kgraphio/tempomem-go/pkg/storage"
)

// applyThreshold is the minimum change in effective weight required for the
// batch pass to write the new value back, avoiding needless updates.
const applyThreshold = 0.01

// Weight distribution band boundaries for Stats.
const (
	highWeightBand = 0.7
	lowWeightBand  = 0.3
)

// PruneResult contains the outcome of a pruning pass.
type PruneResult struct {
	// Pruned is the number of events deleted.
	Pruned int `json:"pruned"`

	// Remaining is the number of events left after pruning.
	Remaining int `json:"remaining"`
}

// Distribution buckets events into weight bands.
type Distribution struct {
	// High counts events with effective weight > 0.7.
	High int `json:"high"`

	// Medium counts events with effective weight in [0.3, 0.7].
	Medium int `json:"medium"`

	// Low counts events with effective weight < 0.3.
	Low int `json:"low"`
}

// Stats is a diagnostic aggregate over the stored event set.
type Stats struct {
	// Total is the number of stored events.
	Total int `json:"total"`

	// AvgWeight is the mean effective weight across all events.
	AvgWeight float64 `json:"avg_weight"`

	// AvgAgeHours is the mean event age in hours.
	AvgAgeHours float64 `json:"avg_age_hours"`

	// Distribution buckets events into high/medium/low weight bands.
	Distribution Distribution `json:"distribution"`
}

// Maintenance applies the decay engine as a batch re-weighting and pruning
// policy over an event store.
//
// Maintenance passes scan the entire event set and are intended to run on a
// periodic background schedule (e.g. once daily), not on the request path.
// They issue single-row updates and deletes only, so they can run
// concurrently with per-user operations under the store's normal
// read/write consistency guarantees.
type Maintenance struct {
	engine *Engine
	events storage.EventStore
}

// NewMaintenance creates a maintenance runner over the given engine and store.
func NewMaintenance(engine *Engine, events storage.EventStore) *Maintenance {
	return &Maintenance{
		engine: engine,
		events: events,
	}
}

// PruneExpired deletes stale and low-value events.
//
// Two passes over the event set:
//  1. Delete every event whose explicit TTL has passed or whose age exceeds
//     the configured hard ceiling.
//  2. Compute the effective weight of each remaining event and delete those
//     below the configured minimum weight.
//
// Returns the number of events pruned and the number remaining.
func (m *Maintenance) PruneExpired(ctx context.Context) (*PruneResult, error) {
	events, err := m.events.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	result := &PruneResult{}
	var remaining []*storage.MemoryEvent
	for _, event := range events {
		if m.engine.Expired(event) {
			if err := m.deleteEvent(ctx, event.ID); err != nil {
				return nil, err
			}
			result.Pruned++
			continue
		}
		remaining = append(remaining, event)
	}

	for _, event := range remaining {
		if m.engine.BelowMinWeight(event) {
			if err := m.deleteEvent(ctx, event.ID); err != nil {
				return nil, err
			}
			result.Pruned++
			continue
		}
		result.Remaining++
	}

	return result, nil
}

// ApplyDecayBatch recomputes the effective weight of every event and persists
// it as the new base weight when the change exceeds a 0.01 threshold.
//
// Note that persisting the decayed value resets the decay reference point:
// an event that has decayed to 0.5 keeps decaying from 0.5, which compounds
// with the next pass. This matches the reinforcement ratchet semantics and
// is deliberate.
//
// Returns the number of events updated.
func (m *Maintenance) ApplyDecayBatch(ctx context.Context) (int, error) {
	events, err := m.events.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, event := range events {
		effective := m.engine.EffectiveWeight(event.CreatedAt, event.BaseWeight, event.ReinforcedCount)
		if math.Abs(effective-event.BaseWeight) <= applyThreshold {
			continue
		}
		event.BaseWeight = effective
		event.UpdatedAt = m.engine.now()
		if err := m.events.Update(ctx, event); err != nil {
			if err == storage.ErrEventNotFound {
				// Deleted concurrently; nothing to re-weight.
				continue
			}
			return updated, err
		}
		updated++
	}

	return updated, nil
}

// Stats computes a diagnostic aggregate over all stored events.
func (m *Maintenance) Stats(ctx context.Context) (*Stats, error) {
	events, err := m.events.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Total: len(events)}
	if len(events) == 0 {
		return stats, nil
	}

	var weightSum, ageSum float64
	for _, event := range events {
		weight := m.engine.EffectiveWeight(event.CreatedAt, event.BaseWeight, event.ReinforcedCount)
		weightSum += weight
		ageSum += m.engine.ageHours(event.CreatedAt)

		switch {
		case weight > highWeightBand:
			stats.Distribution.High++
		case weight < lowWeightBand:
			stats.Distribution.Low++
		default:
			stats.Distribution.Medium++
		}
	}

	stats.AvgWeight = weightSum / float64(len(events))
	stats.AvgAgeHours = ageSum / float64(len(events))
	return stats, nil
}

// deleteEvent removes an event, tolerating concurrent deletion.
func (m *Maintenance) deleteEvent(ctx context.Context, id int64) error {
	if err := m.events.Delete(ctx, id); err != nil && err != storage.ErrEventNotFound {
		return err
	}
	return nil
}
