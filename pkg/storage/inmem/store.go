// Package inmem provides a map-backed implementation of the event and profile stores.
//
// The in-memory store is intended for embedded single-process deployments and
// for isolated tests that need a backend without a database dependency. All
// operations copy records on the way in and out, so callers can never observe
// a partially-written event.
package inmem

import (
	"context"
	"sort"
	"sync"

	"github.com/kgraphio/tempomem-go/pkg/storage"
)

// Store implements storage.EventStore and storage.ProfileStore in process memory.
type Store struct {
	mu       sync.RWMutex
	events   map[int64]*storage.MemoryEvent
	profiles map[string]*storage.UserProfile
}

// NewStore creates an empty in-memory Store.
func NewStore() *Store {
	return &Store{
		events:   make(map[int64]*storage.MemoryEvent),
		profiles: make(map[string]*storage.UserProfile),
	}
}

// Insert persists a new memory event.
func (s *Store) Insert(ctx context.Context, event *storage.MemoryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[event.ID] = copyEvent(event)
	return nil
}

// Get retrieves an event by ID.
func (s *Store) Get(ctx context.Context, id int64) (*storage.MemoryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.events[id]
	if !ok {
		return nil, storage.ErrEventNotFound
	}
	return copyEvent(event), nil
}

// Update persists the mutable weight fields of an existing event.
func (s *Store) Update(ctx context.Context, event *storage.MemoryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.events[event.ID]
	if !ok {
		return storage.ErrEventNotFound
	}
	stored.BaseWeight = event.BaseWeight
	stored.ReinforcedCount = event.ReinforcedCount
	stored.UpdatedAt = event.UpdatedAt
	return nil
}

// Delete removes an event by ID.
func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[id]; !ok {
		return storage.ErrEventNotFound
	}
	delete(s.events, id)
	return nil
}

// ListByUser retrieves up to limit events for a user, most recent first.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]*storage.MemoryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []*storage.MemoryEvent
	for _, event := range s.events {
		if event.UserID == userID {
			events = append(events, copyEvent(event))
		}
	}
	sortNewestFirst(events)
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// ListByEntity retrieves all events referencing an entity, across users.
func (s *Store) ListByEntity(ctx context.Context, entityID string) ([]*storage.MemoryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []*storage.MemoryEvent
	for _, event := range s.events {
		if event.EntityID == entityID {
			events = append(events, copyEvent(event))
		}
	}
	sortNewestFirst(events)
	return events, nil
}

// ListAll retrieves every stored event.
func (s *Store) ListAll(ctx context.Context) ([]*storage.MemoryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]*storage.MemoryEvent, 0, len(s.events))
	for _, event := range s.events {
		events = append(events, copyEvent(event))
	}
	sortNewestFirst(events)
	return events, nil
}

// GetProfile retrieves a profile by user ID, or nil when absent.
func (s *Store) GetProfile(ctx context.Context, userID string) (*storage.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	return copyProfile(profile), nil
}

// SaveProfile inserts or replaces a profile.
//
// The live session marker is stripped: sessions are transient process state
// and are never persisted, matching the SQL backends.
func (s *Store) SaveProfile(ctx context.Context, profile *storage.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := copyProfile(profile)
	stored.DynamicContext.CurrentSession = nil
	s.profiles[profile.UserID] = stored
	return nil
}

// Close releases the store's maps.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = make(map[int64]*storage.MemoryEvent)
	s.profiles = make(map[string]*storage.UserProfile)
	return nil
}

// sortNewestFirst orders events by creation time descending, breaking ties by ID.
func sortNewestFirst(events []*storage.MemoryEvent) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].ID > events[j].ID
		}
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
}

// copyEvent returns a deep enough copy of an event for safe hand-off.
func copyEvent(event *storage.MemoryEvent) *storage.MemoryEvent {
	dup := *event
	if event.ExpiresAt != nil {
		expires := *event.ExpiresAt
		dup.ExpiresAt = &expires
	}
	if event.Metadata != nil {
		dup.Metadata = make(map[string]interface{}, len(event.Metadata))
		for k, v := range event.Metadata {
			dup.Metadata[k] = v
		}
	}
	return &dup
}

// copyProfile returns a deep enough copy of a profile for safe hand-off.
func copyProfile(profile *storage.UserProfile) *storage.UserProfile {
	dup := *profile
	dup.StaticContext.Expertise = append([]string(nil), profile.StaticContext.Expertise...)
	if profile.StaticContext.Preferences != nil {
		dup.StaticContext.Preferences = make(map[string]interface{}, len(profile.StaticContext.Preferences))
		for k, v := range profile.StaticContext.Preferences {
			dup.StaticContext.Preferences[k] = v
		}
	}
	dup.DynamicContext.RecentQueries = append([]string(nil), profile.DynamicContext.RecentQueries...)
	dup.DynamicContext.RecentDatasets = append([]string(nil), profile.DynamicContext.RecentDatasets...)
	if profile.DynamicContext.CurrentSession != nil {
		session := *profile.DynamicContext.CurrentSession
		dup.DynamicContext.CurrentSession = &session
	}
	dup.SearchPatterns = append([]string(nil), profile.SearchPatterns...)
	dup.PreferredTypes = append([]string(nil), profile.PreferredTypes...)
	dup.TopResources = append([]string(nil), profile.TopResources...)
	if profile.Stats.Interactions != nil {
		dup.Stats.Interactions = make(map[string]int, len(profile.Stats.Interactions))
		for k, v := range profile.Stats.Interactions {
			dup.Stats.Interactions[k] = v
		}
	}
	return &dup
}
