// Package storage provides record types and interfaces for memory persistence backends.
//
// It defines the EventStore and ProfileStore interfaces that all storage
// implementations must satisfy, along with the MemoryEvent and UserProfile
// record types shared across the engine.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrEventNotFound indicates that a requested memory event does not exist.
//
// Profile lookups never return this error: a missing profile is created
// lazily by the memory client.
var ErrEventNotFound = errors.New("memory event not found")

// EntityType enumerates the kinds of interactions a MemoryEvent can record.
type EntityType string

const (
	// EntityTypeQuery records a search or retrieval query issued by the user.
	EntityTypeQuery EntityType = "query"

	// EntityTypeView records the user viewing a resource.
	EntityTypeView EntityType = "view"

	// EntityTypePurchase records the user acquiring or licensing a resource.
	EntityTypePurchase EntityType = "purchase"

	// EntityTypeAnnotate records the user annotating a resource.
	EntityTypeAnnotate EntityType = "annotate"

	// EntityTypeSearch records a raw keyword search.
	EntityTypeSearch EntityType = "search"
)

// EntityGlobal is the entity identifier used for events that are not tied
// to a specific resource.
const EntityGlobal = "global"

// MemoryEvent represents one recorded interaction.
//
// The content of an event is immutable after creation; only the weight
// fields (BaseWeight, ReinforcedCount, UpdatedAt) are ever mutated, and only
// by the reinforcement and batch re-weighting paths.
//
// Example:
//
//	event := &storage.MemoryEvent{
//	    ID:         1234567890,
//	    UserID:     "user_001",
//	    EntityID:   "dataset_042",
//	    EntityType: storage.EntityTypeView,
//	    Content:    "viewed highway traffic dataset",
//	    BaseWeight: 1.0,
//	}
type MemoryEvent struct {
	// ID is the unique identifier of the event.
	ID int64 `json:"id"`

	// UserID identifies the user who owns this event.
	UserID string `json:"user_id"`

	// EntityID is the subject of the interaction (a resource or dataset
	// identifier, or EntityGlobal for events not tied to a resource).
	EntityID string `json:"entity_id"`

	// EntityType is the kind of interaction recorded.
	EntityType EntityType `json:"entity_type"`

	// Content is the free-text payload, e.g. the query string.
	Content string `json:"content"`

	// Metadata contains additional structured information about the event.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// BaseWeight is the stored salience of the event (initially 1.0).
	// It is raised by reinforcement and rewritten by the batch decay pass.
	BaseWeight float64 `json:"base_weight"`

	// ReinforcedCount is the number of times this event was re-accessed.
	// Always >= 0.
	ReinforcedCount int `json:"reinforced_count"`

	// CreatedAt is when the event was created. Immutable.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is an optional explicit TTL set by the caller (nil when unset).
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// UpdatedAt is when the weight fields were last mutated.
	UpdatedAt time.Time `json:"updated_at"`
}

// StaticContext holds the rarely-changing portion of a user profile.
type StaticContext struct {
	// Role is the user's role, e.g. "data engineer".
	Role string `json:"role,omitempty"`

	// Organization is the user's organization.
	Organization string `json:"organization,omitempty"`

	// Expertise lists the user's expertise tags.
	Expertise []string `json:"expertise,omitempty"`

	// Preferences contains free-form preference key-value pairs.
	Preferences map[string]interface{} `json:"preferences,omitempty"`
}

// SessionInfo describes a live, non-persisted session.
//
// Sessions are transient process state; they are merged into the profile's
// DynamicContext only while active and are discarded on session end.
type SessionInfo struct {
	// StartedAt is when the session began.
	StartedAt time.Time `json:"started_at"`

	// QueryCount is the number of queries issued during the session.
	QueryCount int `json:"query_count"`
}

// DynamicContext holds the bounded recent-activity portion of a user profile.
type DynamicContext struct {
	// RecentQueries is the most-recent-first list of query strings (cap 10).
	RecentQueries []string `json:"recent_queries,omitempty"`

	// RecentDatasets is the most-recent-first list of dataset identifiers
	// touched by queries (cap 5, unique).
	RecentDatasets []string `json:"recent_datasets,omitempty"`

	// CurrentSession is the live session marker (nil when no session is
	// active). Never persisted.
	CurrentSession *SessionInfo `json:"current_session,omitempty"`
}

// ProfileStats aggregates interaction statistics for a user.
type ProfileStats struct {
	// TotalQueries is the total number of recorded queries.
	TotalQueries int `json:"total_queries"`

	// AvgQueryDepth is the running mean of requested traversal depth.
	AvgQueryDepth float64 `json:"avg_query_depth"`

	// LastQueryAt is when the user last recorded a query.
	LastQueryAt time.Time `json:"last_query_at,omitempty"`

	// Interactions counts recorded events per entity type. It backs the
	// PreferredTypes ordering.
	Interactions map[string]int `json:"interactions,omitempty"`
}

// UserProfile is the per-user aggregate of static preferences and dynamic
// recent-activity state.
//
// A profile is created lazily on first interaction and updated on every
// subsequent interaction; it is never deleted by this subsystem.
type UserProfile struct {
	// UserID identifies the user this profile belongs to.
	UserID string `json:"user_id"`

	// StaticContext holds role, organization, expertise and preferences.
	StaticContext StaticContext `json:"static_context"`

	// DynamicContext holds bounded recent-activity lists.
	DynamicContext DynamicContext `json:"dynamic_context"`

	// SearchPatterns is the bounded set of learned keyword tokens
	// (cap 50, most-recent-and-unique).
	SearchPatterns []string `json:"search_patterns,omitempty"`

	// PreferredTypes lists the entity types the user interacts with most,
	// ordered by interaction frequency.
	PreferredTypes []string `json:"preferred_types,omitempty"`

	// TopResources lists the most-recently touched resource identifiers,
	// most-recent-first (cap 10).
	TopResources []string `json:"top_resources,omitempty"`

	// Stats aggregates interaction statistics.
	Stats ProfileStats `json:"stats"`

	// CreatedAt is when the profile was first created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the profile was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// EventStore defines the interface for memory event persistence backends.
//
// All backends (SQLite, PostgreSQL, MySQL, in-memory) must implement this
// interface. Implementations perform single-row updates only; no multi-row
// transactions are required by any caller.
type EventStore interface {
	// Insert persists a new event.
	Insert(ctx context.Context, event *MemoryEvent) error

	// Get retrieves an event by ID. Returns ErrEventNotFound if no event
	// with the given ID exists.
	Get(ctx context.Context, id int64) (*MemoryEvent, error)

	// Update persists the mutable weight fields (BaseWeight,
	// ReinforcedCount, UpdatedAt) of an existing event. Returns
	// ErrEventNotFound if the event does not exist.
	Update(ctx context.Context, event *MemoryEvent) error

	// Delete removes an event by ID. Returns ErrEventNotFound if the event
	// does not exist.
	Delete(ctx context.Context, id int64) error

	// ListByUser retrieves up to limit events for a user, most recent
	// first. A limit <= 0 means no limit.
	ListByUser(ctx context.Context, userID string, limit int) ([]*MemoryEvent, error)

	// ListByEntity retrieves all events referencing an entity, across users.
	ListByEntity(ctx context.Context, entityID string) ([]*MemoryEvent, error)

	// ListAll retrieves every stored event. Used by the batch maintenance
	// passes, which run off the request path.
	ListAll(ctx context.Context) ([]*MemoryEvent, error)

	// Close closes the store and releases resources.
	Close() error
}

// ProfileStore defines the interface for user profile persistence backends.
//
// Backends typically implement EventStore and ProfileStore on the same type,
// sharing one database connection.
type ProfileStore interface {
	// GetProfile retrieves a profile by user ID. Returns (nil, nil) when
	// the user has no stored profile; absence is not an error.
	GetProfile(ctx context.Context, userID string) (*UserProfile, error)

	// SaveProfile inserts or replaces a profile.
	SaveProfile(ctx context.Context, profile *UserProfile) error

	// Close closes the store and releases resources.
	Close() error
}
