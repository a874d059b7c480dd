// Package memory provides durable per-user memory state and the event log.
//
// The memory client owns UserProfile and MemoryEvent records: it is the only
// component that reads or writes them. It records interactions, maintains the
// per-user rolling profile (recent queries, learned search patterns,
// top-accessed resources), ranks stored events by decayed weight, and runs
// the knowledge-evolution pass.
//
// All mutations for a given user are serialized behind a per-user mutex so
// the read-profile/modify/write-profile pattern never loses updates;
// operations for different users proceed fully in parallel.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/kgraphio/tempomem-go/pkg/decay"
	"github.com/kgraphio/tempomem-go/pkg/storage"
)

// ErrInvalidInput indicates malformed input (empty user ID, empty content,
// negative TTL). The input is rejected before any storage mutation.
var ErrInvalidInput = errors.New("invalid input")

// Bounds on the rolling profile collections.
const (
	maxRecentQueries  = 10
	maxRecentDatasets = 5
	maxSearchPatterns = 50
	maxTopResources   = 10

	// relatedScanLimit bounds how many recent events are considered when
	// ranking related memories.
	relatedScanLimit = 50

	// defaultRelatedLimit is the number of related memories returned when
	// the caller does not specify a limit.
	defaultRelatedLimit = 5

	// evolveReinforceLimit is the number of most-reinforced events boosted
	// by an evolution pass.
	evolveReinforceLimit = 10

	// minTokenLength is the minimum length of a query token learned into
	// the search patterns (tokens must be longer than 3 characters).
	minTokenLength = 4

	// defaultQueryDepth is the traversal depth assumed when a recorded
	// query does not specify one.
	defaultQueryDepth = 2

	// shortQueryLength is the longest query (in bytes) that still matches
	// a related memory by reverse containment, the query containing the
	// event's content.
	shortQueryLength = 20
)

// Client is the memory store client.
//
// Construct it with NewClient, injecting the storage backends and the decay
// engine explicitly; there are no process-wide singletons.
//
// Example:
//
//	store := inmem.NewStore()
//	engine := decay.NewEngine(decay.Config{})
//	client, _ := memory.NewClient(store, store, engine)
//	client.RecordQuery(ctx, "user_001", "traffic collisions at night",
//	    memory.WithDatasetID("dataset_042"),
//	)
type Client struct {
	events   storage.EventStore
	profiles storage.ProfileStore
	engine   *decay.Engine
	maintain *decay.Maintenance

	// node generates unique event IDs.
	node *snowflake.Node

	// now is the injectable time source.
	now func() time.Time

	// locks serializes profile mutations per user; sessions holds the
	// transient, never-persisted session state.
	locks    *userLocks
	sessions *sessionTable
}

// Option configures a Client.
type Option func(*Client)

// WithNow overrides the client's time source. Intended for tests.
func WithNow(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a memory store client over the given backends.
//
// Parameters:
//   - events: Event log backend
//   - profiles: Profile backend (often the same store instance)
//   - engine: Decay engine used for ranking, reinforcement, and pruning
//
// Returns a new Client, or an error if the ID generator cannot be created.
func NewClient(events storage.EventStore, profiles storage.ProfileStore, engine *decay.Engine, opts ...Option) (*Client, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, err
	}

	client := &Client{
		events:   events,
		profiles: profiles,
		engine:   engine,
		maintain: decay.NewMaintenance(engine, events),
		node:     node,
		now:      time.Now,
		locks:    newUserLocks(),
		sessions: newSessionTable(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// GetOrCreateProfile returns the user's profile, creating an empty one on
// first access. Profile lookups never fail with a not-found condition.
//
// If the user has a live session, the returned profile carries the session
// marker in DynamicContext.CurrentSession; the marker itself is never
// persisted.
func (c *Client) GetOrCreateProfile(ctx context.Context, userID string) (*storage.UserProfile, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}

	unlock := c.locks.lock(userID)
	defer unlock()

	profile, err := c.loadOrCreateLocked(ctx, userID)
	if err != nil {
		return nil, err
	}

	if session := c.sessions.get(userID); session != nil {
		profile.DynamicContext.CurrentSession = session
	}
	return profile, nil
}

// UpdateStaticContext shallow-merges the given fields into the user's static
// context. Dynamic fields are not touched.
//
// Non-empty Role and Organization overwrite the stored values; a non-nil
// Expertise list replaces the stored list; Preferences keys are merged
// individually.
func (c *Client) UpdateStaticContext(ctx context.Context, userID string, patch *storage.StaticContext) error {
	if userID == "" || patch == nil {
		return ErrInvalidInput
	}

	unlock := c.locks.lock(userID)
	defer unlock()

	profile, err := c.loadOrCreateLocked(ctx, userID)
	if err != nil {
		return err
	}

	if patch.Role != "" {
		profile.StaticContext.Role = patch.Role
	}
	if patch.Organization != "" {
		profile.StaticContext.Organization = patch.Organization
	}
	if patch.Expertise != nil {
		profile.StaticContext.Expertise = append([]string(nil), patch.Expertise...)
	}
	if len(patch.Preferences) > 0 {
		if profile.StaticContext.Preferences == nil {
			profile.StaticContext.Preferences = make(map[string]interface{}, len(patch.Preferences))
		}
		for k, v := range patch.Preferences {
			profile.StaticContext.Preferences[k] = v
		}
	}

	profile.UpdatedAt = c.now()
	return c.profiles.SaveProfile(ctx, profile)
}

// AddMemory persists a new interaction event and updates the profile's
// interaction statistics.
//
// The event starts with BaseWeight 1.0 and ReinforcedCount 0. An empty
// entityID is stored as storage.EntityGlobal. A TTL, when supplied via
// WithTTLHours, sets the event's ExpiresAt.
//
// Parameters:
//   - ctx: Context for cancellation
//   - userID: Owner of the event
//   - entityID: Subject of the interaction
//   - entityType: Kind of interaction
//   - content: Free-text payload
//   - opts: Optional parameters (Metadata, TTLHours)
//
// Returns the new event's ID.
func (c *Client) AddMemory(ctx context.Context, userID, entityID string, entityType storage.EntityType, content string, opts ...AddOption) (int64, error) {
	addOpts, err := applyAddOptions(opts)
	if err != nil {
		return 0, err
	}
	if userID == "" || content == "" {
		return 0, ErrInvalidInput
	}
	if !validEntityType(entityType) {
		return 0, ErrInvalidInput
	}
	if entityID == "" {
		entityID = storage.EntityGlobal
	}

	now := c.now()
	event := &storage.MemoryEvent{
		ID:         c.node.Generate().Int64(),
		UserID:     userID,
		EntityID:   entityID,
		EntityType: entityType,
		Content:    content,
		Metadata:   addOpts.Metadata,
		BaseWeight: 1.0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if addOpts.TTLHours > 0 {
		expires := now.Add(time.Duration(addOpts.TTLHours * float64(time.Hour)))
		event.ExpiresAt = &expires
	}

	if err := c.events.Insert(ctx, event); err != nil {
		return 0, err
	}

	unlock := c.locks.lock(userID)
	defer unlock()

	profile, err := c.loadOrCreateLocked(ctx, userID)
	if err != nil {
		return 0, err
	}
	if profile.Stats.Interactions == nil {
		profile.Stats.Interactions = make(map[string]int)
	}
	profile.Stats.Interactions[string(entityType)]++
	profile.PreferredTypes = rankPreferredTypes(profile.Stats.Interactions)
	profile.UpdatedAt = now
	if err := c.profiles.SaveProfile(ctx, profile); err != nil {
		return 0, err
	}

	return event.ID, nil
}

// RecordQuery records a query interaction and folds it into the user's
// rolling profile.
//
// Side effects on the profile:
//   - prepend to recent queries (cap 10, most-recent wins)
//   - prepend the dataset to recent datasets if new (cap 5)
//   - learn lowercase tokens longer than 3 characters into the search
//     patterns (cap 50, most-recent-and-unique)
//   - increment total queries, update the running average query depth, and
//     stamp the last-query time
//   - promote the dataset to the front of top resources (cap 10,
//     move-to-front when already present)
//
// Returns the ID of the recorded event.
func (c *Client) RecordQuery(ctx context.Context, userID, query string, opts ...QueryOption) (int64, error) {
	queryOpts := applyQueryOptions(opts)
	if query == "" {
		return 0, ErrInvalidInput
	}

	entityID := queryOpts.DatasetID
	eventID, err := c.AddMemory(ctx, userID, entityID, storage.EntityTypeQuery, query)
	if err != nil {
		return 0, err
	}

	now := c.now()

	unlock := c.locks.lock(userID)
	defer unlock()

	profile, err := c.loadOrCreateLocked(ctx, userID)
	if err != nil {
		return 0, err
	}

	profile.DynamicContext.RecentQueries = prepend(profile.DynamicContext.RecentQueries, query, maxRecentQueries)
	if queryOpts.DatasetID != "" {
		profile.DynamicContext.RecentDatasets = prependIfNew(profile.DynamicContext.RecentDatasets, queryOpts.DatasetID, maxRecentDatasets)
		profile.TopResources = promote(profile.TopResources, queryOpts.DatasetID, maxTopResources)
	}
	profile.SearchPatterns = unionPatterns(profile.SearchPatterns, tokenize(query), maxSearchPatterns)

	oldCount := profile.Stats.TotalQueries
	profile.Stats.AvgQueryDepth = (profile.Stats.AvgQueryDepth*float64(oldCount) + float64(queryOpts.Depth)) / float64(oldCount+1)
	profile.Stats.TotalQueries = oldCount + 1
	profile.Stats.LastQueryAt = now
	profile.UpdatedAt = now

	c.sessions.bump(userID)

	if err := c.profiles.SaveProfile(ctx, profile); err != nil {
		return 0, err
	}
	return eventID, nil
}

// GetQueryContext builds a small context bundle for query augmentation.
//
// ContextHints are human-readable strings derived from the static context's
// role and expertise when present.
func (c *Client) GetQueryContext(ctx context.Context, userID string) (*QueryContext, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}

	unlock := c.locks.lock(userID)
	defer unlock()

	profile, err := c.loadOrCreateLocked(ctx, userID)
	if err != nil {
		return nil, err
	}

	queryContext := &QueryContext{
		PreferredTypes: append([]string(nil), profile.PreferredTypes...),
		TopResources:   append([]string(nil), profile.TopResources...),
	}
	patterns := profile.SearchPatterns
	if len(patterns) > 5 {
		patterns = patterns[:5]
	}
	queryContext.RecentPatterns = append([]string(nil), patterns...)

	if role := profile.StaticContext.Role; role != "" {
		queryContext.ContextHints = append(queryContext.ContextHints, "User role: "+role)
	}
	if expertise := profile.StaticContext.Expertise; len(expertise) > 0 {
		queryContext.ContextHints = append(queryContext.ContextHints, "Expertise: "+strings.Join(expertise, ", "))
	}

	return queryContext, nil
}

// GetRelatedMemories returns the user's strongest stored memories whose
// content lexically matches the query.
//
// The 50 most recent events are ranked by effective weight, then filtered by
// case-insensitive substring match: an event matches when its content
// contains the query or, for short queries, the query contains the content.
// Matching is deliberately lexical, not semantic.
func (c *Client) GetRelatedMemories(ctx context.Context, userID, query string, limit int) ([]*RelatedMemory, error) {
	if userID == "" || query == "" {
		return nil, ErrInvalidInput
	}
	if limit <= 0 {
		limit = defaultRelatedLimit
	}

	events, err := c.events.ListByUser(ctx, userID, relatedScanLimit)
	if err != nil {
		return nil, err
	}

	type weighted struct {
		event  *storage.MemoryEvent
		weight float64
	}
	ranked := make([]weighted, 0, len(events))
	for _, event := range events {
		ranked = append(ranked, weighted{
			event:  event,
			weight: c.engine.EffectiveWeight(event.CreatedAt, event.BaseWeight, event.ReinforcedCount),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].weight > ranked[j].weight
	})

	queryLower := strings.ToLower(query)
	shortQuery := len(queryLower) <= shortQueryLength
	var related []*RelatedMemory
	for _, entry := range ranked {
		contentLower := strings.ToLower(entry.event.Content)
		matched := strings.Contains(contentLower, queryLower)
		if !matched && shortQuery {
			matched = strings.Contains(queryLower, contentLower)
		}
		if !matched {
			continue
		}
		related = append(related, &RelatedMemory{
			Content: entry.event.Content,
			Weight:  entry.weight,
			Type:    entry.event.EntityType,
		})
		if len(related) == limit {
			break
		}
	}

	return related, nil
}

// EvolveKnowledge runs the per-user knowledge evolution pass.
//
// The pass:
//  1. Reinforces the user's 10 most-reinforced events (events never
//     reinforced are skipped).
//  2. Runs the global expiry/low-weight pruning pass.
//  3. Deduplicates and re-caps the user's search pattern list, persisting it
//     if it changed.
//
// PatternsLearned reports the raw change in pattern-list size; it is
// negative when deduplication shrank the list.
func (c *Client) EvolveKnowledge(ctx context.Context, userID string) (*EvolveResult, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}

	events, err := c.events.ListByUser(ctx, userID, 0)
	if err != nil {
		return nil, err
	}

	var reinforceable []*storage.MemoryEvent
	for _, event := range events {
		if event.ReinforcedCount > 0 {
			reinforceable = append(reinforceable, event)
		}
	}
	sort.SliceStable(reinforceable, func(i, j int) bool {
		return reinforceable[i].ReinforcedCount > reinforceable[j].ReinforcedCount
	})
	if len(reinforceable) > evolveReinforceLimit {
		reinforceable = reinforceable[:evolveReinforceLimit]
	}

	result := &EvolveResult{}
	for _, event := range reinforceable {
		c.engine.Reinforce(event)
		if err := c.events.Update(ctx, event); err != nil {
			if err == storage.ErrEventNotFound {
				continue
			}
			return nil, err
		}
		result.Reinforced++
	}

	pruned, err := c.maintain.PruneExpired(ctx)
	if err != nil {
		return nil, err
	}
	result.Pruned = pruned.Pruned

	unlock := c.locks.lock(userID)
	defer unlock()

	profile, err := c.loadOrCreateLocked(ctx, userID)
	if err != nil {
		return nil, err
	}
	deduped := dedupePatterns(profile.SearchPatterns, maxSearchPatterns)
	result.PatternsLearned = len(deduped) - len(profile.SearchPatterns)
	if result.PatternsLearned != 0 {
		profile.SearchPatterns = deduped
		profile.UpdatedAt = c.now()
		if err := c.profiles.SaveProfile(ctx, profile); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// ReinforceEntity reinforces every stored event associated with an entity,
// across users. This is how graph-level usefulness signals flow back into
// the decay model.
//
// Returns the number of events reinforced.
func (c *Client) ReinforceEntity(ctx context.Context, entityID string) (int, error) {
	if entityID == "" {
		return 0, ErrInvalidInput
	}

	events, err := c.events.ListByEntity(ctx, entityID)
	if err != nil {
		return 0, err
	}

	reinforced := 0
	for _, event := range events {
		c.engine.Reinforce(event)
		if err := c.events.Update(ctx, event); err != nil {
			if err == storage.ErrEventNotFound {
				continue
			}
			return reinforced, err
		}
		reinforced++
	}
	return reinforced, nil
}

// EntityWeights returns the effective weight of the user's recent events
// keyed by entity ID, keeping the highest weight per entity. Used by the
// retrieval adapter for temporal re-weighting of search results.
func (c *Client) EntityWeights(ctx context.Context, userID string) (map[string]float64, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}

	events, err := c.events.ListByUser(ctx, userID, relatedScanLimit)
	if err != nil {
		return nil, err
	}

	weights := make(map[string]float64, len(events))
	for _, event := range events {
		weight := c.engine.EffectiveWeight(event.CreatedAt, event.BaseWeight, event.ReinforcedCount)
		if weight > weights[event.EntityID] {
			weights[event.EntityID] = weight
		}
	}
	return weights, nil
}

// Prune runs the expiry/low-weight pruning pass over the full event set.
func (c *Client) Prune(ctx context.Context) (*decay.PruneResult, error) {
	return c.maintain.PruneExpired(ctx)
}

// ApplyDecayBatch runs the batch re-weighting pass over the full event set.
func (c *Client) ApplyDecayBatch(ctx context.Context) (int, error) {
	return c.maintain.ApplyDecayBatch(ctx)
}

// DecayStats returns the diagnostic weight distribution aggregate.
func (c *Client) DecayStats(ctx context.Context) (*decay.Stats, error) {
	return c.maintain.Stats(ctx)
}

// StartSession begins a transient session for the user. An existing session
// is replaced. Session state lives in process memory only.
func (c *Client) StartSession(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrInvalidInput
	}
	c.sessions.start(userID, c.now())
	return nil
}

// EndSession discards the user's transient session, if any.
func (c *Client) EndSession(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrInvalidInput
	}
	c.sessions.end(userID)
	return nil
}

// Close releases the underlying stores.
func (c *Client) Close() error {
	var errs []error
	if err := c.events.Close(); err != nil {
		errs = append(errs, err)
	}
	// The profile store is often the same instance as the event store;
	// closing twice is harmless for all shipped backends.
	if err := c.profiles.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// loadOrCreateLocked loads the user's profile, creating and persisting an
// empty one when absent. Callers must hold the user's lock.
func (c *Client) loadOrCreateLocked(ctx context.Context, userID string) (*storage.UserProfile, error) {
	profile, err := c.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile != nil {
		return profile, nil
	}

	now := c.now()
	profile = &storage.UserProfile{
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.profiles.SaveProfile(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// validEntityType reports whether the entity type is one of the known kinds.
func validEntityType(entityType storage.EntityType) bool {
	switch entityType {
	case storage.EntityTypeQuery, storage.EntityTypeView, storage.EntityTypePurchase,
		storage.EntityTypeAnnotate, storage.EntityTypeSearch:
		return true
	}
	return false
}
