package core

import (
	"context"
	"fmt"

	"github.com/kgraphio/tempomem-go/pkg/decay"
	"github.com/kgraphio/tempomem-go/pkg/graph"
	"github.com/kgraphio/tempomem-go/pkg/memory"
	"github.com/kgraphio/tempomem-go/pkg/storage"
	"github.com/kgraphio/tempomem-go/pkg/storage/inmem"
	"github.com/kgraphio/tempomem-go/pkg/storage/mysql"
	"github.com/kgraphio/tempomem-go/pkg/storage/postgres"
	"github.com/kgraphio/tempomem-go/pkg/storage/sqlite"
)

// Client is the main TempoMem client.
//
// It wires the storage backend, the decay engine, the memory client, and the
// graph adapter into one facade and exposes the engine's public surface.
//
// Example:
//
//	config, _ := core.LoadConfigFromEnv()
//	client, err := core.NewClient(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.RecordQuery(ctx, "user_001", "collisions at night",
//	    memory.WithDatasetID("dataset_042"),
//	)
//	result, _ := client.QueryWithContext(ctx, "user_001", "red car")
type Client struct {
	config    *Config
	memory    *memory.Client
	adapter   *graph.Adapter
	scheduler *Scheduler
}

// NewClient creates a TempoMem client from the given configuration.
//
// The storage backend is opened, the decay engine configured, and the graph
// adapter pointed at the configured service. When a maintenance schedule is
// configured, the scheduler is created but not started; call
// StartMaintenance to run it.
//
// Returns the client, or an error if the configuration is invalid or the
// backend cannot be opened.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, NewEngineError("NewClient", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	events, profiles, err := openStorage(config.Storage)
	if err != nil {
		return nil, NewEngineError("NewClient", err)
	}

	engine := decay.NewEngine(decay.Config{
		HalfLifeHours:      config.Decay.HalfLifeHours,
		ReinforcementBoost: config.Decay.ReinforcementBoost,
		MinWeight:          config.Decay.MinWeight,
		MaxAgeHours:        config.Decay.MaxAgeHours,
	})

	memoryClient, err := memory.NewClient(events, profiles, engine)
	if err != nil {
		return nil, NewEngineError("NewClient", err)
	}

	adapter, err := graph.NewAdapter(graph.Config{
		BaseURL:           config.Graph.BaseURL,
		APIKey:            config.Graph.APIKey,
		SearchTimeout:     config.Graph.searchTimeout(),
		WriteTimeout:      config.Graph.writeTimeout(),
		FallbackOnError:   config.Graph.FallbackOnError,
		TemporalWeighting: config.Graph.TemporalWeighting,
	}, memoryClient)
	if err != nil {
		return nil, NewEngineError("NewClient", err)
	}

	client := &Client{
		config:  config,
		memory:  memoryClient,
		adapter: adapter,
	}
	if config.Maintenance != nil {
		client.scheduler = NewScheduler(memoryClient, config.Maintenance.Schedule)
	}
	return client, nil
}

// openStorage opens the configured storage backend. The returned event and
// profile stores are backed by the same connection.
func openStorage(config StorageConfig) (storage.EventStore, storage.ProfileStore, error) {
	switch config.Provider {
	case "inmem":
		store := inmem.NewStore()
		return store, store, nil

	case "sqlite":
		store, err := sqlite.NewStore(&sqlite.Config{
			DBPath:        stringOpt(config.Config, "db_path", "./tempomem.db"),
			EventsTable:   stringOpt(config.Config, "events_table", ""),
			ProfilesTable: stringOpt(config.Config, "profiles_table", ""),
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil

	case "postgres":
		store, err := postgres.NewStore(&postgres.Config{
			Host:          stringOpt(config.Config, "host", "localhost"),
			Port:          intOpt(config.Config, "port", 5432),
			User:          stringOpt(config.Config, "user", "postgres"),
			Password:      stringOpt(config.Config, "password", ""),
			DBName:        stringOpt(config.Config, "db_name", "tempomem"),
			EventsTable:   stringOpt(config.Config, "events_table", ""),
			ProfilesTable: stringOpt(config.Config, "profiles_table", ""),
			SSLMode:       stringOpt(config.Config, "ssl_mode", "disable"),
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil

	case "mysql":
		store, err := mysql.NewStore(&mysql.Config{
			Host:          stringOpt(config.Config, "host", "localhost"),
			Port:          intOpt(config.Config, "port", 3306),
			User:          stringOpt(config.Config, "user", "root"),
			Password:      stringOpt(config.Config, "password", ""),
			DBName:        stringOpt(config.Config, "db_name", "tempomem"),
			EventsTable:   stringOpt(config.Config, "events_table", ""),
			ProfilesTable: stringOpt(config.Config, "profiles_table", ""),
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	}

	return nil, nil, fmt.Errorf("unsupported storage provider: %s", config.Provider)
}

// Memory returns the underlying memory client for direct access.
func (c *Client) Memory() *memory.Client {
	return c.memory
}

// Graph returns the underlying graph adapter for direct access.
func (c *Client) Graph() *graph.Adapter {
	return c.adapter
}

// GetOrCreateProfile returns the user's profile, creating one on first access.
func (c *Client) GetOrCreateProfile(ctx context.Context, userID string) (*storage.UserProfile, error) {
	profile, err := c.memory.GetOrCreateProfile(ctx, userID)
	if err != nil {
		return nil, NewEngineError("GetOrCreateProfile", err)
	}
	return profile, nil
}

// UpdateStaticContext merges the given fields into the user's static context.
func (c *Client) UpdateStaticContext(ctx context.Context, userID string, patch *storage.StaticContext) error {
	return NewEngineError("UpdateStaticContext", c.memory.UpdateStaticContext(ctx, userID, patch))
}

// AddMemory persists a new interaction event for the user.
func (c *Client) AddMemory(ctx context.Context, userID, entityID string, entityType storage.EntityType, content string, opts ...memory.AddOption) (int64, error) {
	id, err := c.memory.AddMemory(ctx, userID, entityID, entityType, content, opts...)
	if err != nil {
		return 0, NewEngineError("AddMemory", err)
	}
	return id, nil
}

// RecordQuery records a query interaction and updates the user's profile.
func (c *Client) RecordQuery(ctx context.Context, userID, query string, opts ...memory.QueryOption) (int64, error) {
	id, err := c.memory.RecordQuery(ctx, userID, query, opts...)
	if err != nil {
		return 0, NewEngineError("RecordQuery", err)
	}
	return id, nil
}

// GetQueryContext builds the user's context bundle for query augmentation.
func (c *Client) GetQueryContext(ctx context.Context, userID string) (*memory.QueryContext, error) {
	queryContext, err := c.memory.GetQueryContext(ctx, userID)
	if err != nil {
		return nil, NewEngineError("GetQueryContext", err)
	}
	return queryContext, nil
}

// GetRelatedMemories returns the user's strongest memories matching the query.
func (c *Client) GetRelatedMemories(ctx context.Context, userID, query string, limit int) ([]*memory.RelatedMemory, error) {
	related, err := c.memory.GetRelatedMemories(ctx, userID, query, limit)
	if err != nil {
		return nil, NewEngineError("GetRelatedMemories", err)
	}
	return related, nil
}

// EvolveKnowledge runs the per-user knowledge evolution pass.
func (c *Client) EvolveKnowledge(ctx context.Context, userID string) (*memory.EvolveResult, error) {
	result, err := c.memory.EvolveKnowledge(ctx, userID)
	if err != nil {
		return nil, NewEngineError("EvolveKnowledge", err)
	}
	return result, nil
}

// StartSession begins a transient session for the user.
func (c *Client) StartSession(ctx context.Context, userID string) error {
	return NewEngineError("StartSession", c.memory.StartSession(ctx, userID))
}

// EndSession discards the user's transient session.
func (c *Client) EndSession(ctx context.Context, userID string) error {
	return NewEngineError("EndSession", c.memory.EndSession(ctx, userID))
}

// AddToGraph submits extracted media entities to the graph service and
// returns the submitted records with their assigned IDs.
func (c *Client) AddToGraph(ctx context.Context, mediaID string, entities []graph.MediaEntity) ([]graph.MediaEntity, error) {
	submitted, err := c.adapter.AddToGraph(ctx, mediaID, entities)
	if err != nil {
		return nil, NewEngineError("AddToGraph", err)
	}
	return submitted, nil
}

// Query runs a graph search, optionally personalized for the user.
func (c *Client) Query(ctx context.Context, userID, query string, opts ...graph.SearchOption) (*graph.GraphSearchResult, error) {
	result, err := c.adapter.Query(ctx, userID, query, opts...)
	if err != nil {
		return nil, NewEngineError("Query", err)
	}
	return result, nil
}

// QueryWithContext runs a session-scoped, memory-augmented graph search.
func (c *Client) QueryWithContext(ctx context.Context, userID, query string, opts ...graph.SearchOption) (*graph.GraphSearchResult, error) {
	result, err := c.adapter.QueryWithContext(ctx, userID, query, opts...)
	if err != nil {
		return nil, NewEngineError("QueryWithContext", err)
	}
	return result, nil
}

// Evolve reinforces every stored memory of an entity, across users.
func (c *Client) Evolve(ctx context.Context, entityID string) (int, error) {
	reinforced, err := c.adapter.Evolve(ctx, entityID)
	if err != nil {
		return reinforced, NewEngineError("Evolve", err)
	}
	return reinforced, nil
}

// Prune removes expired and decayed-out events from storage.
func (c *Client) Prune(ctx context.Context) (*decay.PruneResult, error) {
	result, err := c.memory.Prune(ctx)
	if err != nil {
		return nil, NewEngineError("Prune", err)
	}
	return result, nil
}

// ApplyDecayBatch persists decayed weights across the full event set.
func (c *Client) ApplyDecayBatch(ctx context.Context) (int, error) {
	updated, err := c.memory.ApplyDecayBatch(ctx)
	if err != nil {
		return updated, NewEngineError("ApplyDecayBatch", err)
	}
	return updated, nil
}

// DecayStats returns the diagnostic weight distribution aggregate.
func (c *Client) DecayStats(ctx context.Context) (*decay.Stats, error) {
	stats, err := c.memory.DecayStats(ctx)
	if err != nil {
		return nil, NewEngineError("DecayStats", err)
	}
	return stats, nil
}

// StartMaintenance starts the scheduled maintenance loop. It is a no-op when
// no maintenance schedule is configured.
func (c *Client) StartMaintenance() error {
	if c.scheduler == nil {
		return nil
	}
	return c.scheduler.Start()
}

// Close stops scheduled maintenance and releases the storage backend.
func (c *Client) Close() error {
	if c.scheduler != nil {
		c.scheduler.Stop()
	}
	return c.memory.Close()
}

// stringOpt reads a string from a provider config map.
func stringOpt(config map[string]interface{}, key, defaultValue string) string {
	if value, ok := config[key].(string); ok && value != "" {
		return value
	}
	return defaultValue
}

// intOpt reads an integer from a provider config map. JSON-decoded configs
// carry numbers as float64.
func intOpt(config map[string]interface{}, key string, defaultValue int) int {
	switch value := config[key].(type) {
	case int:
		if value != 0 {
			return value
		}
	case float64:
		if value != 0 {
			return int(value)
		}
	}
	return defaultValue
}
