package graph_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgraphio/tempomem-go/pkg/decay"
	"github.com/kgraphio/tempomem-go/pkg/graph"
	"github.com/kgraphio/tempomem-go/pkg/memory"
	"github.com/kgraphio/tempomem-go/pkg/storage"
	"github.com/kgraphio/tempomem-go/pkg/storage/inmem"
)

func newMemoryClient(t *testing.T, now time.Time) (*memory.Client, *inmem.Store) {
	t.Helper()
	store := inmem.NewStore()
	engine := decay.NewEngine(decay.Config{}, decay.WithNow(func() time.Time { return now }))
	client, err := memory.NewClient(store, store, engine,
		memory.WithNow(func() time.Time { return now }))
	require.NoError(t, err)
	return client, store
}

func TestAddToGraphSubmitsEntities(t *testing.T) {
	ctx := context.Background()
	memoryClient, _ := newMemoryClient(t, time.Now())

	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/graph/entities", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	adapter, err := graph.NewAdapter(graph.Config{
		BaseURL: server.URL,
		APIKey:  "secret",
	}, memoryClient)
	require.NoError(t, err)

	submitted, err := adapter.AddToGraph(ctx, "media_001", []graph.MediaEntity{
		{Type: "object", Content: "red car", StartMS: 1000, EndMS: 4000},
	})
	require.NoError(t, err)

	assert.Equal(t, "media_001", captured["media_id"])
	assert.Equal(t, true, captured["auto_relate"])
	entities := captured["entities"].([]interface{})
	require.Len(t, entities, 1)
	entity := entities[0].(map[string]interface{})
	assert.NotEmpty(t, entity["id"], "Entities without an ID get one assigned locally")
	assert.Equal(t, true, entity["auto_relate"])

	// The caller gets back the submitted records, IDs included.
	require.Len(t, submitted, 1)
	assert.NotEmpty(t, submitted[0].ID)
	assert.Equal(t, entity["id"], submitted[0].ID)
	assert.Equal(t, "red car", submitted[0].Content)
}

func TestAddToGraphValidation(t *testing.T) {
	ctx := context.Background()
	memoryClient, _ := newMemoryClient(t, time.Now())

	adapter, err := graph.NewAdapter(graph.Config{BaseURL: "http://localhost:1"}, memoryClient)
	require.NoError(t, err)

	_, err = adapter.AddToGraph(ctx, "", nil)
	assert.ErrorIs(t, err, memory.ErrInvalidInput)
	_, err = adapter.AddToGraph(ctx, "media_001", nil)
	assert.ErrorIs(t, err, memory.ErrInvalidInput)
}

func TestQueryRecordsInteractionAndSearches(t *testing.T) {
	ctx := context.Background()
	memoryClient, store := newMemoryClient(t, time.Now())

	var request map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/graph/search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"entities": []map[string]interface{}{
				{"id": "e1", "type": "object", "content": "red car", "score": 0.9},
			},
		})
	}))
	defer server.Close()

	adapter, err := graph.NewAdapter(graph.Config{BaseURL: server.URL}, memoryClient)
	require.NoError(t, err)

	result, err := adapter.Query(ctx, "user_001", "red car at intersection", graph.WithUserContext())
	require.NoError(t, err)
	require.Len(t, result.Entities, 1)
	assert.Equal(t, "red car at intersection", result.Query)
	assert.False(t, result.Degraded)
	assert.NotNil(t, result.Relationships)
	assert.NotNil(t, result.Context)
	assert.NotNil(t, result.RelevanceScores)

	assert.Equal(t, float64(2), request["depth"], "Default depth applies")
	assert.Equal(t, float64(20), request["limit"], "Default limit applies")

	// The query was recorded as an interaction regardless of the search.
	events, err := store.ListByUser(ctx, "user_001", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "red car at intersection", events[0].Content)
	assert.Equal(t, storage.EntityTypeQuery, events[0].EntityType)
}

func TestQueryWithoutUserContextDoesNotPersonalize(t *testing.T) {
	ctx := context.Background()
	memoryClient, store := newMemoryClient(t, time.Now())

	var request map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		json.NewEncoder(w).Encode(map[string]interface{}{})
	}))
	defer server.Close()

	adapter, err := graph.NewAdapter(graph.Config{BaseURL: server.URL}, memoryClient)
	require.NoError(t, err)

	result, err := adapter.Query(ctx, "user_001", "red car at intersection")
	require.NoError(t, err)
	assert.Empty(t, result.Context)

	// No filters were sent and no interaction was recorded.
	assert.Nil(t, request["filters"])
	events, err := store.ListByUser(ctx, "user_001", 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestQueryUserContextSummary(t *testing.T) {
	ctx := context.Background()
	memoryClient, _ := newMemoryClient(t, time.Now())

	// Build history so the profile carries preferred types and patterns.
	_, err := memoryClient.RecordQuery(ctx, "user_001", "nighttime collisions downtown")
	require.NoError(t, err)

	var request map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		json.NewEncoder(w).Encode(map[string]interface{}{})
	}))
	defer server.Close()

	adapter, err := graph.NewAdapter(graph.Config{BaseURL: server.URL}, memoryClient)
	require.NoError(t, err)

	result, err := adapter.Query(ctx, "user_001", "collisions", graph.WithUserContext())
	require.NoError(t, err)

	// Preferred types went out as filters and the result says which
	// context shaped the call.
	require.NotNil(t, request["filters"])
	assert.Equal(t, []interface{}{"query"},
		request["filters"].(map[string]interface{})["preferred_types"])
	assert.Equal(t, []string{"query"}, result.Context["preferred_types"])
	assert.Contains(t, result.Context["recent_patterns"], "collisions")
}

func TestQueryFallbackReturnsEmptyResult(t *testing.T) {
	ctx := context.Background()
	memoryClient, store := newMemoryClient(t, time.Now())

	// Point at a closed port: the upstream is unreachable.
	adapter, err := graph.NewAdapter(graph.Config{
		BaseURL:         "http://127.0.0.1:1",
		FallbackOnError: true,
	}, memoryClient)
	require.NoError(t, err)

	result, err := adapter.Query(ctx, "user_001", "anything at all", graph.WithUserContext())
	require.NoError(t, err, "Fallback swallows upstream failures")
	assert.True(t, result.Degraded)
	assert.NotNil(t, result.Entities)
	assert.Empty(t, result.Entities)
	assert.NotNil(t, result.Relationships)
	assert.NotNil(t, result.Context)
	assert.NotNil(t, result.RelevanceScores)
	assert.Empty(t, result.RelevanceScores)
	assert.Equal(t, "anything at all", result.Query)

	// Memory state advanced even though the upstream was down.
	events, err := store.ListByUser(ctx, "user_001", 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestQueryWithoutFallbackReturnsUpstreamError(t *testing.T) {
	ctx := context.Background()
	memoryClient, _ := newMemoryClient(t, time.Now())

	adapter, err := graph.NewAdapter(graph.Config{BaseURL: "http://127.0.0.1:1"}, memoryClient)
	require.NoError(t, err)

	_, err = adapter.Query(ctx, "user_001", "anything at all")
	assert.ErrorIs(t, err, graph.ErrUpstreamUnavailable)
}

func TestQueryServerErrorWithoutFallback(t *testing.T) {
	ctx := context.Background()
	memoryClient, _ := newMemoryClient(t, time.Now())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	adapter, err := graph.NewAdapter(graph.Config{BaseURL: server.URL}, memoryClient)
	require.NoError(t, err)

	_, err = adapter.Query(ctx, "user_001", "anything at all")
	assert.ErrorIs(t, err, graph.ErrUpstreamUnavailable)
}

func TestQueryTemporalReweighting(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	memoryClient, store := newMemoryClient(t, now)

	// The user has a fresh memory of entity "known"; "unknown" gets the
	// neutral factor and is outranked despite its higher raw score.
	require.NoError(t, store.Insert(ctx, &storage.MemoryEvent{
		ID: 1, UserID: "user_001", EntityID: "known", EntityType: storage.EntityTypeView,
		Content: "seen before", BaseWeight: 1.0, CreatedAt: now, UpdatedAt: now,
	}))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"entities": []map[string]interface{}{
				{"id": "unknown", "type": "object", "content": "a", "score": 1.0},
				{"id": "known", "type": "object", "content": "b", "score": 0.8},
			},
		})
	}))
	defer server.Close()

	adapter, err := graph.NewAdapter(graph.Config{
		BaseURL:           server.URL,
		TemporalWeighting: true,
	}, memoryClient)
	require.NoError(t, err)

	result, err := adapter.Query(ctx, "user_001", "cars")
	require.NoError(t, err)
	require.Len(t, result.Entities, 2)
	assert.Equal(t, "known", result.Entities[0].ID)
	assert.InDelta(t, 0.8, result.Entities[0].Score, 1e-3)
	assert.InDelta(t, 0.5, result.Entities[1].Score, 1e-9, "Unknown entities take the neutral factor")
}

func TestQueryRelevanceScoreMapSeedsReweighting(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	memoryClient, store := newMemoryClient(t, now)

	require.NoError(t, store.Insert(ctx, &storage.MemoryEvent{
		ID: 1, UserID: "user_001", EntityID: "e1", EntityType: storage.EntityTypeView,
		Content: "seen before", BaseWeight: 1.0, CreatedAt: now, UpdatedAt: now,
	}))

	// The upstream delivers scores only through the relevance map, not on
	// the entities themselves.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"entities": []map[string]interface{}{
				{"id": "e1", "type": "object", "content": "a"},
				{"id": "e2", "type": "object", "content": "b"},
			},
			"relevance_scores": map[string]float64{"e1": 0.93, "e2": 0.6},
		})
	}))
	defer server.Close()

	adapter, err := graph.NewAdapter(graph.Config{
		BaseURL:           server.URL,
		TemporalWeighting: true,
	}, memoryClient)
	require.NoError(t, err)

	result, err := adapter.Query(ctx, "user_001", "cars")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"e1": 0.93, "e2": 0.6}, result.RelevanceScores)
	require.Len(t, result.Entities, 2)
	assert.Equal(t, "e1", result.Entities[0].ID)
	assert.InDelta(t, 0.93, result.Entities[0].Score, 1e-3, "Fresh memory keeps the seeded score")
	assert.InDelta(t, 0.3, result.Entities[1].Score, 1e-9, "Unseen entities get seeded then the neutral factor")
}

func TestQueryWithContextAugmentsQuery(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	memoryClient, store := newMemoryClient(t, now)

	require.NoError(t, store.Insert(ctx, &storage.MemoryEvent{
		ID: 1, UserID: "user_001", EntityID: "ds_1", EntityType: storage.EntityTypeQuery,
		Content: "collisions downtown", BaseWeight: 1.0, CreatedAt: now, UpdatedAt: now,
	}))

	var received string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var request map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		received = request["query"].(string)
		json.NewEncoder(w).Encode(map[string]interface{}{})
	}))
	defer server.Close()

	adapter, err := graph.NewAdapter(graph.Config{BaseURL: server.URL}, memoryClient)
	require.NoError(t, err)

	_, err = adapter.QueryWithContext(ctx, "user_001", "collisions")
	require.NoError(t, err)
	assert.Equal(t, "collisions (context: collisions downtown)", received)

	// QueryWithContext opens a session.
	profile, err := memoryClient.GetOrCreateProfile(ctx, "user_001")
	require.NoError(t, err)
	require.NotNil(t, profile.DynamicContext.CurrentSession)
	assert.Equal(t, 1, profile.DynamicContext.CurrentSession.QueryCount)
}

func TestEvolveDelegatesToMemory(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	memoryClient, store := newMemoryClient(t, now)

	require.NoError(t, store.Insert(ctx, &storage.MemoryEvent{
		ID: 1, UserID: "user_001", EntityID: "entity_1", EntityType: storage.EntityTypeView,
		Content: "useful", BaseWeight: 1.0, CreatedAt: now, UpdatedAt: now,
	}))

	adapter, err := graph.NewAdapter(graph.Config{BaseURL: "http://127.0.0.1:1"}, memoryClient)
	require.NoError(t, err)

	reinforced, err := adapter.Evolve(ctx, "entity_1")
	require.NoError(t, err)
	assert.Equal(t, 1, reinforced)

	event, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, event.ReinforcedCount)
}

func TestPruneDelegatesToMaintenance(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	memoryClient, store := newMemoryClient(t, now)

	require.NoError(t, store.Insert(ctx, &storage.MemoryEvent{
		ID: 1, UserID: "user_001", EntityID: "e1", EntityType: storage.EntityTypeView,
		Content: "dead", BaseWeight: 1.0, CreatedAt: now.Add(-600 * time.Hour), UpdatedAt: now,
	}))

	adapter, err := graph.NewAdapter(graph.Config{BaseURL: "http://127.0.0.1:1"}, memoryClient)
	require.NoError(t, err)

	result, err := adapter.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Pruned)
	assert.Equal(t, 0, result.Remaining)
}
