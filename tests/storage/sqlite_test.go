package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgraphio/tempomem-go/pkg/storage"
	sqliteStore "github.com/kgraphio/tempomem-go/pkg/storage/sqlite"
)

func setupSQLiteTest(t *testing.T) *sqliteStore.Store {
	t.Helper()

	config := &sqliteStore.Config{
		DBPath: filepath.Join(t.TempDir(), "tempomem_test.db"),
	}

	store, err := sqliteStore.NewStore(config)
	require.NoError(t, err)
	require.NotNil(t, store)

	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestSQLiteInsertAndGet(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	expires := now.Add(48 * time.Hour)

	event := &storage.MemoryEvent{
		ID:         100,
		UserID:     "test_user",
		EntityID:   "dataset_001",
		EntityType: storage.EntityTypeQuery,
		Content:    "collisions at night",
		Metadata:   map[string]interface{}{"depth": 2.0},
		BaseWeight: 1.0,
		CreatedAt:  now,
		ExpiresAt:  &expires,
		UpdatedAt:  now,
	}
	require.NoError(t, store.Insert(ctx, event))

	got, err := store.Get(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "test_user", got.UserID)
	assert.Equal(t, storage.EntityTypeQuery, got.EntityType)
	assert.Equal(t, "collisions at night", got.Content)
	assert.Equal(t, 2.0, got.Metadata["depth"], "Metadata survives the JSON round trip")
	assert.Equal(t, 1.0, got.BaseWeight)
	require.NotNil(t, got.ExpiresAt)
	assert.WithinDuration(t, expires, *got.ExpiresAt, time.Second)
}

func TestSQLiteUpdateWeights(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()
	now := time.Now()

	event := &storage.MemoryEvent{
		ID: 1, UserID: "test_user", EntityID: "e", EntityType: storage.EntityTypeView,
		Content: "content", BaseWeight: 1.0, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.Insert(ctx, event))

	event.BaseWeight = 1.45
	event.ReinforcedCount = 2
	event.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, store.Update(ctx, event))

	got, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.45, got.BaseWeight, 1e-9)
	assert.Equal(t, 2, got.ReinforcedCount)
}

func TestSQLiteDeleteAndNotFound(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Insert(ctx, &storage.MemoryEvent{
		ID: 1, UserID: "test_user", EntityID: "e", EntityType: storage.EntityTypeView,
		Content: "content", BaseWeight: 1.0, CreatedAt: now, UpdatedAt: now,
	}))

	require.NoError(t, store.Delete(ctx, 1))

	_, err := store.Get(ctx, 1)
	assert.ErrorIs(t, err, storage.ErrEventNotFound)
	assert.ErrorIs(t, store.Delete(ctx, 1), storage.ErrEventNotFound)
	assert.ErrorIs(t, store.Update(ctx, &storage.MemoryEvent{ID: 1}), storage.ErrEventNotFound)
}

func TestSQLiteListByUser(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()
	now := time.Now()

	for i := int64(1); i <= 4; i++ {
		require.NoError(t, store.Insert(ctx, &storage.MemoryEvent{
			ID: i, UserID: "test_user", EntityID: "e", EntityType: storage.EntityTypeView,
			Content: "content", BaseWeight: 1.0,
			CreatedAt: now.Add(time.Duration(i) * time.Minute), UpdatedAt: now,
		}))
	}
	require.NoError(t, store.Insert(ctx, &storage.MemoryEvent{
		ID: 99, UserID: "other_user", EntityID: "e", EntityType: storage.EntityTypeView,
		Content: "content", BaseWeight: 1.0, CreatedAt: now, UpdatedAt: now,
	}))

	events, err := store.ListByUser(ctx, "test_user", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(4), events[0].ID, "Most recent first")

	all, err := store.ListByUser(ctx, "test_user", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestSQLiteListByEntity(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()
	now := time.Now()

	for i, user := range []string{"user_a", "user_b"} {
		require.NoError(t, store.Insert(ctx, &storage.MemoryEvent{
			ID: int64(i + 1), UserID: user, EntityID: "shared", EntityType: storage.EntityTypeView,
			Content: "content", BaseWeight: 1.0, CreatedAt: now, UpdatedAt: now,
		}))
	}

	events, err := store.ListByEntity(ctx, "shared")
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestSQLiteProfileRoundTrip(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	missing, err := store.GetProfile(ctx, "test_user")
	require.NoError(t, err)
	assert.Nil(t, missing)

	profile := &storage.UserProfile{
		UserID:    "test_user",
		CreatedAt: now,
		UpdatedAt: now,
		StaticContext: storage.StaticContext{
			Role:        "analyst",
			Expertise:   []string{"traffic", "safety"},
			Preferences: map[string]interface{}{"lang": "en"},
		},
		DynamicContext: storage.DynamicContext{
			RecentQueries:  []string{"q1", "q2"},
			RecentDatasets: []string{"ds1"},
			CurrentSession: &storage.SessionInfo{StartedAt: now, QueryCount: 2},
		},
		SearchPatterns: []string{"collision", "night"},
		TopResources:   []string{"ds1"},
	}
	profile.Stats.TotalQueries = 7
	profile.Stats.AvgQueryDepth = 2.5
	profile.Stats.Interactions = map[string]int{"query": 7}
	require.NoError(t, store.SaveProfile(ctx, profile))

	got, err := store.GetProfile(ctx, "test_user")
	require.NoError(t, err)
	assert.Equal(t, "analyst", got.StaticContext.Role)
	assert.Equal(t, []string{"traffic", "safety"}, got.StaticContext.Expertise)
	assert.Equal(t, []string{"q1", "q2"}, got.DynamicContext.RecentQueries)
	assert.Nil(t, got.DynamicContext.CurrentSession, "Sessions are never persisted")
	assert.Equal(t, []string{"collision", "night"}, got.SearchPatterns)
	assert.Equal(t, 7, got.Stats.TotalQueries)
	assert.InDelta(t, 2.5, got.Stats.AvgQueryDepth, 1e-9)

	// Upsert replaces.
	profile.StaticContext.Role = "admin"
	require.NoError(t, store.SaveProfile(ctx, profile))

	got, err = store.GetProfile(ctx, "test_user")
	require.NoError(t, err)
	assert.Equal(t, "admin", got.StaticContext.Role)
}
