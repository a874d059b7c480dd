package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgraphio/tempomem-go/pkg/storage"
	"github.com/kgraphio/tempomem-go/pkg/storage/inmem"
)

func TestInmemEventCRUD(t *testing.T) {
	ctx := context.Background()
	store := inmem.NewStore()
	now := time.Now()

	event := &storage.MemoryEvent{
		ID:         1,
		UserID:     "test_user",
		EntityID:   "dataset_001",
		EntityType: storage.EntityTypeQuery,
		Content:    "collisions at night",
		Metadata:   map[string]interface{}{"depth": 2},
		BaseWeight: 1.0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, store.Insert(ctx, event))

	got, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "collisions at night", got.Content)
	assert.Equal(t, 2, got.Metadata["depth"])

	got.BaseWeight = 1.5
	got.ReinforcedCount = 3
	require.NoError(t, store.Update(ctx, got))

	updated, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1.5, updated.BaseWeight)
	assert.Equal(t, 3, updated.ReinforcedCount)

	require.NoError(t, store.Delete(ctx, 1))
	_, err = store.Get(ctx, 1)
	assert.ErrorIs(t, err, storage.ErrEventNotFound)
}

func TestInmemNotFound(t *testing.T) {
	ctx := context.Background()
	store := inmem.NewStore()

	_, err := store.Get(ctx, 999)
	assert.ErrorIs(t, err, storage.ErrEventNotFound)

	err = store.Update(ctx, &storage.MemoryEvent{ID: 999})
	assert.ErrorIs(t, err, storage.ErrEventNotFound)

	err = store.Delete(ctx, 999)
	assert.ErrorIs(t, err, storage.ErrEventNotFound)
}

func TestInmemListByUserOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	store := inmem.NewStore()
	now := time.Now()

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, store.Insert(ctx, &storage.MemoryEvent{
			ID: i, UserID: "test_user", EntityID: "e", EntityType: storage.EntityTypeView,
			Content: "event", BaseWeight: 1.0,
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.Insert(ctx, &storage.MemoryEvent{
		ID: 100, UserID: "other_user", EntityID: "e", EntityType: storage.EntityTypeView,
		Content: "not mine", BaseWeight: 1.0, CreatedAt: now,
	}))

	events, err := store.ListByUser(ctx, "test_user", 3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, int64(5), events[0].ID, "Most recent first")
	assert.Equal(t, int64(3), events[2].ID)

	all, err := store.ListByUser(ctx, "test_user", 0)
	require.NoError(t, err)
	assert.Len(t, all, 5, "Non-positive limit returns everything")
}

func TestInmemListByEntityCrossesUsers(t *testing.T) {
	ctx := context.Background()
	store := inmem.NewStore()
	now := time.Now()

	for i, user := range []string{"user_a", "user_b"} {
		require.NoError(t, store.Insert(ctx, &storage.MemoryEvent{
			ID: int64(i + 1), UserID: user, EntityID: "shared", EntityType: storage.EntityTypeView,
			Content: "shared", BaseWeight: 1.0, CreatedAt: now,
		}))
	}

	events, err := store.ListByEntity(ctx, "shared")
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestInmemProfileUpsert(t *testing.T) {
	ctx := context.Background()
	store := inmem.NewStore()
	now := time.Now()

	missing, err := store.GetProfile(ctx, "test_user")
	require.NoError(t, err)
	assert.Nil(t, missing, "Absent profile is nil, not an error")

	profile := &storage.UserProfile{
		UserID:    "test_user",
		CreatedAt: now,
		UpdatedAt: now,
		StaticContext: storage.StaticContext{
			Role: "analyst",
		},
	}
	require.NoError(t, store.SaveProfile(ctx, profile))

	profile.StaticContext.Role = "admin"
	require.NoError(t, store.SaveProfile(ctx, profile))

	got, err := store.GetProfile(ctx, "test_user")
	require.NoError(t, err)
	assert.Equal(t, "admin", got.StaticContext.Role)
}

func TestInmemProfileSessionNeverPersisted(t *testing.T) {
	ctx := context.Background()
	store := inmem.NewStore()
	now := time.Now()

	require.NoError(t, store.SaveProfile(ctx, &storage.UserProfile{
		UserID:    "test_user",
		CreatedAt: now,
		UpdatedAt: now,
		DynamicContext: storage.DynamicContext{
			CurrentSession: &storage.SessionInfo{StartedAt: now, QueryCount: 3},
		},
	}))

	got, err := store.GetProfile(ctx, "test_user")
	require.NoError(t, err)
	assert.Nil(t, got.DynamicContext.CurrentSession)
}

func TestInmemCopiesOnHandOff(t *testing.T) {
	ctx := context.Background()
	store := inmem.NewStore()
	now := time.Now()

	event := &storage.MemoryEvent{
		ID: 1, UserID: "test_user", EntityID: "e", EntityType: storage.EntityTypeView,
		Content: "original", Metadata: map[string]interface{}{"k": "v"},
		BaseWeight: 1.0, CreatedAt: now,
	}
	require.NoError(t, store.Insert(ctx, event))

	// Mutating the caller's copy must not leak into the store.
	event.Metadata["k"] = "mutated"

	got, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "v", got.Metadata["k"])
}
