package core_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgraphio/tempomem-go/pkg/core"
	"github.com/kgraphio/tempomem-go/pkg/memory"
	"github.com/kgraphio/tempomem-go/pkg/storage"
)

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("DATABASE_PROVIDER", "sqlite")
	t.Setenv("GRAPH_SERVICE_URL", "")
	t.Setenv("MAINTENANCE_SCHEDULE", "")

	config, err := core.LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", config.Storage.Provider)
	assert.Equal(t, "./tempomem.db", config.Storage.Config["db_path"])
	assert.Equal(t, "http://localhost:8000", config.Graph.BaseURL)
	assert.True(t, config.Graph.TemporalWeighting, "Temporal weighting defaults on")
	assert.False(t, config.Graph.FallbackOnError)
	assert.Nil(t, config.Maintenance)
	assert.Zero(t, config.Decay.HalfLifeHours, "Unset decay values defer to package defaults")
}

func TestLoadConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_PROVIDER", "postgres")
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_PORT", "5433")
	t.Setenv("POSTGRES_PASSWORD", "hunter2")
	t.Setenv("GRAPH_SERVICE_URL", "http://graph.internal:9000")
	t.Setenv("GRAPH_API_KEY", "key123")
	t.Setenv("GRAPH_FALLBACK", "true")
	t.Setenv("DECAY_HALF_LIFE_HOURS", "72")
	t.Setenv("MAINTENANCE_SCHEDULE", "30 2 * * *")

	config, err := core.LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "postgres", config.Storage.Provider)
	assert.Equal(t, "db.internal", config.Storage.Config["host"])
	assert.Equal(t, 5433, config.Storage.Config["port"])
	assert.Equal(t, "hunter2", config.Storage.Config["password"])
	assert.Equal(t, "http://graph.internal:9000", config.Graph.BaseURL)
	assert.Equal(t, "key123", config.Graph.APIKey)
	assert.True(t, config.Graph.FallbackOnError)
	assert.Equal(t, 72.0, config.Decay.HalfLifeHours)
	require.NotNil(t, config.Maintenance)
	assert.Equal(t, "30 2 * * *", config.Maintenance.Schedule)
}

func TestLoadConfigFromJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"storage": {"provider": "inmem"},
		"decay": {"half_life_hours": 24, "min_weight": 0.2},
		"graph": {"base_url": "http://localhost:8000", "fallback_on_error": true}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := core.LoadConfigFromJSON(path)
	require.NoError(t, err)
	assert.Equal(t, "inmem", config.Storage.Provider)
	assert.Equal(t, 24.0, config.Decay.HalfLifeHours)
	assert.Equal(t, 0.2, config.Decay.MinWeight)
	assert.True(t, config.Graph.FallbackOnError)
}

func TestLoadConfigFromJSONMissingFile(t *testing.T) {
	_, err := core.LoadConfigFromJSON("/nonexistent/config.json")
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	valid := &core.Config{
		Storage: core.StorageConfig{Provider: "inmem"},
		Graph:   core.GraphConfig{BaseURL: "http://localhost:8000"},
	}
	assert.NoError(t, valid.Validate())

	badProvider := &core.Config{
		Storage: core.StorageConfig{Provider: "redis"},
		Graph:   core.GraphConfig{BaseURL: "http://localhost:8000"},
	}
	assert.ErrorIs(t, badProvider.Validate(), core.ErrInvalidConfig)

	missingURL := &core.Config{
		Storage: core.StorageConfig{Provider: "inmem"},
	}
	assert.ErrorIs(t, missingURL.Validate(), core.ErrInvalidConfig)

	negativeDecay := &core.Config{
		Storage: core.StorageConfig{Provider: "inmem"},
		Decay:   core.DecayConfig{HalfLifeHours: -1},
		Graph:   core.GraphConfig{BaseURL: "http://localhost:8000"},
	}
	assert.ErrorIs(t, negativeDecay.Validate(), core.ErrInvalidConfig)
}

func TestNewClientInmemEndToEnd(t *testing.T) {
	ctx := context.Background()

	client, err := core.NewClient(&core.Config{
		Storage: core.StorageConfig{Provider: "inmem"},
		Graph: core.GraphConfig{
			BaseURL:         "http://127.0.0.1:1",
			FallbackOnError: true,
		},
	})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.AddMemory(ctx, "user_001", "ds_1", storage.EntityTypeView, "looked at dataset",
		memory.WithMetadata(map[string]interface{}{"source": "ui"}))
	require.NoError(t, err)

	_, err = client.RecordQuery(ctx, "user_001", "collisions downtown",
		memory.WithDatasetID("ds_1"), memory.WithDepth(3))
	require.NoError(t, err)

	profile, err := client.GetOrCreateProfile(ctx, "user_001")
	require.NoError(t, err)
	assert.Equal(t, 1, profile.Stats.TotalQueries)
	assert.Equal(t, []string{"ds_1"}, profile.TopResources)

	// The upstream is down but fallback keeps queries usable.
	result, err := client.QueryWithContext(ctx, "user_001", "collisions")
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.NotNil(t, result.Entities)

	stats, err := client.DecayStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total, "View, recorded query, and augmented query events")
}

func TestNewClientRejectsNilAndInvalid(t *testing.T) {
	_, err := core.NewClient(nil)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)

	_, err = core.NewClient(&core.Config{
		Storage: core.StorageConfig{Provider: "bogus"},
		Graph:   core.GraphConfig{BaseURL: "http://localhost:8000"},
	})
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}
