package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgraphio/tempomem-go/pkg/core"
	"github.com/kgraphio/tempomem-go/pkg/decay"
	"github.com/kgraphio/tempomem-go/pkg/memory"
	"github.com/kgraphio/tempomem-go/pkg/storage/inmem"
)

func newSchedulerMemory(t *testing.T) *memory.Client {
	t.Helper()
	store := inmem.NewStore()
	client, err := memory.NewClient(store, store, decay.NewEngine(decay.Config{}))
	require.NoError(t, err)
	return client
}

func TestSchedulerStartStop(t *testing.T) {
	scheduler := core.NewScheduler(newSchedulerMemory(t), "")

	require.NoError(t, scheduler.Start())
	scheduler.Stop()
}

func TestSchedulerInvalidSchedule(t *testing.T) {
	scheduler := core.NewScheduler(newSchedulerMemory(t), "not a cron expression")

	err := scheduler.Start()
	assert.Error(t, err)
}

func TestSchedulerStopWithoutStart(t *testing.T) {
	scheduler := core.NewScheduler(newSchedulerMemory(t), "")
	scheduler.Stop()
}
