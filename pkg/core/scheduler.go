package core

import (
	"context"
	"log"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/kgraphio/tempomem-go/pkg/memory"
)

// DefaultMaintenanceSchedule runs maintenance daily at 03:00.
const DefaultMaintenanceSchedule = "0 3 * * *"

// maintenanceTimeout bounds one scheduled maintenance run.
const maintenanceTimeout = 5 * time.Minute

// Scheduler runs periodic decay maintenance: batch re-weighting followed by
// expiry/low-weight pruning.
type Scheduler struct {
	memory   *memory.Client
	schedule string
	cron     *rcron.Cron
}

// NewScheduler creates a maintenance scheduler over the memory client. An
// empty schedule takes DefaultMaintenanceSchedule.
func NewScheduler(memoryClient *memory.Client, schedule string) *Scheduler {
	if schedule == "" {
		schedule = DefaultMaintenanceSchedule
	}
	return &Scheduler{
		memory:   memoryClient,
		schedule: schedule,
	}
}

// Start registers the maintenance job and starts the cron loop.
//
// Returns an error if the schedule expression cannot be parsed.
func (s *Scheduler) Start() error {
	s.cron = rcron.New()
	if _, err := s.cron.AddFunc(s.schedule, s.runOnce); err != nil {
		return NewEngineError("StartMaintenance", err)
	}
	s.cron.Start()
	log.Printf("[maintenance] scheduled with %q", s.schedule)
	return nil
}

// Stop halts the cron loop. Safe to call when never started.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// runOnce executes one maintenance pass. Failures are logged, never fatal;
// the next scheduled run retries.
func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceTimeout)
	defer cancel()

	updated, err := s.memory.ApplyDecayBatch(ctx)
	if err != nil {
		log.Printf("[maintenance] decay batch failed: %v", err)
		return
	}

	pruned, err := s.memory.Prune(ctx)
	if err != nil {
		log.Printf("[maintenance] prune failed: %v", err)
		return
	}

	log.Printf("[maintenance] applied decay to %d events, pruned %d, %d remaining",
		updated, pruned.Pruned, pruned.Remaining)
}
