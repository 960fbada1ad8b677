package ledger

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler drives periodic Reset(scope) calls on a cron expression
// (e.g. daily/hourly cap resets), rather than hand-rolled ticker math.
// Grounded on the cron-based job scheduling idiom teradata-labs/loom uses
// for its own recurring background work.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler constructs a Scheduler backed by a cron runner using the
// local time zone.
func NewScheduler() *Scheduler {
	return &Scheduler{cron: cron.New()}
}

// ScheduleReset registers a cron-triggered reset for (agentID, provider).
// Empty agentID/provider reset broadly, matching Ledger.Reset's scoping
// rules. Returns the cron entry id so callers can remove it later.
func (s *Scheduler) ScheduleReset(spec string, l *Ledger, agentID, provider string) (cron.EntryID, error) {
	return s.cron.AddFunc(spec, func() {
		l.Reset(agentID, provider, time.Now())
	})
}

// Remove cancels a previously scheduled reset.
func (s *Scheduler) Remove(id cron.EntryID) {
	s.cron.Remove(id)
}

// Start begins running scheduled resets in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
