package dag

import (
	"sync"
	"time"
)

// stageState is a stage's mutable runtime state during one DAG run.
type stageState struct {
	config      StageConfig
	status      Status
	attempts    int
	lastError   error
	result      any
	startedAt   time.Time
	completedAt time.Time
}

// runState tracks every stage's state plus derived readiness for one run,
// guarded by a single mutex — the coordinator loop is the only concurrent
// writer besides the per-stage worker goroutines, which only report back
// through channels (grounded on the Jeeves DAGExecutor's "each stage
// writes to its own output slot" invariant).
type runState struct {
	mu     sync.Mutex
	stages map[string]*stageState
	order  []string
}

func newRunState(stages []StageConfig) *runState {
	rs := &runState{stages: make(map[string]*stageState, len(stages))}
	for _, s := range stages {
		rs.stages[s.ID] = &stageState{config: s, status: StatusPending}
		rs.order = append(rs.order, s.ID)
	}
	return rs
}

func (rs *runState) get(id string) *stageState {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.stages[id]
}

func (rs *runState) setStatus(id string, status Status) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.stages[id].status = status
}

// readyStages returns pending stages whose every dependency is completed
// or skipped (spec §4.H schedule eligibility).
func (rs *runState) readyStages() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	var ready []string
	for _, id := range rs.order {
		s := rs.stages[id]
		if s.status != StatusPending {
			continue
		}
		allSatisfied := true
		for _, dep := range s.config.DependsOn {
			depStatus := rs.stages[dep].status
			if depStatus != StatusCompleted && depStatus != StatusSkipped {
				allSatisfied = false
				break
			}
		}
		if allSatisfied {
			ready = append(ready, id)
		}
	}
	return ready
}

// allTerminal reports whether every stage has reached a terminal status.
func (rs *runState) allTerminal() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for _, s := range rs.stages {
		switch s.status {
		case StatusCompleted, StatusFailed, StatusSkipped, StatusBlocked:
			continue
		default:
			return false
		}
	}
	return true
}

// resultsSnapshot returns a map of completed stage ids to their results,
// deep-copy semantics enforced by the caller per the Open Question
// resolving stage handler input isolation.
func (rs *runState) resultsSnapshot() map[string]any {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make(map[string]any, len(rs.stages))
	for id, s := range rs.stages {
		if s.status == StatusCompleted {
			out[id] = s.result
		}
	}
	return out
}

// blockRemaining transitions every non-terminal stage to blocked (spec
// §4.H final-failure semantics).
func (rs *runState) blockRemaining() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for _, s := range rs.stages {
		switch s.status {
		case StatusPending, StatusScheduled, StatusRunning:
			s.status = StatusBlocked
		}
	}
}
