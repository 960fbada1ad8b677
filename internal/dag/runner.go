package dag

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sherndon-labs/adventurecore/internal/bus"
	"github.com/sherndon-labs/adventurecore/internal/corerr"
	"github.com/sherndon-labs/adventurecore/internal/observability"
	"github.com/sherndon-labs/adventurecore/internal/state"
)

// HandlerInput is what a stage handler receives (spec §4.H execution
// semantics).
type HandlerInput struct {
	Stage          StageConfig
	DAG            *Config
	StoryState     *state.Store
	Results        map[string]any // deep-copied snapshot of completed stages' outputs
	InitialContext any
	Emit           func(eventType string, payload any)
}

// StageHandler executes one stage and returns its output, or an error.
type StageHandler func(ctx context.Context, in HandlerInput) (any, error)

// Event names emitted on the bus (spec §4.H).
const (
	EventStageScheduled = "orchestrator:stage:scheduled"
	EventStageStart     = "orchestrator:stage:start"
	EventStageRetry     = "orchestrator:stage:retry"
	EventStageComplete  = "orchestrator:stage:complete"
	EventStageFailed    = "orchestrator:stage:failed"
	EventComplete       = "orchestrator:complete"
	EventFailed         = "orchestrator:failed"
)

type stageResult struct {
	stageID string
	output  any
	err     error
	final   bool // true if this is the terminal outcome for the stage (no more retries)
}

// Runner executes one Config at a time per instance (spec §4.H:
// "reset() only when no in-flight stages" implies single-run-at-a-time
// semantics per Runner).
type Runner struct {
	cfg        *Config
	handlers   map[string]StageHandler
	bus        *bus.Bus
	storyState *state.Store

	mu       sync.Mutex
	rs       *runState
	running  bool
	started  time.Time
}

// NewRunner constructs a Runner for cfg. handlers maps stage type to the
// function that executes it; registerStageHandler-equivalent callers
// should populate this before Start.
func NewRunner(cfg *Config, handlers map[string]StageHandler, b *bus.Bus, storyState *state.Store) *Runner {
	return &Runner{cfg: cfg, handlers: handlers, bus: b, storyState: storyState}
}

// Start validates the DAG and runs it to completion, returning the final
// results snapshot or the terminal error (spec §4.H: "start(initialContext)
// → promise<result>").
func (r *Runner) Start(ctx context.Context, initialContext any) (map[string]any, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, &corerr.ConfigError{Subject: r.cfg.ID, Reason: err.Error()}
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, fmt.Errorf("dag %q: already running", r.cfg.ID)
	}
	r.rs = newRunState(r.cfg.Stages)
	r.running = true
	r.started = time.Now()
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	return r.coordinate(ctx, initialContext)
}

// GetStatus returns every stage's current status.
func (r *Runner) GetStatus() map[string]Status {
	r.mu.Lock()
	rs := r.rs
	r.mu.Unlock()
	if rs == nil {
		return nil
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make(map[string]Status, len(rs.stages))
	for id, s := range rs.stages {
		out[id] = s.status
	}
	return out
}

// Reset clears run state, only permitted when no stages are in flight.
func (r *Runner) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("dag %q: cannot reset while running", r.cfg.ID)
	}
	r.rs = nil
	return nil
}

func (r *Runner) coordinate(ctx context.Context, initialContext any) (map[string]any, error) {
	rs := r.rs
	completedChan := make(chan stageResult, len(r.cfg.Stages)+1)
	inFlight := make(map[string]context.CancelFunc)
	var wg sync.WaitGroup

	if len(r.cfg.Stages) == 0 {
		return map[string]any{}, nil
	}

	for {
		if rs.allTerminal() {
			break
		}

		ready := rs.readyStages()
		for _, id := range ready {
			rs.setStatus(id, StatusScheduled)
			observability.DAGQueueDepth.WithLabelValues(r.cfg.ID).Set(float64(len(ready)))
			r.bus.Emit(EventStageScheduled, map[string]any{"dagId": r.cfg.ID, "stageId": id})

			stageCtx, cancel := context.WithCancel(ctx)
			inFlight[id] = cancel
			wg.Add(1)
			go r.runStage(stageCtx, &wg, rs, id, initialContext, completedChan)
		}

		select {
		case res := <-completedChan:
			delete(inFlight, res.stageID)
			if !res.final {
				// a retry's delay has elapsed (handled inside runStage); the
				// stage stayed scheduled, so it is relaunched directly
				// without a second orchestrator:stage:scheduled event.
				stageCtx, cancel := context.WithCancel(ctx)
				inFlight[res.stageID] = cancel
				wg.Add(1)
				go r.runStage(stageCtx, &wg, rs, res.stageID, initialContext, completedChan)
				continue
			}
			if res.err != nil {
				r.onStageFailed(rs, res)
				if rs.get(res.stageID).status == StatusFailed {
					r.failDAG(rs, inFlight, &wg)
					return nil, res.err
				}
				continue
			}
			r.onStageComplete(rs, res)

		case <-ctx.Done():
			r.failDAG(rs, inFlight, &wg)
			return nil, ctx.Err()
		}
	}

	wg.Wait()
	results := rs.resultsSnapshot()
	observability.DAGOutcome.WithLabelValues("complete").Inc()
	r.bus.Emit(EventComplete, map[string]any{"dagId": r.cfg.ID, "results": deepCopyAny(results)})
	return results, nil
}

func (r *Runner) runStage(ctx context.Context, wg *sync.WaitGroup, rs *runState, id string, initialContext any, out chan<- stageResult) {
	defer wg.Done()

	s := rs.get(id)
	handler, ok := r.handlers[s.config.Type]
	if !ok {
		out <- stageResult{stageID: id, err: &corerr.HandlerMissing{StageID: id, StageType: s.config.Type}, final: true}
		return
	}

	rs.setStatus(id, StatusRunning)
	s.attempts++
	s.startedAt = time.Now()
	r.bus.Emit(EventStageStart, map[string]any{"dagId": r.cfg.ID, "stageId": id, "attempt": s.attempts})

	input := HandlerInput{
		Stage:          s.config,
		DAG:            r.cfg,
		StoryState:     r.storyState,
		Results:        deepCopyAny(rs.resultsSnapshot()).(map[string]any),
		InitialContext: initialContext,
		Emit:           r.bus.Emit,
	}

	var output any
	var err error
	if s.config.Budget.TimeMs > 0 {
		output, err = r.runWithBudget(ctx, handler, input, time.Duration(s.config.Budget.TimeMs)*time.Millisecond, id)
	} else {
		output, err = handler(ctx, input)
	}

	s.completedAt = time.Now()
	observability.StageDuration.WithLabelValues(s.config.Type, statusLabel(err)).Observe(s.completedAt.Sub(s.startedAt).Seconds())

	if err == nil {
		rs.mu.Lock()
		s.result = output
		s.status = StatusCompleted
		rs.mu.Unlock()
		out <- stageResult{stageID: id, output: output, final: true}
		return
	}

	s.lastError = err
	if s.attempts-1 < s.config.Retry.Attempts {
		rs.setStatus(id, StatusScheduled)
		r.bus.Emit(EventStageFailed, map[string]any{"dagId": r.cfg.ID, "stageId": id, "attempt": s.attempts, "error": err.Error()})
		r.bus.Emit(EventStageRetry, map[string]any{"dagId": r.cfg.ID, "stageId": id, "attempt": s.attempts, "error": err.Error()})
		go func() {
			time.Sleep(dependsMs(s.config.Retry))
			out <- stageResult{stageID: id, final: false}
		}()
		return
	}

	if s.config.Optional {
		rs.setStatus(id, StatusSkipped)
		out <- stageResult{stageID: id, final: true}
		return
	}

	rs.setStatus(id, StatusFailed)
	out <- stageResult{stageID: id, err: err, final: true}
}

func (r *Runner) runWithBudget(ctx context.Context, handler StageHandler, in HandlerInput, budget time.Duration, stageID string) (any, error) {
	budgetCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type res struct {
		output any
		err    error
	}
	ch := make(chan res, 1)
	go func() {
		output, err := handler(budgetCtx, in)
		ch <- res{output, err}
	}()

	select {
	case r := <-ch:
		return r.output, r.err
	case <-budgetCtx.Done():
		return nil, &corerr.StageTimeout{StageID: stageID, Budget: budget.String()}
	}
}

func (r *Runner) onStageComplete(rs *runState, res stageResult) {
	r.bus.Emit(EventStageComplete, map[string]any{"dagId": r.cfg.ID, "stageId": res.stageID})
}

func (r *Runner) onStageFailed(rs *runState, res stageResult) {
	r.bus.Emit(EventStageFailed, map[string]any{"dagId": r.cfg.ID, "stageId": res.stageID, "error": res.err.Error()})
}

func (r *Runner) failDAG(rs *runState, inFlight map[string]context.CancelFunc, wg *sync.WaitGroup) {
	for _, cancel := range inFlight {
		cancel()
	}
	rs.blockRemaining()
	wg.Wait()
	observability.DAGOutcome.WithLabelValues("failed").Inc()
	r.bus.Emit(EventFailed, map[string]any{"dagId": r.cfg.ID})
}

func statusLabel(err error) string {
	if err == nil {
		return "success"
	}
	return "failure"
}

// deepCopyAny clones JSON-like values (maps, slices, primitives) so stage
// handlers never observe a mutable alias of another stage's committed
// output (Open Question decision: results snapshots are deep-copied).
func deepCopyAny(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopyAny(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyAny(item)
		}
		return out
	default:
		return val
	}
}
