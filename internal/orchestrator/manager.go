// Package orchestrator implements the Orchestrator Manager (spec §4.I):
// config resolution, the stage handler registry, and adventure lifecycle.
//
// One-active-adventure-per-id enforcement is grounded on the teacher's
// control_plane/coordination.LeaderElector: that type guards a single
// cluster-wide leadership slot with a mutex-protected boolean plus a
// fencing epoch; here the same "refuse to start a second holder" shape
// guards N independent per-adventure-id slots instead of one global one,
// and a monotonically increasing epoch per id replaces the elector's
// fencing token so a late result from a superseded run cannot be mistaken
// for the current one.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sherndon-labs/adventurecore/internal/bus"
	"github.com/sherndon-labs/adventurecore/internal/corerr"
	"github.com/sherndon-labs/adventurecore/internal/dag"
	"github.com/sherndon-labs/adventurecore/internal/state"
)

// HandlerFactory builds a stage handler for a given stage config. Factories
// are registered per stage.type (spec §4.I precedence rule 2).
type HandlerFactory func(stage dag.StageConfig) dag.StageHandler

// StartOptions configures a startAdventure call.
type StartOptions struct {
	InitialContext any
	AutoReset      bool // Reset() the Runner once it reaches a terminal state
}

// ShutdownOptions configures shutdown.
type ShutdownOptions struct {
	WaitForCompletion bool
}

// Result is the outcome a Handle's promise resolves to.
type Result struct {
	Results map[string]any
	Err     error
}

// Handle is what startAdventure returns: the running adventure's id, its
// Runner, and a promise-like Wait for its eventual Result.
type Handle struct {
	ID     string
	Runner *dag.Runner
	epoch  int64

	done   chan struct{}
	result Result
}

// Wait blocks until the adventure reaches a terminal state.
func (h *Handle) Wait() (map[string]any, error) {
	<-h.done
	return h.result.Results, h.result.Err
}

// Manager owns config resolution, the type/stage handler registries, and
// the set of currently active adventures.
type Manager struct {
	bus        *bus.Bus
	storyState *state.Store
	configs    ConfigSource

	mu            sync.Mutex
	typeHandlers  map[string]HandlerFactory
	stageHandlers map[string]dag.StageHandler
	active        map[string]*Handle
	epochs        map[string]int64

	wg sync.WaitGroup
}

// New constructs a Manager. configDir is the directory named configs are
// resolved against (may be empty if only literal configs are used).
func New(b *bus.Bus, storyState *state.Store, configDir string) *Manager {
	return &Manager{
		bus:           b,
		storyState:    storyState,
		configs:       ConfigSource{Dir: configDir},
		typeHandlers:  make(map[string]HandlerFactory),
		stageHandlers: make(map[string]dag.StageHandler),
		active:        make(map[string]*Handle),
		epochs:        make(map[string]int64),
	}
}

// RegisterTypeHandler registers factory against every stage whose
// StageConfig.Type == stageType and which has no explicit per-id override.
func (m *Manager) RegisterTypeHandler(stageType string, factory HandlerFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typeHandlers[stageType] = factory
}

// RegisterStageHandler registers handler against one specific stage id,
// taking precedence over any type factory for that stage (spec §4.I
// precedence rule 1).
func (m *Manager) RegisterStageHandler(stageID string, handler dag.StageHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stageHandlers[stageID] = handler
}

// StartAdventure resolves configOrName, builds the per-run handler set and
// a Runner, and launches it in the background. Only one adventure per
// (resolved) config id may be active at a time.
func (m *Manager) StartAdventure(configOrName any, opts StartOptions) (*Handle, error) {
	cfg, err := m.configs.Resolve(configOrName)
	if err != nil {
		return nil, err
	}
	if cfg.ID == "" {
		return nil, &corerr.ConfigError{Subject: "<unnamed>", Reason: "resolved config has no id"}
	}

	m.mu.Lock()
	if _, running := m.active[cfg.ID]; running {
		m.mu.Unlock()
		return nil, &corerr.AdventureAlreadyActive{ID: cfg.ID}
	}
	m.epochs[cfg.ID]++
	epoch := m.epochs[cfg.ID]

	runCfg, handlers := m.resolveHandlers(cfg)
	runner := dag.NewRunner(runCfg, handlers, m.bus, m.storyState)

	h := &Handle{ID: cfg.ID, Runner: runner, epoch: epoch, done: make(chan struct{})}
	m.active[cfg.ID] = h
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(h, opts)

	return h, nil
}

func (m *Manager) run(h *Handle, opts StartOptions) {
	defer m.wg.Done()

	results, err := h.Runner.Start(context.Background(), opts.InitialContext)
	h.result = Result{Results: results, Err: err}
	close(h.done)

	m.mu.Lock()
	defer m.mu.Unlock()
	// a superseded epoch (the id was restarted out from under this run)
	// must not clobber the newer holder's active-set entry.
	if m.epochs[h.ID] == h.epoch {
		if opts.AutoReset {
			_ = h.Runner.Reset()
		}
		delete(m.active, h.ID)
	}
}

// GetActiveAdventures lists the ids currently running, sorted for
// deterministic output.
func (m *Manager) GetActiveAdventures() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.active))
	for id := range m.active {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Shutdown drops the active set. Per spec §5, this does not forcibly kill
// in-flight stage work — handlers are expected to be timeout-bounded and
// will finish (or fail their budget) on their own; WaitForCompletion only
// controls whether this call blocks until every launched goroutine exits.
func (m *Manager) Shutdown(opts ShutdownOptions) {
	m.mu.Lock()
	m.active = make(map[string]*Handle)
	m.mu.Unlock()

	if opts.WaitForCompletion {
		m.wg.Wait()
	}
}

// resolveHandlers applies the precedence rule (explicit stage handler >
// type factory > no-op) once per run and returns a Config whose stage
// Types have been rewritten to per-stage dispatch keys, alongside the
// dispatch-key → handler map the dag package expects. Rewriting avoids
// collapsing two same-typed stages onto one resolved handler when only
// one of them has an explicit per-id override.
func (m *Manager) resolveHandlers(cfg *dag.Config) (*dag.Config, map[string]dag.StageHandler) {
	runCfg := cfg.Clone()
	handlers := make(map[string]dag.StageHandler, len(runCfg.Stages))

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range runCfg.Stages {
		original := cfg.Stages[i]
		dispatchKey := fmt.Sprintf("%s#%s", original.Type, original.ID)

		handler, ok := m.stageHandlers[original.ID]
		if !ok {
			if factory, ok2 := m.typeHandlers[original.Type]; ok2 {
				handler = factory(original)
			} else {
				handler = defaultNoopHandler
			}
		}

		handlers[dispatchKey] = handler
		runCfg.Stages[i].Type = dispatchKey
	}
	return runCfg, handlers
}

func defaultNoopHandler(_ context.Context, _ dag.HandlerInput) (any, error) {
	return map[string]any{"skipped": true}, nil
}
