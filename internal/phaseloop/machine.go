package phaseloop

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sherndon-labs/adventurecore/internal/agent"
	"github.com/sherndon-labs/adventurecore/internal/bus"
	"github.com/sherndon-labs/adventurecore/internal/judge"
	"github.com/sherndon-labs/adventurecore/internal/observability"
	"github.com/sherndon-labs/adventurecore/internal/proposal"
	"github.com/sherndon-labs/adventurecore/internal/state"
	"github.com/sherndon-labs/adventurecore/internal/voting"
)

// PhaseFailedPayload is the loop:phase_failed event payload. The Story
// State snapshot at failure time is grounded on
// control_plane/incident/capture.go's IncidentReport: a failure snapshot
// bundling every piece of state relevant to post-mortem replay, narrowed
// here from {desired state, agent, jobs, timeline events} to the one
// shared mutable structure the loop has — Story State.
type PhaseFailedPayload struct {
	Phase         Name
	Error         string
	StateSnapshot state.Snapshot
	CapturedAt    time.Time
}

// Deps bundles the components Machine wires its phases to.
type Deps struct {
	Bus    *bus.Bus
	State  *state.Store
	Agents []agent.Agent

	ProposalManager     *proposal.Manager
	CompletionEvent     string // the event name ProposalManager was constructed with
	JudgePanel          *judge.Panel
	Votes               *voting.Collector
	VotingCompleteEvent string // the event name Votes was constructed with

	Config Config
}

// Machine runs one current phase at a time, advancing via the transition
// each phase's Enter returns (spec §4.L). Cooperative Stop is modeled
// after leader.go's distinction between "currently leader" and "should
// remain leader": here, a stop request is only honored between phases, so
// a phase in flight always runs to completion.
type Machine struct {
	bus    *bus.Bus
	state  *state.Store
	phases map[Name]Phase

	stopRequested atomic.Bool
}

// New constructs a Machine with one instance of every phase, wired to deps.
func New(deps Deps) *Machine {
	cfg := deps.Config
	m := &Machine{bus: deps.Bus, state: deps.State, phases: make(map[Name]Phase, 7)}

	register := func(p Phase) { m.phases[p.Name()] = p }

	register(NewGenreSelectionPhase(deps.Bus, deps.State, cfg))
	register(NewVotingPhase(deps.Bus, deps.State, deps.Votes, deps.VotingCompleteEvent, cfg.VotingDuration))
	register(NewAgentCompetitionPhase(deps.Bus, deps.Agents, deps.ProposalManager, deps.CompletionEvent, cfg.ProposalTimeout))
	register(NewJudgingPhase(deps.JudgePanel, deps.State))
	register(NewSceneConstructionPhase(deps.Bus, cfg.MCPTimeout))
	register(NewPresentationPhase(deps.Bus, cfg))
	register(NewCleanupPhase(deps.Bus, deps.State, cfg.CleanupCountdown, cfg.MCPTimeout))

	return m
}

// Run drives the loop starting at GenreSelection until ctx is canceled or
// Stop is called. It returns nil on a cooperative stop, or ctx.Err() if a
// phase returned because its context was canceled.
func (m *Machine) Run(ctx context.Context, adventureID string) error {
	cur := PhaseGenreSelection
	pc := &Context{AdventureID: adventureID}

	for {
		phase, ok := m.phases[cur]
		if !ok {
			return fmt.Errorf("phaseloop: no phase registered for %q", cur)
		}

		next, newPc, err := phase.Enter(ctx, pc)
		if newPc != nil {
			pc = newPc
		}

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			observability.PhaseFailures.WithLabelValues(string(cur)).Inc()
			m.bus.Emit(EventPhaseFailed, PhaseFailedPayload{
				Phase:         cur,
				Error:         err.Error(),
				StateSnapshot: m.state.Snapshot(),
				CapturedAt:    time.Now(),
			})
			next = PhaseCleanup
		} else {
			observability.PhaseTransitions.WithLabelValues(string(cur), string(next)).Inc()
		}

		cur = next
		if m.stopRequested.Load() {
			return nil
		}
	}
}

// Stop requests a cooperative halt: the in-flight phase runs to
// completion, and no further transition is taken after it (spec §4.L).
func (m *Machine) Stop() {
	m.stopRequested.Store(true)
}
