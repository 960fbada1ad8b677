// Package phaseloop implements the Story Loop Phase Machine (spec §4.L): a
// linear phase state machine driving one narrative cycle — genre selection,
// voting, a three-stage agent competition, judging, scene construction,
// presentation, and cleanup — before looping back to genre selection.
//
// Grounded on control_plane/coordination/leader.go's single-current-state
// plus callback-transition shape (there: isLeader / onElected / onLost
// driven by one coordinator loop; here: one current phase advanced by a
// single Run loop that awaits Enter() and dispatches the returned
// transition), generalized from a binary leader/follower state to an
// open-ended named phase chain.
package phaseloop

import (
	"context"

	"github.com/sherndon-labs/adventurecore/internal/agent"
	"github.com/sherndon-labs/adventurecore/internal/judge"
	"github.com/sherndon-labs/adventurecore/internal/voting"
)

// Name identifies a phase (spec §3 Phase).
type Name string

const (
	PhaseGenreSelection    Name = "genre-selection"
	PhaseVoting            Name = "voting"
	PhaseAgentCompetition  Name = "agent-competition"
	PhaseJudging           Name = "judging"
	PhaseSceneConstruction Name = "scene-construction"
	PhasePresentation      Name = "presentation"
	PhaseCleanup           Name = "cleanup"
)

const (
	EventGenresReady          = "loop:genres_ready"
	EventConstructionComplete = "loop:construction_completed"
	EventPhaseFailed          = "loop:phase_failed"
)

// CompleteProposal joins one agent's three-stage submissions (spec §4.L
// step 3). A nil stage field means that agent dropped out of, or never
// reached, that stage — the competition keeps going rather than aborting.
type CompleteProposal struct {
	AgentID        string
	AssetPlacement *agent.Proposal
	CameraPlanning *agent.Proposal
	AudioNarration *agent.Proposal
}

// Context carries data forward between phases, returned and replaced at
// every Enter call (spec §4.L: "each phase transitions by returning
// {nextPhase, context} from enter(context)").
type Context struct {
	AdventureID string

	Genres   []voting.Genre
	WinnerID string
	Winner   string

	Active   []string
	Complete map[string]*CompleteProposal
	Decision *judge.Decision
}

// Phase is one named step of the loop.
type Phase interface {
	Name() Name
	Enter(ctx context.Context, pc *Context) (Name, *Context, error)
}
