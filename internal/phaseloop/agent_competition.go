package phaseloop

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sherndon-labs/adventurecore/internal/agent"
	"github.com/sherndon-labs/adventurecore/internal/bus"
	"github.com/sherndon-labs/adventurecore/internal/proposal"
)

// competitionStages is the fixed three-round sequence (spec §4.L step 3).
var competitionStages = []string{"asset_placement", "camera_planning", "audio_narration"}

// AgentCompetitionPhase runs the three sequential proposal rounds over the
// same agent set, joining each survivor's submissions into a
// CompleteProposal (spec §4.L step 3). It drives the Proposal Batch
// Manager directly rather than through the `competition` default type
// handler — that handler exists for standalone DAG configs; the loop owns
// this protocol in-process.
type AgentCompetitionPhase struct {
	bus             *bus.Bus
	agents          []agent.Agent
	manager         *proposal.Manager
	completionEvent string
	timeout         time.Duration
}

func NewAgentCompetitionPhase(b *bus.Bus, agents []agent.Agent, mgr *proposal.Manager, completionEvent string, timeout time.Duration) *AgentCompetitionPhase {
	return &AgentCompetitionPhase{bus: b, agents: agents, manager: mgr, completionEvent: completionEvent, timeout: timeout}
}

func (p *AgentCompetitionPhase) Name() Name { return PhaseAgentCompetition }

func (p *AgentCompetitionPhase) Enter(ctx context.Context, pc *Context) (Name, *Context, error) {
	active := make([]string, 0, len(p.agents))
	byID := make(map[string]agent.Agent, len(p.agents))
	for _, a := range p.agents {
		active = append(active, a.ID())
		byID[a.ID()] = a
	}
	complete := make(map[string]*CompleteProposal)

	for _, stageKey := range competitionStages {
		if len(active) == 0 {
			break
		}

		batchID := pc.AdventureID + ":" + stageKey + ":" + uuid.NewString()
		deadline := time.Now().Add(p.timeout)
		p.manager.Open(proposal.RequestPayload{
			BatchID:        batchID,
			ProposalType:   stageKey,
			Context:        pc.Winner,
			Deadline:       deadline,
			ExpectedAgents: active,
		})

		resultCh := make(chan proposal.ResolutionPayload, 1)
		cancel := p.bus.Subscribe(p.completionEvent, func(e bus.Event) error {
			res, ok := e.Payload.(proposal.ResolutionPayload)
			if !ok || res.BatchID != batchID {
				return nil
			}
			select {
			case resultCh <- res:
			default:
			}
			return nil
		}, bus.Options{Once: true})

		var wg sync.WaitGroup
		for _, id := range active {
			a := byID[id]
			wg.Add(1)
			go func(a agent.Agent, cp *CompleteProposal) {
				defer wg.Done()
				challenge := buildChallenge(batchID, stageKey, pc.Winner, cp)
				prop, err := a.GenerateProposal(ctx, challenge)
				if err != nil || prop.Error != "" {
					return // drops out of this and all later stages
				}
				prop.BatchID = batchID
				prop.AgentID = a.ID()
				p.bus.Emit(proposal.EventSubmit, proposal.SubmitPayload{BatchID: batchID, AgentID: a.ID(), Proposal: prop})
			}(a, complete[id])
		}
		go wg.Wait() // resolution is driven by the batch manager's own completion/deadline, not by this wg

		var res proposal.ResolutionPayload
		select {
		case res = <-resultCh:
		case <-ctx.Done():
			cancel()
			return "", pc, ctx.Err()
		}
		cancel()

		nextActive := make([]string, 0, len(res.Received))
		for _, id := range res.Received {
			cp, ok := complete[id]
			if !ok {
				cp = &CompleteProposal{AgentID: id}
				complete[id] = cp
			}
			for _, prop := range res.Proposals {
				if prop.AgentID == id {
					applyStage(cp, stageKey, prop)
				}
			}
			nextActive = append(nextActive, id)
		}
		active = nextActive
	}

	pc.Active = active
	pc.Complete = complete
	return PhaseJudging, pc, nil
}

func buildChallenge(id, stageKey, genre string, prior *CompleteProposal) agent.Challenge {
	c := agent.Challenge{ID: id, Type: stageKey, Genre: genre}
	if prior != nil {
		if prior.AssetPlacement != nil {
			c.AssetProposal = prior.AssetPlacement.Data
		}
		if prior.CameraPlanning != nil {
			c.CameraProposal = prior.CameraPlanning.Data
		}
	}
	return c
}

func applyStage(cp *CompleteProposal, stageKey string, prop agent.Proposal) {
	p := prop
	switch stageKey {
	case "asset_placement":
		cp.AssetPlacement = &p
	case "camera_planning":
		cp.CameraPlanning = &p
	case "audio_narration":
		cp.AudioNarration = &p
	}
}
