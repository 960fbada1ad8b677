package phaseloop

import (
	"context"
	"sort"
	"strings"

	"github.com/sherndon-labs/adventurecore/internal/agent"
	"github.com/sherndon-labs/adventurecore/internal/judge"
	"github.com/sherndon-labs/adventurecore/internal/state"
)

// JudgingPhase invokes the Judge Panel over the joined Complete Proposals
// (spec §4.L step 4).
type JudgingPhase struct {
	panel *judge.Panel
	state *state.Store
}

func NewJudgingPhase(p *judge.Panel, s *state.Store) *JudgingPhase {
	return &JudgingPhase{panel: p, state: s}
}

func (p *JudgingPhase) Name() Name { return PhaseJudging }

func (p *JudgingPhase) Enter(ctx context.Context, pc *Context) (Name, *Context, error) {
	agentIDs := make([]string, 0, len(pc.Complete))
	for id := range pc.Complete {
		agentIDs = append(agentIDs, id)
	}
	sort.Strings(agentIDs)

	proposals := make([]agent.Proposal, 0, len(agentIDs))
	for _, id := range agentIDs {
		proposals = append(proposals, joinProposal(pc.Complete[id]))
	}

	batchID := pc.AdventureID + ":judging"
	decision := p.panel.EvaluateBatch(ctx, batchID, proposals)

	p.state.SetPath("competition.winner", decision.Winner)
	p.state.SetPath("competition.decision", map[string]any{
		"winner":     decision.Winner,
		"reasoning":  decision.Reasoning,
		"confidence": string(decision.Confidence),
		"concerns":   decision.Concerns,
	})

	pc.Decision = &decision
	return PhaseSceneConstruction, pc, nil
}

// joinProposal combines one agent's three staged submissions into the
// single unit the Judge Panel scores (spec §4.L step 3: "Results are
// joined per agent into a single Complete Proposal").
func joinProposal(cp *CompleteProposal) agent.Proposal {
	out := agent.Proposal{AgentID: cp.AgentID}
	data := map[string]any{}
	var reasoning []string
	var summary []string

	if cp.AssetPlacement != nil {
		data["batches"] = dataField(cp.AssetPlacement.Data, "batches")
		reasoning = append(reasoning, cp.AssetPlacement.Reasoning)
		summary = append(summary, cp.AssetPlacement.Summary)
		out.BatchID = cp.AssetPlacement.BatchID
		out.TokensUsed += cp.AssetPlacement.TokensUsed
	}
	if cp.CameraPlanning != nil {
		data["shots"] = dataField(cp.CameraPlanning.Data, "shots")
		reasoning = append(reasoning, cp.CameraPlanning.Reasoning)
		summary = append(summary, cp.CameraPlanning.Summary)
		out.TokensUsed += cp.CameraPlanning.TokensUsed
	}
	if cp.AudioNarration != nil {
		data["audio"] = cp.AudioNarration.Data
		reasoning = append(reasoning, cp.AudioNarration.Reasoning)
		summary = append(summary, cp.AudioNarration.Summary)
		out.TokensUsed += cp.AudioNarration.TokensUsed
	}

	out.Data = data
	out.Reasoning = strings.Join(nonEmpty(reasoning), " ")
	out.Summary = strings.Join(nonEmpty(summary), " ")
	return out
}

func dataField(data any, field string) any {
	m, ok := data.(map[string]any)
	if !ok {
		return nil
	}
	return m[field]
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
