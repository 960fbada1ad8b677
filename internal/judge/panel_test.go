package judge

import (
	"context"
	"errors"
	"testing"

	"github.com/sherndon-labs/adventurecore/internal/agent"
)

type fixedJudge struct {
	id         string
	weight     float64
	winner     string
	confidence Confidence
	err        error
}

func (f *fixedJudge) ID() string          { return f.id }
func (f *fixedJudge) Specialty() string   { return "test" }
func (f *fixedJudge) Weight() float64     { return f.weight }
func (f *fixedJudge) Strictness() float64 { return 1 }
func (f *fixedJudge) Evaluate(ctx context.Context, proposals []agent.Proposal) (Evaluation, error) {
	if f.err != nil {
		return Evaluation{}, f.err
	}
	return Evaluation{JudgeID: f.id, Winner: f.winner, Confidence: f.confidence}, nil
}

func TestPanelWeightedVotePicksHighestTotal(t *testing.T) {
	judges := []Judge{
		&fixedJudge{id: "j1", weight: 2, winner: "a1", confidence: ConfidenceHigh},
		&fixedJudge{id: "j2", weight: 1, winner: "a2", confidence: ConfidenceHigh},
	}
	p := NewPanel(judges)
	d := p.EvaluateBatch(context.Background(), "b1", []agent.Proposal{{AgentID: "a1"}, {AgentID: "a2"}})

	if d.Winner != "a1" {
		t.Fatalf("winner = %s, want a1", d.Winner)
	}
	if d.Confidence != ConfidenceHigh {
		t.Fatalf("confidence = %s, want high", d.Confidence)
	}
}

func TestPanelTieBreaksByConfidenceThenAgentID(t *testing.T) {
	judges := []Judge{
		&fixedJudge{id: "j1", weight: 1, winner: "a2", confidence: ConfidenceLow},
		&fixedJudge{id: "j2", weight: 1, winner: "a1", confidence: ConfidenceHigh},
	}
	p := NewPanel(judges)
	d := p.EvaluateBatch(context.Background(), "b1", []agent.Proposal{{AgentID: "a1"}, {AgentID: "a2"}})

	if d.Winner != "a1" {
		t.Fatalf("winner = %s, want a1 (higher avg confidence breaks the weight tie)", d.Winner)
	}
}

func TestFailedJudgeGetsZeroWeightButDoesNotAbortPanel(t *testing.T) {
	judges := []Judge{
		&fixedJudge{id: "j1", weight: 5, err: errors.New("vendor down")},
		&fixedJudge{id: "j2", weight: 1, winner: "a1", confidence: ConfidenceMedium},
	}
	p := NewPanel(judges)
	d := p.EvaluateBatch(context.Background(), "b1", []agent.Proposal{{AgentID: "a1"}})

	if d.Winner != "a1" {
		t.Fatalf("winner = %s, want a1 (the only surviving nomination)", d.Winner)
	}
}

func TestAllJudgesFailFallsBackToFirstProposal(t *testing.T) {
	judges := []Judge{
		&fixedJudge{id: "j1", weight: 1, err: errors.New("down")},
		&fixedJudge{id: "j2", weight: 1, err: errors.New("down")},
	}
	p := NewPanel(judges)
	d := p.EvaluateBatch(context.Background(), "b1", []agent.Proposal{{AgentID: "first"}, {AgentID: "second"}})

	if d.Winner != "first" {
		t.Fatalf("fallback winner = %s, want first proposal's agent", d.Winner)
	}
	if d.Confidence != ConfidenceLow {
		t.Fatalf("fallback confidence = %s, want low", d.Confidence)
	}
	if len(d.Concerns) == 0 {
		t.Fatal("expected 'panel unavailable' concern")
	}
}

func TestNarrowMarginFlagsConcern(t *testing.T) {
	judges := []Judge{
		&fixedJudge{id: "j1", weight: 1, winner: "a1", confidence: ConfidenceHigh},
		&fixedJudge{id: "j2", weight: 1, winner: "a2", confidence: ConfidenceHigh},
		&fixedJudge{id: "j3", weight: 0.4, winner: "a1", confidence: ConfidenceHigh},
	}
	p := NewPanel(judges)
	d := p.EvaluateBatch(context.Background(), "b1", []agent.Proposal{{AgentID: "a1"}, {AgentID: "a2"}})

	found := false
	for _, c := range d.Concerns {
		if c == "narrow margin of victory" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected narrow-margin concern, got %v", d.Concerns)
	}
}

func TestLLMJudgeDelegatesToVendor(t *testing.T) {
	vendor := &fakeEvaluator{winner: "a1", confidence: ConfidenceMedium}
	j := NewLLMJudge("llm-1", "story", 1, 1, vendor)

	eval, err := j.Evaluate(context.Background(), []agent.Proposal{{AgentID: "a1"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eval.Winner != "a1" {
		t.Fatalf("winner = %s, want a1", eval.Winner)
	}
}

type fakeEvaluator struct {
	winner     string
	confidence Confidence
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, proposals []agent.Proposal) (string, Confidence, string, error) {
	return f.winner, f.confidence, "", nil
}

func TestRuleBasedJudgePrefersLongerReasoning(t *testing.T) {
	j := NewRuleBasedJudge("rb-1", "completeness", 1, 1)
	proposals := []agent.Proposal{
		{AgentID: "a1", Reasoning: "short"},
		{AgentID: "a2", Reasoning: "a much longer and more substantiated justification"},
	}
	eval, err := j.Evaluate(context.Background(), proposals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eval.Winner != "a2" {
		t.Fatalf("winner = %s, want a2", eval.Winner)
	}
}

func TestRuleBasedJudgeSkipsErroredProposals(t *testing.T) {
	j := NewRuleBasedJudge("rb-1", "completeness", 1, 1)
	proposals := []agent.Proposal{
		{AgentID: "a1", Reasoning: "would have won", Error: "vendor error: timeout"},
		{AgentID: "a2", Reasoning: "shorter but valid"},
	}
	eval, err := j.Evaluate(context.Background(), proposals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eval.Winner != "a2" {
		t.Fatalf("winner = %s, want a2 (only non-errored proposal)", eval.Winner)
	}
}
