package agent

import (
	"context"
	"time"
)

// MockAgent is a deterministic, no-vendor-call agent variant for tests and
// offline development (spec §4.D variant list), grounded on the pack's
// widespread use of hand-rolled fakes over mocking frameworks.
type MockAgent struct {
	base
	// Responses is consumed in order, one per GenerateProposal call; the
	// last entry repeats once exhausted. If nil, every call returns a
	// success proposal with {"mock": true} data and a fixed reasoning.
	Responses []Proposal
	calls      int
}

func NewMockAgent(id string, kind Type) *MockAgent {
	return &MockAgent{base: base{id: id, kind: kind, provider: "mock", status: StatusInactive}}
}

func (a *MockAgent) Initialize(ctx context.Context) error {
	a.status = StatusInactive
	return nil
}

func (a *MockAgent) Start(ctx context.Context) error {
	a.status = StatusActive
	return nil
}

func (a *MockAgent) Stop(ctx context.Context) error {
	a.status = StatusInactive
	return nil
}

func (a *MockAgent) GenerateProposal(ctx context.Context, challenge Challenge) (Proposal, error) {
	if err := a.checkLedger(); err != nil {
		return Proposal{}, err
	}

	var p Proposal
	switch {
	case len(a.Responses) == 0:
		p = Proposal{Data: map[string]any{"mock": true}, Reasoning: "mock agent default response"}
	case a.calls < len(a.Responses):
		p = a.Responses[a.calls]
	default:
		p = a.Responses[len(a.Responses)-1]
	}
	a.calls++

	p.AgentID = a.id
	p.ProposalType = challenge.Type
	p.Timestamp = time.Now()
	return p, nil
}
