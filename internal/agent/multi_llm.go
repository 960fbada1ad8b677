package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/sherndon-labs/adventurecore/internal/ledger"
)

// MultiLLMAgent is constructed from a pool of candidate providers but
// binds to exactly one at construction time (spec §4.D): "failover across
// providers is not automatic — it is handled at the batch layer", i.e. the
// Proposal Batch Manager / orchestrator decides to spin up a differently
// bound agent instance rather than this type switching providers mid-run.
type MultiLLMAgent struct {
	base
	bound Provider
}

// NewMultiLLMAgent selects providers[boundProviderName] and binds to it
// permanently; the rest of the pool is informational only (surfaced via
// GetHealth metrics) since this type never fails over on its own.
func NewMultiLLMAgent(id string, boundProviderName string, providers map[string]Provider, l *ledger.Ledger) (*MultiLLMAgent, error) {
	p, ok := providers[boundProviderName]
	if !ok {
		return nil, fmt.Errorf("multi-llm agent %q: no provider registered for %q", id, boundProviderName)
	}
	return &MultiLLMAgent{
		base:  base{id: id, kind: TypeScene, provider: boundProviderName, status: StatusInactive, ledger: l},
		bound: p,
	}, nil
}

func (a *MultiLLMAgent) Initialize(ctx context.Context) error {
	a.status = StatusInactive
	return nil
}

func (a *MultiLLMAgent) Start(ctx context.Context) error {
	a.status = StatusActive
	return nil
}

func (a *MultiLLMAgent) Stop(ctx context.Context) error {
	a.status = StatusInactive
	return nil
}

func (a *MultiLLMAgent) GenerateProposal(ctx context.Context, challenge Challenge) (Proposal, error) {
	if err := a.checkLedger(); err != nil {
		return Proposal{}, err
	}
	if err := a.waitForVendorSlot(ctx); err != nil {
		return Proposal{}, err
	}

	data, reasoning, usage, err := a.bound.Complete(ctx, challenge)
	if a.ledger != nil {
		a.ledger.Record(a.id, a.base.provider, usage)
	}
	if err != nil {
		a.status = StatusError
		a.lastErr = err.Error()
		return Proposal{
			AgentID:      a.id,
			ProposalType: challenge.Type,
			Timestamp:    time.Now(),
			TokensUsed:   usage.Total,
			Error:        fmt.Sprintf("vendor error: %v", err),
		}, nil
	}

	a.status = StatusActive
	a.lastErr = ""
	return Proposal{
		AgentID:      a.id,
		ProposalType: challenge.Type,
		Data:         data,
		Reasoning:    reasoning,
		Timestamp:    time.Now(),
		TokensUsed:   usage.Total,
	}, nil
}
