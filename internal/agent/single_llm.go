package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/sherndon-labs/adventurecore/internal/ledger"
)

// Provider is the minimal vendor boundary a SingleLLMAgent/MultiLLMAgent
// calls through to produce a proposal. Concrete implementations live
// outside this package (e.g. a thin wrapper around a vendor SDK); this
// interface exists so agent_test.go can supply a deterministic fake
// without a live network dependency.
type Provider interface {
	// Complete returns raw proposal data plus token usage, or an error.
	Complete(ctx context.Context, challenge Challenge) (data any, reasoning string, usage ledger.Usage, err error)
}

// SingleLLMAgent is bound to exactly one (provider, model) pair for its
// whole lifetime (spec §4.D: "binds an agent id to exactly one provider at
// construction").
type SingleLLMAgent struct {
	base
	provider Provider
}

func NewSingleLLMAgent(id string, providerName string, provider Provider, l *ledger.Ledger) *SingleLLMAgent {
	return &SingleLLMAgent{
		base: base{id: id, kind: TypeScene, provider: providerName, status: StatusInactive, ledger: l},
		provider: provider,
	}
}

func (a *SingleLLMAgent) Initialize(ctx context.Context) error {
	a.status = StatusInactive
	return nil
}

func (a *SingleLLMAgent) Start(ctx context.Context) error {
	a.status = StatusActive
	return nil
}

func (a *SingleLLMAgent) Stop(ctx context.Context) error {
	a.status = StatusInactive
	return nil
}

// GenerateProposal implements spec §4.D's proposal generation semantics:
// on vendor error it returns a *failed* Proposal carrying the error rather
// than propagating it, except TokenCapExceeded which propagates as a real
// error.
func (a *SingleLLMAgent) GenerateProposal(ctx context.Context, challenge Challenge) (Proposal, error) {
	if err := a.checkLedger(); err != nil {
		return Proposal{}, err
	}
	if err := a.waitForVendorSlot(ctx); err != nil {
		return Proposal{}, err
	}

	data, reasoning, usage, err := a.provider.Complete(ctx, challenge)
	if a.ledger != nil {
		a.ledger.Record(a.id, a.provider_(), usage)
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

// provider_ disambiguates the embedded base.provider string field from
// the provider SDK handle field of the same name in this struct.
func (a *SingleLLMAgent) provider_() string { return a.base.provider }
