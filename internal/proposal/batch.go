package proposal

import (
	"time"

	"github.com/sherndon-labs/adventurecore/internal/agent"
)

// Status is a Proposal Batch's lifecycle state (spec §3).
type Status string

const (
	StatusOpen      Status = "open"
	StatusComplete  Status = "complete"
	StatusTimedOut  Status = "timed-out"
	StatusCanceled  Status = "canceled"
	StatusFailed    Status = "failed"
)

// Batch is a Proposal Batch (spec §3): a fan-out/collect round over a set
// of expected agents.
type Batch struct {
	BatchID       string
	ProposalType  string
	Context       any
	Deadline      time.Time
	ExpectedAgents []string
	Received      map[string]agent.Proposal // agentId -> proposal, insertion order tracked separately
	order         []string                  // agentIds in reception order
	Status        Status
}

func newBatch(batchID, proposalType string, context any, deadline time.Time, expected []string) *Batch {
	return &Batch{
		BatchID:        batchID,
		ProposalType:   proposalType,
		Context:        context,
		Deadline:       deadline,
		ExpectedAgents: expected,
		Received:       make(map[string]agent.Proposal),
		Status:         StatusOpen,
	}
}

func (b *Batch) expects(agentID string) bool {
	for _, id := range b.ExpectedAgents {
		if id == agentID {
			return true
		}
	}
	return false
}

// OrderedProposals returns received proposals in reception order, which
// spec §4.E requires be preserved for tie handling downstream.
func (b *Batch) OrderedProposals() []agent.Proposal {
	out := make([]agent.Proposal, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.Received[id])
	}
	return out
}

func (b *Batch) isComplete() bool {
	return len(b.Received) == len(b.ExpectedAgents)
}
