// Package agent implements the Agent Abstraction (spec §4.D): capability-
// typed proposal producers that compete across the Story Loop's phases.
//
// The capability-interface-over-backends shape is grounded on
// control_plane/store.Store (one interface, multiple concrete
// implementations selected at construction), narrowed here to the
// {generateProposal, getHealth} surface spec §4.D names.
package agent

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/sherndon-labs/adventurecore/internal/corerr"
	"github.com/sherndon-labs/adventurecore/internal/ledger"
)

// Type is the role an agent competes in.
type Type string

const (
	TypeScene  Type = "scene"
	TypeCamera Type = "camera"
	TypeStory  Type = "story"
	TypeAudio  Type = "audio"
	TypeJudge  Type = "judge"
)

// Status mirrors spec §3's Agent.status.
type Status string

const (
	StatusInactive Status = "inactive"
	StatusActive   Status = "active"
	StatusError    Status = "error"
)

// Challenge is the input to generateProposal (spec §4.D).
type Challenge struct {
	ID              string
	Type            string
	Genre           string
	AssetProposal   any
	CameraProposal  any
	Extra           map[string]any
}

// Proposal is an agent's structured answer to a Challenge (spec §3).
type Proposal struct {
	BatchID      string
	AgentID      string
	ProposalType string
	Data         any
	Reasoning    string
	Summary      string
	Spatial      any
	Timestamp    time.Time
	TokensUsed   int
	Error        string // non-empty marks a failed proposal (spec §4.D)
}

// Health is the result of getHealth() (spec §4.D).
type Health struct {
	Status    Status
	LastError string
	Metrics   map[string]any
}

// Agent is the capability set every variant satisfies (spec §4.D).
type Agent interface {
	ID() string
	Initialize(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	GenerateProposal(ctx context.Context, challenge Challenge) (Proposal, error)
	GetHealth() Health
}

// base holds the bookkeeping shared by every concrete Agent variant.
type base struct {
	id       string
	kind     Type
	provider string
	status   Status
	lastErr  string
	ledger   *ledger.Ledger
	// limiter throttles outbound vendor calls per agent/provider pair so
	// one noisy competitor can't starve the others during a proposal
	// round. Nil disables throttling (the default for mock/test agents).
	limiter *rate.Limiter
}

// SetRateLimit installs a token-bucket limiter ahead of vendor calls,
// allowing burst calls per second.
func (b *base) SetRateLimit(callsPerSecond float64, burst int) {
	b.limiter = rate.NewLimiter(rate.Limit(callsPerSecond), burst)
}

// waitForVendorSlot blocks until the rate limiter admits a call, or ctx is
// canceled.
func (b *base) waitForVendorSlot(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	return b.limiter.Wait(ctx)
}

func (b *base) ID() string { return b.id }

// markError lets the liveness monitor force an agent into error status
// without reaching into vendor-call internals.
func (b *base) markError(reason string) {
	b.status = StatusError
	b.lastErr = reason
}

func (b *base) GetHealth() Health {
	return Health{
		Status:    b.status,
		LastError: b.lastErr,
		Metrics:   map[string]any{"type": string(b.kind), "provider": b.provider},
	}
}

// checkLedger implements the "next generateProposal fails" half of the
// Token Ledger overflow contract (spec §4.C) — called before producing a
// new proposal so TokenCapExceeded propagates as a real error rather than
// a failed Proposal (spec §4.D explicitly carves this error out of the
// "return a failed Proposal" rule).
func (b *base) checkLedger() error {
	if b.ledger == nil {
		return nil
	}
	if err := b.ledger.CheckAvailable(b.id, b.provider); err != nil {
		var capErr *corerr.TokenCapExceeded
		if asTokenCapExceeded(err, &capErr) {
			b.status = StatusError
			b.lastErr = err.Error()
		}
		return err
	}
	return nil
}

func asTokenCapExceeded(err error, target **corerr.TokenCapExceeded) bool {
	if ce, ok := err.(*corerr.TokenCapExceeded); ok {
		*target = ce
		return true
	}
	return false
}
