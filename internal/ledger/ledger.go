// Package ledger implements the Token Ledger (spec §4.C): per
// (agentId, provider) usage accounting with caps and an overflow-then-fail
// contract.
//
// Grounded on control_plane/scheduler/limiter.go's per-key map-of-state
// pattern (there a map of token-bucket rate limiters, here a map of usage
// accounts), generalized from throttling to cap accounting.
package ledger

import (
	"sync"
	"time"

	"github.com/sherndon-labs/adventurecore/internal/corerr"
	"github.com/sherndon-labs/adventurecore/internal/observability"
)

// Usage is a single recorded call's token consumption.
type Usage struct {
	Prompt     int
	Completion int
	Total      int
	CostUSD    float64
}

// Entry is a Token Ledger Entry (spec §3): accumulated usage for one
// (agentId, provider) pair.
type Entry struct {
	AgentID          string
	Provider         string
	Prompt           int
	Completion       int
	Total            int
	CostUSD          float64
	Cap              int
	LastReset        time.Time
	OverflowRejected int
	overflowed       bool
}

func key(agentID, provider string) string {
	return agentID + "\x00" + provider
}

// Report is the structured output of Report().
type Report struct {
	Entries []Entry
}

// Ledger tracks usage and enforces per-pair caps. The zero value is not
// usable; construct with New.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]*Entry
	caps    map[string]int
	// mirror is an optional durable mirror (e.g. Redis) kept in sync with
	// every Record/Reset call. Nil disables mirroring.
	mirror Mirror
}

// Mirror is implemented by durable backing stores for ledger state.
type Mirror interface {
	SyncEntry(e Entry)
	SyncReset(agentID, provider string, at time.Time)
}

// New constructs a Ledger. defaultCaps maps "agentId:provider" or a bare
// provider name (applied to any agent using that provider absent a more
// specific entry) to its token cap; zero or absent means uncapped.
func New(defaultCaps map[string]int) *Ledger {
	caps := make(map[string]int, len(defaultCaps))
	for k, v := range defaultCaps {
		caps[k] = v
	}
	return &Ledger{
		entries: make(map[string]*Entry),
		caps:    caps,
	}
}

// SetMirror attaches a durable mirror. Not safe to call concurrently with
// Record/Reset.
func (l *Ledger) SetMirror(m Mirror) {
	l.mirror = m
}

func (l *Ledger) capFor(agentID, provider string) int {
	if c, ok := l.caps[agentID+":"+provider]; ok {
		return c
	}
	if c, ok := l.caps[provider]; ok {
		return c
	}
	return 0
}

func (l *Ledger) entryFor(agentID, provider string) *Entry {
	k := key(agentID, provider)
	e, ok := l.entries[k]
	if !ok {
		e = &Entry{
			AgentID:   agentID,
			Provider:  provider,
			Cap:       l.capFor(agentID, provider),
			LastReset: time.Time{},
		}
		l.entries[k] = e
	}
	return e
}

// Record accumulates usage for (agentId, provider). Per spec §4.C, the call
// that produced usage is always permitted to complete: if total exceeds the
// remaining cap, Record still records the usage and flags an overflow, but
// does not itself return an error — the overflow instead causes the *next*
// CheckAvailable for the same pair to fail with TokenCapExceeded.
func (l *Ledger) Record(agentID, provider string, u Usage) {
	l.mu.Lock()
	e := l.entryFor(agentID, provider)
	e.Prompt += u.Prompt
	e.Completion += u.Completion
	e.Total += u.Total
	e.CostUSD += u.CostUSD

	if e.Cap > 0 && e.Total > e.Cap {
		e.overflowed = true
		e.OverflowRejected++
	}
	snapshot := *e
	l.mu.Unlock()

	observability.TokensRecorded.WithLabelValues(agentID, provider, "prompt").Add(float64(u.Prompt))
	observability.TokensRecorded.WithLabelValues(agentID, provider, "completion").Add(float64(u.Completion))
	if snapshot.overflowed {
		observability.TokenCapRejections.WithLabelValues(agentID, provider).Inc()
	}
	if l.mirror != nil {
		l.mirror.SyncEntry(snapshot)
	}
}

// Remaining returns the tokens still available for (agentId, provider), or
// a negative number if already over cap. A zero/absent cap means uncapped
// and Remaining returns -1 to signal "no limit" (callers should treat
// negative-with-zero-cap specially via CheckAvailable rather than reading
// Remaining directly for pass/fail decisions).
func (l *Ledger) Remaining(agentID, provider string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entryFor(agentID, provider)
	if e.Cap <= 0 {
		return -1
	}
	return e.Cap - e.Total
}

// CheckAvailable enforces the "next generateProposal fails" half of the
// overflow contract: if a prior Record pushed the pair over cap, this
// returns TokenCapExceeded until the pair's next Reset.
func (l *Ledger) CheckAvailable(agentID, provider string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entryFor(agentID, provider)
	if e.overflowed {
		return &corerr.TokenCapExceeded{AgentID: agentID, Provider: provider, Cap: e.Cap}
	}
	return nil
}

// Reset clears accumulated usage for scope. An empty agentID resets every
// agent for the given provider; an empty provider resets every provider for
// the given agent; both empty resets everything.
func (l *Ledger) Reset(agentID, provider string, at time.Time) {
	l.mu.Lock()
	for k, e := range l.entries {
		if agentID != "" && e.AgentID != agentID {
			continue
		}
		if provider != "" && e.Provider != provider {
			continue
		}
		e.Prompt, e.Completion, e.Total, e.CostUSD = 0, 0, 0, 0
		e.overflowed = false
		e.LastReset = at
		_ = k
	}
	l.mu.Unlock()

	if l.mirror != nil {
		l.mirror.SyncReset(agentID, provider, at)
	}
}

// Report returns a structured snapshot of every tracked entry.
func (l *Ledger) Report() Report {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, *e)
	}
	return Report{Entries: out}
}
