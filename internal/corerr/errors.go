// Package corerr defines the typed error kinds the core recognizes (spec §7).
package corerr

import (
	"errors"
	"fmt"
)

// ErrQueueCapacity is returned when a bounded queue cannot accept more work.
var ErrQueueCapacity = errors.New("queue at capacity")

// ErrNotLeader is returned when an operation requires ownership of an
// adventure id that the caller does not currently hold.
var ErrNotLeader = errors.New("caller does not own this adventure")

// ConfigError marks a DAG or settings validation failure. Fatal at load,
// never retried.
type ConfigError struct {
	Subject string // e.g. DAG id
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in %q: %s", e.Subject, e.Reason)
}

// HandlerMissing marks a scheduled stage with no resolvable handler.
type HandlerMissing struct {
	StageID   string
	StageType string
}

func (e *HandlerMissing) Error() string {
	return fmt.Sprintf("no handler registered for stage %q (type %q)", e.StageID, e.StageType)
}

// StageTimeout marks a stage whose handler exceeded its time budget.
type StageTimeout struct {
	StageID string
	Budget  string
}

func (e *StageTimeout) Error() string {
	return fmt.Sprintf("stage %q exceeded budget %s", e.StageID, e.Budget)
}

// RequestTimeout marks a bus-mediated request/response round trip that
// never received a matching result before its deadline.
type RequestTimeout struct {
	RequestID string
	AwaitedOn string // event name the waiter was subscribed to
}

func (e *RequestTimeout) Error() string {
	return fmt.Sprintf("request %q timed out awaiting %q", e.RequestID, e.AwaitedOn)
}

// ProviderError marks a vendor API rejection surfaced as a failed Proposal
// rather than raised as an exception, unless it wraps TokenCapExceeded.
type ProviderError struct {
	Provider string
	Reason   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %q error: %s", e.Provider, e.Reason)
}

// TokenCapExceeded marks a ledger refusing further calls for an
// (agentId, provider) pair within the current window. Never retried.
type TokenCapExceeded struct {
	AgentID  string
	Provider string
	Cap      int
}

func (e *TokenCapExceeded) Error() string {
	return fmt.Sprintf("token cap exceeded for agent %q / provider %q (cap=%d)", e.AgentID, e.Provider, e.Cap)
}

// BatchIncomplete marks a proposal batch that resolved with fewer than
// the expected submissions. Not fatal — judging proceeds with what arrived
// provided at least one proposal came in.
type BatchIncomplete struct {
	BatchID  string
	Received int
	Expected int
}

func (e *BatchIncomplete) Error() string {
	return fmt.Sprintf("batch %q incomplete: %d/%d received", e.BatchID, e.Received, e.Expected)
}

// MCPError marks a single external-service call failure. Logged and
// skipped within a batch of calls; fails the stage when the call is
// required.
type MCPError struct {
	Service string
	Op      string
	Reason  string
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("mcp %s.%s failed: %s", e.Service, e.Op, e.Reason)
}

// AggregateMCPError collects MCPErrors from a best-effort multi-call
// operation (e.g. system:scene-reset's clearScene + clearWaypoints +
// clearGroups) so the stage can fail with the full picture.
type AggregateMCPError struct {
	Errors []error
}

func (e *AggregateMCPError) Error() string {
	return fmt.Sprintf("%d mcp calls failed: %v", len(e.Errors), e.Errors)
}

func (e *AggregateMCPError) Unwrap() []error { return e.Errors }

// AudioOffline marks the audio service as unreachable. Non-optional stages
// fail; optional stages resolve with a warning instead.
type AudioOffline struct {
	Optional bool
}

func (e *AudioOffline) Error() string {
	return "audio service not connected"
}

// AdventureAlreadyActive marks a startAdventure call for an id that already
// has a running adventure. One active adventure per id at a time.
type AdventureAlreadyActive struct {
	ID string
}

func (e *AdventureAlreadyActive) Error() string {
	return fmt.Sprintf("adventure %q is already active", e.ID)
}
