// Package proposal implements the Proposal Batch Manager (spec §4.E):
// fan-out of a proposal:request to a set of expected agents, deadline-
// bounded collection of their proposal:submit responses, and a single
// resolution event carrying whatever arrived.
//
// Grounded on control_plane/scheduler/scheduler.go's admission-queue-plus-
// deadline shape, narrowed from a reconciliation work queue to a single
// request/collect round, and on control_plane/idempotency/store.go's
// seen-key pattern for duplicate-submission rejection.
package proposal

import (
	"sync"
	"time"

	"github.com/sherndon-labs/adventurecore/internal/agent"
	"github.com/sherndon-labs/adventurecore/internal/bus"
	"github.com/sherndon-labs/adventurecore/internal/observability"
)

const (
	EventRequest  = "proposal:request"
	EventSubmit   = "proposal:submit"
	EventRejected = "proposal:rejected"
	EventCancel   = "proposal:cancel"
)

// RequestPayload is the proposal:request event payload (spec §4.E step 1).
type RequestPayload struct {
	BatchID        string
	ProposalType   string
	Context        any
	Deadline       time.Time
	ExpectedAgents []string
}

// SubmitPayload is the proposal:submit event payload (spec §4.E step 3).
type SubmitPayload struct {
	BatchID  string
	AgentID  string
	Proposal agent.Proposal
}

// RejectedPayload documents why a submission was refused.
type RejectedPayload struct {
	BatchID string
	AgentID string
	Reason  string
}

// CancelPayload is the proposal:cancel event payload (spec §4.E).
type CancelPayload struct {
	BatchID string
}

// ResolutionPayload is what the manager emits on resolution (spec §4.E
// step 5).
type ResolutionPayload struct {
	BatchID  string
	Proposals []agent.Proposal
	Received  []string
	Missing   []string
	Status    Status
}

// Manager runs the request/submit/resolve protocol for one or more
// concurrent batches.
type Manager struct {
	mu               sync.Mutex
	bus              *bus.Bus
	batches          map[string]*Batch
	timers           map[string]*time.Timer
	completionEvent  string
	unsubscribeSubmit bus.CancelFunc
	unsubscribeCancel bus.CancelFunc
	unsubscribeRequest bus.CancelFunc
}

// NewManager constructs a Manager that subscribes to proposal:submit and
// proposal:cancel on b. completionEvent names the event emitted at
// resolution — spec's Open Question on the competition:voting/completed
// naming ambiguity is resolved by taking a single configured name here
// rather than emitting both.
func NewManager(b *bus.Bus, completionEvent string) *Manager {
	m := &Manager{
		bus:             b,
		batches:         make(map[string]*Batch),
		timers:          make(map[string]*time.Timer),
		completionEvent: completionEvent,
	}
	m.unsubscribeSubmit = b.Subscribe(EventSubmit, m.handleSubmit, bus.Options{})
	m.unsubscribeCancel = b.Subscribe(EventCancel, m.handleCancel, bus.Options{})
	m.unsubscribeRequest = b.Subscribe(EventRequest, m.handleRequest, bus.Options{})
	return m
}

func (m *Manager) handleRequest(e bus.Event) error {
	req, ok := e.Payload.(RequestPayload)
	if !ok {
		return nil
	}
	m.Open(req)
	return nil
}

// Open starts a new batch (step 2). Exported so callers that already hold
// a RequestPayload (e.g. the story loop's agent-competition phase) can skip
// the bus round trip.
func (m *Manager) Open(req RequestPayload) *Batch {
	m.mu.Lock()
	b := newBatch(req.BatchID, req.ProposalType, req.Context, req.Deadline, req.ExpectedAgents)
	m.batches[req.BatchID] = b
	delay := time.Until(req.Deadline)
	if delay < 0 {
		delay = 0
	}
	m.timers[req.BatchID] = time.AfterFunc(delay, func() { m.resolve(req.BatchID, StatusTimedOut) })
	m.mu.Unlock()

	observability.BatchesOpened.WithLabelValues(req.ProposalType).Inc()
	return b
}

func (m *Manager) handleSubmit(e bus.Event) error {
	sub, ok := e.Payload.(SubmitPayload)
	if !ok {
		return nil
	}

	m.mu.Lock()
	b, exists := m.batches[sub.BatchID]
	if !exists {
		m.mu.Unlock()
		m.reject(sub.BatchID, sub.AgentID, "unknown batch")
		return nil
	}
	if b.Status != StatusOpen {
		m.mu.Unlock()
		m.reject(sub.BatchID, sub.AgentID, "batch already resolved")
		return nil
	}
	if !b.expects(sub.AgentID) {
		m.mu.Unlock()
		m.reject(sub.BatchID, sub.AgentID, "agent not in expectedAgents")
		return nil
	}
	if _, dup := b.Received[sub.AgentID]; dup {
		m.mu.Unlock()
		m.reject(sub.BatchID, sub.AgentID, "duplicate submission")
		return nil
	}

	b.Received[sub.AgentID] = sub.Proposal
	b.order = append(b.order, sub.AgentID)
	complete := b.isComplete()
	m.mu.Unlock()

	if complete {
		m.resolve(sub.BatchID, StatusComplete)
	}
	return nil
}

func (m *Manager) reject(batchID, agentID, reason string) {
	m.bus.Emit(EventRejected, RejectedPayload{BatchID: batchID, AgentID: agentID, Reason: reason})
}

func (m *Manager) handleCancel(e bus.Event) error {
	payload, ok := e.Payload.(CancelPayload)
	if !ok || payload.BatchID == "" {
		return nil
	}
	return m.Cancel(payload.BatchID)
}

// Cancel idempotently cancels a batch before resolution (spec §4.E: "is
// idempotent").
func (m *Manager) Cancel(batchID string) error {
	m.mu.Lock()
	b, exists := m.batches[batchID]
	if !exists || b.Status != StatusOpen {
		m.mu.Unlock()
		return nil
	}
	b.Status = StatusCanceled
	if t, ok := m.timers[batchID]; ok {
		t.Stop()
	}
	m.mu.Unlock()

	observability.BatchResolution.WithLabelValues(string(StatusCanceled)).Inc()
	return nil
}

func (m *Manager) resolve(batchID string, outcome Status) {
	m.mu.Lock()
	b, exists := m.batches[batchID]
	if !exists || b.Status != StatusOpen {
		m.mu.Unlock()
		return
	}
	if t, ok := m.timers[batchID]; ok {
		t.Stop()
	}

	received := b.OrderedProposals()
	final := outcome
	if outcome == StatusTimedOut && len(received) == 0 {
		final = StatusFailed
	}
	b.Status = final

	var receivedIDs, missing []string
	for _, id := range b.order {
		receivedIDs = append(receivedIDs, id)
	}
	for _, id := range b.ExpectedAgents {
		if _, ok := b.Received[id]; !ok {
			missing = append(missing, id)
		}
	}
	m.mu.Unlock()

	observability.BatchResolution.WithLabelValues(string(final)).Inc()
	m.bus.Emit(m.completionEvent, ResolutionPayload{
		BatchID:   batchID,
		Proposals: received,
		Received:  receivedIDs,
		Missing:   missing,
		Status:    final,
	})
}

// Close unsubscribes the manager from the bus. Open batches are left as-is;
// callers that need shutdown draining should Cancel them first.
func (m *Manager) Close() {
	m.unsubscribeSubmit()
	m.unsubscribeCancel()
	m.unsubscribeRequest()
}

// Get returns the current state of a batch, if any.
func (m *Manager) Get(batchID string) (*Batch, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	return b, ok
}
