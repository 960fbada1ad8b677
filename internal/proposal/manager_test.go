package proposal

import (
	"testing"
	"time"

	"github.com/sherndon-labs/adventurecore/internal/agent"
	"github.com/sherndon-labs/adventurecore/internal/bus"
)

func waitForEvent(t *testing.T, b *bus.Bus, eventType string, timeout time.Duration) ResolutionPayload {
	t.Helper()
	ch := make(chan ResolutionPayload, 1)
	cancel := b.Subscribe(eventType, func(e bus.Event) error {
		ch <- e.Payload.(ResolutionPayload)
		return nil
	}, bus.Options{Once: true})
	defer cancel()

	select {
	case p := <-ch:
		return p
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for %s", eventType)
		return ResolutionPayload{}
	}
}

func TestBatchResolvesWhenAllExpectedSubmit(t *testing.T) {
	b := bus.New(50)
	m := NewManager(b, "competition:completed")

	deadline := time.Now().Add(time.Second)
	m.Open(RequestPayload{BatchID: "b1", ProposalType: "scene", Deadline: deadline, ExpectedAgents: []string{"a1", "a2"}})

	ch := make(chan ResolutionPayload, 1)
	cancel := b.Subscribe("competition:completed", func(e bus.Event) error {
		ch <- e.Payload.(ResolutionPayload)
		return nil
	}, bus.Options{Once: true})
	defer cancel()

	b.Emit(EventSubmit, SubmitPayload{BatchID: "b1", AgentID: "a1", Proposal: agent.Proposal{AgentID: "a1"}})
	b.Emit(EventSubmit, SubmitPayload{BatchID: "b1", AgentID: "a2", Proposal: agent.Proposal{AgentID: "a2"}})

	var res ResolutionPayload
	select {
	case res = <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for resolution")
	}
	if res.Status != StatusComplete {
		t.Fatalf("status = %s, want complete", res.Status)
	}
	if len(res.Proposals) != 2 {
		t.Fatalf("got %d proposals, want 2", len(res.Proposals))
	}
}

func TestBatchTimesOutWithPartialProposals(t *testing.T) {
	b := bus.New(50)
	m := NewManager(b, "competition:completed")

	deadline := time.Now().Add(20 * time.Millisecond)
	m.Open(RequestPayload{BatchID: "b2", ProposalType: "scene", Deadline: deadline, ExpectedAgents: []string{"a1", "a2"}})
	b.Emit(EventSubmit, SubmitPayload{BatchID: "b2", AgentID: "a1", Proposal: agent.Proposal{AgentID: "a1"}})

	res := waitForEvent(t, b, "competition:completed", time.Second)
	if res.Status != StatusTimedOut {
		t.Fatalf("status = %s, want timed-out", res.Status)
	}
	if len(res.Missing) != 1 || res.Missing[0] != "a2" {
		t.Fatalf("missing = %v, want [a2]", res.Missing)
	}
}

func TestBatchFailsWhenZeroProposalsAtDeadline(t *testing.T) {
	b := bus.New(50)
	m := NewManager(b, "competition:completed")

	deadline := time.Now().Add(10 * time.Millisecond)
	m.Open(RequestPayload{BatchID: "b3", ProposalType: "scene", Deadline: deadline, ExpectedAgents: []string{"a1"}})

	res := waitForEvent(t, b, "competition:completed", time.Second)
	if res.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
}

func TestDuplicateAndUnexpectedSubmissionsAreRejected(t *testing.T) {
	b := bus.New(50)
	m := NewManager(b, "competition:completed")

	deadline := time.Now().Add(time.Second)
	m.Open(RequestPayload{BatchID: "b4", ProposalType: "scene", Deadline: deadline, ExpectedAgents: []string{"a1"}})

	rejections := make(chan RejectedPayload, 4)
	cancel := b.Subscribe(EventRejected, func(e bus.Event) error {
		rejections <- e.Payload.(RejectedPayload)
		return nil
	}, bus.Options{})
	defer cancel()

	b.Emit(EventSubmit, SubmitPayload{BatchID: "b4", AgentID: "a1", Proposal: agent.Proposal{AgentID: "a1"}})
	b.Emit(EventSubmit, SubmitPayload{BatchID: "b4", AgentID: "a1", Proposal: agent.Proposal{AgentID: "a1"}}) // duplicate
	b.Emit(EventSubmit, SubmitPayload{BatchID: "b4", AgentID: "intruder", Proposal: agent.Proposal{AgentID: "intruder"}})

	select {
	case r := <-rejections:
		if r.AgentID != "a1" && r.AgentID != "intruder" {
			t.Fatalf("unexpected rejection: %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("expected at least one rejection")
	}
}

func TestCancelIsIdempotentAndPreventsResolution(t *testing.T) {
	b := bus.New(50)
	m := NewManager(b, "competition:completed")

	deadline := time.Now().Add(50 * time.Millisecond)
	m.Open(RequestPayload{BatchID: "b5", ProposalType: "scene", Deadline: deadline, ExpectedAgents: []string{"a1"}})

	if err := m.Cancel("b5"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := m.Cancel("b5"); err != nil {
		t.Fatalf("second cancel should be idempotent: %v", err)
	}

	batch, _ := m.Get("b5")
	if batch.Status != StatusCanceled {
		t.Fatalf("status = %s, want canceled", batch.Status)
	}
}
