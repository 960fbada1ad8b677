package voting

import (
	"testing"
	"time"

	"github.com/sherndon-labs/adventurecore/internal/bus"
)

func TestCastTalliesVotes(t *testing.T) {
	b := bus.New(50)
	c := New(b, "")
	c.StartVoting([]Genre{{ID: "g1", Name: "Cyberpunk Noir"}, {ID: "g2", Name: "High Fantasy"}}, time.Now().Add(time.Hour))

	c.Cast("u1", "g1", "Alice")
	c.Cast("u2", "g1", "Bob")
	c.Cast("u3", "g2", "Carol")

	tally := c.GetTally()
	if tally["g1"].Votes != 2 || tally["g2"].Votes != 1 {
		t.Fatalf("unexpected tally: %+v", tally)
	}
}

func TestRevoteSubtractsPreviousGenre(t *testing.T) {
	b := bus.New(50)
	c := New(b, "")
	c.StartVoting([]Genre{{ID: "g1", Name: "A"}, {ID: "g2", Name: "B"}}, time.Now().Add(time.Hour))

	c.Cast("u1", "g1", "Alice")
	c.Cast("u1", "g2", "Alice") // changes her mind

	tally := c.GetTally()
	if tally["g1"].Votes != 0 {
		t.Fatalf("g1 votes = %d, want 0 after revote", tally["g1"].Votes)
	}
	if tally["g2"].Votes != 1 {
		t.Fatalf("g2 votes = %d, want 1", tally["g2"].Votes)
	}

	sum := 0
	for _, e := range tally {
		sum += e.Votes
	}
	if sum != 1 {
		t.Fatalf("total votes = %d, want 1 (one distinct voter)", sum)
	}
}

func TestSameGenreRevoteIsNoop(t *testing.T) {
	b := bus.New(50)
	c := New(b, "")
	c.StartVoting([]Genre{{ID: "g1", Name: "A"}}, time.Now().Add(time.Hour))

	c.Cast("u1", "g1", "Alice")
	c.Cast("u1", "g1", "Alice")

	if c.GetTally()["g1"].Votes != 1 {
		t.Fatalf("expected idempotent re-vote to not inflate tally")
	}
}

func TestUnknownGenreRejected(t *testing.T) {
	b := bus.New(50)
	c := New(b, "")
	c.StartVoting([]Genre{{ID: "g1", Name: "A"}}, time.Now().Add(time.Hour))

	rejections := make(chan RejectedPayload, 1)
	cancel := b.Subscribe(EventVoteRejected, func(e bus.Event) error {
		rejections <- e.Payload.(RejectedPayload)
		return nil
	}, bus.Options{})
	defer cancel()

	c.Cast("u1", "does-not-exist", "Alice")

	select {
	case r := <-rejections:
		if r.Reason != "unknown genre" {
			t.Fatalf("reason = %q, want unknown genre", r.Reason)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a rejection")
	}
}

func TestLateVoteAfterCloseIsRejected(t *testing.T) {
	b := bus.New(50)
	c := New(b, "")
	c.StartVoting([]Genre{{ID: "g1", Name: "A"}}, time.Now().Add(time.Hour))
	c.Stop()

	rejections := make(chan RejectedPayload, 1)
	cancel := b.Subscribe(EventVoteRejected, func(e bus.Event) error {
		rejections <- e.Payload.(RejectedPayload)
		return nil
	}, bus.Options{})
	defer cancel()

	c.Cast("u1", "g1", "Alice")

	select {
	case r := <-rejections:
		if r.Reason != "voting window closed" {
			t.Fatalf("reason = %q", r.Reason)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a rejection")
	}
}

func TestWinnerTieBreaksByEarliestFirstVote(t *testing.T) {
	b := bus.New(50)
	c := New(b, "")
	c.StartVoting([]Genre{{ID: "g1", Name: "A"}, {ID: "g2", Name: "B"}}, time.Now().Add(time.Hour))

	c.Cast("u1", "g2", "Alice")
	time.Sleep(5 * time.Millisecond)
	c.Cast("u2", "g1", "Bob")

	if got := c.GetWinner(); got != "g2" {
		t.Fatalf("winner = %s, want g2 (earlier first vote, tied count)", got)
	}
}

func TestVotingCompleteFiresOnStop(t *testing.T) {
	b := bus.New(50)
	c := New(b, "")
	c.StartVoting([]Genre{{ID: "g1", Name: "A"}}, time.Now().Add(time.Hour))
	c.Cast("u1", "g1", "Alice")

	done := make(chan CompletePayload, 1)
	cancel := b.Subscribe(DefaultCompleteEvent, func(e bus.Event) error {
		done <- e.Payload.(CompletePayload)
		return nil
	}, bus.Options{Once: true})
	defer cancel()

	c.Stop()

	select {
	case p := <-done:
		if p.Winner != "g1" {
			t.Fatalf("winner = %s, want g1", p.Winner)
		}
	case <-time.After(time.Second):
		t.Fatal("expected voting:complete")
	}
}

func TestAutomaticCloseAtDeadline(t *testing.T) {
	b := bus.New(50)
	c := New(b, "")
	c.StartVoting([]Genre{{ID: "g1", Name: "A"}}, time.Now().Add(20*time.Millisecond))
	c.Cast("u1", "g1", "Alice")

	done := make(chan CompletePayload, 1)
	cancel := b.Subscribe(DefaultCompleteEvent, func(e bus.Event) error {
		done <- e.Payload.(CompletePayload)
		return nil
	}, bus.Options{Once: true})
	defer cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected automatic close at deadline")
	}
}
