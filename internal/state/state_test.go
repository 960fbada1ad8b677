package state

import (
	"context"
	"reflect"
	"testing"

	"github.com/sherndon-labs/adventurecore/internal/bus"
)

func TestSetPathCreatesIntermediateMapsAndBumpsVersion(t *testing.T) {
	b := bus.New(10)
	s := New(b)

	var captured ChangedPayload
	b.Subscribe("state:changed", func(e bus.Event) error {
		captured = e.Payload.(ChangedPayload)
		return nil
	}, bus.Options{})

	before := s.Version()
	s.SetPath("voting.genres", []any{"Cyberpunk Noir"})
	after := s.Version()

	if after != before+1 {
		t.Fatalf("version went %d -> %d, want +1", before, after)
	}
	if captured.NewValue.([]any)[0] != "Cyberpunk Noir" {
		t.Fatalf("unexpected changed payload: %+v", captured)
	}

	got := s.GetPath("voting.genres")
	want := []any{"Cyberpunk Noir"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestReadsAreDeepCopies(t *testing.T) {
	s := New(bus.New(10))
	s.SetPath("agents.claude", map[string]any{"status": "active"})

	got := s.GetPath("agents.claude").(map[string]any)
	got["status"] = "mutated"

	fresh := s.GetPath("agents.claude").(map[string]any)
	if fresh["status"] != "active" {
		t.Fatalf("mutation of a read leaked into internal state: %v", fresh)
	}
}

func TestUpdateStateShallowMerges(t *testing.T) {
	s := New(bus.New(10))
	s.SetPath("agents.claude", map[string]any{"status": "active", "provider": "anthropic"})
	s.UpdateState("agents.claude", map[string]any{"status": "error"})

	got := s.GetPath("agents.claude").(map[string]any)
	if got["status"] != "error" || got["provider"] != "anthropic" {
		t.Fatalf("shallow merge did not preserve untouched keys: %v", got)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	s := New(bus.New(10))
	s.SetPath("voting.genres", []any{"a", "b"})
	s.SetPath("competition.winner", "claude")

	snap := s.Snapshot()
	versionAtSnapshot := snap.Version

	s.SetPath("competition.winner", "gpt")
	if s.Version() == versionAtSnapshot {
		t.Fatal("version did not advance after further mutation")
	}

	s.Restore(snap)
	if s.Version() != versionAtSnapshot {
		t.Fatalf("got version %d after restore, want %d", s.Version(), versionAtSnapshot)
	}
	if s.GetPath("competition.winner") != "claude" {
		t.Fatalf("restore did not roll back winner: %v", s.GetPath("competition.winner"))
	}
}

func TestRemovePath(t *testing.T) {
	s := New(bus.New(10))
	s.SetPath("competition.winner", "claude")
	s.RemovePath("competition.winner")
	if s.GetPath("competition.winner") != nil {
		t.Fatalf("expected nil after remove, got %v", s.GetPath("competition.winner"))
	}
}

func TestSubscribeChangesFiltersByPathPrefix(t *testing.T) {
	s := New(bus.New(10))
	var seen []string
	cancel := s.SubscribeChanges("voting", func(c ChangedPayload) { seen = append(seen, c.Path) })
	defer cancel()

	s.SetPath("voting.genres", []any{"a"})
	s.SetPath("competition.winner", "claude")

	if len(seen) != 1 || seen[0] != "voting.genres" {
		t.Fatalf("got %v, want only voting.* changes", seen)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	store := NewMemorySnapshotStore()
	s := New(bus.New(10))
	s.SetPath("voting.genres", []any{"a", "b"})

	ctx := context.Background()
	if err := Persist(ctx, store, "adv-1", s.Snapshot()); err != nil {
		t.Fatalf("persist: %v", err)
	}

	loaded, err := LoadSnapshot(ctx, store, "adv-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	restored := New(bus.New(10))
	restored.Restore(loaded)

	if !reflect.DeepEqual(restored.GetPath("voting.genres"), s.GetPath("voting.genres")) {
		t.Fatalf("round trip mismatch")
	}
}
