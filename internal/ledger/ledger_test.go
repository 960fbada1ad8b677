package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/sherndon-labs/adventurecore/internal/corerr"
)

func TestRecordAccumulatesAndRemainingTracksCap(t *testing.T) {
	l := New(map[string]int{"claude:anthropic": 1000})

	l.Record("claude", "anthropic", Usage{Prompt: 100, Completion: 50, Total: 150})
	if got := l.Remaining("claude", "anthropic"); got != 850 {
		t.Fatalf("remaining = %d, want 850", got)
	}

	l.Record("claude", "anthropic", Usage{Prompt: 100, Completion: 50, Total: 150})
	if got := l.Remaining("claude", "anthropic"); got != 700 {
		t.Fatalf("remaining = %d, want 700", got)
	}
}

func TestUncappedPairHasUnlimitedRemaining(t *testing.T) {
	l := New(nil)
	l.Record("gpt", "openai", Usage{Total: 1_000_000})
	if got := l.Remaining("gpt", "openai"); got != -1 {
		t.Fatalf("remaining = %d, want -1 (uncapped)", got)
	}
	if err := l.CheckAvailable("gpt", "openai"); err != nil {
		t.Fatalf("uncapped pair should never fail CheckAvailable: %v", err)
	}
}

func TestOverflowPermitsCurrentCallButFailsNext(t *testing.T) {
	l := New(map[string]int{"claude:anthropic": 100})

	// This call pushes total to 150, over the cap of 100 — but per
	// contract it must still be allowed to complete.
	l.Record("claude", "anthropic", Usage{Total: 150})

	var capErr *corerr.TokenCapExceeded
	err := l.CheckAvailable("claude", "anthropic")
	if !errors.As(err, &capErr) {
		t.Fatalf("expected TokenCapExceeded after overflow, got %v", err)
	}

	report := l.Report()
	found := false
	for _, e := range report.Entries {
		if e.AgentID == "claude" && e.Provider == "anthropic" {
			found = true
			if e.OverflowRejected != 1 {
				t.Fatalf("overflow counter = %d, want 1", e.OverflowRejected)
			}
		}
	}
	if !found {
		t.Fatal("expected entry in report")
	}
}

func TestResetClearsOverflowAndUsage(t *testing.T) {
	l := New(map[string]int{"claude:anthropic": 100})
	l.Record("claude", "anthropic", Usage{Total: 150})

	if err := l.CheckAvailable("claude", "anthropic"); err == nil {
		t.Fatal("expected overflow before reset")
	}

	l.Reset("claude", "anthropic", time.Now())

	if err := l.CheckAvailable("claude", "anthropic"); err != nil {
		t.Fatalf("expected clean slate after reset, got %v", err)
	}
	if got := l.Remaining("claude", "anthropic"); got != 100 {
		t.Fatalf("remaining after reset = %d, want 100", got)
	}
}

func TestResetScopeIsolatesOtherPairs(t *testing.T) {
	l := New(map[string]int{"claude:anthropic": 100, "gpt:openai": 100})
	l.Record("claude", "anthropic", Usage{Total: 150})
	l.Record("gpt", "openai", Usage{Total: 150})

	l.Reset("claude", "anthropic", time.Now())

	if err := l.CheckAvailable("claude", "anthropic"); err != nil {
		t.Fatalf("claude/anthropic should be clear: %v", err)
	}
	if err := l.CheckAvailable("gpt", "openai"); err == nil {
		t.Fatal("gpt/openai should still be overflowed")
	}
}

type fakeMirror struct {
	synced int
	reset  int
}

func (f *fakeMirror) SyncEntry(Entry)                      { f.synced++ }
func (f *fakeMirror) SyncReset(string, string, time.Time) { f.reset++ }

func TestMirrorReceivesSyncCalls(t *testing.T) {
	l := New(nil)
	m := &fakeMirror{}
	l.SetMirror(m)

	l.Record("claude", "anthropic", Usage{Total: 10})
	l.Reset("claude", "anthropic", time.Now())

	if m.synced != 1 || m.reset != 1 {
		t.Fatalf("mirror calls = (%d, %d), want (1, 1)", m.synced, m.reset)
	}
}
