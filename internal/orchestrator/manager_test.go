package orchestrator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sherndon-labs/adventurecore/internal/bus"
	"github.com/sherndon-labs/adventurecore/internal/dag"
)

func TestExplicitStageHandlerTakesPrecedenceOverTypeFactory(t *testing.T) {
	m := New(bus.New(10), nil, "")
	m.RegisterTypeHandler("llm", func(dag.StageConfig) dag.StageHandler {
		return func(context.Context, dag.HandlerInput) (any, error) { return "from-type", nil }
	})
	m.RegisterStageHandler("a", func(context.Context, dag.HandlerInput) (any, error) { return "from-stage", nil })

	cfg := &dag.Config{ID: "d1", Stages: []dag.StageConfig{{ID: "a", Type: "llm"}}}
	h, err := m.StartAdventure(cfg, StartOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	results, err := h.Wait()
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if results["a"] != "from-stage" {
		t.Fatalf("expected explicit stage handler to win, got %v", results["a"])
	}
}

func TestUnregisteredStageFallsBackToDefaultNoop(t *testing.T) {
	m := New(bus.New(10), nil, "")
	cfg := &dag.Config{ID: "d1", Stages: []dag.StageConfig{{ID: "a", Type: "mystery"}}}

	h, err := m.StartAdventure(cfg, StartOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	results, err := h.Wait()
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	got, ok := results["a"].(map[string]any)
	if !ok || got["skipped"] != true {
		t.Fatalf("expected default no-op {skipped:true}, got %v", results["a"])
	}
}

func TestStartAdventureRefusesSecondConcurrentRunOfSameID(t *testing.T) {
	release := make(chan struct{})
	m := New(bus.New(10), nil, "")
	m.RegisterTypeHandler("slow", func(dag.StageConfig) dag.StageHandler {
		return func(ctx context.Context, in dag.HandlerInput) (any, error) {
			<-release
			return "done", nil
		}
	})
	cfg := &dag.Config{ID: "d1", Stages: []dag.StageConfig{{ID: "a", Type: "slow"}}}

	h1, err := m.StartAdventure(cfg, StartOptions{})
	if err != nil {
		t.Fatalf("unexpected error starting first run: %v", err)
	}

	_, err = m.StartAdventure(cfg, StartOptions{})
	if err == nil {
		t.Fatal("expected second concurrent start for the same id to be refused")
	}

	close(release)
	if _, err := h1.Wait(); err != nil {
		t.Fatalf("unexpected error from first run: %v", err)
	}
}

func TestActiveAdventureIDRemovedAfterCompletion(t *testing.T) {
	m := New(bus.New(10), nil, "")
	cfg := &dag.Config{ID: "d1", Stages: nil}

	h, err := m.StartAdventure(cfg, StartOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.Wait()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(m.GetActiveAdventures()) == 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("expected active adventures to be empty once the run completed")
}

func TestSameIDCanBeRestartedOnceThePriorRunCompletes(t *testing.T) {
	m := New(bus.New(10), nil, "")
	cfg := &dag.Config{ID: "d1", Stages: nil}

	h1, err := m.StartAdventure(cfg, StartOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h1.Wait()

	if _, err := m.StartAdventure(cfg, StartOptions{}); err != nil {
		t.Fatalf("expected restart to succeed once prior run is done: %v", err)
	}
}

func TestShutdownWaitsForCompletionWhenRequested(t *testing.T) {
	release := make(chan struct{})
	m := New(bus.New(10), nil, "")
	m.RegisterTypeHandler("slow", func(dag.StageConfig) dag.StageHandler {
		return func(ctx context.Context, in dag.HandlerInput) (any, error) {
			<-release
			return "done", nil
		}
	})
	cfg := &dag.Config{ID: "d1", Stages: []dag.StageConfig{{ID: "a", Type: "slow"}}}
	if _, err := m.StartAdventure(cfg, StartOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done := make(chan struct{})
	go func() {
		m.Shutdown(ShutdownOptions{WaitForCompletion: true})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("shutdown returned before the in-flight stage completed")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("shutdown did not return after the in-flight stage completed")
	}
}

func TestShutdownDropsActiveSetWithoutWaiting(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	m := New(bus.New(10), nil, "")
	m.RegisterTypeHandler("slow", func(dag.StageConfig) dag.StageHandler {
		return func(ctx context.Context, in dag.HandlerInput) (any, error) {
			<-release
			return "done", nil
		}
	})
	cfg := &dag.Config{ID: "d1", Stages: []dag.StageConfig{{ID: "a", Type: "slow"}}}
	if _, err := m.StartAdventure(cfg, StartOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m.Shutdown(ShutdownOptions{WaitForCompletion: false})

	if got := m.GetActiveAdventures(); len(got) != 0 {
		t.Fatalf("expected active set to be dropped immediately, got %v", got)
	}
}

func TestConfigSourceResolvesLiteralConfig(t *testing.T) {
	cs := ConfigSource{}
	cfg := &dag.Config{ID: "literal", Stages: []dag.StageConfig{{ID: "a"}}}
	resolved, err := cs.Resolve(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.ID != "literal" || resolved == cfg {
		t.Fatalf("expected a cloned copy of the literal config, got %+v (same pointer: %v)", resolved, resolved == cfg)
	}
}

func TestConfigSourceResolvesNamedFileAndDefaultsIDFromFilename(t *testing.T) {
	dir := t.TempDir()
	body, _ := json.Marshal(map[string]any{
		"stages": []map[string]any{{"id": "a", "type": "noop"}},
	})
	if err := os.WriteFile(filepath.Join(dir, "intro.json"), body, 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	cs := ConfigSource{Dir: dir}
	cfg, err := cs.Resolve("intro")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ID != "intro" {
		t.Fatalf("expected id to default to the filename stem, got %q", cfg.ID)
	}
	if len(cfg.Stages) != 1 || cfg.Stages[0].ID != "a" {
		t.Fatalf("unexpected stages: %+v", cfg.Stages)
	}
}

func TestConfigSourceNamedFileExplicitIDWins(t *testing.T) {
	dir := t.TempDir()
	body, _ := json.Marshal(map[string]any{"id": "custom", "stages": []map[string]any{}})
	if err := os.WriteFile(filepath.Join(dir, "intro.json"), body, 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	cs := ConfigSource{Dir: dir}
	cfg, err := cs.Resolve("intro")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ID != "custom" {
		t.Fatalf("expected explicit id from file to win, got %q", cfg.ID)
	}
}

func TestConfigSourceUnknownNameErrors(t *testing.T) {
	cs := ConfigSource{Dir: t.TempDir()}
	if _, err := cs.Resolve("does-not-exist"); err == nil {
		t.Fatal("expected an error resolving a missing named config")
	}
}
