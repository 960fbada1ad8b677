package responders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sherndon-labs/adventurecore/internal/audio"
	"github.com/sherndon-labs/adventurecore/internal/bus"
)

type fakeLLMClient struct {
	text string
	err  error
}

func (f *fakeLLMClient) Call(ctx context.Context, model string, payload any) (string, Usage, error) {
	if f.err != nil {
		return "", Usage{}, f.err
	}
	return f.text, Usage{Prompt: 10, Completion: 5, Total: 15}, nil
}

func waitForEvent(t *testing.T, b *bus.Bus, eventType string, timeout time.Duration) map[string]any {
	t.Helper()
	ch := make(chan map[string]any, 1)
	cancel := b.Subscribe(eventType, func(e bus.Event) error {
		ch <- e.Payload.(map[string]any)
		return nil
	}, bus.Options{Once: true})
	defer cancel()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for %q", eventType)
		return nil
	}
}

func TestLLMResponderStripsCodeFencesAndParsesJSON(t *testing.T) {
	b := bus.New(10)
	client := &fakeLLMClient{text: "```json\n{\"ok\":true}\n```"}
	NewLLMResponder(b, map[string]LLMClient{"claude": client}, "claude", time.Second)

	b.Emit("orchestrator:llm:request", map[string]any{"requestId": "r1", "provider": "claude"})
	result := waitForEvent(t, b, "orchestrator:llm:result", time.Second)

	if result["text"] != `{"ok":true}` {
		t.Fatalf("expected stripped text, got %q", result["text"])
	}
	jsonVal, ok := result["json"].(map[string]any)
	if !ok || jsonVal["ok"] != true {
		t.Fatalf("expected parsed json, got %v", result["json"])
	}
}

func TestLLMResponderUnknownProviderErrors(t *testing.T) {
	b := bus.New(10)
	NewLLMResponder(b, map[string]LLMClient{}, "claude", time.Second)

	b.Emit("orchestrator:llm:request", map[string]any{"requestId": "r1"})
	result := waitForEvent(t, b, "orchestrator:llm:result", time.Second)
	if result["error"] == nil {
		t.Fatal("expected an error for an unknown provider")
	}
}

func TestLLMResponderVendorErrorEmitsErrorWithMetadata(t *testing.T) {
	b := bus.New(10)
	NewLLMResponder(b, map[string]LLMClient{"claude": &fakeLLMClient{err: errors.New("rate limited")}}, "claude", time.Second)

	b.Emit("orchestrator:llm:request", map[string]any{"requestId": "r1", "provider": "claude"})
	result := waitForEvent(t, b, "orchestrator:llm:result", time.Second)
	if result["error"] != "rate limited" {
		t.Fatalf("unexpected result: %v", result)
	}
}

type fakeMCPClient struct {
	methodCalled  string
	commandCalled string
	result        any
	err           error
}

func (f *fakeMCPClient) ExecuteCommand(ctx context.Context, tool string, args, options map[string]any) (any, error) {
	f.commandCalled = tool
	return f.result, f.err
}

func (f *fakeMCPClient) CallMethod(ctx context.Context, method string, args map[string]any) (any, error) {
	f.methodCalled = method
	return f.result, f.err
}

func TestMCPResponderPrefersMethodWhenModeIsMethod(t *testing.T) {
	b := bus.New(10)
	client := &fakeMCPClient{result: map[string]any{"ok": true}}
	NewMCPResponder(b, map[string]MCPClient{"worldbuilder": client}, time.Second)

	b.Emit("orchestrator:mcp:request", map[string]any{
		"requestId": "r1", "mcpService": "worldbuilder",
		"payload": map[string]any{"mode": "method", "tool": "clearScene"},
	})
	result := waitForEvent(t, b, "orchestrator:mcp:result", time.Second)
	if client.methodCalled != "clearScene" {
		t.Fatalf("expected CallMethod to be used, got method=%q command=%q", client.methodCalled, client.commandCalled)
	}
	if result["result"] == nil {
		t.Fatalf("unexpected result: %v", result)
	}
}

func TestMCPResponderUsesExecuteCommandWhenToolGivenWithoutMethodMode(t *testing.T) {
	b := bus.New(10)
	client := &fakeMCPClient{result: "done"}
	NewMCPResponder(b, map[string]MCPClient{"worldbuilder": client}, time.Second)

	b.Emit("orchestrator:mcp:request", map[string]any{
		"requestId": "r1", "mcpService": "worldbuilder",
		"payload": map[string]any{"tool": "createBatch", "args": map[string]any{"name": "x"}},
	})
	waitForEvent(t, b, "orchestrator:mcp:result", time.Second)
	if client.commandCalled != "createBatch" {
		t.Fatalf("expected ExecuteCommand to be used, got command=%q", client.commandCalled)
	}
}

func TestMCPResponderUnknownServiceErrors(t *testing.T) {
	b := bus.New(10)
	NewMCPResponder(b, map[string]MCPClient{}, time.Second)

	b.Emit("orchestrator:mcp:request", map[string]any{"requestId": "r1", "mcpService": "ghost"})
	result := waitForEvent(t, b, "orchestrator:mcp:result", time.Second)
	if result["error"] == nil {
		t.Fatal("expected an error for an unknown service")
	}
}

type fakeAudioConn struct {
	mu       sync.Mutex
	writes   []any
	writeErr error
	closed   bool
	closeCh  chan struct{}
	once     sync.Once
}

func newFakeAudioConn() *fakeAudioConn {
	return &fakeAudioConn{closeCh: make(chan struct{})}
}

func (c *fakeAudioConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.writes = append(c.writes, v)
	return nil
}

func (c *fakeAudioConn) ReadJSON(v any) error {
	<-c.closeCh
	return errors.New("connection closed")
}

func (c *fakeAudioConn) SetWriteDeadline(t time.Time) error { return nil }

func (c *fakeAudioConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.once.Do(func() { close(c.closeCh) })
	return nil
}

type fakeDialer struct {
	conn *fakeAudioConn
	err  error
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (AudioConn, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestAudioResponderOfflineNonOptionalReturnsError(t *testing.T) {
	b := bus.New(10)
	r := NewAudioResponder(b, &fakeDialer{err: errors.New("refused")}, "ws://audio")
	defer r.Close()

	b.Emit("orchestrator:audio:request", map[string]any{
		"requestId": "r1", "optional": false,
		"payload": map[string]any{"narration": map[string]any{"text": "hi"}},
	})
	result := waitForEvent(t, b, "orchestrator:audio:result", time.Second)
	if result["error"] != "Audio service not connected" {
		t.Fatalf("unexpected result: %v", result)
	}
}

func TestAudioResponderOfflineOptionalReturnsWarning(t *testing.T) {
	b := bus.New(10)
	r := NewAudioResponder(b, &fakeDialer{err: errors.New("refused")}, "ws://audio")
	defer r.Close()

	b.Emit("orchestrator:audio:request", map[string]any{
		"requestId": "r1", "optional": true,
		"payload": map[string]any{"narration": map[string]any{"text": "hi"}},
	})
	result := waitForEvent(t, b, "orchestrator:audio:result", time.Second)
	res := result["result"].(map[string]any)
	if res["status"] != "offline" {
		t.Fatalf("unexpected result: %v", res)
	}
}

func TestAudioResponderForwardsChannelUpdatesAndSync(t *testing.T) {
	conn := newFakeAudioConn()
	b := bus.New(10)
	r := NewAudioResponder(b, &fakeDialer{conn: conn}, "ws://audio")
	defer r.Close()

	waitUntil(t, time.Second, r.Connected)

	b.Emit("orchestrator:audio:request", map[string]any{
		"requestId": "r1", "optional": false,
		"payload": map[string]any{
			"sync":      map[string]any{"id": "s1", "channels": []any{"narration", "music"}},
			"narration": map[string]any{"text": "hi"},
			"music":     map[string]any{"track": "theme"},
		},
	})
	result := waitForEvent(t, b, "orchestrator:audio:result", time.Second)
	res := result["result"].(map[string]any)
	if res["status"] != "queued" {
		t.Fatalf("unexpected status: %v", res)
	}
	items := res["requests"].([]audio.ItemResult)
	if len(items) != 3 {
		t.Fatalf("expected sync + 2 channel updates, got %d", len(items))
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	first, ok := conn.writes[0].(audio.Control)
	if len(conn.writes) != 3 || !ok || first.Command != audio.CommandRegisterSync {
		t.Fatalf("expected register_sync to be sent first, got %v", conn.writes)
	}
}
