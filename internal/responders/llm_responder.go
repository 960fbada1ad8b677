package responders

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/sherndon-labs/adventurecore/internal/bus"
)

const resultEventLLM = "orchestrator:llm:result"

// LLMResponder answers orchestrator:llm:request (spec §4.K).
type LLMResponder struct {
	bus             *bus.Bus
	clients         map[string]LLMClient
	defaultProvider string
	timeout         time.Duration
	unsubscribe     bus.CancelFunc
}

// NewLLMResponder subscribes to orchestrator:llm:request immediately.
func NewLLMResponder(b *bus.Bus, clients map[string]LLMClient, defaultProvider string, timeout time.Duration) *LLMResponder {
	r := &LLMResponder{bus: b, clients: clients, defaultProvider: defaultProvider, timeout: timeout}
	r.unsubscribe = b.Subscribe("orchestrator:llm:request", r.handle, bus.Options{})
	return r
}

func (r *LLMResponder) Close() { r.unsubscribe() }

func (r *LLMResponder) handle(e bus.Event) error {
	req, ok := e.Payload.(map[string]any)
	if !ok {
		return nil
	}
	requestID, _ := req["requestId"].(string)

	providerName, _ := req["provider"].(string)
	if providerName == "" {
		providerName = r.defaultProvider
	}
	client, ok := r.clients[providerName]
	if !ok {
		r.bus.Emit(resultEventLLM, map[string]any{"requestId": requestID, "error": "unknown provider: " + providerName})
		return nil
	}
	model, _ := req["model"].(string)

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	start := time.Now()
	text, usage, err := client.Call(ctx, model, req["payload"])
	elapsed := time.Since(start)
	if err != nil {
		r.bus.Emit(resultEventLLM, map[string]any{
			"requestId": requestID,
			"error":     err.Error(),
			"metadata":  map[string]any{"provider": providerName, "model": model},
		})
		return nil
	}

	text = stripCodeFences(text)
	result := map[string]any{
		"requestId":    requestID,
		"provider":     providerName,
		"model":        model,
		"text":         text,
		"usage":        usage,
		"responseTime": elapsed.Milliseconds(),
	}
	if parsed, ok := tryParseJSON(text); ok {
		result["json"] = parsed
	}
	r.bus.Emit(resultEventLLM, result)
	return nil
}

// stripCodeFences removes a single leading/trailing markdown code fence
// (```json ... ``` or ``` ... ```) an LLM vendor may have wrapped its
// output in (spec Design Notes: "the core must not see markdown").
func stripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return text
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if nl := strings.IndexByte(trimmed, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(trimmed[:nl])
		if firstLine == "" || !strings.ContainsAny(firstLine, " {}[]\"") {
			trimmed = trimmed[nl+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// tryParseJSON attempts a JSON parse when the content looks structured
// (spec §4.K: "attempt JSON parse when the content looks structured").
func tryParseJSON(text string) (any, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, false
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return nil, false
	}
	return v, true
}
