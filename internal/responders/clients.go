// Package responders implements the long-lived bus subscribers (spec
// §4.K) that translate orchestrator:{llm,audio,mcp}:request events into
// calls against external systems and publish the matching :result event.
package responders

import (
	"context"
	"time"
)

// Usage is vendor token accounting reported back on a completion.
type Usage struct {
	Prompt     int
	Completion int
	Total      int
	CostUSD    float64
}

// LLMClient is one vendor's completion call, keyed by provider name in the
// LLM Responder's client map.
type LLMClient interface {
	Call(ctx context.Context, model string, payload any) (text string, usage Usage, err error)
}

// MCPClient is one MCP service's invocation surface. ExecuteCommand
// handles the generic tool-call shape; CallMethod is the direct-method
// fast path preferred when `mode=method` or no tool name is present
// (spec §4.K).
type MCPClient interface {
	ExecuteCommand(ctx context.Context, tool string, args, options map[string]any) (any, error)
	CallMethod(ctx context.Context, method string, args map[string]any) (any, error)
}

// AudioConn is the minimal surface the Audio Responder needs from a
// connected audio service socket, small enough to fake in tests.
type AudioConn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// AudioDialer opens an AudioConn to url.
type AudioDialer interface {
	Dial(ctx context.Context, url string) (AudioConn, error)
}
