package responders

import "context"

// LoopbackMCPClient is a deterministic, no-network MCPClient for mock mode
// and offline development, the MCP-side counterpart to agent.MockAgent
// (spec §4.D variant list; same "fakes over mocking frameworks" rationale
// applies to the external-service boundary on this side of the bus).
type LoopbackMCPClient struct {
	Service string
}

func NewLoopbackMCPClient(service string) *LoopbackMCPClient {
	return &LoopbackMCPClient{Service: service}
}

func (c *LoopbackMCPClient) ExecuteCommand(ctx context.Context, tool string, args, options map[string]any) (any, error) {
	return map[string]any{"ok": true, "service": c.Service, "tool": tool, "args": args}, nil
}

func (c *LoopbackMCPClient) CallMethod(ctx context.Context, method string, args map[string]any) (any, error) {
	return map[string]any{"ok": true, "service": c.Service, "method": method, "args": args}, nil
}
