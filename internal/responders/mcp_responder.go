package responders

import (
	"context"
	"time"

	"github.com/sherndon-labs/adventurecore/internal/bus"
)

const resultEventMCP = "orchestrator:mcp:result"

// MCPResponder answers orchestrator:mcp:request by dispatching to the
// client registered for payload.mcpService (spec §4.K).
type MCPResponder struct {
	bus         *bus.Bus
	clients     map[string]MCPClient
	timeout     time.Duration
	unsubscribe bus.CancelFunc
}

func NewMCPResponder(b *bus.Bus, clients map[string]MCPClient, timeout time.Duration) *MCPResponder {
	r := &MCPResponder{bus: b, clients: clients, timeout: timeout}
	r.unsubscribe = b.Subscribe("orchestrator:mcp:request", r.handle, bus.Options{})
	return r
}

func (r *MCPResponder) Close() { r.unsubscribe() }

func (r *MCPResponder) handle(e bus.Event) error {
	req, ok := e.Payload.(map[string]any)
	if !ok {
		return nil
	}
	requestID, _ := req["requestId"].(string)
	service, _ := req["mcpService"].(string)

	client, ok := r.clients[service]
	if !ok {
		r.bus.Emit(resultEventMCP, map[string]any{"requestId": requestID, "error": "unknown mcp service: " + service})
		return nil
	}

	payload, _ := req["payload"].(map[string]any)
	if payload == nil {
		payload = map[string]any{}
	}
	mode, _ := payload["mode"].(string)
	tool, _ := payload["tool"].(string)
	args, _ := payload["args"].(map[string]any)
	options, _ := payload["options"].(map[string]any)

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	var (
		result any
		err    error
	)
	if mode == "method" || tool == "" {
		method, _ := payload["method"].(string)
		if method == "" {
			method = tool
		}
		methodArgs, _ := payload["methodArgs"].(map[string]any)
		if methodArgs == nil {
			methodArgs = args
		}
		result, err = client.CallMethod(ctx, method, methodArgs)
	} else {
		result, err = client.ExecuteCommand(ctx, tool, args, options)
	}

	if err != nil {
		r.bus.Emit(resultEventMCP, map[string]any{"requestId": requestID, "error": err.Error()})
		return nil
	}
	r.bus.Emit(resultEventMCP, map[string]any{"requestId": requestID, "result": result})
	return nil
}
