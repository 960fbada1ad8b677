package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/sherndon-labs/adventurecore/internal/bus"
	"github.com/sherndon-labs/adventurecore/internal/dag"
	"github.com/sherndon-labs/adventurecore/internal/orchestrator"
)

const defaultMCPTimeout = 15 * time.Second

// MCPServiceOf extracts the service name from a "mcp:<service>" stage type.
func MCPServiceOf(stageType string) string {
	_, service, found := strings.Cut(stageType, ":")
	if !found {
		return ""
	}
	return service
}

// MCPFactory builds the `mcp:<service>` default type handler family: one
// factory registered per service name against orchestrator:mcp:{request,
// result}, the mcpService field selecting the client on the Responder side
// (spec §4.J, §4.K).
func MCPFactory(b *bus.Bus) orchestrator.HandlerFactory {
	return func(stage dag.StageConfig) dag.StageHandler {
		service := MCPServiceOf(stage.Type)
		return func(ctx context.Context, in dag.HandlerInput) (any, error) {
			payload := map[string]any{
				"stageId":    stage.ID,
				"mcpService": service,
				"payload":    stage.Payload,
				"budget":     stage.Budget,
			}
			timeout := BudgetOr(stage.Budget.TimeMs, defaultMCPTimeout)
			resp, err := Request(ctx, b, "orchestrator:mcp:request", payload, "orchestrator:mcp:result", timeout)
			if err != nil {
				return nil, err
			}
			return resp["result"], nil
		}
	}
}

// MCPCall is a convenience used by other default handlers (system:
// scene-reset) that need to drive an MCP operation without going through
// the full stage-handler factory machinery.
func MCPCall(ctx context.Context, b *bus.Bus, service, op string, args map[string]any, timeout time.Duration) (map[string]any, error) {
	payload := map[string]any{
		"mcpService": service,
		"payload":    map[string]any{"tool": op, "args": args, "mode": "method"},
	}
	resp, err := Request(ctx, b, "orchestrator:mcp:request", payload, "orchestrator:mcp:result", timeout)
	if err != nil {
		return nil, err
	}
	result, _ := resp["result"].(map[string]any)
	return result, nil
}
