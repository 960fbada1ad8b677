package handlers

import (
	"context"
	"time"

	"github.com/sherndon-labs/adventurecore/internal/bus"
	"github.com/sherndon-labs/adventurecore/internal/dag"
	"github.com/sherndon-labs/adventurecore/internal/orchestrator"
)

const defaultLLMTimeout = 10 * time.Second

// LLMFactory builds the `llm` default type handler: emit
// orchestrator:llm:request, await orchestrator:llm:result (spec §4.J).
func LLMFactory(b *bus.Bus) orchestrator.HandlerFactory {
	return func(stage dag.StageConfig) dag.StageHandler {
		return func(ctx context.Context, in dag.HandlerInput) (any, error) {
			payload := map[string]any{
				"stageId":     stage.ID,
				"stageConfig": stage,
				"payload":     stage.Payload,
				"budget":      stage.Budget,
			}
			timeout := BudgetOr(stage.Budget.TimeMs, defaultLLMTimeout)
			resp, err := Request(ctx, b, "orchestrator:llm:request", payload, "orchestrator:llm:result", timeout)
			if err != nil {
				return nil, err
			}
			return resp["result"], nil
		}
	}
}
