package handlers

import (
	"context"
	"time"

	"github.com/sherndon-labs/adventurecore/internal/bus"
	"github.com/sherndon-labs/adventurecore/internal/dag"
	"github.com/sherndon-labs/adventurecore/internal/orchestrator"
)

const defaultAudioTimeout = 12 * time.Second

// AudioFactory builds the `audio` default type handler: analogous to LLM
// but against orchestrator:audio:{request,result} with a 12s default
// budget (spec §4.J).
func AudioFactory(b *bus.Bus) orchestrator.HandlerFactory {
	return func(stage dag.StageConfig) dag.StageHandler {
		return func(ctx context.Context, in dag.HandlerInput) (any, error) {
			payload := map[string]any{
				"stageId":     stage.ID,
				"stageConfig": stage,
				"payload":     stage.Payload,
				"budget":      stage.Budget,
				"optional":    stage.Optional,
			}
			timeout := BudgetOr(stage.Budget.TimeMs, defaultAudioTimeout)
			resp, err := Request(ctx, b, "orchestrator:audio:request", payload, "orchestrator:audio:result", timeout)
			if err != nil {
				return nil, err
			}
			return resp["result"], nil
		}
	}
}
