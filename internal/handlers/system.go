package handlers

import (
	"context"
	"time"

	"github.com/sherndon-labs/adventurecore/internal/bus"
	"github.com/sherndon-labs/adventurecore/internal/corerr"
	"github.com/sherndon-labs/adventurecore/internal/dag"
	"github.com/sherndon-labs/adventurecore/internal/orchestrator"
)

const defaultSleepMs = 1000

// SceneResetFactory builds the `system:scene-reset` default type handler:
// clearScene plus clearWaypoints/clearGroups, best-effort, aggregating any
// failures (spec §4.J). Every call is routed through the MCP Responder
// (spec §5: external clients are owned by their Responder, not called
// directly by other components).
func SceneResetFactory(b *bus.Bus) orchestrator.HandlerFactory {
	return func(stage dag.StageConfig) dag.StageHandler {
		return func(ctx context.Context, in dag.HandlerInput) (any, error) {
			timeout := BudgetOr(stage.Budget.TimeMs, defaultMCPTimeout)
			details := make(map[string]any)
			var errs []error

			if _, err := MCPCall(ctx, b, "worldbuilder", "clearScene", map[string]any{"root": "/World", "confirm": true}, timeout); err != nil {
				errs = append(errs, err)
			} else {
				details["clearScene"] = "ok"
			}
			if _, err := MCPCall(ctx, b, "worldsurveyor", "clearWaypoints", map[string]any{"confirm": true}, timeout); err != nil {
				errs = append(errs, err)
			} else {
				details["clearWaypoints"] = "ok"
			}
			if _, err := MCPCall(ctx, b, "worldsurveyor", "clearGroups", map[string]any{"confirm": true}, timeout); err != nil {
				errs = append(errs, err)
			} else {
				details["clearGroups"] = "ok"
			}

			if len(errs) > 0 {
				return nil, &corerr.AggregateMCPError{Errors: errs}
			}
			return map[string]any{"cleared": true, "details": details}, nil
		}
	}
}

// SleepFactory builds the `system:sleep` default type handler: awaits
// durationMs ?? budget.timeMs ?? 1000 (spec §4.J).
func SleepFactory() orchestrator.HandlerFactory {
	return func(stage dag.StageConfig) dag.StageHandler {
		return func(ctx context.Context, in dag.HandlerInput) (any, error) {
			durationMs := 0
			if payload, ok := stage.Payload.(map[string]any); ok {
				if v, ok := payload["durationMs"].(int); ok && v > 0 {
					durationMs = v
				}
			}
			if durationMs == 0 && stage.Budget.TimeMs > 0 {
				durationMs = stage.Budget.TimeMs
			}
			if durationMs == 0 {
				durationMs = defaultSleepMs
			}
			timer := time.NewTimer(time.Duration(durationMs) * time.Millisecond)
			defer timer.Stop()
			select {
			case <-timer.C:
				return map[string]any{"slept": durationMs}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
}

// NotifyFactory builds the `system:notify` default type handler: emits a
// configurable event and resolves (spec §4.J).
func NotifyFactory(b *bus.Bus) orchestrator.HandlerFactory {
	return func(stage dag.StageConfig) dag.StageHandler {
		return func(ctx context.Context, in dag.HandlerInput) (any, error) {
			eventType := "activity_log"
			var data any
			if payload, ok := stage.Payload.(map[string]any); ok {
				if v, ok := payload["event"].(string); ok && v != "" {
					eventType = v
				}
				data = payload["data"]
			}
			b.Emit(eventType, data)
			return map[string]any{"notified": eventType}, nil
		}
	}
}

// LogFactory and NoopFactory are trivial — they always resolve.
func LogFactory() orchestrator.HandlerFactory {
	return func(stage dag.StageConfig) dag.StageHandler {
		return func(ctx context.Context, in dag.HandlerInput) (any, error) {
			return map[string]any{"logged": stage.Payload}, nil
		}
	}
}

func NoopFactory() orchestrator.HandlerFactory {
	return func(stage dag.StageConfig) dag.StageHandler {
		return func(ctx context.Context, in dag.HandlerInput) (any, error) {
			return map[string]any{"skipped": true}, nil
		}
	}
}
