package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sherndon-labs/adventurecore/internal/bus"
	"github.com/sherndon-labs/adventurecore/internal/dag"
	"github.com/sherndon-labs/adventurecore/internal/orchestrator"
	"github.com/sherndon-labs/adventurecore/internal/proposal"
)

const (
	defaultProposalTimeout  = 30 * time.Second
	defaultExecutionTimeout = 15 * time.Second
)

// ProposalTypeToAgentType maps a proposal type to the agent capability
// type expected to answer it (spec §4.J); unknown types default to scene.
func ProposalTypeToAgentType(proposalType string) string {
	switch proposalType {
	case "camera_move":
		return "camera"
	case "story_advance":
		return "story"
	case "asset_placement":
		return "scene"
	default:
		return "scene"
	}
}

// CompetitionFactory builds the `competition` default type handler: it
// opens a proposal batch (via proposal:request, consumed by whatever
// proposal.Manager is subscribed on b) and a competition:start
// announcement, then awaits competition:completed for the same batchId.
//
// competition:completed is the externally-visible decision event (spec §6
// event catalog), distinct from the Proposal Batch Manager's own
// resolution event — it fires only after judging/execution has happened
// downstream (the Story Loop Phase Machine drives that directly for its
// own AgentCompetition phase; this handler exists for DAG configs that
// want a single competition stage without a full phase machine run).
func CompetitionFactory(b *bus.Bus) orchestrator.HandlerFactory {
	return func(stage dag.StageConfig) dag.StageHandler {
		return func(ctx context.Context, in dag.HandlerInput) (any, error) {
			payload, _ := stage.Payload.(map[string]any)
			if payload == nil {
				payload = map[string]any{}
			}

			batchID := stringOr(payload["batchId"], stage.ID+":"+uuid.NewString())
			proposalType, _ := payload["proposalType"].(string)
			expectedAgents := stringSlice(payload["expectedAgents"])

			proposalTimeout := durationMsOr(payload["proposalTimeoutMs"], defaultProposalTimeout)
			executionTimeout := durationMsOr(payload["executionTimeoutMs"], defaultExecutionTimeout)

			send := func() {
				b.Emit(proposal.EventRequest, proposal.RequestPayload{
					BatchID:        batchID,
					ProposalType:   proposalType,
					Context:        payload["context"],
					Deadline:       time.Now().Add(proposalTimeout),
					ExpectedAgents: expectedAgents,
				})
				b.Emit("competition:start", map[string]any{
					"type":      proposalType,
					"batchId":   batchID,
					"agentType": ProposalTypeToAgentType(proposalType),
				})
			}

			resp, err := awaitCorrelated(ctx, b, send, "competition:completed", "batchId", batchID, proposalTimeout+executionTimeout)
			if err != nil {
				return nil, err
			}
			return resp["result"], nil
		}
	}
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

func stringSlice(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func durationMsOr(v any, fallback time.Duration) time.Duration {
	if ms, ok := v.(int); ok && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
