package responders

import (
	"context"
	"encoding/json"
)

// LoopbackLLMClient is a deterministic, no-network LLMClient for mock mode,
// the LLM-vendor-side counterpart to LoopbackMCPClient and agent.MockAgent.
// It echoes the request payload back as its "completion" so a DAG config
// exercising the `llm` default type handler (spec §4.J) gets a stable,
// parseable response without a live vendor call.
type LoopbackLLMClient struct {
	Provider string
}

func NewLoopbackLLMClient(provider string) *LoopbackLLMClient {
	return &LoopbackLLMClient{Provider: provider}
}

func (c *LoopbackLLMClient) Call(ctx context.Context, model string, payload any) (string, Usage, error) {
	data, err := json.Marshal(map[string]any{"provider": c.Provider, "model": model, "echo": payload})
	if err != nil {
		return "", Usage{}, err
	}
	return string(data), Usage{Prompt: 1, Completion: 1, Total: 2}, nil
}
