package judge

import (
	"context"
	"sort"

	"github.com/sherndon-labs/adventurecore/internal/agent"
)

// RuleBasedJudge nominates deterministically from the proposals themselves
// (no vendor call), used for judges configured with a "strictness" bias
// toward objective signals like proposal completeness — and as the panel's
// always-available fallback vote when LLM judges are unreliable.
type RuleBasedJudge struct {
	id         string
	specialty  string
	weight     float64
	strictness float64
}

func NewRuleBasedJudge(id, specialty string, weight, strictness float64) *RuleBasedJudge {
	return &RuleBasedJudge{id: id, specialty: specialty, weight: weight, strictness: strictness}
}

func (j *RuleBasedJudge) ID() string           { return j.id }
func (j *RuleBasedJudge) Specialty() string    { return j.specialty }
func (j *RuleBasedJudge) Weight() float64      { return j.weight }
func (j *RuleBasedJudge) Strictness() float64  { return j.strictness }

// Evaluate nominates the proposal with the longest reasoning among those
// without an error, breaking ties by agent id for determinism. Confidence
// is high only when a single proposal is viable; otherwise it is medium
// when the winner's reasoning is at least 20*strictness characters longer
// than the runner-up's, and low when the margin is smaller.
func (j *RuleBasedJudge) Evaluate(ctx context.Context, proposals []agent.Proposal) (Evaluation, error) {
	candidates := make([]agent.Proposal, 0, len(proposals))
	for _, p := range proposals {
		if p.Error == "" {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return Evaluation{JudgeID: j.id, Confidence: ConfidenceLow, Notes: "no viable proposals"}, nil
	}

	sort.SliceStable(candidates, func(i, k int) bool {
		li, lk := len(candidates[i].Reasoning), len(candidates[k].Reasoning)
		if li != lk {
			return li > lk
		}
		return candidates[i].AgentID < candidates[k].AgentID
	})

	winner := candidates[0]
	confidence := ConfidenceMedium
	if len(candidates) == 1 {
		confidence = ConfidenceHigh
	} else if len(winner.Reasoning)-len(candidates[1].Reasoning) < int(20*j.strictness) {
		confidence = ConfidenceLow
	}

	return Evaluation{
		JudgeID:    j.id,
		Winner:     winner.AgentID,
		Confidence: confidence,
		Notes:      "selected for most substantiated reasoning",
	}, nil
}
