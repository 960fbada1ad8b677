package judge

import (
	"context"

	"github.com/sherndon-labs/adventurecore/internal/agent"
)

// Evaluator is the vendor boundary an LLMJudge calls through to produce an
// Evaluation, mirroring agent.Provider's shape so the same kind of fake
// used in agent_test.go can drive judge tests deterministically.
type Evaluator interface {
	Evaluate(ctx context.Context, proposals []agent.Proposal) (winner string, confidence Confidence, notes string, err error)
}

// LLMJudge delegates the nomination to a vendor model call.
type LLMJudge struct {
	id         string
	specialty  string
	weight     float64
	strictness float64
	vendor     Evaluator
}

func NewLLMJudge(id, specialty string, weight, strictness float64, vendor Evaluator) *LLMJudge {
	return &LLMJudge{id: id, specialty: specialty, weight: weight, strictness: strictness, vendor: vendor}
}

func (j *LLMJudge) ID() string          { return j.id }
func (j *LLMJudge) Specialty() string   { return j.specialty }
func (j *LLMJudge) Weight() float64     { return j.weight }
func (j *LLMJudge) Strictness() float64 { return j.strictness }

func (j *LLMJudge) Evaluate(ctx context.Context, proposals []agent.Proposal) (Evaluation, error) {
	winner, confidence, notes, err := j.vendor.Evaluate(ctx, proposals)
	if err != nil {
		return Evaluation{}, err
	}
	return Evaluation{JudgeID: j.id, Winner: winner, Confidence: confidence, Notes: notes}, nil
}
