// Package judge implements the Judge Panel (spec §4.F): a weighted-vote
// decision algorithm over a set of independent judges evaluating a
// proposal batch.
package judge

import (
	"context"

	"github.com/sherndon-labs/adventurecore/internal/agent"
)

// Confidence mirrors spec §3's Judge Decision.confidence enum, with a
// numeric weight for averaging (spec §4.F tie-break and overall-confidence
// rules).
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

func (c Confidence) weight() float64 {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	default:
		return 1
	}
}

// Evaluation is a single judge's nomination over a batch.
type Evaluation struct {
	JudgeID    string
	Winner     string
	Confidence Confidence
	Notes      string
}

// Judge is the capability set both panel variants satisfy (spec §4.F).
type Judge interface {
	ID() string
	Specialty() string
	Weight() float64
	Strictness() float64
	Evaluate(ctx context.Context, proposals []agent.Proposal) (Evaluation, error)
}

// Decision is a Judge Decision (spec §3).
type Decision struct {
	BatchID        string
	Winner         string
	Reasoning      string
	Confidence     Confidence
	Concerns       []string
	PerJudgeScores []Evaluation
}
