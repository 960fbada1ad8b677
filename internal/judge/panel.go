package judge

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/sherndon-labs/adventurecore/internal/agent"
	"github.com/sherndon-labs/adventurecore/internal/observability"
)

// Panel holds the configured set of judges and runs the weighted-vote
// decision algorithm (spec §4.F). Judges are evaluated concurrently via
// errgroup, mirroring the Proposal Batch Manager / AgentCompetition
// phase's "one failure must not abort the round" fan-out shape.
type Panel struct {
	judges []Judge
}

func NewPanel(judges []Judge) *Panel {
	return &Panel{judges: judges}
}

// EvaluateBatch implements spec §4.F's evaluateBatch(batchSummary) →
// Decision contract.
func (p *Panel) EvaluateBatch(ctx context.Context, batchID string, proposals []agent.Proposal) Decision {
	evals := make([]Evaluation, len(p.judges))
	effectiveWeights := make([]float64, len(p.judges))

	g, gctx := errgroup.WithContext(ctx)
	for i, j := range p.judges {
		i, j := i, j
		g.Go(func() error {
			eval, err := j.Evaluate(gctx, proposals)
			if err != nil {
				// A failed judge contributes weight 0 (spec §4.F) but must
				// not abort the other judges' evaluation.
				observability.JudgeFailures.WithLabelValues(j.ID()).Inc()
				evals[i] = Evaluation{JudgeID: j.ID(), Confidence: ConfidenceLow, Notes: "evaluate failed: " + err.Error()}
				effectiveWeights[i] = 0
				return nil
			}
			evals[i] = eval
			effectiveWeights[i] = j.Weight()
			return nil
		})
	}
	_ = g.Wait() // individual failures are absorbed above; Wait never returns an error here

	allFailed := true
	for i := range evals {
		if effectiveWeights[i] > 0 {
			allFailed = false
			break
		}
	}
	if allFailed || len(proposals) == 0 {
		decision := fallbackDecision(batchID, proposals, evals)
		observability.JudgeDecisions.WithLabelValues(string(decision.Confidence)).Inc()
		return decision
	}

	decision := decide(batchID, evals, effectiveWeights)
	observability.JudgeDecisions.WithLabelValues(string(decision.Confidence)).Inc()
	return decision
}

func fallbackDecision(batchID string, proposals []agent.Proposal, evals []Evaluation) Decision {
	winner := ""
	if len(proposals) > 0 {
		winner = proposals[0].AgentID
	}
	return Decision{
		BatchID:        batchID,
		Winner:         winner,
		Reasoning:      "panel unavailable: all judges failed or no proposals were received",
		Confidence:     ConfidenceLow,
		Concerns:       []string{"panel unavailable"},
		PerJudgeScores: evals,
	}
}

func decide(batchID string, evals []Evaluation, weights []float64) Decision {
	totals := make(map[string]float64)
	confidenceSum := make(map[string]float64)
	confidenceCount := make(map[string]int)
	agreeing := 0
	total := 0

	for i, e := range evals {
		if weights[i] <= 0 || e.Winner == "" {
			continue
		}
		totals[e.Winner] += weights[i]
		confidenceSum[e.Winner] += e.Confidence.weight()
		confidenceCount[e.Winner]++
		total++
	}

	winner := argmaxWithTieBreak(totals, confidenceSum, confidenceCount)
	for _, e := range evals {
		if e.Winner == winner {
			agreeing++
		}
	}

	avgConfidence := 0.0
	if confidenceCount[winner] > 0 {
		avgConfidence = confidenceSum[winner] / float64(confidenceCount[winner])
	}
	overall := ConfidenceLow
	switch {
	case avgConfidence >= 2.5:
		overall = ConfidenceHigh
	case avgConfidence >= 1.5:
		overall = ConfidenceMedium
	}

	var concerns []string
	margin := marginOfVictory(totals, winner)
	if margin <= 0.5 {
		concerns = append(concerns, "narrow margin of victory")
	}
	if total > 0 && float64(agreeing)/float64(total) < 0.75 {
		concerns = append(concerns, "low judge agreement")
	}

	return Decision{
		BatchID:        batchID,
		Winner:         winner,
		Reasoning:      "weighted vote across panel judges",
		Confidence:     overall,
		Concerns:       concerns,
		PerJudgeScores: evals,
	}
}

func argmaxWithTieBreak(totals map[string]float64, confidenceSum map[string]float64, confidenceCount map[string]int) string {
	type candidate struct {
		agentID    string
		weight     float64
		avgConf    float64
	}
	var cands []candidate
	for id, w := range totals {
		avg := 0.0
		if confidenceCount[id] > 0 {
			avg = confidenceSum[id] / float64(confidenceCount[id])
		}
		cands = append(cands, candidate{agentID: id, weight: w, avgConf: avg})
	}
	sort.Slice(cands, func(i, k int) bool {
		if cands[i].weight != cands[k].weight {
			return cands[i].weight > cands[k].weight
		}
		if cands[i].avgConf != cands[k].avgConf {
			return cands[i].avgConf > cands[k].avgConf
		}
		return cands[i].agentID < cands[k].agentID
	})
	if len(cands) == 0 {
		return ""
	}
	return cands[0].agentID
}

func marginOfVictory(totals map[string]float64, winner string) float64 {
	best := totals[winner]
	second := 0.0
	for id, w := range totals {
		if id == winner {
			continue
		}
		if w > second {
			second = w
		}
	}
	return best - second
}
