package phaseloop

import (
	"context"
	"time"

	"github.com/sherndon-labs/adventurecore/internal/bus"
	"github.com/sherndon-labs/adventurecore/internal/state"
	"github.com/sherndon-labs/adventurecore/internal/voting"
)

// VotingPhase opens a Voting Window over the genres chosen by
// GenreSelection and awaits its clock-driven close (spec §4.L step 2).
type VotingPhase struct {
	bus           *bus.Bus
	state         *state.Store
	collector     *voting.Collector
	duration      time.Duration
	completeEvent string
}

func NewVotingPhase(b *bus.Bus, s *state.Store, collector *voting.Collector, completeEvent string, duration time.Duration) *VotingPhase {
	return &VotingPhase{bus: b, state: s, collector: collector, duration: duration, completeEvent: completeEvent}
}

func (p *VotingPhase) Name() Name { return PhaseVoting }

func (p *VotingPhase) Enter(ctx context.Context, pc *Context) (Name, *Context, error) {
	resultCh := make(chan voting.CompletePayload, 1)

	// Subscribed after the Collector's own vote:cast handler (installed at
	// construction, long before this phase runs), so same-priority FIFO
	// ordering guarantees GetTally() already reflects the cast that
	// triggered this callback (spec §4.L step 2: "bridge vote:received
	// into incremental voting.tally updates in Story State").
	cancelTally := p.bus.Subscribe(voting.EventVoteCast, func(e bus.Event) error {
		p.state.SetPath("voting.tally", tallySnapshot(p.collector.GetTally()))
		return nil
	}, bus.Options{})
	defer cancelTally()

	cancelComplete := p.bus.Subscribe(p.completeEvent, func(e bus.Event) error {
		cp, ok := e.Payload.(voting.CompletePayload)
		if !ok {
			return nil
		}
		select {
		case resultCh <- cp:
		default:
		}
		return nil
	}, bus.Options{Once: true})
	defer cancelComplete()

	p.collector.StartVoting(pc.Genres, time.Now().Add(p.duration))

	select {
	case cp := <-resultCh:
		winnerName := cp.Winner
		for _, g := range pc.Genres {
			if g.ID == cp.Winner {
				winnerName = g.Name
				break
			}
		}
		p.state.SetPath("voting.winner", winnerName)
		pc.WinnerID = cp.Winner
		pc.Winner = winnerName
		return PhaseAgentCompetition, pc, nil
	case <-ctx.Done():
		return "", pc, ctx.Err()
	}
}

func tallySnapshot(tally map[string]voting.TallyEntry) map[string]any {
	out := make(map[string]any, len(tally))
	for id, entry := range tally {
		out[id] = map[string]any{"name": entry.Name, "votes": entry.Votes}
	}
	return out
}
