package phaseloop

import (
	"context"
	"log"
	"time"

	"github.com/sherndon-labs/adventurecore/internal/bus"
	"github.com/sherndon-labs/adventurecore/internal/handlers"
	"github.com/sherndon-labs/adventurecore/internal/state"
)

// CleanupPhase dwells for the configured countdown, clears the scene, and
// resets the loop's per-cycle Story State before handing control back to
// GenreSelection (spec §4.L step 7). It is also the landing phase for any
// unrecoverable failure elsewhere in the loop.
type CleanupPhase struct {
	bus       *bus.Bus
	state     *state.Store
	countdown time.Duration
	timeout   time.Duration
}

func NewCleanupPhase(b *bus.Bus, s *state.Store, countdown, timeout time.Duration) *CleanupPhase {
	return &CleanupPhase{bus: b, state: s, countdown: countdown, timeout: timeout}
}

func (p *CleanupPhase) Name() Name { return PhaseCleanup }

func (p *CleanupPhase) Enter(ctx context.Context, pc *Context) (Name, *Context, error) {
	if p.countdown > 0 {
		timer := time.NewTimer(p.countdown)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return "", pc, ctx.Err()
		}
	}

	if _, err := handlers.MCPCall(ctx, p.bus, "worldbuilder", "clearScene", map[string]any{"root": "/World", "confirm": true}, p.timeout); err != nil {
		log.Printf("phaseloop: cleanup: clearScene failed: %v", err)
	}

	p.state.RemovePath("voting")
	p.state.RemovePath("competition")

	return PhaseGenreSelection, &Context{AdventureID: pc.AdventureID}, nil
}
