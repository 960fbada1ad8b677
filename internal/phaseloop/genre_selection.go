package phaseloop

import (
	"context"
	"strconv"
	"time"

	"github.com/sherndon-labs/adventurecore/internal/bus"
	"github.com/sherndon-labs/adventurecore/internal/handlers"
	"github.com/sherndon-labs/adventurecore/internal/state"
	"github.com/sherndon-labs/adventurecore/internal/voting"
)

// GenreSelectionPhase produces the genre list the loop votes over (spec
// §4.L step 1).
type GenreSelectionPhase struct {
	bus      *bus.Bus
	state    *state.Store
	genres   []string
	provider string
	timeout  time.Duration
}

func NewGenreSelectionPhase(b *bus.Bus, s *state.Store, cfg Config) *GenreSelectionPhase {
	genres := cfg.Genres
	if len(genres) == 0 {
		genres = DefaultGenres
	}
	return &GenreSelectionPhase{bus: b, state: s, genres: genres, provider: cfg.LLMProvider, timeout: cfg.LLMTimeout}
}

func (p *GenreSelectionPhase) Name() Name { return PhaseGenreSelection }

func (p *GenreSelectionPhase) Enter(ctx context.Context, pc *Context) (Name, *Context, error) {
	names := p.genres
	if p.provider != "" {
		if generated, err := p.askLLM(ctx); err == nil && len(generated) > 0 {
			names = generated
		}
		// A failed or malformed LLM response falls back to the configured
		// mock list rather than failing the phase — genre selection is not
		// worth aborting the loop over.
	}

	genres := make([]voting.Genre, len(names))
	stored := make([]map[string]any, len(names))
	for i, name := range names {
		id := strconv.Itoa(i + 1)
		genres[i] = voting.Genre{ID: id, Name: name}
		stored[i] = map[string]any{"id": id, "name": name}
	}

	p.state.SetPath("voting.genres", stored)
	p.bus.Emit(EventGenresReady, map[string]any{"genres": stored})

	pc.Genres = genres
	return PhaseVoting, pc, nil
}

func (p *GenreSelectionPhase) askLLM(ctx context.Context) ([]string, error) {
	resp, err := handlers.Request(ctx, p.bus, "orchestrator:llm:request", map[string]any{
		"provider": p.provider,
		"payload":  map[string]any{"prompt": "propose 5 adventure genres"},
	}, "orchestrator:llm:result", p.timeout)
	if err != nil {
		return nil, err
	}
	result, _ := resp["json"].(map[string]any)
	raw, _ := result["genres"].([]any)
	names := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			names = append(names, s)
		}
	}
	return names, nil
}
