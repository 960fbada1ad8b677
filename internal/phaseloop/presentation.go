package phaseloop

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sherndon-labs/adventurecore/internal/bus"
	"github.com/sherndon-labs/adventurecore/internal/handlers"
)

// storyChannels is the subset of audioChannels the "story" presentation
// mode draws from (spec §4.L step 6).
var storyChannels = []string{"narration", "music", "ambient"}

// PresentationPhase assembles the audio payload, dispatches it through the
// Audio Responder, plays the winning proposal's camera shots, and waits
// out the configured presentation duration (spec §4.L step 6).
type PresentationPhase struct {
	bus                    *bus.Bus
	mode                   string
	presentationDurationMs int
	bufferMs               int
	minimumWaitMs          int
	audioTimeout           time.Duration
	mcpTimeout             time.Duration
}

func NewPresentationPhase(b *bus.Bus, cfg Config) *PresentationPhase {
	mode := cfg.PresentationMode
	if mode == "" {
		mode = "mixed"
	}
	minWait := cfg.MinimumWaitMs
	if minWait <= 0 {
		minWait = 5000
	}
	return &PresentationPhase{
		bus: b, mode: mode,
		presentationDurationMs: cfg.PresentationDurationMs,
		bufferMs:               cfg.BufferMs,
		minimumWaitMs:          minWait,
		audioTimeout:           cfg.AudioTimeout,
		mcpTimeout:             cfg.MCPTimeout,
	}
}

func (p *PresentationPhase) Name() Name { return PhasePresentation }

func (p *PresentationPhase) Enter(ctx context.Context, pc *Context) (Name, *Context, error) {
	if pc.Decision == nil || pc.Decision.Winner == "" {
		return "", pc, fmt.Errorf("phaseloop: presentation: no winning proposal")
	}
	cp := pc.Complete[pc.Decision.Winner]

	payload, active := p.buildAudioPayload(cp)
	payload["sync"] = map[string]any{"id": uuid.NewString(), "channels": active}

	_, err := handlers.Request(ctx, p.bus, "orchestrator:audio:request", map[string]any{
		"optional": true,
		"payload":  payload,
	}, "orchestrator:audio:result", p.audioTimeout)
	if err != nil {
		// Audio is best-effort during presentation: an offline service
		// resolves with a warning, not an error, from the Responder, so
		// anything reaching here is a transport-level failure. Camera
		// shots and the wait still happen (spec §8 scenario 3).
		log.Printf("phaseloop: presentation: audio dispatch failed: %v", err)
	}

	sumDurations := 0
	if cp != nil && cp.CameraPlanning != nil {
		for _, shot := range extractShots(cp.CameraPlanning.Data) {
			if _, err := handlers.MCPCall(ctx, p.bus, "worldviewer", shot.Type, toArgs(shot.Params), p.mcpTimeout); err != nil {
				log.Printf("phaseloop: presentation: camera shot %q failed: %v", shot.Type, err)
			}
			sumDurations += shot.DurationMs
		}
	}

	wait := sumDurations + p.bufferMs
	if p.presentationDurationMs > wait {
		wait = p.presentationDurationMs
	}
	if p.minimumWaitMs > wait {
		wait = p.minimumWaitMs
	}

	timer := time.NewTimer(time.Duration(wait) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		return PhaseCleanup, pc, nil
	case <-ctx.Done():
		return "", pc, ctx.Err()
	}
}

func (p *PresentationPhase) buildAudioPayload(cp *CompleteProposal) (map[string]any, []string) {
	payload := map[string]any{}
	var active []string

	if (p.mode == "story" || p.mode == "mixed") && cp != nil && cp.AudioNarration != nil {
		if data, ok := cp.AudioNarration.Data.(map[string]any); ok {
			for _, ch := range storyChannels {
				if v, present := data[ch]; present {
					payload[ch] = v
					active = append(active, ch)
				}
			}
		}
	}

	if p.mode == "commentary" || p.mode == "mixed" {
		payload["commentary"] = map[string]any{"text": buildCommentary(cp)}
		active = append(active, "commentary")
	}

	return payload, active
}

// buildCommentary synthesizes spoken commentary from the winning agent's
// reasoning and its scene batch names (spec §4.L step 6: "commentary built
// from proposal reasoning + batch descriptions").
func buildCommentary(cp *CompleteProposal) string {
	if cp == nil {
		return ""
	}
	var parts []string
	if cp.AssetPlacement != nil && cp.AssetPlacement.Reasoning != "" {
		parts = append(parts, cp.AssetPlacement.Reasoning)
	}
	for _, batch := range extractBatchesFrom(cp) {
		if batch.Name != "" {
			parts = append(parts, fmt.Sprintf("now building %s", batch.Name))
		}
	}
	return strings.Join(parts, ". ")
}

func extractBatchesFrom(cp *CompleteProposal) []SceneBatch {
	if cp.AssetPlacement == nil {
		return nil
	}
	return extractBatches(cp.AssetPlacement.Data)
}
