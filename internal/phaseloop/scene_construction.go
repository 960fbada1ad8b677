package phaseloop

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sherndon-labs/adventurecore/internal/bus"
	"github.com/sherndon-labs/adventurecore/internal/handlers"
)

// SceneConstructionPhase materializes the winning proposal's scene layout
// through the worldbuilder MCP service (spec §4.L step 5).
type SceneConstructionPhase struct {
	bus     *bus.Bus
	timeout time.Duration
}

func NewSceneConstructionPhase(b *bus.Bus, timeout time.Duration) *SceneConstructionPhase {
	return &SceneConstructionPhase{bus: b, timeout: timeout}
}

func (p *SceneConstructionPhase) Name() Name { return PhaseSceneConstruction }

func (p *SceneConstructionPhase) Enter(ctx context.Context, pc *Context) (Name, *Context, error) {
	if pc.Decision == nil || pc.Decision.Winner == "" {
		return "", pc, fmt.Errorf("phaseloop: scene-construction: no winning proposal")
	}
	cp, ok := pc.Complete[pc.Decision.Winner]
	if !ok || cp.AssetPlacement == nil {
		return "", pc, fmt.Errorf("phaseloop: scene-construction: winner %q has no asset_placement proposal", pc.Decision.Winner)
	}

	if _, err := handlers.MCPCall(ctx, p.bus, "worldbuilder", "clearScene", map[string]any{"root": "/World", "confirm": true}, p.timeout); err != nil {
		return "", pc, err
	}

	batches := extractBatches(cp.AssetPlacement.Data)
	created := 0
	for _, batch := range batches {
		_, err := handlers.MCPCall(ctx, p.bus, "worldbuilder", "createBatch", map[string]any{
			"name": batch.Name, "elements": batch.Elements, "parentPath": batch.ParentPath,
		}, p.timeout)
		if err != nil {
			log.Printf("phaseloop: scene-construction: createBatch %q failed: %v", batch.Name, err)
			continue
		}
		created++
	}

	if cp.CameraPlanning != nil {
		if shots := extractShots(cp.CameraPlanning.Data); len(shots) > 0 {
			if _, err := handlers.MCPCall(ctx, p.bus, "worldviewer", shots[0].Type, toArgs(shots[0].Params), p.timeout); err != nil {
				log.Printf("phaseloop: scene-construction: preview shot failed: %v", err)
			}
		}
	}

	p.bus.Emit(EventConstructionComplete, map[string]any{
		"winner":         pc.Decision.Winner,
		"batchesCreated": created,
		"batchesTotal":   len(batches),
	})
	return PhasePresentation, pc, nil
}

func toArgs(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{}
	}
	return params
}
