package phaseloop

// SceneBatch is one worldbuilder.createBatch call's arguments, read out of
// an asset_placement proposal's Data (spec §4.L step 5).
type SceneBatch struct {
	Name       string
	Elements   any
	ParentPath string
}

// CameraShot is one worldviewer call's arguments, read out of a
// camera_planning proposal's Data (spec §4.L step 6).
type CameraShot struct {
	Type       string // smoothMove | arcShot | orbitShot
	Params     map[string]any
	DurationMs int
}

func extractBatches(data any) []SceneBatch {
	m, ok := data.(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := m["batches"].([]any)
	if !ok {
		return nil
	}
	out := make([]SceneBatch, 0, len(raw))
	for _, item := range raw {
		bm, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := bm["name"].(string)
		parentPath, _ := bm["parentPath"].(string)
		out = append(out, SceneBatch{Name: name, Elements: bm["elements"], ParentPath: parentPath})
	}
	return out
}

func extractShots(data any) []CameraShot {
	m, ok := data.(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := m["shots"].([]any)
	if !ok {
		return nil
	}
	out := make([]CameraShot, 0, len(raw))
	for _, item := range raw {
		sm, ok := item.(map[string]any)
		if !ok {
			continue
		}
		shotType, _ := sm["type"].(string)
		duration, _ := sm["durationMs"].(int)
		params, _ := sm["params"].(map[string]any)
		out = append(out, CameraShot{Type: shotType, Params: params, DurationMs: duration})
	}
	return out
}
