package state

import "strings"

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// getAt walks tree along segments and returns the value found, if any.
func getAt(tree map[string]any, segments []string) (any, bool) {
	if len(segments) == 0 {
		return tree, true
	}
	cur := any(tree)
	for i, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, exists := m[seg]
		if !exists {
			return nil, false
		}
		if i == len(segments)-1 {
			return v, true
		}
		cur = v
	}
	return nil, false
}

// setAt creates intermediate maps as needed and sets value at the leaf
// segment, returning the previous value (or nil, false if absent).
func setAt(tree map[string]any, segments []string, value any) (prev any, hadPrev bool) {
	if len(segments) == 0 {
		return nil, false
	}
	m := tree
	for _, seg := range segments[:len(segments)-1] {
		next, ok := m[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[seg] = next
		}
		m = next
	}
	leaf := segments[len(segments)-1]
	prev, hadPrev = m[leaf]
	m[leaf] = value
	return prev, hadPrev
}

// removeAt deletes the leaf segment if present, returning the removed
// value.
func removeAt(tree map[string]any, segments []string) (prev any, hadPrev bool) {
	if len(segments) == 0 {
		return nil, false
	}
	m := tree
	for _, seg := range segments[:len(segments)-1] {
		next, ok := m[seg].(map[string]any)
		if !ok {
			return nil, false
		}
		m = next
	}
	leaf := segments[len(segments)-1]
	prev, hadPrev = m[leaf]
	if hadPrev {
		delete(m, leaf)
	}
	return prev, hadPrev
}

// mergeAt shallow-merges partial into the map found at segments, creating
// intermediate maps as needed (spec §4.B updateState / §3 merge-at-path).
func mergeAt(tree map[string]any, segments []string, partial map[string]any) (prev any, hadPrev bool) {
	m := tree
	for _, seg := range segments {
		next, ok := m[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[seg] = next
		}
		m = next
	}
	prevCopy := make(map[string]any, len(m))
	for k, v := range m {
		prevCopy[k] = v
	}
	for k, v := range partial {
		m[k] = v
	}
	return prevCopy, true
}

// deepCopy clones JSON-like values (maps, slices, primitives) so reads
// never alias internal state (spec §4.B "reads return deep copies").
func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return val
	}
}
