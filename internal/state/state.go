// Package state implements the hierarchical, dot-path-addressable Story
// State (spec §4.B): the one shared mutable structure in the core's
// concurrency model, with every mutation published on the Event Bus.
//
// Grounded on control_plane/store/types.go's JSON-tagged struct shapes and
// control_plane/store/memory.go's mutex-guarded map pattern, generalized
// from a fixed schema (Agent, Job, DesiredState) to an arbitrary tree.
package state

import (
	"sync"

	"github.com/sherndon-labs/adventurecore/internal/bus"
	"github.com/sherndon-labs/adventurecore/internal/observability"
)

// ChangedPayload is the payload of a state:changed event (spec §3).
type ChangedPayload struct {
	Path     string
	OldValue any
	NewValue any
	Version  int64
}

const changedEventType = "state:changed"

// Store is the Story State. The zero value is not usable; construct with
// New.
type Store struct {
	mu      sync.Mutex
	tree    map[string]any
	version int64
	bus     *bus.Bus
}

// New constructs an empty Story State publishing mutations on b.
func New(b *bus.Bus) *Store {
	return &Store{tree: make(map[string]any), bus: b}
}

// GetPath returns a deep copy of the value at path, or nil if absent. An
// empty path returns the whole tree.
func (s *Store) GetPath(path string) any {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := getAt(s.tree, splitPath(path))
	if !ok {
		return nil
	}
	return deepCopy(v)
}

// SetPath atomically replaces the value at path, creating intermediate
// maps as needed, bumps the version counter, and publishes state:changed.
func (s *Store) SetPath(path string, value any) {
	s.mu.Lock()
	old, _ := setAt(s.tree, splitPath(path), deepCopy(value))
	s.version++
	version := s.version
	s.mu.Unlock()

	observability.StateMutations.WithLabelValues("set").Inc()
	observability.StateVersion.Set(float64(version))
	s.publish(path, old, value, version)
}

// UpdateState shallow-merges partial into the object found at path (spec
// §4.B updateState; equivalent to §3's merge-at-path operation).
func (s *Store) UpdateState(path string, partial map[string]any) {
	s.mu.Lock()
	old, _ := mergeAt(s.tree, splitPath(path), deepCopy(partial).(map[string]any))
	s.version++
	version := s.version
	newVal, _ := getAt(s.tree, splitPath(path))
	s.mu.Unlock()

	observability.StateMutations.WithLabelValues("merge").Inc()
	observability.StateVersion.Set(float64(version))
	s.publish(path, old, deepCopy(newVal), version)
}

// RemovePath deletes the value at path, if present.
func (s *Store) RemovePath(path string) {
	s.mu.Lock()
	old, had := removeAt(s.tree, splitPath(path))
	if !had {
		s.mu.Unlock()
		return
	}
	s.version++
	version := s.version
	s.mu.Unlock()

	observability.StateMutations.WithLabelValues("remove").Inc()
	observability.StateVersion.Set(float64(version))
	s.publish(path, old, nil, version)
}

// Version returns the current monotonically increasing mutation counter.
func (s *Store) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func (s *Store) publish(path string, old, new any, version int64) {
	if s.bus == nil {
		return
	}
	s.bus.Emit(changedEventType, ChangedPayload{
		Path:     path,
		OldValue: old,
		NewValue: new,
		Version:  version,
	})
}

// Snapshot is a point-in-time, deep-cloned capture of the tree (spec §3:
// "snapshots are point-in-time and must not observe a half-applied
// merge" — guaranteed here because cloning happens under the same mutex
// every mutator holds).
type Snapshot struct {
	Tree    map[string]any
	Version int64
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Tree:    deepCopy(s.tree).(map[string]any),
		Version: s.version,
	}
}

// Restore replaces the tree and version wholesale from a prior Snapshot.
// Unlike SetPath/UpdateState/RemovePath this is not a single logical
// mutation — it does not bump the version counter further, so a
// snapshot-then-restore round trip reproduces the exact prior state
// including its version number (spec §8 round-trip property).
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree = deepCopy(snap.Tree).(map[string]any)
	s.version = snap.Version
	observability.StateMutations.WithLabelValues("restore").Inc()
	observability.StateVersion.Set(float64(s.version))
}

// SubscribeChanges calls handler for every state:changed event whose path
// has pathPrefix as a dot-path prefix (or all changes, if pathPrefix is
// empty). Returns a cancel func per the Event Bus contract.
func (s *Store) SubscribeChanges(pathPrefix string, handler func(ChangedPayload)) bus.CancelFunc {
	return s.bus.Subscribe(changedEventType, func(e bus.Event) error {
		payload := e.Payload.(ChangedPayload)
		if hasPathPrefix(payload.Path, pathPrefix) {
			handler(payload)
		}
		return nil
	}, bus.Options{})
}

func hasPathPrefix(path, prefix string) bool {
	if prefix == "" {
		return true
	}
	if path == prefix {
		return true
	}
	return len(path) > len(prefix) && path[:len(prefix)] == prefix && path[len(prefix)] == '.'
}
