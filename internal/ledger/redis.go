package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMirror durably mirrors ledger entries so caps survive a process
// restart (spec §6 notes the ledger needs "persistence hooks" just like
// Story State). Grounded on control_plane/store/redis.go's redis.Client
// wrapper pattern, simplified from Lua-scripted locks to plain SET/GET
// since the ledger's consistency lives in the in-process mutex — Redis is
// a durable mirror, not the source of truth.
type RedisMirror struct {
	client *redis.Client
	prefix string
}

func NewRedisMirror(client *redis.Client, prefix string) *RedisMirror {
	if prefix == "" {
		prefix = "adventurecore:ledger:"
	}
	return &RedisMirror{client: client, prefix: prefix}
}

func (m *RedisMirror) entryKey(agentID, provider string) string {
	return fmt.Sprintf("%s%s:%s", m.prefix, agentID, provider)
}

// SyncEntry best-effort persists the entry; failures are logged by the
// caller's observability layer, not returned, since the in-memory ledger
// remains authoritative for the running process.
func (m *RedisMirror) SyncEntry(e Entry) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = m.client.Set(ctx, m.entryKey(e.AgentID, e.Provider), data, 0).Err()
}

// SyncReset clears the mirrored entry for scope. Empty agentID/provider
// mirrors a wildcard reset by scanning matching keys.
func (m *RedisMirror) SyncReset(agentID, provider string, _ time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if agentID != "" && provider != "" {
		_ = m.client.Del(ctx, m.entryKey(agentID, provider)).Err()
		return
	}

	agentPart, providerPart := agentID, provider
	if agentPart == "" {
		agentPart = "*"
	}
	if providerPart == "" {
		providerPart = "*"
	}
	pattern := m.entryKey(agentPart, providerPart)
	iter := m.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		_ = m.client.Del(ctx, iter.Val()).Err()
	}
}

// LoadEntry fetches a previously mirrored entry, if any, for warm-starting
// a freshly constructed Ledger after a restart.
func (m *RedisMirror) LoadEntry(ctx context.Context, agentID, provider string) (Entry, bool, error) {
	data, err := m.client.Get(ctx, m.entryKey(agentID, provider)).Bytes()
	if err == redis.Nil {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}
