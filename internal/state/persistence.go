package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SnapshotStore is the persistence hook spec §3 calls for ("persistence
// hooks") without mandating a format — snapshots are opaque JSON (spec
// §6). Grounded on control_plane/store/postgres.go's pgx pool usage.
type SnapshotStore interface {
	Save(ctx context.Context, adventureID string, data []byte) error
	Load(ctx context.Context, adventureID string) ([]byte, error)
}

// PostgresSnapshotStore persists opaque Story State snapshots keyed by
// adventure id in a single append-free table, overwriting the prior
// snapshot on every save (the core does not mandate history/migration —
// spec §6 "no migration format is mandated").
type PostgresSnapshotStore struct {
	pool *pgxpool.Pool
}

func NewPostgresSnapshotStore(pool *pgxpool.Pool) *PostgresSnapshotStore {
	return &PostgresSnapshotStore{pool: pool}
}

func (p *PostgresSnapshotStore) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS story_state_snapshots (
			adventure_id TEXT PRIMARY KEY,
			data         JSONB NOT NULL,
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

func (p *PostgresSnapshotStore) Save(ctx context.Context, adventureID string, data []byte) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO story_state_snapshots (adventure_id, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (adventure_id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
	`, adventureID, data)
	return err
}

func (p *PostgresSnapshotStore) Load(ctx context.Context, adventureID string) ([]byte, error) {
	var data []byte
	err := p.pool.QueryRow(ctx, `SELECT data FROM story_state_snapshots WHERE adventure_id = $1`, adventureID).Scan(&data)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot for %q: %w", adventureID, err)
	}
	return data, nil
}

// Persist serializes a Snapshot to JSON and saves it under adventureID.
func Persist(ctx context.Context, store SnapshotStore, adventureID string, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	return store.Save(ctx, adventureID, data)
}

// LoadSnapshot reads and deserializes a Snapshot previously written by
// Persist.
func LoadSnapshot(ctx context.Context, store SnapshotStore, adventureID string) (Snapshot, error) {
	data, err := store.Load(ctx, adventureID)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return snap, nil
}
