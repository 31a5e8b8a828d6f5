// Copyright 2025 Certen Protocol
//
// Optional Postgres-backed archival sink for emitted state paths. The
// core proving path (Builder.Build) never depends on this file or on a
// live database connection; it exists purely so an operator can keep an
// off-chain audit trail of every path this node has ever served,
// queryable outside the chain's own in-memory block cache.

//go:build archive

package statepath

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/certen/speculator-chain/pkg/field"
)

// Archive persists StatePaths to Postgres for later audit queries. It is
// write-only from this package's point of view: nothing in Build or
// locate reads back through it.
type Archive struct {
	db *sql.DB
}

// OpenArchive opens a Postgres connection pool at dsn and ensures the
// archive table exists.
func OpenArchive(ctx context.Context, dsn string) (*Archive, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("statepath: open archive: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("statepath: ping archive: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS state_paths (
	commitment   TEXT PRIMARY KEY,
	state_root   TEXT NOT NULL,
	latest_hash  TEXT NOT NULL,
	archived_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("statepath: create archive table: %w", err)
	}
	return &Archive{db: db}, nil
}

// Close releases the archive's connection pool.
func (a *Archive) Close() error { return a.db.Close() }

// Record stores path's commitment, state root, and chain tip hash,
// upserting on a repeat Build call for the same commitment.
func (a *Archive) Record(ctx context.Context, path *StatePath) error {
	const stmt = `
INSERT INTO state_paths (commitment, state_root, latest_hash)
VALUES ($1, $2, $3)
ON CONFLICT (commitment) DO UPDATE
SET state_root = EXCLUDED.state_root, latest_hash = EXCLUDED.latest_hash, archived_at = now()`
	_, err := a.db.ExecContext(ctx, stmt,
		fieldHex(path.Commitment), fieldHex(path.StateRoot), fieldHex(path.LatestHash))
	if err != nil {
		return fmt.Errorf("statepath: record archive entry: %w", err)
	}
	return nil
}

// Lookup reports whether commitment has a previously archived entry,
// returning the state root it was archived under.
func (a *Archive) Lookup(ctx context.Context, commitment field.Field) (stateRoot string, found bool, err error) {
	row := a.db.QueryRowContext(ctx,
		`SELECT state_root FROM state_paths WHERE commitment = $1`, fieldHex(commitment))
	if err := row.Scan(&stateRoot); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("statepath: lookup archive entry: %w", err)
	}
	return stateRoot, true, nil
}

func fieldHex(f field.Field) string {
	return fmt.Sprintf("%x", f.Bytes())
}
