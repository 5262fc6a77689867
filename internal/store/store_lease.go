package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ReadLease returns the current lease record, or nil when none exists.
func (s *Store) ReadLease(ctx context.Context) (*Lease, error) {
	var (
		owner       string
		heartbeatMS int64
	)
	row := s.db.QueryRowContext(ctx, "SELECT owner_id, last_heartbeat_ms FROM lease WHERE id = 1")
	if err := row.Scan(&owner, &heartbeatMS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("read lease: %w", err)
	}
	return &Lease{
		OwnerID:       owner,
		LastHeartbeat: time.UnixMilli(heartbeatMS).UTC(),
	}, nil
}

// UpsertLease writes the lease record, claiming or renewing it for owner.
func (s *Store) UpsertLease(ctx context.Context, owner string, at time.Time) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO lease (id, owner_id, last_heartbeat_ms) VALUES (1, ?, ?)
         ON CONFLICT (id) DO UPDATE SET owner_id = excluded.owner_id,
             last_heartbeat_ms = excluded.last_heartbeat_ms`,
		owner,
		at.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert lease: %w", err)
	}
	return nil
}

// ReleaseLease deletes the lease record if owner still holds it.
func (s *Store) ReleaseLease(ctx context.Context, owner string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM lease WHERE id = 1 AND owner_id = ?", owner); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}
