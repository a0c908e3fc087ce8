package service

import (
	"context"
	"database/sql"
	"fmt"
)

// EventSink decouples the services from the Redis publisher; tests record
// events in memory.
type EventSink interface {
	PublishContestUpdate(ctx context.Context, contestID string) error
	EnqueueRescore(ctx context.Context, jobID string) error
}

// withTx runs fn inside a transaction and commits if fn succeeds. A nil db
// runs fn without a transaction; the in-memory repositories used by unit
// tests accept a nil *sql.Tx.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	if db == nil {
		return fn(nil)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
