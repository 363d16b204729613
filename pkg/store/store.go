// Package store contains the raw-SQL repositories over the partitioned
// PostgreSQL schema. Queries joining events by id go through a text cast
// because event_scores.event_id is a text column while events has a composite
// (id, timestamp) primary key.
package store

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the repository facade. A Store bound to a transaction is obtained
// via WithTx; all methods work identically on either binding.
type Store struct {
	db  DBTX
	sdb *sql.DB // nil when tx-bound
}

// New creates a Store over a pooled connection.
func New(db *sql.DB) *Store {
	return &Store{db: db, sdb: db}
}

// WithTx runs fn with a transaction-bound Store. The transaction commits when
// fn returns nil and rolls back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.sdb == nil {
		// Already tx-bound; nested transactions are not used.
		return fn(s)
	}
	tx, err := s.sdb.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&Store{db: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
