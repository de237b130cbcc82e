// Package postgres implements store.Store on PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/matheusmosca/bookstore-inventory/internal/domain"
	"github.com/matheusmosca/bookstore-inventory/internal/store"
)

const pendingOrderIndex = "replenishment_orders_one_pending"

// PostgresStore implements store.Store using a pgx connection pool.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore wraps an open pool. The store owns the pool from then on.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

var (
	_ store.Store = (*PostgresStore)(nil)
	_ store.Tx    = (*PostgresTx)(nil)
)

// BeginTx starts a new read-committed transaction.
func (s *PostgresStore) BeginTx(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", classify(err))
	}
	return &PostgresTx{tx: tx}, nil
}

// Close closes the pool.
func (s *PostgresStore) Close() {
	s.db.Close()
}

// PostgresTx implements store.Tx
type PostgresTx struct {
	tx pgx.Tx
}

func (t *PostgresTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", classify(err))
	}
	return nil
}

func (t *PostgresTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

// classify maps driver errors onto the domain error kinds.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03", "57014", "57P01", "08000", "08003", "08006":
			return fmt.Errorf("%w: %w", domain.ErrTransientStore, err)
		case "23505":
			if pgErr.ConstraintName == pendingOrderIndex {
				return fmt.Errorf("%w: %w", domain.ErrPendingOrderExists, err)
			}
			return fmt.Errorf("%w: %w", domain.ErrAlreadyExists, err)
		case "23503":
			return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
		case "23514":
			return fmt.Errorf("%w: %w", domain.ErrInvalidQuantity, err)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrTransientStore, err)
	}
	return err
}
