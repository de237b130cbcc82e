package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/matheusmosca/bookstore-inventory/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "serialization failure", err: &pgconn.PgError{Code: "40001"}, want: domain.ErrTransientStore},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, want: domain.ErrTransientStore},
		{name: "lock timeout", err: &pgconn.PgError{Code: "55P03"}, want: domain.ErrTransientStore},
		{name: "statement timeout", err: &pgconn.PgError{Code: "57014"}, want: domain.ErrTransientStore},
		{name: "pending order index", err: &pgconn.PgError{Code: "23505", ConstraintName: pendingOrderIndex}, want: domain.ErrPendingOrderExists},
		{name: "other unique violation", err: &pgconn.PgError{Code: "23505", ConstraintName: "books_pkey"}, want: domain.ErrAlreadyExists},
		{name: "foreign key", err: &pgconn.PgError{Code: "23503"}, want: domain.ErrNotFound},
		{name: "check constraint", err: &pgconn.PgError{Code: "23514"}, want: domain.ErrInvalidQuantity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)

			assert.ErrorIs(t, got, tt.want)
			var pgErr *pgconn.PgError
			assert.ErrorAs(t, got, &pgErr)
		})
	}
}

func TestClassify_PassThrough(t *testing.T) {
	assert.NoError(t, classify(nil))

	syntax := &pgconn.PgError{Code: "42601"}
	assert.Same(t, syntax, classify(syntax))

	plain := errors.New("boom")
	assert.False(t, domain.IsRetryable(classify(plain)))
}

func TestClassify_ContextDeadline(t *testing.T) {
	err := classify(context.DeadlineExceeded)

	assert.True(t, domain.IsRetryable(err))
}
