package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/s3shell/internal/accounts"
	"github.com/koustreak/s3shell/internal/errs"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.ErrKind
	}{
		{"deadline", context.DeadlineExceeded, errs.ErrKindTimeout},
		{"canceled", fmt.Errorf("query: %w", context.Canceled), errs.ErrKindTimeout},
		{"no rows", pgx.ErrNoRows, errs.ErrKindNotFound},
		{"connection class", &pgconn.PgError{Code: "08006", Message: "connection failure"}, errs.ErrKindConnectionFailed},
		{"auth class", &pgconn.PgError{Code: "28P01", Message: "password authentication failed"}, errs.ErrKindPermissionDenied},
		{"privilege", &pgconn.PgError{Code: "42501", Message: "permission denied for table"}, errs.ErrKindPermissionDenied},
		{"missing table", &pgconn.PgError{Code: "42P01", Message: "relation does not exist"}, errs.ErrKindInvalidInput},
		{"other sqlstate", &pgconn.PgError{Code: "XX000", Message: "internal error"}, errs.ErrKindIO},
		{"network", errors.New("dial tcp: connection refused"), errs.ErrKindConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "load")
			assert.Equal(t, tt.want, got.Kind)
			assert.ErrorIs(t, got, tt.err)
		})
	}

	assert.Nil(t, mapError(nil, "load"))
}

func TestMapError_IncludesServerMessage(t *testing.T) {
	got := mapError(&pgconn.PgError{Code: "42P01", Message: `relation "accounts" does not exist`}, "failed to query accounts")
	assert.Contains(t, got.Message, `relation "accounts" does not exist`)
}

func TestNew_RejectsBadTable(t *testing.T) {
	cfg := accounts.DefaultDBConfig()
	cfg.Driver = accounts.DriverPostgres
	cfg.Table = "accounts; --"

	_, err := New(context.Background(), cfg)
	assert.True(t, errs.IsInvalidInput(err))
}
