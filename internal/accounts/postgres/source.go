// Package postgres reads s3shell accounts from a PostgreSQL table via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koustreak/s3shell/internal/accounts"
	"github.com/koustreak/s3shell/internal/errs"
)

// PostgreSQL SQLSTATE codes that change how an error is reported.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgErrInsufficientPrivilege = "42501"
	pgErrUndefinedTable        = "42P01"
	pgErrUndefinedColumn       = "42703"
)

// Source is an accounts.Source backed by pgxpool.
// It is safe for concurrent use by multiple goroutines.
type Source struct {
	pool  *pgxpool.Pool
	query string
	cfg   *accounts.DBConfig
}

// New connects to PostgreSQL using cfg and returns a Source.
// It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg *accounts.DBConfig) (*Source, error) {
	query, err := accounts.SelectQuery(cfg.Table)
	if err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create connection pool", err)
	}

	s := &Source{pool: pool, query: query, cfg: cfg}

	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

// Ping verifies the database is reachable by acquiring and releasing a connection.
func (s *Source) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close drains the connection pool.
func (s *Source) Close() error {
	s.pool.Close()
	return nil
}

// Load reads every row of the account table.
func (s *Source) Load(ctx context.Context) ([]accounts.Account, error) {
	if s.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.QueryTimeout)
		defer cancel()
	}

	rows, err := s.pool.Query(ctx, s.query)
	if err != nil {
		return nil, mapError(err, "failed to query accounts")
	}
	defer rows.Close()

	list, err := accounts.ScanRows(rows)
	if err != nil {
		return nil, mapError(err, "failed to read accounts")
	}
	return list, nil
}

var _ accounts.Source = (*Source)(nil)

// mapError translates pgx / pgconn native errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return errs.Wrap(classifyCode(pgErr.Code), fmt.Sprintf("%s: %s", msg, pgErr.Message), err)
	}

	// connection-level errors (TLS, network, auth)
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

func classifyCode(code string) errs.ErrKind {
	switch {
	case len(code) >= 2 && code[:2] == "08":
		return errs.ErrKindConnectionFailed
	case len(code) >= 2 && code[:2] == "28", code == pgErrInsufficientPrivilege:
		return errs.ErrKindPermissionDenied
	case code == pgErrUndefinedTable, code == pgErrUndefinedColumn:
		return errs.ErrKindInvalidInput
	default:
		return errs.ErrKindIO
	}
}
