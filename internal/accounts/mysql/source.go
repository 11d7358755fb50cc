// Package mysql reads s3shell accounts from a MySQL table via database/sql.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/koustreak/s3shell/internal/accounts"
	"github.com/koustreak/s3shell/internal/errs"
)

// Source is an accounts.Source backed by a database/sql pool.
// It is safe for concurrent use by multiple goroutines.
type Source struct {
	db    *sql.DB
	query string
	cfg   *accounts.DBConfig
}

// New opens a MySQL connection pool using cfg and returns a Source.
// It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg *accounts.DBConfig) (*Source, error) {
	query, err := accounts.SelectQuery(cfg.Table)
	if err != nil {
		return nil, err
	}

	dsn, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}
	if cfg.ConnectTimeout > 0 {
		dsn.Timeout = cfg.ConnectTimeout
	}

	connector, err := mysql.NewConnector(dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}
	db := sql.OpenDB(connector)

	db.SetMaxOpenConns(int(cfg.MaxConns))
	db.SetMaxIdleConns(int(cfg.MinConns))
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	s := &Source{db: db, query: query, cfg: cfg}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	if err := s.Ping(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Source) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

func (s *Source) Close() error {
	return s.db.Close()
}

// Load reads every row of the account table.
func (s *Source) Load(ctx context.Context) ([]accounts.Account, error) {
	if s.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.QueryTimeout)
		defer cancel()
	}

	rows, err := s.db.QueryContext(ctx, s.query)
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

// mapError translates go-sql-driver/mysql errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return errs.Wrap(
			classifyMySQLCode(mysqlErr.Number),
			fmt.Sprintf("%s: %s", msg, mysqlErr.Message),
			err,
		)
	}

	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// classifyMySQLCode maps MySQL error numbers to ErrKind.
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
func classifyMySQLCode(code uint16) errs.ErrKind {
	switch code {
	case 1044, 1045, 1142, 1143:
		return errs.ErrKindPermissionDenied
	case 1040, 1049, 1203, 2002, 2003:
		return errs.ErrKindConnectionFailed
	case 1054, 1146:
		return errs.ErrKindInvalidInput
	default:
		return errs.ErrKindIO
	}
}
