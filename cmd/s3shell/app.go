package main

import (
	"context"
	"io"

	"github.com/koustreak/s3shell/internal/accounts"
	"github.com/koustreak/s3shell/internal/accounts/mysql"
	"github.com/koustreak/s3shell/internal/accounts/postgres"
	"github.com/koustreak/s3shell/internal/config"
	"github.com/koustreak/s3shell/internal/errs"
	"github.com/koustreak/s3shell/internal/filestore"
	"github.com/koustreak/s3shell/internal/filestore/memory"
	"github.com/koustreak/s3shell/internal/filestore/minio"
	"github.com/koustreak/s3shell/internal/logger"
	"github.com/koustreak/s3shell/internal/shell"
)

// app holds everything a command needs once startup is done.
type app struct {
	cfg   *config.Config
	log   *logger.Logger
	store filestore.Store
	realm *shell.Realm

	stdin  io.Reader
	stdout io.Writer
}

// open connects the store, loads the accounts and builds the realm.
func open(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	src, err := openSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	list, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, &cfg.Store, list)
	if err != nil {
		return nil, err
	}

	realm, err := accounts.Build(store, list, accounts.BuildOptions{
		StagingDir: cfg.Staging.Dir,
		Logger:     log,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{cfg: cfg, log: log, store: store, realm: realm}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// openStore connects the configured provider. The memory provider starts
// with one empty bucket per account bucket.
func openStore(ctx context.Context, cfg *filestore.Config, list []accounts.Account) (filestore.Store, error) {
	switch cfg.Provider {
	case filestore.ProviderMinIO:
		d, err := minio.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return d, nil
	case filestore.ProviderMemory:
		store := memory.New("")
		for _, acc := range list {
			store.CreateBucket(acc.Bucket)
		}
		return store, nil
	default:
		return nil, errs.Newf(errs.ErrKindInvalidInput, "unsupported store provider %q", cfg.Provider)
	}
}

func openSource(ctx context.Context, cfg *config.Config) (accounts.Source, error) {
	switch cfg.AccountsSource.Driver {
	case accounts.DriverStatic:
		return accounts.Static(cfg.Accounts), nil
	case accounts.DriverPostgres:
		src, err := postgres.New(ctx, &cfg.AccountsSource)
		if err != nil {
			return nil, err
		}
		return src, nil
	case accounts.DriverMySQL:
		src, err := mysql.New(ctx, &cfg.AccountsSource)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, errs.Newf(errs.ErrKindInvalidInput, "unsupported accounts driver %q", cfg.AccountsSource.Driver)
	}
}
