package accounts

import (
	"context"

	"github.com/koustreak/s3shell/internal/errs"
	"github.com/koustreak/s3shell/internal/filestore"
	"github.com/koustreak/s3shell/internal/logger"
	"github.com/koustreak/s3shell/internal/shell"
)

// BuildOptions carries the settings shared by every shell in a realm.
type BuildOptions struct {
	StagingDir string
	Logger     *logger.Logger
}

// Build validates accounts and binds each identity to its shell over store.
// Duplicate identities are rejected.
func Build(store filestore.Store, accounts []Account, opts BuildOptions) (*shell.Realm, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	shells := make(map[string]shell.Shell, len(accounts))
	for i := range accounts {
		a := &accounts[i]
		if err := a.Validate(); err != nil {
			return nil, err
		}
		if _, dup := shells[a.Identity]; dup {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "duplicate account identity %q", a.Identity)
		}

		policy := a.Policy
		if policy == "" {
			policy = PolicyFull
		}
		accLog := log.With().
			Str("identity", a.Identity).
			Str("policy", string(policy)).
			Strs("upload_folders", a.UploadFolders).
			Logger()
		core := shell.New(store, shell.Options{
			Bucket:     a.Bucket,
			Root:       a.Root,
			StagingDir: opts.StagingDir,
			Logger:     accLog,
		})

		var sh shell.Shell = core
		if a.Policy == PolicyDropbox {
			sh = shell.NewDropbox(core, a.UploadFolders, accLog)
		}
		shells[a.Identity] = sh
	}

	log.InfoWith("realm built", map[string]any{"accounts": len(shells)})
	return shell.NewRealm(shells), nil
}

// LoadRealm reads every account from src and builds the realm.
func LoadRealm(ctx context.Context, src Source, store filestore.Store, opts BuildOptions) (*shell.Realm, error) {
	accounts, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}
	return Build(store, accounts, opts)
}
