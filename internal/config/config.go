// Package config loads the s3shell configuration file.
//
// The file is YAML. Every section has defaults, so a minimal file only names
// the store and the accounts:
//
//	store:
//	  provider: minio
//	  endpoint: localhost:9000
//	accounts:
//	  - identity: alice
//	    bucket: home
//
// Secrets are better kept out of the file; the S3SHELL_* environment
// variables listed in envOverrides take precedence over it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/koustreak/s3shell/internal/accounts"
	"github.com/koustreak/s3shell/internal/errs"
	"github.com/koustreak/s3shell/internal/filestore"
	"github.com/koustreak/s3shell/internal/logger"
	"go.yaml.in/yaml/v3"
)

// Config is the root of the configuration file.
type Config struct {
	Log            logger.Config      `yaml:"log"`
	Store          filestore.Config   `yaml:"store"`
	Staging        StagingConfig      `yaml:"staging"`
	HTTP           HTTPConfig         `yaml:"http"`
	Accounts       []accounts.Account `yaml:"accounts"`
	AccountsSource accounts.DBConfig  `yaml:"accounts_source"`
}

// StagingConfig controls where uploads are spooled before they are stored.
type StagingConfig struct {
	// Dir holds the staging files. Empty means the system temp directory.
	Dir string `yaml:"dir"`
}

// HTTPConfig configures the gateway listener.
type HTTPConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`

	// IdentityHeader carries the authenticated identity, set by a trusted
	// front proxy.
	IdentityHeader string `yaml:"identity_header"`
}

// DefaultConfig returns a configuration for a local MinIO and the static
// account list.
func DefaultConfig() *Config {
	return &Config{
		Log:   *logger.DefaultConfig(),
		Store: *filestore.DefaultConfig("localhost:9000", "", ""),
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       2 * time.Minute,
			ShutdownTimeout:   15 * time.Second,
			IdentityHeader:    "X-Shell-Identity",
		},
		AccountsSource: *accounts.DefaultDBConfig(),
	}
}

// Load reads the file at path over DefaultConfig, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindIO, fmt.Sprintf("failed to read config %s", path), err)
	}
	return Parse(data, os.LookupEnv)
}

// Parse decodes data over DefaultConfig, applies overrides from lookup and
// validates the result. lookup may be nil.
func Parse(data []byte, lookup func(string) (string, bool)) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to parse config", err)
	}
	if lookup != nil {
		cfg.applyEnv(lookup)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envOverrides maps environment variables onto config fields.
var envOverrides = []struct {
	name string
	set  func(c *Config, v string)
}{
	{"S3SHELL_LOG_LEVEL", func(c *Config, v string) { c.Log.Level = v }},
	{"S3SHELL_STORE_ENDPOINT", func(c *Config, v string) { c.Store.Endpoint = v }},
	{"S3SHELL_STORE_ACCESS_KEY", func(c *Config, v string) { c.Store.AccessKey = v }},
	{"S3SHELL_STORE_SECRET_KEY", func(c *Config, v string) { c.Store.SecretKey = v }},
	{"S3SHELL_STAGING_DIR", func(c *Config, v string) { c.Staging.Dir = v }},
	{"S3SHELL_HTTP_ADDR", func(c *Config, v string) { c.HTTP.Addr = v }},
	{"S3SHELL_ACCOUNTS_DSN", func(c *Config, v string) { c.AccountsSource.DSN = v }},
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	for _, o := range envOverrides {
		if v, ok := lookup(o.name); ok && v != "" {
			o.set(c, v)
		}
	}
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var problems []error

	switch c.Store.Provider {
	case filestore.ProviderMinIO:
		if c.Store.Endpoint == "" {
			problems = append(problems, errors.New("store.endpoint is required for the minio provider"))
		}
	case filestore.ProviderMemory:
	default:
		problems = append(problems, fmt.Errorf("store.provider %q is not supported", c.Store.Provider))
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		problems = append(problems, fmt.Errorf("log.format %q must be json or console", c.Log.Format))
	}

	if c.HTTP.Addr == "" {
		problems = append(problems, errors.New("http.addr is required"))
	}
	if c.HTTP.IdentityHeader == "" {
		problems = append(problems, errors.New("http.identity_header is required"))
	}

	switch c.AccountsSource.Driver {
	case accounts.DriverStatic:
		if len(c.Accounts) == 0 {
			problems = append(problems, errors.New("accounts: at least one account is required with the static source"))
		}
		for i := range c.Accounts {
			if err := c.Accounts[i].Validate(); err != nil {
				problems = append(problems, err)
			}
		}
	case accounts.DriverPostgres, accounts.DriverMySQL:
		if c.AccountsSource.DSN == "" {
			problems = append(problems, fmt.Errorf("accounts_source.dsn is required for the %s driver", c.AccountsSource.Driver))
		}
		if _, err := accounts.SelectQuery(c.AccountsSource.Table); err != nil {
			problems = append(problems, err)
		}
	default:
		problems = append(problems, fmt.Errorf("accounts_source.driver %q is not supported", c.AccountsSource.Driver))
	}

	if len(problems) == 0 {
		return nil
	}
	msgs := make([]string, len(problems))
	for i, p := range problems {
		msgs[i] = p.Error()
	}
	return errs.Wrap(errs.ErrKindInvalidInput, "invalid configuration: "+strings.Join(msgs, "; "), errors.Join(problems...))
}
