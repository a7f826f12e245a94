// Package operations orchestrates one full backup cycle: lock, resolve
// targets, dump, upload, prune, summarize, notify.
package operations

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/kebairia/sqlbak/internal/config"
	"github.com/kebairia/sqlbak/internal/database"
	"github.com/kebairia/sqlbak/internal/dump"
	"github.com/kebairia/sqlbak/internal/lock"
	"github.com/kebairia/sqlbak/internal/logger"
	"github.com/kebairia/sqlbak/internal/notify"
	"github.com/kebairia/sqlbak/internal/storage"
	"github.com/kebairia/sqlbak/internal/vault"
)

var (
	// ErrRunActive signals that another live run holds the lock. Callers
	// treat it as a clean skip and exit zero.
	ErrRunActive = errors.New("another backup run is active")

	// ErrNoTargets is fatal: a run with nothing to back up is a
	// misconfiguration, not a silent no-op.
	ErrNoTargets = errors.New("no databases to back up")
)

// Dumper exports one database into destPath as a compressed stream.
type Dumper interface {
	Dump(ctx context.Context, database, destPath string) error
}

// Gateway is the object store capability the coordinator consumes.
type Gateway interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// LockManager guards against overlapping runs on one host.
type LockManager interface {
	Acquire() error
	Release()
}

// Notifier delivers a best-effort failure summary.
type Notifier interface {
	Notify(message string)
}

// Deps are the injected capabilities of a Coordinator. Tests swap in fakes.
type Deps struct {
	Dumper    Dumper
	Store     Gateway
	Lock      LockManager
	Notifier  Notifier
	Log       logger.Logger
	Resolve   func(ctx context.Context) ([]database.Target, error)
	Preflight func() error
	Hostname  string
	Now       func() time.Time
}

// NewCoordinator builds a Coordinator from cfg and deps, filling in the
// optional clock and preflight.
func NewCoordinator(cfg config.Config, deps Deps) *Coordinator {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Preflight == nil {
		deps.Preflight = func() error { return nil }
	}
	return &Coordinator{cfg: cfg, deps: deps}
}

// Build assembles a Coordinator wired to the real collaborators: mysqldump
// producer (credentials from Vault when configured), the S3-compatible
// store, the host-wide file lock, and the webhook notifier.
func Build(ctx context.Context, cfg config.Config, log logger.Logger) (*Coordinator, error) {
	user, pass := cfg.MySQLUser, cfg.MySQLPassword
	if cfg.MySQLVaultPath != "" {
		vaultOpts := []vault.Option{vault.WithAddress(cfg.VaultAddr)}
		if cfg.VaultRoleID != "" && cfg.VaultRoleName != "" {
			vaultOpts = append(vaultOpts, vault.WithAppRole(cfg.VaultRoleID, cfg.VaultRoleName))
		}
		client, err := vault.NewClient(ctx, vaultOpts...)
		if err != nil {
			return nil, fmt.Errorf("vault client init: %w", err)
		}
		creds, err := client.GetCredentials(ctx, cfg.MySQLVaultPath)
		if err != nil {
			return nil, fmt.Errorf("read mysql credentials from vault: %w", err)
		}
		user, pass = creds.Username, creds.Password
	}

	store, err := storage.NewMinioStore(ctx, storage.Options{
		Bucket:    cfg.S3Bucket,
		AccessKey: cfg.AWSAccess,
		SecretKey: cfg.AWSSecret,
		Region:    cfg.AWSRegion,
		Endpoint:  cfg.S3Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("object store init: %w", err)
	}

	producer := dump.NewProducer(
		dump.WithHost(cfg.MySQLHost),
		dump.WithPort(cfg.MySQLPort),
		dump.WithCredentials(user, pass),
		dump.WithLogger(log),
	)

	catalog := &database.Catalog{
		Host:     cfg.MySQLHost,
		Port:     cfg.MySQLPort,
		Username: user,
		Password: pass,
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	return NewCoordinator(cfg, Deps{
		Dumper:   producer,
		Store:    store,
		Lock:     lock.New(filepath.Join(os.TempDir(), "sqlbak.lock")),
		Notifier: notify.NewWebhook(cfg.WebhookURL, cfg.NotifyType, log),
		Log:      log,
		Resolve: func(ctx context.Context) ([]database.Target, error) {
			return database.ResolveTargets(ctx, cfg.MySQLDatabases, catalog)
		},
		Preflight: dump.Preflight,
		Hostname:  hostname,
	}), nil
}
