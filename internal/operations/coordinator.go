package operations

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kebairia/sqlbak/internal/config"
	"github.com/kebairia/sqlbak/internal/database"
	"github.com/kebairia/sqlbak/internal/lock"
	"github.com/kebairia/sqlbak/internal/logger"
	"github.com/kebairia/sqlbak/internal/naming"
	"github.com/kebairia/sqlbak/internal/retention"
)

// Coordinator runs one backup cycle across all targets. It is the only
// stateful component; everything it drives is pure or stateless given its
// inputs.
type Coordinator struct {
	cfg  config.Config
	deps Deps

	// run-scoped state, valid between Acquire and cleanup
	tempDir string
}

// Run executes one full cycle and returns its summary.
//
// ErrRunActive means another live run holds the lock and this one was
// skipped cleanly. ErrNoTargets and preflight errors are fatal; the lock
// and temp directory are released on every path, including termination by
// signal.
func (c *Coordinator) Run(ctx context.Context) (RunSummary, error) {
	log := c.deps.Log

	if err := c.deps.Lock.Acquire(); err != nil {
		if errors.Is(err, lock.ErrHeld) {
			log.Info("backup run skipped", "reason", "concurrent run active")
			return RunSummary{}, ErrRunActive
		}
		return RunSummary{}, fmt.Errorf("acquire run lock: %w", err)
	}

	tempDir, err := os.MkdirTemp("", "sqlbak-run-*")
	if err != nil {
		c.deps.Lock.Release()
		return RunSummary{}, fmt.Errorf("create temp dir: %w", err)
	}
	c.tempDir = tempDir

	cleanup := func() {
		os.RemoveAll(c.tempDir)
		c.deps.Lock.Release()
	}
	defer cleanup()
	stop := c.releaseOnSignal(cleanup)
	defer stop()

	log.Info("backup run started", "host", c.deps.Hostname)

	if err := c.deps.Preflight(); err != nil {
		return RunSummary{}, fmt.Errorf("preflight: %w", err)
	}

	targets, err := c.deps.Resolve(ctx)
	if err != nil {
		return RunSummary{}, fmt.Errorf("resolve targets: %w", err)
	}
	if len(targets) == 0 {
		c.deps.Notifier.Notify("sqlbak: backup run aborted, no databases to back up")
		return RunSummary{}, ErrNoTargets
	}

	// Sequential fold in enumeration order: each database is fully dumped,
	// uploaded and pruned before the next begins, so at most one compressed
	// artifact is resident on disk and a later failure cannot touch an
	// earlier outcome.
	outcomes := make([]Outcome, 0, len(targets))
	for _, target := range targets {
		outcomes = append(outcomes, c.processDatabase(ctx, target))
	}

	summary := Summarize(outcomes)
	log.Info("backup run finished", "total", summary.Total, "failed", summary.Failed)

	if summary.Failed > 0 {
		c.deps.Notifier.Notify(fmt.Sprintf(
			"sqlbak: %d of %d database backups failed on %s, see log for details",
			summary.Failed, summary.Total, c.deps.Hostname,
		))
	}
	return summary, nil
}

// processDatabase performs dump, upload and prune for one target. Every
// failure is converted into the returned Outcome at this boundary and never
// propagated past it.
func (c *Coordinator) processDatabase(ctx context.Context, target database.Target) Outcome {
	log := c.deps.Log
	started := c.deps.Now()
	outcome := Outcome{Target: target, StartedAt: started}

	// The timestamp is captured here, per database, so artifacts of one run
	// never collide on a shared run-start instant.
	rendered := naming.Render(c.cfg.NamePattern, target.Name, started, c.deps.Hostname)
	key := naming.Key(c.cfg.S3Path, target.Name, rendered)
	localPath := filepath.Join(c.tempDir, filepath.Base(key))

	log.Info("database backup started", "database", target.Name, "key", key)

	if err := c.deps.Dumper.Dump(ctx, target.Name, localPath); err != nil {
		log.Error("database backup failed", "database", target.Name, "stage", "dump", "error", err.Error())
		outcome.ErrorDetail = err.Error()
		outcome.DurationMS = time.Since(started).Milliseconds()
		return outcome
	}

	size, err := c.upload(ctx, key, localPath)
	// The artifact is removed as soon as the upload settles, keeping peak
	// temp usage at one compressed dump.
	os.Remove(localPath)
	if err != nil {
		log.Error("database backup failed", "database", target.Name, "stage", "upload", "error", err.Error())
		outcome.ErrorDetail = err.Error()
		outcome.DurationMS = time.Since(started).Milliseconds()
		return outcome
	}

	c.prune(ctx, target)

	elapsed := time.Since(started)
	outcome.Succeeded = true
	outcome.Key = key
	outcome.SizeBytes = size
	outcome.DurationMS = elapsed.Milliseconds()
	log.Info("database backup completed",
		"database", target.Name,
		"key", key,
		"size_bytes", size,
		"duration", elapsed.String(),
	)
	return outcome
}

// upload streams the dump artifact at localPath into the store under key.
func (c *Coordinator) upload(ctx context.Context, key, localPath string) (int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return 0, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat artifact: %w", err)
	}

	if err := c.deps.Store.Put(ctx, key, f, info.Size()); err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// prune lists this database's artifacts fresh from the store and deletes
// everything beyond the retention count. Pruning is best-effort: a stale
// artifact is a lesser harm than failing a finished backup, so every error
// here is logged and deliberately discarded.
func (c *Coordinator) prune(ctx context.Context, target database.Target) {
	log := c.deps.Log

	prefix := naming.Prefix(c.cfg.S3Path, target.Name)
	existing, err := c.deps.Store.List(ctx, prefix)
	if err != nil {
		log.Warn("prune skipped", "database", target.Name, "error", err.Error())
		return
	}

	for _, key := range retention.SelectForDeletion(existing, c.cfg.RetentionCount) {
		if err := c.deps.Store.Delete(ctx, key); err != nil {
			log.Warn("prune failed", "key", key, "error", err.Error())
			continue
		}
		log.Info("pruned artifact", "key", key)
	}
}

// releaseOnSignal installs a handler so an external SIGINT/SIGTERM still
// runs cleanup before the process dies. The returned stop function removes
// the handler once Run's own deferred cleanup is in charge again.
func (c *Coordinator) releaseOnSignal(cleanup func()) (stop func()) {
	sigCh := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			c.deps.Log.Warn("backup run terminated", "signal", sig.String())
			cleanup()
			logger.Cleanup()
			os.Exit(1)
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}
