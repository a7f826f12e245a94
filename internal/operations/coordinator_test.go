package operations

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/kebairia/sqlbak/internal/config"
	"github.com/kebairia/sqlbak/internal/database"
	"github.com/kebairia/sqlbak/internal/lock"
	"github.com/kebairia/sqlbak/internal/logger"
)

// --- fakes -----------------------------------------------------------------

type fakeDumper struct {
	failOn map[string]bool
	calls  []string
}

func (d *fakeDumper) Dump(_ context.Context, db, destPath string) error {
	d.calls = append(d.calls, db)
	if d.failOn[db] {
		return fmt.Errorf("dump failed: %s: mysqldump exited 2", db)
	}
	return os.WriteFile(destPath, []byte("-- dump of "+db), 0o644)
}

type memStore struct {
	objects    map[string][]byte
	putErrOn   string
	listErr    error
	deleteErr  error
	deleted    []string
	putHistory []string
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (s *memStore) Put(_ context.Context, key string, r io.Reader, _ int64) error {
	if s.putErrOn != "" && strings.Contains(key, s.putErrOn) {
		return errors.New("upload rejected")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.objects[key] = data
	s.putHistory = append(s.putHistory, key)
	return nil
}

func (s *memStore) List(_ context.Context, prefix string) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var names []string
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			names = append(names, key)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

type fakeLock struct {
	held     bool
	acquired int
	released int
}

func (l *fakeLock) Acquire() error {
	if l.held {
		return lock.ErrHeld
	}
	l.acquired++
	return nil
}

func (l *fakeLock) Release() { l.released++ }

type recordingNotifier struct {
	messages []string
}

func (n *recordingNotifier) Notify(msg string) { n.messages = append(n.messages, msg) }

// --- harness ---------------------------------------------------------------

type harness struct {
	cfg      config.Config
	dumper   *fakeDumper
	store    *memStore
	lock     *fakeLock
	notifier *recordingNotifier
	targets  []database.Target
}

func newHarness(databases ...string) *harness {
	targets := make([]database.Target, 0, len(databases))
	for _, db := range databases {
		targets = append(targets, database.Target{Name: db})
	}
	return &harness{
		cfg: config.Config{
			NamePattern:    "{date}_{time}_{db}",
			S3Path:         "backups",
			RetentionCount: 2,
		},
		dumper:   &fakeDumper{failOn: map[string]bool{}},
		store:    newMemStore(),
		lock:     &fakeLock{},
		notifier: &recordingNotifier{},
		targets:  targets,
	}
}

func (h *harness) coordinator() *Coordinator {
	// Clock advances two seconds per observation so per-database capture
	// instants are distinct, as they are in a real run.
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	return NewCoordinator(h.cfg, Deps{
		Dumper:   h.dumper,
		Store:    h.store,
		Lock:     h.lock,
		Notifier: h.notifier,
		Log:      logger.Global(),
		Resolve: func(context.Context) ([]database.Target, error) {
			return h.targets, nil
		},
		Hostname: "testhost",
		Now: func() time.Time {
			now = now.Add(2 * time.Second)
			return now
		},
	})
}

// --- tests -----------------------------------------------------------------

func TestRunSkipsWhenLockHeld(t *testing.T) {
	h := newHarness("shop")
	h.lock.held = true

	_, err := h.coordinator().Run(context.Background())
	if !errors.Is(err, ErrRunActive) {
		t.Fatalf("Run = %v, want ErrRunActive", err)
	}
	if len(h.dumper.calls) != 0 {
		t.Fatalf("no database may be touched on a skipped run, dumped %v", h.dumper.calls)
	}
	if len(h.notifier.messages) != 0 {
		t.Fatalf("skip is not a failure, notified %v", h.notifier.messages)
	}
}

func TestRunEmptyTargetSetIsFatal(t *testing.T) {
	h := newHarness()

	_, err := h.coordinator().Run(context.Background())
	if !errors.Is(err, ErrNoTargets) {
		t.Fatalf("Run = %v, want ErrNoTargets", err)
	}
	if len(h.notifier.messages) != 1 {
		t.Fatalf("fatal abort must notify exactly once, got %v", h.notifier.messages)
	}
	if h.lock.released != 1 {
		t.Fatalf("lock not released on fatal abort, released=%d", h.lock.released)
	}
}

func TestRunPreflightFailureIsFatal(t *testing.T) {
	h := newHarness("shop")
	c := h.coordinator()
	c.deps.Preflight = func() error { return errors.New("mysqldump not found in PATH") }

	if _, err := c.Run(context.Background()); err == nil {
		t.Fatal("expected preflight failure to abort the run")
	}
	if len(h.dumper.calls) != 0 {
		t.Fatal("preflight failure must abort before any database is touched")
	}
	if h.lock.released != 1 {
		t.Fatal("lock not released after preflight failure")
	}
}

func TestRunPartialFailureIsolation(t *testing.T) {
	h := newHarness("alpha", "broken", "gamma")
	h.dumper.failOn["broken"] = true

	summary, err := h.coordinator().Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Total != 3 || summary.Failed != 1 {
		t.Fatalf("summary = total %d failed %d, want 3/1", summary.Total, summary.Failed)
	}
	if strings.Join(h.dumper.calls, ",") != "alpha,broken,gamma" {
		t.Fatalf("all targets must be attempted in order, got %v", h.dumper.calls)
	}
	if !summary.Outcomes[0].Succeeded || summary.Outcomes[1].Succeeded || !summary.Outcomes[2].Succeeded {
		t.Fatalf("outcomes = %+v", summary.Outcomes)
	}
	if summary.Outcomes[1].ErrorDetail == "" {
		t.Fatal("failed outcome must carry error detail")
	}
	if len(h.notifier.messages) != 1 {
		t.Fatalf("one aggregated notification expected, got %v", h.notifier.messages)
	}
	if !strings.Contains(h.notifier.messages[0], "1 of 3") {
		t.Fatalf("notification must carry counts only: %q", h.notifier.messages[0])
	}
	if strings.Contains(h.notifier.messages[0], "mysqldump") {
		t.Fatalf("causes belong in the log, not the notification: %q", h.notifier.messages[0])
	}
}

func TestRunAllSucceededSendsNoNotification(t *testing.T) {
	h := newHarness("shop")

	summary, err := h.coordinator().Run(context.Background())
	if err != nil || summary.Failed != 0 {
		t.Fatalf("Run = %+v, %v", summary, err)
	}
	if len(h.notifier.messages) != 0 {
		t.Fatalf("unexpected notification %v", h.notifier.messages)
	}
}

func TestRunUploadFailureRecordedAndPruneSkipped(t *testing.T) {
	h := newHarness("shop")
	h.store.putErrOn = "shop"
	h.store.objects["backups/shop/0000_old.sql.gz"] = nil

	summary, err := h.coordinator().Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("upload failure not recorded: %+v", summary)
	}
	if len(h.store.deleted) != 0 {
		t.Fatalf("prune must not run after a failed upload, deleted %v", h.store.deleted)
	}
}

func TestRunRetentionEndToEnd(t *testing.T) {
	h := newHarness("a", "b")
	// Pre-existing artifacts: three for a, one for b. Keys sort so that the
	// new upload is always the newest.
	for _, key := range []string{
		"backups/a/2025-01-01_00-00-00_a.sql.gz",
		"backups/a/2025-01-02_00-00-00_a.sql.gz",
		"backups/a/2025-01-03_00-00-00_a.sql.gz",
		"backups/b/2025-01-01_00-00-00_b.sql.gz",
	} {
		h.store.objects[key] = []byte("old")
	}

	summary, err := h.coordinator().Run(context.Background())
	if err != nil || summary.Failed != 0 {
		t.Fatalf("Run = %+v, %v", summary, err)
	}

	listFor := func(db string) []string {
		names, _ := h.store.List(context.Background(), "backups/"+db+"/")
		return names
	}

	aNames := listFor("a")
	if len(aNames) != 2 {
		t.Fatalf("a retains %d artifacts, want 2: %v", len(aNames), aNames)
	}
	// The two newest survive, including the artifact this run uploaded.
	if aNames[0] != "backups/a/2025-01-03_00-00-00_a.sql.gz" {
		t.Fatalf("wrong survivor for a: %v", aNames)
	}
	if !strings.Contains(aNames[1], "2025-03-14") {
		t.Fatalf("fresh upload missing for a: %v", aNames)
	}

	bNames := listFor("b")
	if len(bNames) != 2 {
		t.Fatalf("b retains %d artifacts, want 2: %v", len(bNames), bNames)
	}
}

func TestRunZeroRetentionKeepsNothingPrevious(t *testing.T) {
	h := newHarness("shop")
	h.cfg.RetentionCount = 0
	h.store.objects["backups/shop/2025-01-01_00-00-00_shop.sql.gz"] = []byte("old")

	if _, err := h.coordinator().Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	names, _ := h.store.List(context.Background(), "backups/shop/")
	if len(names) != 0 {
		t.Fatalf("retention 0 must delete everything including the new artifact, kept %v", names)
	}
}

func TestRunPruneFailureIsSwallowed(t *testing.T) {
	h := newHarness("shop")
	h.store.deleteErr = errors.New("permission denied")
	h.store.objects["backups/shop/2025-01-01_00-00-00_shop.sql.gz"] = []byte("old")
	h.store.objects["backups/shop/2025-01-02_00-00-00_shop.sql.gz"] = []byte("old")

	summary, err := h.coordinator().Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed != 0 {
		t.Fatalf("prune failure must not fail the database outcome: %+v", summary)
	}
}

func TestRunListFailureSkipsPruneOnly(t *testing.T) {
	h := newHarness("shop")
	h.store.listErr = errors.New("listing unavailable")

	summary, err := h.coordinator().Run(context.Background())
	if err != nil || summary.Failed != 0 {
		t.Fatalf("Run = %+v, %v", summary, err)
	}
}

func TestRunCapturesDistinctInstantsPerDatabase(t *testing.T) {
	h := newHarness("a", "b")

	summary, err := h.coordinator().Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Outcomes[0].Key == summary.Outcomes[1].Key {
		t.Fatal("keys must differ across databases")
	}
	if summary.Outcomes[0].StartedAt.Equal(summary.Outcomes[1].StartedAt) {
		t.Fatal("each database must capture its own processing instant")
	}
}

func TestRunReleasesLockAndTempDir(t *testing.T) {
	h := newHarness("shop")
	c := h.coordinator()

	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.lock.released != 1 {
		t.Fatalf("lock released %d times, want 1", h.lock.released)
	}
	if _, err := os.Stat(c.tempDir); !os.IsNotExist(err) {
		t.Fatalf("temp dir %q not removed: %v", c.tempDir, err)
	}
}
