package logger

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func TestInitWritesBracketedLinesToLogFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "backup.log")

	log, err := Init(logFile)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	log.Info("scheduler started", "interval", "24h0m0s")
	log.Warn("prune failed", "key", "backups/shop/x.sql.gz")
	Cleanup()

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	content := string(data)

	if !strings.Contains(content, "[INFO] scheduler started") {
		t.Errorf("info line missing or misshapen:\n%s", content)
	}
	if !strings.Contains(content, "[WARN] prune failed") {
		t.Errorf("warn line missing or misshapen:\n%s", content)
	}

	linePattern := regexp.MustCompile(`(?m)^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] \[[A-Z]+\] `)
	if got := len(linePattern.FindAllString(content, -1)); got != 2 {
		t.Errorf("want 2 bracketed lines, got %d:\n%s", got, content)
	}
}

func TestInitWithoutLogFileWritesNothingToDisk(t *testing.T) {
	dir := t.TempDir()

	log, err := Init("")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	log.Info("console only")

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("unexpected files created: %v", entries)
	}
}

func TestGlobalNeverNil(t *testing.T) {
	globalSugar = nil
	if Global() == nil {
		t.Fatal("Global returned nil")
	}
}
