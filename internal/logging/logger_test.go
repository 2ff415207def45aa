// Package logging includes tests for the zap logger helpers.
package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestNewDevelopmentLogger confirms the development logger builds and logs.
func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(Config{Development: true})
	if err != nil {
		t.Fatalf("New(dev) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
}

// TestNewProductionLogger ensures the production logger configuration succeeds.
func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(Config{})
	if err != nil {
		t.Fatalf("New(prod) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("production logger ready")
}

// TestNewWritesRotatingFile checks that entries reach the configured file as JSON.
func TestNewWritesRotatingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "harvester.log")
	logger, err := New(Config{Development: true, File: path})
	if err != nil {
		t.Fatalf("New(file) error = %v", err)
	}
	logger.Info("file logger ready")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, `"msg":"file logger ready"`) {
		t.Fatalf("expected JSON entry in log file, got %q", line)
	}
	if strings.Contains(line, "\x1b[") {
		t.Fatalf("expected no color codes in log file, got %q", line)
	}
}

func TestNewRotatorDefaults(t *testing.T) {
	t.Parallel()

	r := newRotator(Config{File: "x.log"})
	if r.MaxSize != defaultMaxSizeMB || r.MaxBackups != defaultMaxBackups {
		t.Fatalf("unexpected rotator defaults: %+v", r)
	}
	r = newRotator(Config{File: "x.log", MaxSizeMB: 7, MaxBackups: 1})
	if r.MaxSize != 7 || r.MaxBackups != 1 {
		t.Fatalf("unexpected rotator overrides: %+v", r)
	}
}
