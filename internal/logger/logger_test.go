package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	t.Run("InvalidLevel", func(t *testing.T) {
		if _, err := New(Config{Level: "loud", Format: "json"}); err == nil {
			t.Error("Expected error for invalid level")
		}
	})

	t.Run("FileSink", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "pii-shield.log")
		log, err := New(Config{
			Level:  "info",
			Format: "console",
			File:   &FileConfig{Enabled: true, Path: path},
		})
		if err != nil {
			t.Fatalf("Failed to create logger: %v", err)
		}

		log.WithComponent("test").WithSession("0123456789abcdef").Info("hello", zap.Int("n", 1))
		_ = log.Sync()

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("Failed to read log file: %v", err)
		}
		out := string(data)
		if !strings.Contains(out, `"component":"test"`) {
			t.Errorf("Component missing from log line: %s", out)
		}
		if !strings.Contains(out, `"session":"01234567"`) || strings.Contains(out, "0123456789abcdef") {
			t.Errorf("Session ID not shortened: %s", out)
		}
	})

	t.Run("SetLevelPropagates", func(t *testing.T) {
		log, err := New(Config{Level: "info", Format: "json"})
		if err != nil {
			t.Fatalf("Failed to create logger: %v", err)
		}
		child := log.WithComponent("child")
		if child.Core().Enabled(zap.DebugLevel) {
			t.Fatal("Debug should be disabled at info level")
		}
		if err := log.SetLevel("debug"); err != nil {
			t.Fatalf("SetLevel failed: %v", err)
		}
		if !child.Core().Enabled(zap.DebugLevel) {
			t.Error("Derived logger did not pick up the new level")
		}
	})
}

func TestShortID(t *testing.T) {
	if got := ShortID("abc"); got != "abc" {
		t.Errorf("Expected abc, got %s", got)
	}
	if got := ShortID("abcdefghijkl"); got != "abcdefgh" {
		t.Errorf("Expected abcdefgh, got %s", got)
	}
}
