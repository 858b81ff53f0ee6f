package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/raaihank/pii-shield/internal/config"
	"github.com/raaihank/pii-shield/internal/report"
	"gopkg.in/yaml.v3"
)

var pngData = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

// newBackend serves the two backend endpoints; failing paths answer 500
func newBackend(t *testing.T, failing ...string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	fail := func(path string) bool {
		for _, f := range failing {
			if f == path {
				return true
			}
		}
		return false
	}
	mux.HandleFunc("/analyze-pii/", func(w http.ResponseWriter, r *http.Request) {
		if fail(r.URL.Path) {
			http.Error(w, "ocr crashed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"total_text_regions":5,"pii_detections":1,"detected_pii":[{"text":"123-45-6789","pii_types":["SSN"],"bbox":[10,20,110,40]}]}`))
	})
	mux.HandleFunc("/mask-pii/", func(w http.ResponseWriter, r *http.Request) {
		if fail(r.URL.Path) {
			http.Error(w, "ocr crashed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("X-PII-Detected", "3")
		w.Write(pngData)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeImage(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, pngData, 0o644); err != nil {
		t.Fatalf("Failed to write image: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd()

	if cmd.Use != "pii-shield" {
		t.Errorf("Expected use 'pii-shield', got %q", cmd.Use)
	}
	if cmd.Version == "" {
		t.Error("Expected non-empty version")
	}

	want := map[string]bool{"serve": false, "analyze": false, "mask": false, "health-check": false, "version": false, "config": false}
	for _, sub := range cmd.Commands() {
		name := strings.Fields(sub.Use)[0]
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("Missing subcommand %s", name)
		}
	}

	for _, flag := range []string{"config", "backend", "verbose"} {
		if cmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("Missing persistent flag %s", flag)
		}
	}
}

func TestVersionCmd(t *testing.T) {
	out, _, err := execute(t, "version")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(out, "pii-shield version") || !strings.Contains(out, "commit:") {
		t.Errorf("Unexpected output: %q", out)
	}
}

func TestAnalyzeCmd(t *testing.T) {
	backend := newBackend(t)
	img := writeImage(t, "id.png")

	t.Run("JSON", func(t *testing.T) {
		out, _, err := execute(t, "analyze", img, "--backend", backend.URL, "--json")
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}
		var a report.Analysis
		if err := json.Unmarshal([]byte(out), &a); err != nil {
			t.Fatalf("Invalid JSON output: %v\n%s", err, out)
		}
		if a.Result.PIIDetections != 1 || a.Result.DetectedPII[0].Text != "123-45-6789" {
			t.Errorf("Unexpected result: %+v", a.Result)
		}
	})

	t.Run("Markdown", func(t *testing.T) {
		out, _, err := execute(t, "analyze", img, "--backend", backend.URL, "--markdown")
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}
		if !strings.Contains(out, "# PII Analysis Results") || !strings.Contains(out, "(10, 20) - (110, 40)") {
			t.Errorf("Unexpected markdown:\n%s", out)
		}
	})

	t.Run("FormatsExclusive", func(t *testing.T) {
		if _, _, err := execute(t, "analyze", img, "--backend", backend.URL, "--markdown", "--json"); err == nil {
			t.Error("Expected error for conflicting formats")
		}
	})

	t.Run("UnsupportedFile", func(t *testing.T) {
		pdf := filepath.Join(t.TempDir(), "doc.pdf")
		os.WriteFile(pdf, []byte("%PDF-1.4"), 0o644)
		_, stderr, err := execute(t, "analyze", pdf, img, "--backend", backend.URL)
		if err == nil {
			t.Fatal("Expected error for PDF")
		}
		if !strings.Contains(stderr, "unsupported file") {
			t.Errorf("Unexpected stderr: %q", stderr)
		}
	})

	t.Run("BackendFailure", func(t *testing.T) {
		failing := newBackend(t, "/analyze-pii/")
		_, _, err := execute(t, "analyze", img, "--backend", failing.URL)
		if err == nil || !strings.Contains(err.Error(), "Failed to analyze the image. Please try again.") {
			t.Errorf("Unexpected error: %v", err)
		}
	})
}

func TestMaskCmd(t *testing.T) {
	backend := newBackend(t)
	img := writeImage(t, "id.png")
	output := filepath.Join(t.TempDir(), "masked.png")

	out, _, err := execute(t, "mask", img, "-o", output, "--backend", backend.URL)
	if err != nil {
		t.Fatalf("Mask failed: %v", err)
	}
	if !strings.Contains(out, "Successfully masked 3 PII regions.") {
		t.Errorf("Unexpected output: %q", out)
	}
	written, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("Masked image not written: %v", err)
	}
	if !bytes.Equal(written, pngData) {
		t.Error("Masked image content differs")
	}
}

func TestHealthCheckCmd(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()
	degraded := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer degraded.Close()

	out, _, err := execute(t, "health-check", "--url", healthy.URL+"/health")
	if err != nil || !strings.Contains(out, "Health check passed") {
		t.Errorf("Healthy server: out=%q err=%v", out, err)
	}
	if _, _, err := execute(t, "health-check", "--url", degraded.URL+"/health"); err == nil {
		t.Error("Expected failure for degraded server")
	}
}

func TestConfigCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("session:\n  ttl: 5m\n"), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	out, _, err := execute(t, "config", "-c", path, "--backend", "http://backend.test:8000")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.HasPrefix(out, "# loaded from "+path) {
		t.Errorf("Missing source line: %q", out)
	}

	for _, want := range []string{"    ttl: 5m\n", "    sweep_interval: 1m\n", "    ping_interval: 54s\n", "    port: 8080\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("Output missing %q:\n%s", want, out)
		}
	}

	var cfg config.Config
	if err := yaml.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatalf("Output is not YAML: %v", err)
	}
	if cfg.Backend.BaseURL != "http://backend.test:8000" {
		t.Errorf("Backend override missing: %s", cfg.Backend.BaseURL)
	}
	if cfg.Session.TTL.String() != "5m0s" {
		t.Errorf("Expected 5m ttl, got %s", cfg.Session.TTL)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port, got %d", cfg.Server.Port)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[time.Duration]string{
		30 * time.Minute:          "30m",
		time.Minute:               "1m",
		54 * time.Second:          "54s",
		time.Hour:                 "1h",
		90 * time.Minute:          "1h30m",
		time.Hour + 5*time.Second: "1h0m5s",
		1500 * time.Millisecond:   "1.5s",
		0:                         "0s",
	}
	for d, want := range tests {
		if got := formatDuration(d); got != want {
			t.Errorf("formatDuration(%d) = %q, want %q", d, got, want)
		}
	}
}
