package piiclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}

// newBackend serves handler and returns a client pointed at it
func newBackend(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(Config{BaseURL: srv.URL, UserAgent: "test-agent"})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return client
}

// readUpload checks the multipart request and returns the uploaded bytes
func readUpload(t *testing.T, r *http.Request) []byte {
	t.Helper()
	file, header, err := r.FormFile(FormField)
	if err != nil {
		t.Errorf("Missing %q form field: %v", FormField, err)
		return nil
	}
	defer file.Close()

	if ct := header.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected part content type image/png, got %q", ct)
	}
	if header.Filename != "id.png" {
		t.Errorf("Expected filename id.png, got %q", header.Filename)
	}
	data, _ := io.ReadAll(file)
	return data
}

func testUpload() Upload {
	return Upload{Name: "/home/user/id.png", ContentType: "image/png", Data: pngBytes}
}

func TestAnalyze(t *testing.T) {
	t.Run("DecodesFindings", func(t *testing.T) {
		client := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != AnalyzePath {
				t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
			}
			if r.UserAgent() != "test-agent" {
				t.Errorf("User agent not sent: %q", r.UserAgent())
			}
			if got := readUpload(t, r); !bytes.Equal(got, pngBytes) {
				t.Error("Uploaded bytes differ")
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"total_text_regions":7,"pii_detections":1,
				"detected_pii":[{"text":"123-45-6789","pii_types":["SSN"],"bbox":[10,20,110,40]}]}`)
		})

		result, err := client.Analyze(context.Background(), testUpload())
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}
		if result.TotalTextRegions != 7 || result.PIIDetections != 1 {
			t.Errorf("Unexpected counters: %+v", result)
		}
		if len(result.DetectedPII) != 1 {
			t.Fatalf("Expected one finding, got %d", len(result.DetectedPII))
		}
		finding := result.DetectedPII[0]
		if finding.Text != "123-45-6789" || finding.PIITypes[0] != "SSN" {
			t.Errorf("Unexpected finding: %+v", finding)
		}
		if finding.BBox.String() != "(10, 20) - (110, 40)" {
			t.Errorf("Unexpected bbox rendering: %s", finding.BBox)
		}
	})

	t.Run("NullFindingsBecomeEmpty", func(t *testing.T) {
		client := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"total_text_regions":3,"pii_detections":0,"detected_pii":null}`)
		})

		result, err := client.Analyze(context.Background(), testUpload())
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}
		if result.DetectedPII == nil || result.HasFindings() {
			t.Errorf("Expected empty, non-nil findings: %+v", result.DetectedPII)
		}
	})

	t.Run("ErrorStatus", func(t *testing.T) {
		client := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"detail":"File must be an image"}`, http.StatusBadRequest)
		})

		_, err := client.Analyze(context.Background(), testUpload())
		if !errors.Is(err, ErrRequestFailed) {
			t.Errorf("Expected ErrRequestFailed, got %v", err)
		}
	})

	t.Run("MalformedBody", func(t *testing.T) {
		client := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `<html>not json</html>`)
		})

		_, err := client.Analyze(context.Background(), testUpload())
		if !errors.Is(err, ErrRequestFailed) {
			t.Errorf("Expected ErrRequestFailed, got %v", err)
		}
	})

	t.Run("Unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		client, err := New(Config{BaseURL: srv.URL})
		if err != nil {
			t.Fatalf("Failed to create client: %v", err)
		}
		if _, err := client.Analyze(context.Background(), testUpload()); !errors.Is(err, ErrRequestFailed) {
			t.Errorf("Expected ErrRequestFailed, got %v", err)
		}
	})
}

func TestMask(t *testing.T) {
	t.Run("ParsesCountHeader", func(t *testing.T) {
		client := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != MaskPath {
				t.Errorf("Unexpected path %s", r.URL.Path)
			}
			readUpload(t, r)
			w.Header().Set("Content-Type", "image/png")
			w.Header().Set("x-pii-detected", "3")
			_, _ = w.Write(pngBytes)
		})

		result, err := client.Mask(context.Background(), testUpload())
		if err != nil {
			t.Fatalf("Mask failed: %v", err)
		}
		if result.PIICount != 3 {
			t.Errorf("Expected count 3, got %d", result.PIICount)
		}
		if result.ContentType != "image/png" {
			t.Errorf("Expected image/png, got %s", result.ContentType)
		}
		if !bytes.Equal(result.Image, pngBytes) {
			t.Error("Image bytes differ")
		}
	})

	t.Run("MissingHeaderDefaultsToZero", func(t *testing.T) {
		client := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write(pngBytes)
		})

		result, err := client.Mask(context.Background(), testUpload())
		if err != nil {
			t.Fatalf("Mask failed: %v", err)
		}
		if result.PIICount != 0 {
			t.Errorf("Expected count 0, got %d", result.PIICount)
		}
		if result.ContentType != MaskedContentType {
			t.Errorf("Expected fallback content type, got %s", result.ContentType)
		}
	})

	t.Run("ServerError", func(t *testing.T) {
		client := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Processing failed", http.StatusInternalServerError)
		})

		if _, err := client.Mask(context.Background(), testUpload()); !errors.Is(err, ErrRequestFailed) {
			t.Errorf("Expected ErrRequestFailed, got %v", err)
		}
	})
}

func TestParseCount(t *testing.T) {
	tests := map[string]int{
		"":      0,
		"3":     3,
		" 12 ":  12,
		"abc":   0,
		"-4":    0,
		"2.5":   0,
		"00007": 7,
	}
	for in, want := range tests {
		if got := ParseCount(in); got != want {
			t.Errorf("ParseCount(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestNew(t *testing.T) {
	if _, err := New(Config{BaseURL: "localhost:8000"}); err == nil {
		t.Error("Expected error for base url without scheme")
	}

	client, err := New(Config{BaseURL: "http://localhost:8000/"})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	if client.BaseURL() != "http://localhost:8000" {
		t.Errorf("Trailing slash not trimmed: %s", client.BaseURL())
	}
}

func TestBasePathPrefix(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = io.WriteString(w, `{"total_text_regions":0,"pii_detections":0,"detected_pii":[]}`)
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL + "/api"})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	if _, err := client.Analyze(context.Background(), testUpload()); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if gotPath != "/api/analyze-pii/" {
		t.Errorf("Expected /api/analyze-pii/, got %s", gotPath)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"healthy", http.StatusOK, false},
		{"not ready", http.StatusServiceUnavailable, true},
		{"no health route", http.StatusNotFound, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"status":"healthy","ocr_ready":true,"nlp_ready":true}`)
			}))
			defer srv.Close()

			client, err := New(Config{BaseURL: srv.URL + "/api"})
			if err != nil {
				t.Fatalf("Failed to create client: %v", err)
			}
			err = client.Health(context.Background())
			if gotPath != "/api/health" {
				t.Errorf("Expected /api/health, got %s", gotPath)
			}
			if tt.wantErr && !errors.Is(err, ErrRequestFailed) {
				t.Errorf("Expected ErrRequestFailed, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}
