package piiclient

import (
	"errors"
	"fmt"
	"time"
)

const (
	// AnalyzePath returns detected PII as JSON
	AnalyzePath = "/analyze-pii/"
	// MaskPath returns the redacted image
	MaskPath = "/mask-pii/"
	// HealthPath reports whether OCR and NLP are ready
	HealthPath = "/health"
	// CountHeader carries the number of masked regions on mask responses
	CountHeader = "X-PII-Detected"
	// FormField is the multipart field holding the image bytes
	FormField = "file"
	// MaskedContentType is assumed for mask responses that do not name one
	MaskedContentType = "image/png"
)

// ErrRequestFailed wraps every transport, status, or decoding failure.
// Callers only need to know that the operation did not succeed.
var ErrRequestFailed = errors.New("pii service request failed")

// Upload is the selected image as sent to the service
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the upload size in bytes
func (u Upload) Size() int64 {
	return int64(len(u.Data))
}

// BBox is a bounding box given as x1, y1, x2, y2
type BBox [4]int

// String renders the box as two coordinate pairs: (x1, y1) - (x2, y2)
func (b BBox) String() string {
	return fmt.Sprintf("(%d, %d) - (%d, %d)", b[0], b[1], b[2], b[3])
}

// Finding is one detected PII span
type Finding struct {
	Text     string   `json:"text"`
	PIITypes []string `json:"pii_types"`
	BBox     BBox     `json:"bbox"`
}

// AnalysisResult is the JSON body returned by the analyze endpoint
type AnalysisResult struct {
	TotalTextRegions int       `json:"total_text_regions"`
	PIIDetections    int       `json:"pii_detections"`
	DetectedPII      []Finding `json:"detected_pii"`
}

// HasFindings reports whether any PII span was returned
func (r *AnalysisResult) HasFindings() bool {
	return r != nil && len(r.DetectedPII) > 0
}

// MaskResult is the redacted image and the number of regions masked
type MaskResult struct {
	Image       []byte
	ContentType string
	PIICount    int
}

// Config contains client configuration
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}
