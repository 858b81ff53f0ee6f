package piiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/raaihank/pii-shield/internal/logger"
	"go.uber.org/zap"
)

// maxErrorBody bounds how much of a failed response is kept for logging
const maxErrorBody = 512

// Client talks to the external OCR/PII service. It holds no state beyond
// its configuration, so tests can build a fresh one per backend.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	userAgent  string
	logger     *logger.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the client logger
func WithLogger(log *logger.Logger) Option {
	return func(c *Client) {
		c.logger = log
	}
}

// New creates a client for the service at cfg.BaseURL
func New(cfg Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseURL)
	}

	c := &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		userAgent:  cfg.UserAgent,
		logger:     logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// BaseURL returns the service origin
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Analyze uploads the image and returns the detected PII
func (c *Client) Analyze(ctx context.Context, upload Upload) (*AnalysisResult, error) {
	resp, err := c.post(ctx, AnalyzePath, upload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result AnalysisResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode analysis: %v", ErrRequestFailed, err)
	}
	if result.DetectedPII == nil {
		result.DetectedPII = []Finding{}
	}

	c.logger.Debug("Analysis received",
		zap.Int("text_regions", result.TotalTextRegions),
		zap.Int("pii_detections", result.PIIDetections),
	)

	return &result, nil
}

// Mask uploads the image and returns the redacted version. The count comes
// from the X-PII-Detected header and is 0 when missing or not a number.
func (c *Client) Mask(ctx context.Context, upload Upload) (*MaskResult, error) {
	resp, err := c.post(ctx, MaskPath, upload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	image, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read masked image: %v", ErrRequestFailed, err)
	}

	result := &MaskResult{
		Image:       image,
		ContentType: maskedContentType(resp.Header.Get("Content-Type")),
		PIICount:    ParseCount(resp.Header.Get(CountHeader)),
	}

	c.logger.Debug("Masked image received",
		zap.Int("pii_count", result.PIICount),
		zap.Int("image_bytes", len(image)),
	)

	return result, nil
}

// Health asks the service whether it is ready to take requests
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL.JoinPath(HealthPath).String(), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: health status %d", ErrRequestFailed, resp.StatusCode)
	}
	return nil
}

// ParseCount reads a decimal count header, falling back to 0
func ParseCount(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func maskedContentType(header string) string {
	if strings.HasPrefix(header, "image/") {
		return header
	}
	return MaskedContentType
}

// post sends the upload as multipart/form-data and returns a 2xx response
func (c *Client) post(ctx context.Context, path string, upload Upload) (*http.Response, error) {
	body, contentType, err := encodeUpload(upload)
	if err != nil {
		return nil, fmt.Errorf("%w: encode upload: %v", ErrRequestFailed, err)
	}

	endpoint := c.baseURL.JoinPath(path)
	// JoinPath drops the trailing slash the service routes on
	endpoint.Path = strings.TrimRight(endpoint.Path, "/") + "/"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("PII service unreachable",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	c.logger.Debug("PII service responded",
		zap.String("path", path),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
		logger.Upload(upload.Name, upload.Size(), upload.ContentType),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		c.logger.Warn("PII service returned an error",
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode),
			zap.ByteString("detail", detail),
		)
		return nil, fmt.Errorf("%w: %s returned status %d", ErrRequestFailed, path, resp.StatusCode)
	}

	return resp, nil
}

func encodeUpload(upload Upload) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	name := filepath.Base(upload.Name)
	if name == "." || name == "/" || name == "" {
		name = "upload"
	}
	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// CreateFormFile would hard-code application/octet-stream; the service
	// rejects anything that is not image/*.
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FormField, name))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(upload.Data); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return &buf, writer.FormDataContentType(), nil
}
