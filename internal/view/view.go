// Package view renders the PII Shield page from a page snapshot.
//
// The templates are embedded so the binary is self-contained. Rendering is
// a pure function of the snapshot: no state lives here.
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"net/url"

	"github.com/raaihank/pii-shield/internal/page"
	"github.com/raaihank/pii-shield/internal/piiclient"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// DefaultRefreshSeconds is how often a page reloads itself while an action
// is pending and no WebSocket update arrives
const DefaultRefreshSeconds = 2

// PageData is everything the page template needs
type PageData struct {
	page.Snapshot

	// WebSocketPath is empty when live updates are disabled
	WebSocketPath  string
	RefreshSeconds int
}

// MaskedView returns the masked image panel data, or nil without a masked image
func (d PageData) MaskedView() *MaskedView {
	if d.Masked == nil {
		return nil
	}
	v := NewMaskedView(d.Masked)
	return &v
}

// MaskedView is the data of the masked image panel
type MaskedView struct {
	ImageURL    string
	DownloadURL string
	FileName    string
	PIICount    int
}

// NewMaskedView builds the panel data for a stored masked image
func NewMaskedView(m *page.MaskedImage) MaskedView {
	return MaskedView{
		ImageURL:    BlobURL(m.BlobID),
		DownloadURL: DownloadURL(m.BlobID),
		FileName:    page.DownloadName,
		PIICount:    m.PIICount,
	}
}

// BlobURL is the address the browser loads a masked image from
func BlobURL(id string) string {
	return "/blobs/" + url.PathEscape(id)
}

// DownloadURL is the address that serves a masked image as an attachment
func DownloadURL(id string) string {
	return BlobURL(id) + "/download"
}

// Renderer executes the embedded templates
type Renderer struct {
	tmpl *template.Template
}

// New parses the embedded templates
func New() (*Renderer, error) {
	tmpl, err := template.New("shield").ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Page renders the full document
func (r *Renderer) Page(w io.Writer, data PageData) error {
	if data.RefreshSeconds <= 0 {
		data.RefreshSeconds = DefaultRefreshSeconds
	}
	return r.execute(w, "page", data)
}

// Analysis renders only the analysis panel
func (r *Renderer) Analysis(w io.Writer, result *piiclient.AnalysisResult) error {
	if result == nil {
		return fmt.Errorf("no analysis result to render")
	}
	return r.execute(w, "analysis", result)
}

// Masked renders only the masked image panel
func (r *Renderer) Masked(w io.Writer, m *page.MaskedImage) error {
	if m == nil {
		return fmt.Errorf("no masked image to render")
	}
	return r.execute(w, "masked", NewMaskedView(m))
}

// execute renders into a buffer first so a template error never leaves a
// half-written response behind
func (r *Renderer) execute(w io.Writer, name string, data interface{}) error {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// Static serves the embedded stylesheet and script
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}

// NoCache marks a response as not cacheable
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
}
