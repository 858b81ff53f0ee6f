// Package intake decides which uploaded files become the selected image.
//
// Files that fail the checks are dropped without any message to the user;
// the upload control filters what it takes, like the browser's accept
// attribute.
package intake

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
)

// Source identifies how a file reached the control
type Source string

const (
	// SourceDrop is a drag-and-drop onto the drop target
	SourceDrop Source = "drop"
	// SourcePicker is the native file dialog
	SourcePicker Source = "picker"
)

// ParseSource maps a form value to a Source; unknown values count as picker
// selections so the stricter extension check applies.
func ParseSource(value string) Source {
	if Source(strings.ToLower(strings.TrimSpace(value))) == SourceDrop {
		return SourceDrop
	}
	return SourcePicker
}

// DefaultExtensions is the picker allow-list
var DefaultExtensions = []string{".jpg", ".jpeg", ".png"}

// File is a candidate or selected image
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the file size in bytes
func (f *File) Size() int64 {
	return int64(len(f.Data))
}

// SizeLabel renders the size the way the control shows it
func (f *File) SizeLabel() string {
	return FormatSize(f.Size())
}

// Policy filters candidate files
type Policy struct {
	extensions map[string]struct{}
	accept     string
}

// NewPolicy builds a policy from an extension allow-list
func NewPolicy(extensions []string) *Policy {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	p := &Policy{extensions: make(map[string]struct{}, len(extensions))}
	normalized := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, dup := p.extensions[ext]; dup {
			continue
		}
		p.extensions[ext] = struct{}{}
		normalized = append(normalized, ext)
	}
	p.accept = strings.Join(normalized, ",")
	return p
}

// AcceptAttr is the value for the picker's accept attribute
func (p *Policy) AcceptAttr() string {
	return p.accept
}

// Accept reports whether the file may become the selection. Every source
// needs an image/* MIME type; picker selections must also carry an allowed
// extension.
func (p *Policy) Accept(f *File, source Source) bool {
	if f == nil || len(f.Data) == 0 {
		return false
	}
	if !IsImage(f.ContentType) {
		return false
	}
	if source == SourcePicker {
		_, ok := p.extensions[strings.ToLower(filepath.Ext(f.Name))]
		return ok
	}
	return true
}

// FirstImage returns the first acceptable file of a multi-file drop
func (p *Policy) FirstImage(files []*File, source Source) *File {
	for _, f := range files {
		if p.Accept(f, source) {
			return f
		}
	}
	return nil
}

// IsImage reports whether a MIME type is in the image/ family
func IsImage(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/")
}

// ResolveContentType keeps a declared type unless it is missing or generic,
// in which case the type is sniffed from the bytes.
func ResolveContentType(declared string, data []byte) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if len(data) == 0 {
		return declared
	}
	return http.DetectContentType(data)
}

// FormatSize renders bytes as megabytes with two decimals
func FormatSize(bytes int64) string {
	return fmt.Sprintf("%.2f MB", float64(bytes)/1024/1024)
}
