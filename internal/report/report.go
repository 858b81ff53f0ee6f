// Package report formats analysis and masking results for the command line.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/raaihank/pii-shield/internal/piiclient"
)

// Format selects the output encoding
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// Analysis describes one analyzed file
type Analysis struct {
	File   string                    `json:"file"`
	Result *piiclient.AnalysisResult `json:"result"`
}

// Masking describes one masked file
type Masking struct {
	File     string `json:"file"`
	Output   string `json:"output"`
	PIICount int    `json:"pii_count"`
	Bytes    int    `json:"bytes"`
}

// WriteAnalysis renders an analysis in the requested format
func WriteAnalysis(w io.Writer, format Format, a Analysis) error {
	if a.Result == nil {
		return fmt.Errorf("no analysis result for %s", a.File)
	}
	switch format {
	case FormatJSON:
		return writeJSON(w, a)
	case FormatMarkdown:
		return analysisMarkdown(w, a)
	default:
		return analysisText(w, a)
	}
}

// WriteMasking renders a masking summary in the requested format
func WriteMasking(w io.Writer, format Format, m Masking) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, m)
	case FormatMarkdown:
		md := markdown.NewMarkdown(w)
		md.H1("PII Shield Masking")
		md.PlainText("")
		md.Table(markdown.TableSet{
			Header: []string{"Property", "Value"},
			Rows: [][]string{
				{"File", "`" + m.File + "`"},
				{"Output", "`" + m.Output + "`"},
				{"PII Masked", strconv.Itoa(m.PIICount)},
				{"Size", strconv.Itoa(m.Bytes) + " bytes"},
			},
		})
		md.PlainText("")
		return md.Build()
	default:
		_, err := fmt.Fprintf(w, "Successfully masked %d PII regions.\nSaved %s (%d bytes)\n", m.PIICount, m.Output, m.Bytes)
		return err
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func analysisMarkdown(w io.Writer, a Analysis) error {
	result := a.Result
	md := markdown.NewMarkdown(w)

	md.H1("PII Analysis Results")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"File", "`" + a.File + "`"},
			{"Text Regions", strconv.Itoa(result.TotalTextRegions)},
			{"PII Detected", strconv.Itoa(result.PIIDetections)},
		},
	})
	md.PlainText("")

	md.H2("Detected PII Details")
	md.PlainText("")
	if !result.HasFindings() {
		md.Tip("No PII Detected. This image appears to be safe from personally identifiable information.")
		md.PlainText("")
		return md.Build()
	}

	md.Warningf("%d PII regions found in the image.", len(result.DetectedPII))
	md.PlainText("")

	rows := make([][]string, 0, len(result.DetectedPII))
	for _, f := range result.DetectedPII {
		rows = append(rows, []string{
			"`" + strings.ReplaceAll(f.Text, "`", "'") + "`",
			strings.Join(f.PIITypes, ", "),
			f.BBox.String(),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Text", "Types", "Location"},
		Rows:   rows,
	})
	md.PlainText("")
	return md.Build()
}

func analysisText(w io.Writer, a Analysis) error {
	result := a.Result
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", a.File)
	fmt.Fprintf(&b, "  Text Regions: %d\n", result.TotalTextRegions)
	fmt.Fprintf(&b, "  PII Detected: %d\n", result.PIIDetections)
	if !result.HasFindings() {
		b.WriteString("  No PII Detected\n")
	}
	for _, f := range result.DetectedPII {
		fmt.Fprintf(&b, "  - %q [%s] Location: %s\n", f.Text, strings.Join(f.PIITypes, ", "), f.BBox)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
