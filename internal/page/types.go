package page

import (
	"errors"

	"github.com/raaihank/pii-shield/internal/actions"
	"github.com/raaihank/pii-shield/internal/piiclient"
)

var (
	// ErrNoFile is returned when an action is triggered without a selection
	ErrNoFile = errors.New("no file selected")
	// ErrBusy is returned while the analyze or mask action is pending
	ErrBusy = errors.New("another action is pending")
	// ErrClosed is returned after the controller has been closed
	ErrClosed = errors.New("page closed")
)

// Layout is the presentational arrangement of the page
type Layout string

const (
	// LayoutCentered shows only the intake control, centered
	LayoutCentered Layout = "centered"
	// LayoutSplit moves the intake aside and shows the results panel
	LayoutSplit Layout = "split"
)

// DownloadName is the file name offered when saving a masked image
const DownloadName = "masked_image.png"

// MaskedImage is a masking result whose image lives in the blob store
type MaskedImage struct {
	BlobID      string
	ContentType string
	PIICount    int
}

// FileInfo describes the selected file for rendering
type FileInfo struct {
	Name      string
	Size      int64
	SizeLabel string

	// Width and Height are zero when the header could not be decoded
	Width  int
	Height int
}

// Snapshot is an immutable copy of the page state
type Snapshot struct {
	SessionID     string
	File          *FileInfo
	Analysis      *piiclient.AnalysisResult
	Masked        *MaskedImage
	AnalyzeStatus actions.Status
	MaskStatus    actions.Status
	Busy          bool
	Layout        Layout
	Accept        string
	Toasts        []actions.Notification
}

// HasResults reports whether any result is shown
func (s Snapshot) HasResults() bool {
	return s.Analysis != nil || s.Masked != nil
}

// Listener observes a page from outside, e.g. to push updates to a browser
type Listener interface {
	Notify(sessionID string, n actions.Notification)
	StatusChanged(sessionID string, action actions.Name, status actions.Status)
}
