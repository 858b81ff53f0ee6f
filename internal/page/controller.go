package page

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/raaihank/pii-shield/internal/actions"
	"github.com/raaihank/pii-shield/internal/blob"
	"github.com/raaihank/pii-shield/internal/intake"
	"github.com/raaihank/pii-shield/internal/logger"
	"github.com/raaihank/pii-shield/internal/piiclient"
	"go.uber.org/zap"
)

// maxToasts bounds the notifications kept between renders
const maxToasts = 3

// Config contains everything a Controller needs
type Config struct {
	SessionID string
	Service   actions.Service
	Blobs     blob.Store
	Policy    *intake.Policy
	Listener  Listener
	Logger    *logger.Logger
}

// Controller owns one page's state: the selected file and both results.
//
// State moves NoFile -> FileSelected -> (Analyzing | Masking) -> ResultsShown.
// Two rules hold throughout:
//   - at most one of analyze and mask is pending at any time, and while one
//     is pending the file cannot change;
//   - changing the file drops both results, and a response that belongs to
//     an earlier file is discarded.
type Controller struct {
	id       string
	blobs    blob.Store
	policy   *intake.Policy
	listener Listener
	logger   *logger.Logger

	analyze *actions.Binding[*piiclient.AnalysisResult]
	mask    *actions.Binding[*piiclient.MaskResult]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	closed     bool
	selected   *intake.File
	generation uint64
	inflight   context.CancelFunc
	analysis   *piiclient.AnalysisResult
	masked     *MaskedImage
	lastActive time.Time

	toastMu sync.Mutex
	toasts  []actions.Notification
}

// New creates a controller with no file selected
func New(cfg Config) *Controller {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	policy := cfg.Policy
	if policy == nil {
		policy = intake.NewPolicy(nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		id:         cfg.SessionID,
		blobs:      cfg.Blobs,
		policy:     policy,
		listener:   cfg.Listener,
		logger:     log.WithComponent("page").WithSession(cfg.SessionID),
		ctx:        ctx,
		cancel:     cancel,
		lastActive: time.Now(),
	}
	if c.blobs == nil {
		c.blobs = blob.NewMemoryStore(0)
	}

	c.analyze = actions.NewAnalyzeBinding(cfg.Service, c, log)
	c.mask = actions.NewMaskBinding(cfg.Service, c, log)

	return c
}

// ID returns the session ID this page belongs to
func (c *Controller) ID() string {
	return c.id
}

// Offer hands dropped or picked files to the intake control. Files that
// the policy rejects are ignored without an error, as is any offer made
// while an action is pending. Returns whether the selection changed.
func (c *Controller) Offer(files []*intake.File, source intake.Source) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	c.touchLocked()

	control := c.controlLocked()
	accepted := control.OfferMany(files, source, c.setFileLocked)
	if !accepted {
		c.logger.Debug("Upload ignored", zap.Int("files", len(files)), zap.String("source", string(source)))
	}
	return accepted
}

// Clear drops the selected file
func (c *Controller) Clear() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	c.touchLocked()

	control := c.controlLocked()
	return control.Clear(c.setFileLocked)
}

// Analyze starts the analyze action for the selected file. It returns
// ErrNoFile without a selection and ErrBusy while any action is pending;
// in both cases nothing is sent.
func (c *Controller) Analyze() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	upload, gen, ctx, err := c.beginLocked(c.analyze.Begin)
	if err != nil {
		return err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_, _ = c.analyze.Execute(ctx, upload, func(result *piiclient.AnalysisResult) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			if gen != c.generation {
				return actions.ErrDiscarded
			}
			c.analysis = result
			return nil
		})
		c.finish(gen)
	}()

	return nil
}

// Mask starts the mask action for the selected file; same rules as Analyze
func (c *Controller) Mask() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	upload, gen, ctx, err := c.beginLocked(c.mask.Begin)
	if err != nil {
		return err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_, _ = c.mask.Execute(ctx, upload, func(result *piiclient.MaskResult) error {
			// Store outside the lock; the blob is revoked again if the
			// result turns out to be stale.
			id, err := c.blobs.Put(ctx, result.Image, result.ContentType)
			if err != nil {
				return fmt.Errorf("failed to store masked image: %w", err)
			}

			c.mu.Lock()
			if gen != c.generation {
				c.mu.Unlock()
				c.revoke(id)
				return actions.ErrDiscarded
			}
			previous := c.masked
			c.masked = &MaskedImage{BlobID: id, ContentType: result.ContentType, PIICount: result.PIICount}
			c.mu.Unlock()

			if previous != nil {
				c.revoke(previous.BlobID)
			}
			return nil
		})
		c.finish(gen)
	}()

	return nil
}

// beginLocked checks the action guards and marks the action pending
func (c *Controller) beginLocked(begin func()) (piiclient.Upload, uint64, context.Context, error) {
	if c.closed {
		return piiclient.Upload{}, 0, nil, ErrClosed
	}
	c.touchLocked()

	if c.selected == nil {
		return piiclient.Upload{}, 0, nil, ErrNoFile
	}
	if c.busyLocked() {
		return piiclient.Upload{}, 0, nil, ErrBusy
	}

	begin()

	ctx, cancel := context.WithCancel(c.ctx)
	c.inflight = cancel

	upload := piiclient.Upload{
		Name:        c.selected.Name,
		ContentType: c.selected.ContentType,
		Data:        c.selected.Data,
	}
	return upload, c.generation, ctx, nil
}

// finish releases the request context of a settled request
func (c *Controller) finish(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen == c.generation && c.inflight != nil && !c.busyLocked() {
		c.inflight()
		c.inflight = nil
	}
}

// Busy reports whether either action is pending
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busyLocked()
}

func (c *Controller) busyLocked() bool {
	return c.analyze.Pending() || c.mask.Pending()
}

func (c *Controller) controlLocked() *intake.Control {
	return &intake.Control{
		Policy:   c.policy,
		Selected: c.selected,
		Disabled: c.busyLocked(),
	}
}

// setFileLocked replaces the selection and drops both results
func (c *Controller) setFileLocked(f *intake.File) {
	if c.inflight != nil {
		c.inflight()
		c.inflight = nil
	}
	c.generation++

	if c.masked != nil {
		c.revoke(c.masked.BlobID)
	}
	c.analysis = nil
	c.masked = nil
	c.selected = f
	c.analyze.Reset()
	c.mask.Reset()

	if f == nil {
		c.logger.Info("File cleared")
		return
	}
	c.logger.Info("File selected", logger.Upload(f.Name, f.Size(), f.ContentType))
}

func (c *Controller) revoke(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.blobs.Revoke(ctx, id); err != nil {
		c.logger.Warn("Failed to revoke masked image", zap.String("blob_id", id), zap.Error(err))
	}
}

func (c *Controller) touchLocked() {
	c.lastActive = time.Now()
}

// Touch marks the page as in use and keeps its masked image alive for
// another TTL. A masked image the store has already dropped is forgotten,
// so the page never links to a missing image.
func (c *Controller) Touch() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.touchLocked()
	var id string
	if c.masked != nil {
		id = c.masked.BlobID
	}
	c.mu.Unlock()

	if id == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.blobs.Touch(ctx, id)
	if err == nil {
		return
	}
	if !errors.Is(err, blob.ErrNotFound) {
		c.logger.Warn("Failed to renew masked image", zap.String("blob_id", id), zap.Error(err))
		return
	}

	c.mu.Lock()
	if c.masked != nil && c.masked.BlobID == id {
		c.masked = nil
	}
	c.mu.Unlock()
	c.logger.Warn("Masked image expired", zap.String("blob_id", id))
}

// LastActive returns when the page was last used
func (c *Controller) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

// Snapshot copies the current state for rendering
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		SessionID:     c.id,
		Analysis:      c.analysis,
		AnalyzeStatus: c.analyze.Status(),
		MaskStatus:    c.mask.Status(),
		Busy:          c.busyLocked(),
		Layout:        LayoutCentered,
		Accept:        c.policy.AcceptAttr(),
	}
	if c.selected != nil {
		snap.File = &FileInfo{
			Name:      c.selected.Name,
			Size:      c.selected.Size(),
			SizeLabel: c.selected.SizeLabel(),
		}
		if w, h, ok := c.selected.Dimensions(); ok {
			snap.File.Width, snap.File.Height = w, h
		}
	}
	if c.masked != nil {
		masked := *c.masked
		snap.Masked = &masked
	}
	if snap.HasResults() {
		snap.Layout = LayoutSplit
	}

	c.toastMu.Lock()
	snap.Toasts = append([]actions.Notification(nil), c.toasts...)
	c.toastMu.Unlock()

	return snap
}

// TakeToasts returns pending notifications and forgets them
func (c *Controller) TakeToasts() []actions.Notification {
	c.toastMu.Lock()
	defer c.toastMu.Unlock()
	toasts := c.toasts
	c.toasts = nil
	return toasts
}

// OwnsBlob reports whether id is this page's current masked image
func (c *Controller) OwnsBlob(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.masked != nil && c.masked.BlobID == id
}

// Wait blocks until no request started by this page is running
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close abandons outstanding requests and revokes the masked image
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.generation++
	c.cancel()
	masked := c.masked
	c.masked = nil
	c.analysis = nil
	c.selected = nil
	c.mu.Unlock()

	c.wg.Wait()
	if masked != nil {
		c.revoke(masked.BlobID)
	}
	c.logger.Debug("Page closed")
}

// Notify implements actions.Notifier
func (c *Controller) Notify(n actions.Notification) {
	c.toastMu.Lock()
	c.toasts = append(c.toasts, n)
	if len(c.toasts) > maxToasts {
		c.toasts = c.toasts[len(c.toasts)-maxToasts:]
	}
	c.toastMu.Unlock()

	if c.listener != nil {
		c.listener.Notify(c.id, n)
	}
}

// StatusChanged implements actions.Notifier
func (c *Controller) StatusChanged(action actions.Name, status actions.Status) {
	if c.listener != nil {
		c.listener.StatusChanged(c.id, action, status)
	}
}
