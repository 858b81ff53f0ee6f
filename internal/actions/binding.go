package actions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/raaihank/pii-shield/internal/logger"
	"github.com/raaihank/pii-shield/internal/piiclient"
	"go.uber.org/zap"
)

// Binding wraps one remote call with a pending/success/error lifecycle.
// It does not stop concurrent runs by itself; the page controller decides
// when Begin may be called.
type Binding[T any] struct {
	name    Name
	call    func(context.Context, piiclient.Upload) (T, error)
	success func(T) Notification
	failure Notification

	notifier Notifier
	logger   *logger.Logger
	now      func() time.Time

	mu     sync.Mutex
	status Status
}

// NewAnalyzeBinding binds the analyze call
func NewAnalyzeBinding(svc Service, notifier Notifier, log *logger.Logger) *Binding[*piiclient.AnalysisResult] {
	return newBinding(Analyze, svc.Analyze, func(r *piiclient.AnalysisResult) Notification {
		return Notification{
			Kind:        KindSuccess,
			Title:       "Analysis Complete",
			Description: fmt.Sprintf("Found %d PII regions in the image.", r.PIIDetections),
		}
	}, Notification{
		Kind:        KindError,
		Title:       "Analysis Failed",
		Description: "Failed to analyze the image. Please try again.",
	}, notifier, log)
}

// NewMaskBinding binds the mask call
func NewMaskBinding(svc Service, notifier Notifier, log *logger.Logger) *Binding[*piiclient.MaskResult] {
	return newBinding(Mask, svc.Mask, func(r *piiclient.MaskResult) Notification {
		return Notification{
			Kind:        KindSuccess,
			Title:       "Masking Complete",
			Description: fmt.Sprintf("Successfully masked %d PII regions.", r.PIICount),
		}
	}, Notification{
		Kind:        KindError,
		Title:       "Masking Failed",
		Description: "Failed to mask the image. Please try again.",
	}, notifier, log)
}

func newBinding[T any](
	name Name,
	call func(context.Context, piiclient.Upload) (T, error),
	success func(T) Notification,
	failure Notification,
	notifier Notifier,
	log *logger.Logger,
) *Binding[T] {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	failure.Action = name
	return &Binding[T]{
		name:     name,
		call:     call,
		success:  success,
		failure:  failure,
		notifier: notifier,
		logger:   log.WithComponent("action").With(zap.String("action", string(name))),
		now:      time.Now,
		status:   StatusIdle,
	}
}

// Name returns the action name
func (b *Binding[T]) Name() Name {
	return b.name
}

// Status returns the current lifecycle state
func (b *Binding[T]) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Pending reports whether a call is outstanding
func (b *Binding[T]) Pending() bool {
	return b.Status() == StatusPending
}

// Begin marks the action pending
func (b *Binding[T]) Begin() {
	b.setStatus(StatusPending)
}

// Reset returns the action to idle unless a call is outstanding
func (b *Binding[T]) Reset() {
	b.mu.Lock()
	changed := b.status != StatusPending && b.status != StatusIdle
	if changed {
		b.status = StatusIdle
	}
	b.mu.Unlock()

	if changed {
		b.notifier.StatusChanged(b.name, StatusIdle)
	}
}

// Execute performs the call started by Begin. A successful result goes to
// onSuccess before the success notification. If onSuccess returns
// ErrDiscarded, or ctx was cancelled, the request counts as abandoned: the
// action goes back to idle and nobody is notified. Any other error from the
// call or from onSuccess is a failure, which leaves earlier results alone.
func (b *Binding[T]) Execute(ctx context.Context, upload piiclient.Upload, onSuccess func(T) error) (T, error) {
	start := b.now()
	result, err := b.call(ctx, upload)
	if ctx.Err() != nil {
		err = ErrDiscarded
	}
	if err == nil && onSuccess != nil {
		err = onSuccess(result)
	}

	switch {
	case errors.Is(err, ErrDiscarded):
		b.logger.Debug("Action result discarded", zap.Duration("duration", b.now().Sub(start)))
		b.setStatus(StatusIdle)
		var zero T
		return zero, err

	case err != nil:
		b.logger.Error("Action failed",
			zap.Duration("duration", b.now().Sub(start)),
			zap.Error(err),
		)
		n := b.failure
		n.At = b.now()
		b.notifier.Notify(n)
		b.setStatus(StatusError)
		var zero T
		return zero, err
	}

	// The toast is queued before the status settles: clients reload on the
	// terminal status and must find the toast already there.
	n := b.success(result)
	n.Action = b.name
	n.At = b.now()
	b.notifier.Notify(n)
	b.setStatus(StatusSuccess)

	b.logger.Info("Action completed", zap.Duration("duration", b.now().Sub(start)))
	return result, nil
}

func (b *Binding[T]) setStatus(status Status) {
	b.mu.Lock()
	b.status = status
	b.mu.Unlock()
	b.notifier.StatusChanged(b.name, status)
}
