package actions

import (
	"context"
	"errors"
	"time"

	"github.com/raaihank/pii-shield/internal/piiclient"
)

// ErrDiscarded marks a result that arrived for a request nobody waits for
var ErrDiscarded = errors.New("action result discarded")

// Status is the lifecycle state of one action
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Name identifies an action
type Name string

const (
	Analyze Name = "analyze"
	Mask    Name = "mask"
)

// Kind is the flavor of a notification
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Notification is a transient message for the user
type Notification struct {
	Action      Name      `json:"action"`
	Kind        Kind      `json:"kind"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	At          time.Time `json:"at"`
}

// Destructive reports whether the notification reports a failure
func (n Notification) Destructive() bool {
	return n.Kind == KindError
}

// Notifier receives notifications and status changes
type Notifier interface {
	Notify(n Notification)
	StatusChanged(action Name, status Status)
}

// NopNotifier drops everything
type NopNotifier struct{}

func (NopNotifier) Notify(Notification)        {}
func (NopNotifier) StatusChanged(Name, Status) {}

// Service is the remote side of both actions
type Service interface {
	Analyze(ctx context.Context, upload piiclient.Upload) (*piiclient.AnalysisResult, error)
	Mask(ctx context.Context, upload piiclient.Upload) (*piiclient.MaskResult, error)
}
