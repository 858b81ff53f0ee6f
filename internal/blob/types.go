package blob

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned for unknown, revoked, or expired references
var ErrNotFound = errors.New("blob not found")

// Blob is a stored image
type Blob struct {
	Data        []byte    `json:"data"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store keeps masked images behind revocable references. A reference is
// only valid until Revoke is called or the TTL passes without a Touch.
type Store interface {
	Put(ctx context.Context, data []byte, contentType string) (string, error)
	Get(ctx context.Context, id string) (*Blob, error)
	// Touch restarts the TTL of id; ErrNotFound if it is already gone
	Touch(ctx context.Context, id string) error
	Revoke(ctx context.Context, id string) error
	Close() error
}

// Stats describes store usage
type Stats struct {
	Live    int64 `json:"live"`
	Puts    int64 `json:"puts"`
	Revokes int64 `json:"revokes"`
	Bytes   int64 `json:"bytes"`
}
