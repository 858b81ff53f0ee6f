package blob

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps blobs in process memory
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]*memoryEntry
	ttl   time.Duration
	now   func() time.Time
	stats Stats
}

type memoryEntry struct {
	blob      *Blob
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory store; ttl <= 0 disables expiry
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		blobs: make(map[string]*memoryEntry),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Put stores a copy of data and returns its reference
func (s *MemoryStore) Put(_ context.Context, data []byte, contentType string) (string, error) {
	id := uuid.NewString()
	now := s.now()

	entry := &memoryEntry{
		blob: &Blob{
			Data:        append([]byte(nil), data...),
			ContentType: contentType,
			CreatedAt:   now,
		},
	}
	if s.ttl > 0 {
		entry.expiresAt = now.Add(s.ttl)
	}

	s.mu.Lock()
	s.blobs[id] = entry
	s.stats.Puts++
	s.stats.Bytes += int64(len(data))
	s.mu.Unlock()

	return id, nil
}

// Get returns the blob behind id
func (s *MemoryStore) Get(_ context.Context, id string) (*Blob, error) {
	s.mu.RLock()
	entry, ok := s.blobs[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt) {
		s.remove(id)
		return nil, ErrNotFound
	}
	return entry.blob, nil
}

// Touch pushes the expiry of id one TTL into the future
func (s *MemoryStore) Touch(_ context.Context, id string) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.blobs[id]
	if !ok {
		return ErrNotFound
	}
	if !entry.expiresAt.IsZero() {
		if now.After(entry.expiresAt) {
			s.stats.Bytes -= int64(len(entry.blob.Data))
			delete(s.blobs, id)
			return ErrNotFound
		}
		entry.expiresAt = now.Add(s.ttl)
	}
	return nil
}

// Revoke invalidates id. Revoking an unknown id is not an error.
func (s *MemoryStore) Revoke(_ context.Context, id string) error {
	if s.remove(id) {
		s.mu.Lock()
		s.stats.Revokes++
		s.mu.Unlock()
	}
	return nil
}

func (s *MemoryStore) remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.blobs[id]
	if !ok {
		return false
	}
	s.stats.Bytes -= int64(len(entry.blob.Data))
	delete(s.blobs, id)
	return true
}

// Sweep drops expired blobs and returns how many were removed
func (s *MemoryStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.blobs {
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			s.stats.Bytes -= int64(len(entry.blob.Data))
			delete(s.blobs, id)
			removed++
		}
	}
	return removed
}

// Stats returns current usage
func (s *MemoryStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := s.stats
	stats.Live = int64(len(s.blobs))
	return stats
}

// Close releases all blobs
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.blobs = make(map[string]*memoryEntry)
	s.stats.Bytes = 0
	s.mu.Unlock()
	return nil
}
