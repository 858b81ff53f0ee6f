package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/raaihank/pii-shield/internal/blob"
	"github.com/raaihank/pii-shield/internal/intake"
	"github.com/raaihank/pii-shield/internal/logger"
	"github.com/raaihank/pii-shield/internal/page"
	"github.com/raaihank/pii-shield/internal/piiclient"
)

type stubService struct {
	release chan struct{}
}

func (s *stubService) Analyze(ctx context.Context, _ piiclient.Upload) (*piiclient.AnalysisResult, error) {
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &piiclient.AnalysisResult{DetectedPII: []piiclient.Finding{}}, nil
}

func (s *stubService) Mask(_ context.Context, _ piiclient.Upload) (*piiclient.MaskResult, error) {
	return &piiclient.MaskResult{Image: []byte("png"), ContentType: "image/png", PIICount: 2}, nil
}

func newManager(t *testing.T, ttl time.Duration, svc *stubService, store blob.Store) *Manager {
	t.Helper()
	m := NewManager(Config{TTL: ttl}, func(id string) *page.Controller {
		return page.New(page.Config{SessionID: id, Service: svc, Blobs: store})
	}, logger.NewNop())
	t.Cleanup(m.CloseAll)
	return m
}

func png() []*intake.File {
	return []*intake.File{{Name: "id.png", ContentType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}}
}

func TestAcquire(t *testing.T) {
	m := newManager(t, time.Minute, &stubService{}, nil)

	t.Run("MalformedIDReplaced", func(t *testing.T) {
		p, id, created := m.Acquire("not-a-uuid")
		if !created || p == nil {
			t.Fatal("Expected a new session")
		}
		if _, err := uuid.Parse(id); err != nil {
			t.Errorf("Session ID is not a UUID: %q", id)
		}
		if p.ID() != id {
			t.Errorf("Page bound to %q, expected %q", p.ID(), id)
		}
	})

	t.Run("ExistingSessionReused", func(t *testing.T) {
		first, id, _ := m.Acquire("")
		second, sameID, created := m.Acquire(id)
		if created || first != second || sameID != id {
			t.Error("Existing session not reused")
		}
	})

	t.Run("UnknownUUIDKept", func(t *testing.T) {
		want := uuid.NewString()
		_, id, created := m.Acquire(want)
		if !created || id != want {
			t.Errorf("Expected new session %q, got %q", want, id)
		}
	})

	if stats := m.Stats(); stats.Active != 3 || stats.Created != 3 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestSweep(t *testing.T) {
	store := blob.NewMemoryStore(0)
	m := newManager(t, time.Minute, &stubService{}, store)

	p, id, _ := m.Acquire("")
	p.Offer(png(), intake.SourcePicker)
	if err := p.Mask(); err != nil {
		t.Fatalf("Mask failed: %v", err)
	}
	p.Wait()
	blobID := p.Snapshot().Masked.BlobID

	if n := m.Sweep(); n != 0 {
		t.Fatalf("Fresh session swept: %d", n)
	}

	base := time.Now()
	m.now = func() time.Time { return base.Add(2 * time.Minute) }

	if n := m.Sweep(); n != 1 {
		t.Fatalf("Expected 1 expired session, got %d", n)
	}
	if _, ok := m.Get(id); ok {
		t.Error("Expired session still reachable")
	}
	if _, err := store.Get(context.Background(), blobID); !errors.Is(err, blob.ErrNotFound) {
		t.Errorf("Masked image of expired session still stored: %v", err)
	}
	if m.Stats().Expired != 1 {
		t.Errorf("Unexpected stats: %+v", m.Stats())
	}
}

func TestActiveSessionKeepsMaskedImage(t *testing.T) {
	const ttl = 300 * time.Millisecond
	store := blob.NewMemoryStore(ttl)
	m := newManager(t, ttl, &stubService{}, store)

	p, id, _ := m.Acquire("")
	p.Offer(png(), intake.SourcePicker)
	if err := p.Mask(); err != nil {
		t.Fatalf("Mask failed: %v", err)
	}
	p.Wait()
	blobID := p.Snapshot().Masked.BlobID

	// Keep using the session for well over one TTL
	for i := 0; i < 12; i++ {
		time.Sleep(ttl / 6)
		if _, _, created := m.Acquire(id); created {
			t.Fatal("Active session was recreated")
		}
		m.Sweep()
	}

	if !p.OwnsBlob(blobID) {
		t.Fatal("Masked image dropped from an active session")
	}
	if _, err := store.Get(context.Background(), blobID); err != nil {
		t.Errorf("Masked image of an active session expired: %v", err)
	}
}

func TestSweepKeepsBusySessions(t *testing.T) {
	svc := &stubService{release: make(chan struct{})}
	m := newManager(t, time.Minute, svc, nil)

	p, _, _ := m.Acquire("")
	p.Offer(png(), intake.SourcePicker)
	if err := p.Analyze(); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	base := time.Now()
	m.now = func() time.Time { return base.Add(time.Hour) }
	if n := m.Sweep(); n != 0 {
		t.Errorf("Busy session swept")
	}

	close(svc.release)
	p.Wait()
	if n := m.Sweep(); n != 1 {
		t.Errorf("Settled session not swept: %d", n)
	}
}

func TestRunClosesSessionsOnShutdown(t *testing.T) {
	m := NewManager(Config{TTL: time.Minute, SweepInterval: time.Millisecond}, func(id string) *page.Controller {
		return page.New(page.Config{SessionID: id, Service: &stubService{}})
	}, nil)

	p, _, _ := m.Acquire("")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if m.Stats().Active != 0 {
		t.Error("Sessions survived shutdown")
	}
	if err := p.Analyze(); !errors.Is(err, page.ErrClosed) {
		t.Errorf("Expected closed page, got %v", err)
	}
}
