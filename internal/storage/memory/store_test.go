package memory

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/urbanketl/vendcore/internal/core/domain"
)

// fakeClock is a manually advanced Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestSession(t *testing.T, clock Clock) *domain.AuthSession {
	t.Helper()
	sess, err := domain.NewAuthSession("04AABBCCDD22EE", "machine-1", 0, 1, bytes.Repeat([]byte{0x22}, 16))
	if err != nil {
		t.Fatal(err)
	}
	// Align the session timestamps with the test clock.
	sess.CreatedAt = clock.Now().UnixMilli()
	sess.LastTouched = sess.CreatedAt
	return sess
}

func TestCreateGet(t *testing.T) {
	clock := newFakeClock()
	store := New(WithClock(clock))
	ctx := context.Background()

	sess := newTestSession(t, clock)
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.CardUID != sess.CardUID || got.State != domain.AuthStateStarted {
		t.Errorf("Get() returned wrong session: %+v", got)
	}

	// Returned session is a copy.
	got.Key[0] = 0xFF
	again, _ := store.Get(ctx, sess.ID)
	if again.Key[0] == 0xFF {
		t.Error("Get must return a clone")
	}
}

func TestCreate_Duplicate(t *testing.T) {
	clock := newFakeClock()
	store := New(WithClock(clock))
	ctx := context.Background()

	sess := newTestSession(t, clock)
	if err := store.Create(ctx, sess); err != nil {
		t.Fatal(err)
	}
	err := store.Create(ctx, sess)
	if !errors.Is(err, domain.ErrDuplicateSession) {
		t.Errorf("Create() error = %v, want ErrDuplicateSession", err)
	}
}

func TestGet_LazyExpiry(t *testing.T) {
	clock := newFakeClock()
	store := New(WithClock(clock))
	ctx := context.Background()

	sess := newTestSession(t, clock)
	if err := store.Create(ctx, sess); err != nil {
		t.Fatal(err)
	}

	// Just inside the TTL.
	clock.Advance(30 * time.Second)
	if _, err := store.Get(ctx, sess.ID); err != nil {
		t.Fatalf("Get() at TTL boundary error = %v", err)
	}

	// Past the TTL: gone, and physically removed.
	clock.Advance(time.Second)
	if _, err := store.Get(ctx, sess.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("Get() past TTL error = %v, want ErrSessionNotFound", err)
	}
	if store.Count() != 0 {
		t.Errorf("Count() = %d after lazy expiry, want 0", store.Count())
	}
}

func TestUpdate(t *testing.T) {
	clock := newFakeClock()
	store := New(WithClock(clock))
	ctx := context.Background()

	sess := newTestSession(t, clock)
	if err := store.Create(ctx, sess); err != nil {
		t.Fatal(err)
	}

	clock.Advance(10 * time.Second)
	err := store.Update(ctx, sess.ID, func(s *domain.AuthSession) error {
		s.State = domain.AuthStateChallengeSent
		s.HostNonce = bytes.Repeat([]byte{0xAA}, 16)
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != domain.AuthStateChallengeSent {
		t.Errorf("State = %q after update", got.State)
	}
	if got.LastTouched != clock.Now().UnixMilli() {
		t.Error("Update should refresh LastTouched")
	}
}

func TestUpdate_RefreshExtendsLife(t *testing.T) {
	clock := newFakeClock()
	store := New(WithClock(clock))
	ctx := context.Background()

	sess := newTestSession(t, clock)
	if err := store.Create(ctx, sess); err != nil {
		t.Fatal(err)
	}

	clock.Advance(25 * time.Second)
	if err := store.Update(ctx, sess.ID, func(*domain.AuthSession) error { return nil }); err != nil {
		t.Fatal(err)
	}

	// 25s after the update, 50s after create: still alive.
	clock.Advance(25 * time.Second)
	if _, err := store.Get(ctx, sess.ID); err != nil {
		t.Errorf("Get() error = %v, update should have refreshed the TTL", err)
	}
}

func TestUpdate_Missing(t *testing.T) {
	store := New(WithClock(newFakeClock()))
	err := store.Update(context.Background(), "uksn-unknown", func(*domain.AuthSession) error { return nil })
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("Update() error = %v, want ErrSessionNotFound", err)
	}
}

func TestUpdate_FnErrorLeavesSessionUntouched(t *testing.T) {
	clock := newFakeClock()
	store := New(WithClock(clock))
	ctx := context.Background()

	sess := newTestSession(t, clock)
	if err := store.Create(ctx, sess); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := store.Update(ctx, sess.ID, func(s *domain.AuthSession) error {
		s.State = domain.AuthStateFailed
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update() error = %v, want boom", err)
	}

	got, _ := store.Get(ctx, sess.ID)
	if got.State != domain.AuthStateStarted {
		t.Errorf("State = %q, fn error must not persist changes", got.State)
	}
}

func TestDelete_Idempotent(t *testing.T) {
	clock := newFakeClock()
	store := New(WithClock(clock))
	ctx := context.Background()

	sess := newTestSession(t, clock)
	if err := store.Create(ctx, sess); err != nil {
		t.Fatal(err)
	}

	store.Delete(ctx, sess.ID)
	store.Delete(ctx, sess.ID) // no-op

	if _, err := store.Get(ctx, sess.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("Get() after delete error = %v", err)
	}
}

func TestSweep(t *testing.T) {
	clock := newFakeClock()
	store := New(WithClock(clock))
	ctx := context.Background()

	old := newTestSession(t, clock)
	if err := store.Create(ctx, old); err != nil {
		t.Fatal(err)
	}

	clock.Advance(31 * time.Second)
	fresh := newTestSession(t, clock)
	if err := store.Create(ctx, fresh); err != nil {
		t.Fatal(err)
	}

	if removed := store.Sweep(); removed != 1 {
		t.Errorf("Sweep() = %d, want 1", removed)
	}
	if store.Count() != 1 {
		t.Errorf("Count() = %d after sweep, want 1", store.Count())
	}
	if _, err := store.Get(ctx, fresh.ID); err != nil {
		t.Errorf("fresh session should survive sweep: %v", err)
	}
}

func TestStats(t *testing.T) {
	clock := newFakeClock()
	store := New(WithClock(clock))
	ctx := context.Background()

	a := newTestSession(t, clock)
	b := newTestSession(t, clock)
	if err := store.Create(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(ctx, b); err != nil {
		t.Fatal(err)
	}
	if err := store.Update(ctx, b.ID, func(s *domain.AuthSession) error {
		s.State = domain.AuthStateChallengeSent
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	stats := store.Stats()
	if stats.Total != 2 {
		t.Errorf("Total = %d, want 2", stats.Total)
	}
	if stats.ByState[domain.AuthStateStarted] != 1 || stats.ByState[domain.AuthStateChallengeSent] != 1 {
		t.Errorf("ByState = %v", stats.ByState)
	}

	// Expired sessions disappear from stats even before the sweep.
	clock.Advance(31 * time.Second)
	stats = store.Stats()
	if stats.Total != 0 {
		t.Errorf("Total = %d after expiry, want 0", stats.Total)
	}
}

func TestSweeper_Loop(t *testing.T) {
	clock := newFakeClock()
	store := New(WithClock(clock))
	ctx := context.Background()

	sess := newTestSession(t, clock)
	if err := store.Create(ctx, sess); err != nil {
		t.Fatal(err)
	}
	clock.Advance(31 * time.Second)

	swept := make(chan int, 1)
	sw := NewSweeper(store,
		WithInterval(10*time.Millisecond),
		WithOnSweep(func(removed int) {
			select {
			case swept <- removed:
			default:
			}
		}))
	sw.Start()
	defer sw.Stop()

	select {
	case removed := <-swept:
		if removed != 1 {
			t.Errorf("sweep removed %d, want 1", removed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not run")
	}
}

func TestConcurrentCreateGetDelete(t *testing.T) {
	store := New()
	ctx := context.Background()
	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				sess, err := domain.NewAuthSession("04AABBCCDD22EE", "m", 0, 1, bytes.Repeat([]byte{1}, 16))
				if err != nil {
					t.Error(err)
					return
				}
				if err := store.Create(ctx, sess); err != nil {
					t.Error(err)
					return
				}
				if _, err := store.Get(ctx, sess.ID); err != nil {
					t.Error(err)
					return
				}
				store.Delete(ctx, sess.ID)
			}
		}()
	}
	wg.Wait()

	if store.Count() != 0 {
		t.Errorf("Count() = %d, want 0", store.Count())
	}
}
