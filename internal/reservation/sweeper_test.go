package reservation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fekuna/omnipos-stock-ledger/internal/inventory"
	"github.com/fekuna/omnipos-stock-ledger/internal/model"
	"github.com/fekuna/omnipos-stock-ledger/pkg/logger"
)

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]string
	acquired int
	released int
	err      error
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]string)}
}

func (l *fakeLocker) AcquireLock(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if _, ok := l.held[key]; ok {
		return false, nil
	}
	l.held[key] = value
	l.acquired++
	return true, nil
}

func (l *fakeLocker) ReleaseLock(_ context.Context, key, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == value {
		delete(l.held, key)
		l.released++
	}
	return nil
}

func TestSweepExpiresLapsedHolds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.receive(t, "V", 10, 1)

	short, err := f.manager.Hold(ctx, "V", 3, "cartA", time.Second)
	if err != nil {
		t.Fatalf("Hold failed: %v", err)
	}
	long, err := f.manager.Hold(ctx, "V", 2, "cartB", time.Hour)
	if err != nil {
		t.Fatalf("Hold failed: %v", err)
	}
	if _, err := f.manager.Hold(ctx, "V", 1, "order", 0); err != nil {
		t.Fatalf("Hold without expiry failed: %v", err)
	}

	sweeper := NewSweeper(f.manager, nil, SweeperConfig{}, nil, logger.NewNop())

	n, err := sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("Expected nothing due yet, got %d", n)
	}

	f.clock.Advance(2 * time.Second)
	n, err = sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("Expected 1 expired, got %d", n)
	}

	got, _ := f.manager.Get(ctx, short.ID)
	if got.State != model.ReservationExpired {
		t.Errorf("Expected short hold expired, got %s", got.State)
	}
	got, _ = f.manager.Get(ctx, long.ID)
	if got.State != model.ReservationActive {
		t.Errorf("Expected long hold active, got %s", got.State)
	}
	if av := f.availability(t, "V"); av.Reserved != 3 || av.Available != 7 {
		t.Errorf("Expected reserved=3 available=7, got %+v", av)
	}

	if _, err := f.manager.Commit(ctx, short.ID); !errors.Is(err, inventory.ErrInvalidState) {
		t.Errorf("Expected commit of expired hold to fail with ErrInvalidState, got %v", err)
	}
}

func TestLapsedHoldCanStillCommitBeforeSweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.receive(t, "V", 5, 2)

	res, err := f.manager.Hold(ctx, "V", 2, "cart", time.Second)
	if err != nil {
		t.Fatalf("Hold failed: %v", err)
	}
	f.clock.Advance(time.Minute)

	if _, err := f.manager.Commit(ctx, res.ID); err != nil {
		t.Fatalf("Expected unswept hold to commit, got %v", err)
	}
	ok, err := f.manager.Expire(ctx, res.ID)
	if err != nil || ok {
		t.Errorf("Expected expire of committed hold to be skipped, got ok=%v err=%v", ok, err)
	}
}

func TestExpireSkipsExtendedHold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.receive(t, "V", 5, 2)

	res, err := f.manager.Hold(ctx, "V", 2, "cart", time.Second)
	if err != nil {
		t.Fatalf("Hold failed: %v", err)
	}
	f.clock.Advance(2 * time.Second)
	if _, err := f.manager.Extend(ctx, res.ID, time.Hour); err != nil {
		t.Fatalf("Extend failed: %v", err)
	}

	ok, err := f.manager.Expire(ctx, res.ID)
	if err != nil || ok {
		t.Errorf("Expected extended hold to be skipped, got ok=%v err=%v", ok, err)
	}
}

func TestSweepPagesThroughBacklog(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.receive(t, "V", 20, 1)

	for i := 0; i < 7; i++ {
		if _, err := f.manager.Hold(ctx, "V", 1, "cart", time.Second); err != nil {
			t.Fatalf("Hold failed: %v", err)
		}
	}
	f.clock.Advance(time.Minute)

	sweeper := NewSweeper(f.manager, nil, SweeperConfig{BatchSize: 3}, nil, logger.NewNop())
	n, err := sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce failed: %v", err)
	}
	if n != 7 {
		t.Errorf("Expected 7 expired across pages, got %d", n)
	}
	if av := f.availability(t, "V"); av.Reserved != 0 {
		t.Errorf("Expected nothing reserved, got %d", av.Reserved)
	}
}

func TestSweepLock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.receive(t, "V", 5, 1)
	if _, err := f.manager.Hold(ctx, "V", 1, "cart", time.Second); err != nil {
		t.Fatalf("Hold failed: %v", err)
	}
	f.clock.Advance(time.Minute)

	locker := newFakeLocker()
	locker.held[sweepLockKey] = "other-instance"
	sweeper := NewSweeper(f.manager, locker, SweeperConfig{}, nil, logger.NewNop())

	n, err := sweeper.SweepOnce(ctx)
	if err != nil || n != 0 {
		t.Fatalf("Expected sweep skipped while locked, got n=%d err=%v", n, err)
	}

	delete(locker.held, sweepLockKey)
	n, err = sweeper.SweepOnce(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Expected 1 expired once unlocked, got n=%d err=%v", n, err)
	}
	if locker.acquired != 1 || locker.released != 1 {
		t.Errorf("Expected lock taken and released once, got %d/%d", locker.acquired, locker.released)
	}
	if len(locker.held) != 0 {
		t.Errorf("Expected lock released, still held: %v", locker.held)
	}

	locker.err = errors.New("redis down")
	if _, err := sweeper.SweepOnce(ctx); err == nil {
		t.Error("Expected lock error to surface")
	}
}

func TestSweeperStartStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	sweeper := NewSweeper(f.manager, nil, SweeperConfig{Interval: time.Millisecond}, nil, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Start(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected sweeper to stop after cancel")
	}
}
