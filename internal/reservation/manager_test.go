package reservation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fekuna/omnipos-stock-ledger/internal/costing"
	"github.com/fekuna/omnipos-stock-ledger/internal/inventory"
	"github.com/fekuna/omnipos-stock-ledger/internal/inventory/repository"
	"github.com/fekuna/omnipos-stock-ledger/internal/ledger"
	"github.com/fekuna/omnipos-stock-ledger/internal/model"
	"github.com/fekuna/omnipos-stock-ledger/pkg/logger"
	"github.com/shopspring/decimal"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
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

type fixture struct {
	clock   *fakeClock
	ledger  *ledger.Ledger
	batches *costing.BatchStore
	manager *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	repo := repository.NewMemoryRepository()
	l := ledger.New(repo, logger.NewNop(), ledger.WithClock(clock.Now))
	return &fixture{
		clock:   clock,
		ledger:  l,
		batches: costing.NewBatchStore(repo),
		manager: NewManager(l, costing.NewAllocator(), nil, logger.NewNop()),
	}
}

// receive books a batch and raises on-hand the way a purchase order receipt does.
func (f *fixture) receive(t *testing.T, variantID string, qty int64, unitCost int64) {
	t.Helper()
	ctx := context.Background()
	err := f.ledger.Run(ctx, []string{inventory.VariantKey(variantID)}, func(tx *ledger.Tx) error {
		if _, err := f.batches.Add(ctx, tx, costing.NewBatch{
			VariantID: variantID,
			Quantity:  qty,
			UnitCost:  decimal.NewFromInt(unitCost),
		}); err != nil {
			return err
		}
		_, err := tx.Receive(ctx, variantID, qty, ledger.Reference{Type: model.ReferencePurchaseOrder, ID: "po"})
		return err
	})
	if err != nil {
		t.Fatalf("Failed to receive stock: %v", err)
	}
	f.clock.Advance(time.Second)
}

func (f *fixture) availability(t *testing.T, variantID string) model.Availability {
	t.Helper()
	av, err := f.ledger.Availability(context.Background(), variantID)
	if err != nil {
		t.Fatalf("Failed to read availability: %v", err)
	}
	return av
}

func TestCartScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.receive(t, "V", 4, 2)
	f.receive(t, "V", 6, 3)

	cartA, err := f.manager.Hold(ctx, "V", 7, "cartA", 15*time.Minute)
	if err != nil {
		t.Fatalf("Hold cartA failed: %v", err)
	}
	if av := f.availability(t, "V"); av.Available != 3 {
		t.Fatalf("Expected 3 available, got %d", av.Available)
	}

	_, err = f.manager.Hold(ctx, "V", 5, "cartB", 15*time.Minute)
	var oos *inventory.OutOfStockError
	if !errors.As(err, &oos) || oos.Available != 3 {
		t.Fatalf("Expected out of stock with 3 left, got %v", err)
	}

	if _, err := f.manager.Hold(ctx, "V", 3, "cartB", 15*time.Minute); err != nil {
		t.Fatalf("Hold cartB failed: %v", err)
	}
	if av := f.availability(t, "V"); av.Available != 0 {
		t.Fatalf("Expected 0 available, got %d", av.Available)
	}

	committed, err := f.manager.Commit(ctx, cartA.ID)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if committed.State != model.ReservationCommitted || committed.ClosedAt == nil {
		t.Errorf("Expected committed with close time, got %s", committed.State)
	}
	if len(committed.Allocations) != 2 {
		t.Fatalf("Expected 2 allocations, got %+v", committed.Allocations)
	}
	if a := committed.Allocations[0]; a.Quantity != 4 || !a.UnitCost.Equal(decimal.NewFromInt(2)) {
		t.Errorf("Expected first allocation 4 @ 2, got %d @ %s", a.Quantity, a.UnitCost)
	}
	if a := committed.Allocations[1]; a.Quantity != 3 || !a.UnitCost.Equal(decimal.NewFromInt(3)) {
		t.Errorf("Expected second allocation 3 @ 3, got %d @ %s", a.Quantity, a.UnitCost)
	}
	if !committed.TotalCost.Equal(decimal.NewFromInt(17)) {
		t.Errorf("Expected total cost 17, got %s", committed.TotalCost)
	}

	av := f.availability(t, "V")
	if av.OnHand != 3 || av.Reserved != 3 {
		t.Errorf("Expected on_hand=3 reserved=3, got %+v", av)
	}
	remaining, _ := f.batches.Remaining(ctx, "V")
	if remaining != av.OnHand {
		t.Errorf("Expected batches to hold on-hand %d, got %d", av.OnHand, remaining)
	}
}

func TestHoldValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.receive(t, "V", 5, 1)

	tests := []struct {
		name   string
		id     string
		qty    int64
		holder string
	}{
		{"zero quantity", "V", 0, "cart"},
		{"negative quantity", "V", -2, "cart"},
		{"missing variant", "", 1, "cart"},
		{"missing holder", "V", 1, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.manager.Hold(ctx, tt.id, tt.qty, tt.holder, time.Minute)
			if !errors.Is(err, inventory.ErrInvalidInput) {
				t.Errorf("Expected ErrInvalidInput, got %v", err)
			}
		})
	}
	if av := f.availability(t, "V"); av.Reserved != 0 {
		t.Errorf("Expected nothing reserved, got %d", av.Reserved)
	}
}

func TestReleaseRestoresAvailability(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.receive(t, "V", 5, 1)

	res, err := f.manager.Hold(ctx, "V", 3, "cart", time.Minute)
	if err != nil {
		t.Fatalf("Hold failed: %v", err)
	}
	released, err := f.manager.Release(ctx, res.ID)
	if err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if released.State != model.ReservationReleased {
		t.Errorf("Expected released, got %s", released.State)
	}
	if av := f.availability(t, "V"); av.Available != 5 || av.Reserved != 0 {
		t.Errorf("Expected all 5 available, got %+v", av)
	}
}

func TestTerminalReservationsRejectTransitions(t *testing.T) {
	ctx := context.Background()

	ops := map[string]func(m *Manager, id string) error{
		"release": func(m *Manager, id string) error { _, err := m.Release(ctx, id); return err },
		"commit":  func(m *Manager, id string) error { _, err := m.Commit(ctx, id); return err },
		"extend":  func(m *Manager, id string) error { _, err := m.Extend(ctx, id, time.Minute); return err },
		"pin":     func(m *Manager, id string) error { _, err := m.Pin(ctx, id); return err },
	}
	closers := map[string]func(m *Manager, id string) error{
		"released":  ops["release"],
		"committed": ops["commit"],
	}

	for closedBy, closeFn := range closers {
		for opName, op := range ops {
			t.Run(closedBy+"/"+opName, func(t *testing.T) {
				f := newFixture(t)
				f.receive(t, "V", 5, 1)
				res, err := f.manager.Hold(ctx, "V", 2, "cart", time.Minute)
				if err != nil {
					t.Fatalf("Hold failed: %v", err)
				}
				if err := closeFn(f.manager, res.ID); err != nil {
					t.Fatalf("Closing hold failed: %v", err)
				}
				before := f.availability(t, "V")

				if err := op(f.manager, res.ID); !errors.Is(err, inventory.ErrInvalidState) {
					t.Fatalf("Expected ErrInvalidState, got %v", err)
				}
				if after := f.availability(t, "V"); after != before {
					t.Errorf("Expected stock unchanged %+v, got %+v", before, after)
				}
			})
		}
	}
}

func TestUnknownReservation(t *testing.T) {
	f := newFixture(t)
	if _, err := f.manager.Commit(context.Background(), "nope"); !errors.Is(err, inventory.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCommitWithoutBatchesRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Stock raised without a batch: the cost ledger cannot price a commit.
	if _, err := f.ledger.Receive(ctx, "V", 5, ledger.Reference{Type: model.ReferenceAdjustment, ID: "adj"}); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	res, err := f.manager.Hold(ctx, "V", 2, "cart", time.Minute)
	if err != nil {
		t.Fatalf("Hold failed: %v", err)
	}

	if _, err := f.manager.Commit(ctx, res.ID); !errors.Is(err, inventory.ErrInsufficientBatches) {
		t.Fatalf("Expected ErrInsufficientBatches, got %v", err)
	}

	av := f.availability(t, "V")
	if av.OnHand != 5 || av.Reserved != 2 {
		t.Errorf("Expected commit rolled back to on_hand=5 reserved=2, got %+v", av)
	}
	got, _ := f.manager.Get(ctx, res.ID)
	if got.State != model.ReservationActive {
		t.Errorf("Expected reservation still active, got %s", got.State)
	}
}

func TestExtendAndPin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.receive(t, "V", 5, 1)

	res, err := f.manager.Hold(ctx, "V", 1, "cart", time.Minute)
	if err != nil {
		t.Fatalf("Hold failed: %v", err)
	}

	f.clock.Advance(30 * time.Second)
	extended, err := f.manager.Extend(ctx, res.ID, 10*time.Minute)
	if err != nil {
		t.Fatalf("Extend failed: %v", err)
	}
	if want := f.clock.Now().Add(10 * time.Minute); !extended.ExpiresAt.Equal(want) {
		t.Errorf("Expected expiry %v, got %v", want, extended.ExpiresAt)
	}

	if _, err := f.manager.Extend(ctx, res.ID, 0); !errors.Is(err, inventory.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for zero ttl, got %v", err)
	}

	pinned, err := f.manager.Pin(ctx, res.ID)
	if err != nil {
		t.Fatalf("Pin failed: %v", err)
	}
	if pinned.ExpiresAt != nil {
		t.Errorf("Expected no expiry after pin, got %v", pinned.ExpiresAt)
	}
}

func TestReleaseByHolder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.receive(t, "V1", 5, 1)
	f.receive(t, "V2", 5, 1)

	for _, v := range []string{"V1", "V2"} {
		if _, err := f.manager.Hold(ctx, v, 2, "cartA", time.Minute); err != nil {
			t.Fatalf("Hold failed: %v", err)
		}
	}
	committed, err := f.manager.Hold(ctx, "V1", 1, "cartA", time.Minute)
	if err != nil {
		t.Fatalf("Hold failed: %v", err)
	}
	if _, err := f.manager.Commit(ctx, committed.ID); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if _, err := f.manager.Hold(ctx, "V1", 1, "cartB", time.Minute); err != nil {
		t.Fatalf("Hold failed: %v", err)
	}

	n, err := f.manager.ReleaseByHolder(ctx, "cartA")
	if err != nil {
		t.Fatalf("ReleaseByHolder failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 released, got %d", n)
	}
	if av := f.availability(t, "V1"); av.Reserved != 1 {
		t.Errorf("Expected cartB's hold to remain on V1, got reserved=%d", av.Reserved)
	}
	if av := f.availability(t, "V2"); av.Reserved != 0 {
		t.Errorf("Expected V2 fully released, got reserved=%d", av.Reserved)
	}
}

func TestConcurrentCommitAndRelease(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.receive(t, "V", 5, 1)

	res, err := f.manager.Hold(ctx, "V", 2, "cart", time.Minute)
	if err != nil {
		t.Fatalf("Hold failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); _, errs[0] = f.manager.Commit(ctx, res.ID) }()
	go func() { defer wg.Done(); _, errs[1] = f.manager.Release(ctx, res.ID) }()
	wg.Wait()

	okCount := 0
	for _, err := range errs {
		switch {
		case err == nil:
			okCount++
		case !errors.Is(err, inventory.ErrInvalidState):
			t.Errorf("Unexpected error: %v", err)
		}
	}
	if okCount != 1 {
		t.Fatalf("Expected exactly one transition to win, got %d", okCount)
	}

	av := f.availability(t, "V")
	if av.Reserved != 0 {
		t.Errorf("Expected nothing reserved, got %d", av.Reserved)
	}
	if av.OnHand != 5 && av.OnHand != 3 {
		t.Errorf("Expected on-hand 5 or 3, got %d", av.OnHand)
	}
}
