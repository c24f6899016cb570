package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fekuna/omnipos-stock-ledger/internal/inventory"
	"github.com/fekuna/omnipos-stock-ledger/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-ledger/internal/model"
)

// MemoryRepository keeps everything in process. Transactions lock their keys,
// stage writes in an overlay and apply the overlay only on success.
type MemoryRepository struct {
	locks *keyedMutex
	seq   atomic.Int64

	mu             sync.RWMutex
	stock          map[string]model.StockRecord
	batches        map[string]model.InventoryBatch
	variantBatches map[string][]string
	reservations   map[string]model.Reservation
	purchaseOrders map[string]model.PurchaseOrder
	movements      []model.StockMovement
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		locks:          newKeyedMutex(),
		stock:          make(map[string]model.StockRecord),
		batches:        make(map[string]model.InventoryBatch),
		variantBatches: make(map[string][]string),
		reservations:   make(map[string]model.Reservation),
		purchaseOrders: make(map[string]model.PurchaseOrder),
	}
}

// Verify interface compliance
var _ inventory.Repository = (*MemoryRepository)(nil)

func (r *MemoryRepository) Transact(ctx context.Context, keys []string, fn func(tx inventory.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	keys = sortedKeys(keys)
	for _, k := range keys {
		r.locks.Lock(k)
	}
	defer func() {
		for i := len(keys) - 1; i >= 0; i-- {
			r.locks.Unlock(keys[i])
		}
	}()

	tx := newMemTx(r)
	if err := fn(tx); err != nil {
		return err
	}
	r.apply(tx)
	return nil
}

func (r *MemoryRepository) apply(tx *memTx) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, rec := range tx.stock {
		r.stock[id] = rec
	}
	for _, id := range tx.newBatches {
		b := tx.batches[id]
		r.variantBatches[b.VariantID] = append(r.variantBatches[b.VariantID], id)
	}
	for id, b := range tx.batches {
		r.batches[id] = b
	}
	for id, res := range tx.reservations {
		r.reservations[id] = res
	}
	for id, po := range tx.purchaseOrders {
		r.purchaseOrders[id] = po
	}
	r.movements = append(r.movements, tx.movements...)
}

func (r *MemoryRepository) GetStock(_ context.Context, variantID string) (model.StockRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.stock[variantID]; ok {
		return rec, nil
	}
	return model.StockRecord{VariantID: variantID}, nil
}

// ListBatches returns the full batch history of a variant in consumption order.
func (r *MemoryRepository) ListBatches(_ context.Context, variantID string) ([]model.InventoryBatch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.InventoryBatch, 0, len(r.variantBatches[variantID]))
	for _, id := range r.variantBatches[variantID] {
		out = append(out, r.batches[id])
	}
	sortBatches(out)
	return out, nil
}

func (r *MemoryRepository) GetReservation(_ context.Context, id string) (*model.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.reservations[id]
	if !ok {
		return nil, fmt.Errorf("reservation %s: %w", id, inventory.ErrNotFound)
	}
	return copyReservation(res), nil
}

func (r *MemoryRepository) ListReservationsByHolder(_ context.Context, holderRef string) ([]model.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Reservation
	for _, res := range r.reservations {
		if res.HolderRef == holderRef {
			out = append(out, *copyReservation(res))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepository) ListExpiredReservations(_ context.Context, now time.Time, limit int) ([]model.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Reservation
	for _, res := range r.reservations {
		if res.State == model.ReservationActive && res.ExpiredAt(now) {
			out = append(out, *copyReservation(res))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ExpiresAt.Before(*out[j].ExpiresAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) GetPurchaseOrder(_ context.Context, id string) (*model.PurchaseOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	po, ok := r.purchaseOrders[id]
	if !ok {
		return nil, fmt.Errorf("purchase order %s: %w", id, inventory.ErrNotFound)
	}
	return copyPurchaseOrder(po), nil
}

func (r *MemoryRepository) ListMovements(_ context.Context, f *dto.MovementFilters) ([]model.StockMovement, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var items []model.StockMovement
	for i := len(r.movements) - 1; i >= 0; i-- {
		m := r.movements[i]
		if f.VariantID != "" && m.VariantID != f.VariantID {
			continue
		}
		if f.MovementType != "" && string(m.MovementType) != f.MovementType {
			continue
		}
		if f.ReferenceID != "" && m.ReferenceID != f.ReferenceID {
			continue
		}
		if f.StartDate != nil && m.CreatedAt.Before(*f.StartDate) {
			continue
		}
		if f.EndDate != nil && m.CreatedAt.After(*f.EndDate) {
			continue
		}
		items = append(items, m)
	}

	count := len(items)
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		offset := (page - 1) * f.PageSize
		if offset >= len(items) {
			return []model.StockMovement{}, count, nil
		}
		end := offset + f.PageSize
		if end > len(items) {
			end = len(items)
		}
		items = items[offset:end]
	}
	return items, count, nil
}

type memTx struct {
	repo *MemoryRepository

	stock          map[string]model.StockRecord
	batches        map[string]model.InventoryBatch
	newBatches     []string
	reservations   map[string]model.Reservation
	purchaseOrders map[string]model.PurchaseOrder
	movements      []model.StockMovement
}

func newMemTx(repo *MemoryRepository) *memTx {
	return &memTx{
		repo:           repo,
		stock:          make(map[string]model.StockRecord),
		batches:        make(map[string]model.InventoryBatch),
		reservations:   make(map[string]model.Reservation),
		purchaseOrders: make(map[string]model.PurchaseOrder),
	}
}

func (t *memTx) GetStock(ctx context.Context, variantID string) (model.StockRecord, error) {
	if rec, ok := t.stock[variantID]; ok {
		return rec, nil
	}
	return t.repo.GetStock(ctx, variantID)
}

func (t *memTx) SaveStock(_ context.Context, rec *model.StockRecord) error {
	t.stock[rec.VariantID] = *rec
	return nil
}

func (t *memTx) LogMovement(_ context.Context, m *model.StockMovement) error {
	t.movements = append(t.movements, *m)
	return nil
}

func (t *memTx) ListOpenBatches(_ context.Context, variantID string) ([]model.InventoryBatch, error) {
	t.repo.mu.RLock()
	ids := append([]string(nil), t.repo.variantBatches[variantID]...)
	committed := make(map[string]model.InventoryBatch, len(ids))
	for _, id := range ids {
		committed[id] = t.repo.batches[id]
	}
	t.repo.mu.RUnlock()

	for _, id := range t.newBatches {
		if t.batches[id].VariantID == variantID {
			ids = append(ids, id)
		}
	}

	var out []model.InventoryBatch
	for _, id := range ids {
		b, ok := t.batches[id]
		if !ok {
			b = committed[id]
		}
		if b.QuantityRemaining > 0 {
			out = append(out, b)
		}
	}
	sortBatches(out)
	return out, nil
}

func (t *memTx) InsertBatch(_ context.Context, b *model.InventoryBatch) error {
	if _, ok := t.batches[b.ID]; ok {
		return fmt.Errorf("batch %s already exists", b.ID)
	}
	b.Seq = t.repo.seq.Add(1)
	t.batches[b.ID] = *b
	t.newBatches = append(t.newBatches, b.ID)
	return nil
}

func (t *memTx) UpdateBatchRemaining(_ context.Context, batchID string, remaining int64) error {
	b, ok := t.batches[batchID]
	if !ok {
		t.repo.mu.RLock()
		b, ok = t.repo.batches[batchID]
		t.repo.mu.RUnlock()
	}
	if !ok {
		return fmt.Errorf("batch %s: %w", batchID, inventory.ErrNotFound)
	}
	b.QuantityRemaining = remaining
	t.batches[batchID] = b
	return nil
}

func (t *memTx) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	if res, ok := t.reservations[id]; ok {
		return copyReservation(res), nil
	}
	return t.repo.GetReservation(ctx, id)
}

func (t *memTx) SaveReservation(_ context.Context, res *model.Reservation) error {
	t.reservations[res.ID] = *copyReservation(*res)
	return nil
}

func (t *memTx) GetPurchaseOrder(ctx context.Context, id string) (*model.PurchaseOrder, error) {
	if po, ok := t.purchaseOrders[id]; ok {
		return copyPurchaseOrder(po), nil
	}
	return t.repo.GetPurchaseOrder(ctx, id)
}

func (t *memTx) SavePurchaseOrder(_ context.Context, po *model.PurchaseOrder) error {
	t.purchaseOrders[po.ID] = *copyPurchaseOrder(*po)
	return nil
}

func sortBatches(batches []model.InventoryBatch) {
	sort.Slice(batches, func(i, j int) bool {
		return batches[i].Before(batches[j])
	})
}

func copyReservation(res model.Reservation) *model.Reservation {
	res.Allocations = append([]model.Allocation(nil), res.Allocations...)
	return &res
}

func copyPurchaseOrder(po model.PurchaseOrder) *model.PurchaseOrder {
	po.Lines = append([]model.PurchaseOrderLine(nil), po.Lines...)
	return &po
}
