package costing

import (
	"context"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-stock-ledger/internal/inventory"
	"github.com/fekuna/omnipos-stock-ledger/internal/ledger"
	"github.com/fekuna/omnipos-stock-ledger/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BatchStore is the append-only record of receiving batches.
type BatchStore struct {
	repo inventory.Repository
}

func NewBatchStore(repo inventory.Repository) *BatchStore {
	return &BatchStore{repo: repo}
}

type NewBatch struct {
	VariantID       string
	PurchaseOrderID string
	LineNo          int
	AdjustmentID    string
	Quantity        int64
	UnitCost        decimal.Decimal
	ReceivedAt      time.Time
}

// Add appends a batch inside tx. The caller holds the variant's lock.
func (s *BatchStore) Add(ctx context.Context, tx *ledger.Tx, in NewBatch) (*model.InventoryBatch, error) {
	if in.VariantID == "" {
		return nil, fmt.Errorf("%w: variant id is required", inventory.ErrInvalidInput)
	}
	if in.Quantity <= 0 {
		return nil, fmt.Errorf("%w: batch quantity must be positive, got %d", inventory.ErrInvalidInput, in.Quantity)
	}
	if in.UnitCost.IsNegative() {
		return nil, fmt.Errorf("%w: unit cost must not be negative", inventory.ErrInvalidInput)
	}

	receivedAt := in.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = tx.Now()
	}

	b := &model.InventoryBatch{
		ID:                uuid.New().String(),
		VariantID:         in.VariantID,
		PurchaseOrderID:   in.PurchaseOrderID,
		LineNo:            in.LineNo,
		AdjustmentID:      in.AdjustmentID,
		ReceivedAt:        receivedAt,
		QuantityReceived:  in.Quantity,
		QuantityRemaining: in.Quantity,
		UnitCost:          in.UnitCost,
	}
	if err := tx.Records().InsertBatch(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Restock adds a batch for stock found by an adjustment. A nil unitCost takes
// the cost of the variant's most recent batch.
func (s *BatchStore) Restock(ctx context.Context, tx *ledger.Tx, variantID string, qty int64, unitCost *decimal.Decimal, adjustmentID string) (*model.InventoryBatch, error) {
	cost, err := s.restockCost(ctx, variantID, unitCost)
	if err != nil {
		return nil, err
	}
	return s.Add(ctx, tx, NewBatch{
		VariantID:    variantID,
		AdjustmentID: adjustmentID,
		Quantity:     qty,
		UnitCost:     cost,
	})
}

func (s *BatchStore) restockCost(ctx context.Context, variantID string, unitCost *decimal.Decimal) (decimal.Decimal, error) {
	if unitCost != nil {
		return *unitCost, nil
	}
	batches, err := s.repo.ListBatches(ctx, variantID)
	if err != nil {
		return decimal.Zero, err
	}
	if len(batches) == 0 {
		return decimal.Zero, fmt.Errorf("%w: variant %s has no batches to take a cost from, unit cost is required",
			inventory.ErrInvalidInput, variantID)
	}
	return batches[len(batches)-1].UnitCost, nil
}

// List returns every batch of the variant, exhausted ones included, in FIFO order.
func (s *BatchStore) List(ctx context.Context, variantID string) ([]model.InventoryBatch, error) {
	return s.repo.ListBatches(ctx, variantID)
}

// Remaining sums the unconsumed quantity. It should always equal on-hand.
func (s *BatchStore) Remaining(ctx context.Context, variantID string) (int64, error) {
	batches, err := s.repo.ListBatches(ctx, variantID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, b := range batches {
		total += b.QuantityRemaining
	}
	return total, nil
}
