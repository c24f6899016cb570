package costing

import (
	"context"
	"fmt"
	"sort"

	"github.com/fekuna/omnipos-stock-ledger/internal/inventory"
	"github.com/fekuna/omnipos-stock-ledger/internal/ledger"
	"github.com/fekuna/omnipos-stock-ledger/internal/model"
	"github.com/shopspring/decimal"
)

type Result struct {
	Allocations []model.Allocation
	TotalCost   decimal.Decimal
}

// Allocator consumes batches oldest first to price outgoing stock.
type Allocator struct{}

func NewAllocator() *Allocator {
	return &Allocator{}
}

// Allocate consumes qty units from the variant's open batches inside tx.
// When the batches cannot cover qty nothing is written.
func (a *Allocator) Allocate(ctx context.Context, tx *ledger.Tx, variantID string, qty int64) (*Result, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: allocation quantity must be positive, got %d", inventory.ErrInvalidInput, qty)
	}

	batches, err := tx.Records().ListOpenBatches(ctx, variantID)
	if err != nil {
		return nil, err
	}

	plan, err := PlanFIFO(batches, qty)
	if err != nil {
		return nil, fmt.Errorf("variant %s: %w", variantID, err)
	}

	remaining := make(map[string]int64, len(batches))
	for _, b := range batches {
		remaining[b.ID] = b.QuantityRemaining
	}
	for _, alloc := range plan.Allocations {
		if err := tx.Records().UpdateBatchRemaining(ctx, alloc.BatchID, remaining[alloc.BatchID]-alloc.Quantity); err != nil {
			return nil, err
		}
	}
	return plan, nil
}

// PlanFIFO works out which batches cover qty without touching them.
func PlanFIFO(batches []model.InventoryBatch, qty int64) (*Result, error) {
	ordered := append([]model.InventoryBatch(nil), batches...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Before(ordered[j])
	})

	var open int64
	for _, b := range ordered {
		open += b.QuantityRemaining
	}
	if open < qty {
		return nil, fmt.Errorf("%w: need %d, batches hold %d", inventory.ErrInsufficientBatches, qty, open)
	}

	res := &Result{TotalCost: decimal.Zero}
	need := qty
	for _, b := range ordered {
		if need == 0 {
			break
		}
		if b.QuantityRemaining <= 0 {
			continue
		}
		take := min(b.QuantityRemaining, need)
		alloc := model.Allocation{
			BatchID:  b.ID,
			Quantity: take,
			UnitCost: b.UnitCost,
		}
		res.Allocations = append(res.Allocations, alloc)
		res.TotalCost = res.TotalCost.Add(alloc.Cost())
		need -= take
	}
	return res, nil
}
