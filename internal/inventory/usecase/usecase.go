package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-stock-ledger/internal/costing"
	"github.com/fekuna/omnipos-stock-ledger/internal/inventory"
	"github.com/fekuna/omnipos-stock-ledger/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-ledger/internal/ledger"
	"github.com/fekuna/omnipos-stock-ledger/internal/model"
	"github.com/fekuna/omnipos-stock-ledger/internal/purchasing"
	"github.com/fekuna/omnipos-stock-ledger/internal/reservation"
	"github.com/fekuna/omnipos-stock-ledger/internal/variant"
	"github.com/fekuna/omnipos-stock-ledger/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type inventoryUseCase struct {
	ledger       *ledger.Ledger
	reservations *reservation.Manager
	purchasing   *purchasing.Processor
	batches      *costing.BatchStore
	allocator    *costing.Allocator
	matrix       *variant.Matrix
	logger       logger.ZapLogger
}

func NewInventoryUseCase(
	l *ledger.Ledger,
	reservations *reservation.Manager,
	processor *purchasing.Processor,
	batches *costing.BatchStore,
	matrix *variant.Matrix,
	log logger.ZapLogger,
) inventory.UseCase {
	return &inventoryUseCase{
		ledger:       l,
		reservations: reservations,
		purchasing:   processor,
		batches:      batches,
		allocator:    costing.NewAllocator(),
		matrix:       matrix,
		logger:       log,
	}
}

func (uc *inventoryUseCase) HoldStock(ctx context.Context, input *dto.HoldStockInput) (*model.Reservation, error) {
	return uc.reservations.Hold(ctx, input.VariantID, input.Quantity, input.HolderRef, input.TTL)
}

func (uc *inventoryUseCase) ExtendHold(ctx context.Context, reservationID string, ttl time.Duration) (*model.Reservation, error) {
	return uc.reservations.Extend(ctx, reservationID, ttl)
}

func (uc *inventoryUseCase) PinHold(ctx context.Context, reservationID string) (*model.Reservation, error) {
	return uc.reservations.Pin(ctx, reservationID)
}

func (uc *inventoryUseCase) ReleaseHold(ctx context.Context, reservationID string) error {
	_, err := uc.reservations.Release(ctx, reservationID)
	return err
}

func (uc *inventoryUseCase) ReleaseHolder(ctx context.Context, holderRef string) (int, error) {
	n, err := uc.reservations.ReleaseByHolder(ctx, holderRef)
	if err != nil {
		return n, err
	}
	uc.logger.Info("holder released", zap.String("holder_ref", holderRef), zap.Int("released", n))
	return n, nil
}

func (uc *inventoryUseCase) CommitHold(ctx context.Context, reservationID string) (*dto.CommitResult, error) {
	res, err := uc.reservations.Commit(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	return &dto.CommitResult{
		Reservation: res,
		Allocations: res.Allocations,
		TotalCost:   res.TotalCost,
	}, nil
}

func (uc *inventoryUseCase) GetHold(ctx context.Context, reservationID string) (*model.Reservation, error) {
	return uc.reservations.Get(ctx, reservationID)
}

func (uc *inventoryUseCase) ListHolds(ctx context.Context, holderRef string) ([]model.Reservation, error) {
	if holderRef == "" {
		return nil, fmt.Errorf("%w: holder ref is required", inventory.ErrInvalidInput)
	}
	return uc.reservations.ListByHolder(ctx, holderRef)
}

func (uc *inventoryUseCase) CreatePurchaseOrder(ctx context.Context, input *dto.CreatePurchaseOrderInput) (*model.PurchaseOrder, error) {
	return uc.purchasing.Create(ctx, input)
}

func (uc *inventoryUseCase) SubmitPurchaseOrder(ctx context.Context, purchaseOrderID string) (*model.PurchaseOrder, error) {
	return uc.purchasing.Submit(ctx, purchaseOrderID)
}

func (uc *inventoryUseCase) ReceivePurchaseOrder(ctx context.Context, purchaseOrderID string, lines []dto.ReceiveLine) (*model.PurchaseOrder, error) {
	return uc.purchasing.Receive(ctx, purchaseOrderID, lines)
}

func (uc *inventoryUseCase) ClosePurchaseOrder(ctx context.Context, purchaseOrderID string) (*model.PurchaseOrder, error) {
	return uc.purchasing.CloseShort(ctx, purchaseOrderID)
}

func (uc *inventoryUseCase) GetPurchaseOrder(ctx context.Context, purchaseOrderID string) (*model.PurchaseOrder, error) {
	return uc.purchasing.Get(ctx, purchaseOrderID)
}

func (uc *inventoryUseCase) GetAvailability(ctx context.Context, variantID string) (model.Availability, error) {
	return uc.ledger.Availability(ctx, variantID)
}

// AdjustStock moves on-hand and the cost batches together. A write-off
// consumes batches oldest first; found stock becomes a new batch.
func (uc *inventoryUseCase) AdjustStock(ctx context.Context, input *dto.AdjustStockInput) (model.Availability, error) {
	if input.Reason == "" {
		return model.Availability{}, fmt.Errorf("%w: adjustment reason is required", inventory.ErrInvalidInput)
	}
	if input.UnitCost != nil {
		if input.Delta < 0 {
			return model.Availability{}, fmt.Errorf("%w: unit cost applies only to positive adjustments", inventory.ErrInvalidInput)
		}
		if input.UnitCost.IsNegative() {
			return model.Availability{}, fmt.Errorf("%w: unit cost must not be negative", inventory.ErrInvalidInput)
		}
	}
	notes := input.Reason
	if input.Actor != "" {
		notes = fmt.Sprintf("%s (by %s)", input.Reason, input.Actor)
	}
	ref := ledger.Reference{
		Type:  model.ReferenceAdjustment,
		ID:    uuid.New().String(),
		Notes: notes,
	}

	var rec model.StockRecord
	writtenOff := decimal.Zero
	err := uc.ledger.Run(ctx, []string{inventory.VariantKey(input.VariantID)}, func(tx *ledger.Tx) error {
		var err error
		rec, err = tx.Adjust(ctx, input.VariantID, input.Delta, ref)
		if err != nil {
			return err
		}
		if input.Delta < 0 {
			alloc, err := uc.allocator.Allocate(ctx, tx, input.VariantID, -input.Delta)
			if err != nil {
				return err
			}
			writtenOff = alloc.TotalCost
			return nil
		}
		_, err = uc.batches.Restock(ctx, tx, input.VariantID, input.Delta, input.UnitCost, ref.ID)
		return err
	})
	if err != nil {
		return model.Availability{}, err
	}
	uc.logger.Info("stock adjusted",
		zap.String("variant_id", input.VariantID),
		zap.String("adjustment_id", ref.ID),
		zap.Int64("delta", input.Delta),
		zap.String("written_off_cost", writtenOff.String()),
		zap.String("reason", input.Reason),
		zap.String("actor", input.Actor),
	)
	return rec.Snapshot(), nil
}

func (uc *inventoryUseCase) ListBatches(ctx context.Context, variantID string) ([]model.InventoryBatch, error) {
	return uc.batches.List(ctx, variantID)
}

func (uc *inventoryUseCase) ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.StockMovement, int, error) {
	return uc.ledger.Repository().ListMovements(ctx, filters)
}

// ReconcileStock reads on-hand and batch remaining under the variant's lock.
func (uc *inventoryUseCase) ReconcileStock(ctx context.Context, variantID string) (*model.StockReconciliation, error) {
	if variantID == "" {
		return nil, fmt.Errorf("%w: variant id is required", inventory.ErrInvalidInput)
	}
	out := &model.StockReconciliation{VariantID: variantID}
	err := uc.ledger.Run(ctx, []string{inventory.VariantKey(variantID)}, func(tx *ledger.Tx) error {
		rec, err := tx.Stock(ctx, variantID)
		if err != nil {
			return err
		}
		remaining, err := uc.batches.Remaining(ctx, variantID)
		if err != nil {
			return err
		}
		out.OnHand = rec.OnHand
		out.BatchRemaining = remaining
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.Balanced = out.OnHand == out.BatchRemaining
	if !out.Balanced {
		uc.logger.Error("stock and batches diverged",
			zap.String("variant_id", variantID),
			zap.Int64("on_hand", out.OnHand),
			zap.Int64("batch_remaining", out.BatchRemaining),
		)
	}
	return out, nil
}

func (uc *inventoryUseCase) ExpandVariants(_ context.Context, axes []model.VariantOptionAxis) ([]model.Combination, error) {
	return uc.matrix.Expand(axes)
}

func (uc *inventoryUseCase) BuildVariants(_ context.Context, input *dto.BuildVariantsInput) ([]model.Variant, error) {
	return uc.matrix.Build(input.ProductID, input.BaseSKU, input.Axes)
}
