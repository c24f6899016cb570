package inventory

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-stock-ledger/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-ledger/internal/model"
)

type UseCase interface {
	// Holds
	HoldStock(ctx context.Context, input *dto.HoldStockInput) (*model.Reservation, error)
	ExtendHold(ctx context.Context, reservationID string, ttl time.Duration) (*model.Reservation, error)
	PinHold(ctx context.Context, reservationID string) (*model.Reservation, error)
	ReleaseHold(ctx context.Context, reservationID string) error
	ReleaseHolder(ctx context.Context, holderRef string) (int, error)
	CommitHold(ctx context.Context, reservationID string) (*dto.CommitResult, error)
	GetHold(ctx context.Context, reservationID string) (*model.Reservation, error)
	ListHolds(ctx context.Context, holderRef string) ([]model.Reservation, error)

	// Purchasing
	CreatePurchaseOrder(ctx context.Context, input *dto.CreatePurchaseOrderInput) (*model.PurchaseOrder, error)
	SubmitPurchaseOrder(ctx context.Context, purchaseOrderID string) (*model.PurchaseOrder, error)
	ReceivePurchaseOrder(ctx context.Context, purchaseOrderID string, lines []dto.ReceiveLine) (*model.PurchaseOrder, error)
	ClosePurchaseOrder(ctx context.Context, purchaseOrderID string) (*model.PurchaseOrder, error)
	GetPurchaseOrder(ctx context.Context, purchaseOrderID string) (*model.PurchaseOrder, error)

	// Stock
	GetAvailability(ctx context.Context, variantID string) (model.Availability, error)
	AdjustStock(ctx context.Context, input *dto.AdjustStockInput) (model.Availability, error)
	ListBatches(ctx context.Context, variantID string) ([]model.InventoryBatch, error)
	ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.StockMovement, int, error)
	ReconcileStock(ctx context.Context, variantID string) (*model.StockReconciliation, error)

	// Variants
	ExpandVariants(ctx context.Context, axes []model.VariantOptionAxis) ([]model.Combination, error)
	BuildVariants(ctx context.Context, input *dto.BuildVariantsInput) ([]model.Variant, error)
}
