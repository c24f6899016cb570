package inventory

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-stock-ledger/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-ledger/internal/model"
)

// Lock keys. Transact serializes every transaction sharing a key.
func VariantKey(variantID string) string { return "variant:" + variantID }

func PurchaseOrderKey(purchaseOrderID string) string { return "purchase_order:" + purchaseOrderID }

type Repository interface {
	// Transact runs fn holding exclusive locks on keys. Writes made through tx
	// become visible only if fn returns nil; otherwise none of them do.
	Transact(ctx context.Context, keys []string, fn func(tx Tx) error) error

	// Unlocked reads
	GetStock(ctx context.Context, variantID string) (model.StockRecord, error)
	ListBatches(ctx context.Context, variantID string) ([]model.InventoryBatch, error)
	GetReservation(ctx context.Context, id string) (*model.Reservation, error)
	ListReservationsByHolder(ctx context.Context, holderRef string) ([]model.Reservation, error)
	ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]model.Reservation, error)
	GetPurchaseOrder(ctx context.Context, id string) (*model.PurchaseOrder, error)
	ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.StockMovement, int, error)
}

// RecordTx covers the rows other components may write directly. Stock records
// are not part of it: they change only through the ledger.
type RecordTx interface {
	ListOpenBatches(ctx context.Context, variantID string) ([]model.InventoryBatch, error)
	InsertBatch(ctx context.Context, batch *model.InventoryBatch) error
	UpdateBatchRemaining(ctx context.Context, batchID string, remaining int64) error

	GetReservation(ctx context.Context, id string) (*model.Reservation, error)
	SaveReservation(ctx context.Context, r *model.Reservation) error

	GetPurchaseOrder(ctx context.Context, id string) (*model.PurchaseOrder, error)
	SavePurchaseOrder(ctx context.Context, po *model.PurchaseOrder) error
}

type Tx interface {
	RecordTx

	// GetStock returns a zero record for a variant never seen before.
	GetStock(ctx context.Context, variantID string) (model.StockRecord, error)
	SaveStock(ctx context.Context, rec *model.StockRecord) error
	LogMovement(ctx context.Context, m *model.StockMovement) error
}
