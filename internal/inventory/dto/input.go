package dto

import (
	"time"

	"github.com/fekuna/omnipos-stock-ledger/internal/model"
	"github.com/shopspring/decimal"
)

type HoldStockInput struct {
	VariantID string
	Quantity  int64
	HolderRef string
	TTL       time.Duration // zero: no expiry
}

type CommitResult struct {
	Reservation *model.Reservation
	Allocations []model.Allocation
	TotalCost   decimal.Decimal
}

type PurchaseOrderLineInput struct {
	VariantID       string
	QuantityOrdered int64
	UnitCost        decimal.Decimal
}

type CreatePurchaseOrderInput struct {
	SupplierRef string
	Lines       []PurchaseOrderLineInput
}

type ReceiveLine struct {
	VariantID string
	Quantity  int64
	UnitCost  *decimal.Decimal // nil: the purchase order line's cost
}

type AdjustStockInput struct {
	VariantID string
	Delta     int64
	Reason    string
	Actor     string
	UnitCost  *decimal.Decimal // positive deltas only; nil: the latest batch's cost
}

type BuildVariantsInput struct {
	ProductID string
	BaseSKU   string
	Axes      []model.VariantOptionAxis
}
