package handler

import (
	"github.com/fekuna/omnipos-stock-ledger/internal/model"
	"github.com/shopspring/decimal"
)

type Empty struct{}

type HoldStockRequest struct {
	VariantID string `json:"variant_id"`
	Quantity  int64  `json:"quantity"`
	HolderRef string `json:"holder_ref"`
	// Omitted: the default cart TTL. Zero: the hold never expires.
	TTLSeconds *int64 `json:"ttl_seconds,omitempty"`
}

type ExtendHoldRequest struct {
	ReservationID string `json:"reservation_id"`
	TTLSeconds    int64  `json:"ttl_seconds"`
}

type ReservationRequest struct {
	ReservationID string `json:"reservation_id"`
}

type ReleaseHolderRequest struct {
	HolderRef string `json:"holder_ref"`
}

type ReleaseHolderResponse struct {
	Released int `json:"released"`
}

type ListHoldsRequest struct {
	HolderRef string `json:"holder_ref"`
}

type ListHoldsResponse struct {
	Reservations []model.Reservation `json:"reservations"`
}

type CommitHoldResponse struct {
	Reservation *model.Reservation `json:"reservation"`
	Allocations []model.Allocation `json:"allocations"`
	TotalCost   decimal.Decimal    `json:"total_cost"`
}

type PurchaseOrderLineRequest struct {
	VariantID       string          `json:"variant_id"`
	QuantityOrdered int64           `json:"quantity_ordered"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
}

type CreatePurchaseOrderRequest struct {
	SupplierRef string                     `json:"supplier_ref"`
	Lines       []PurchaseOrderLineRequest `json:"lines"`
}

type PurchaseOrderRequest struct {
	PurchaseOrderID string `json:"purchase_order_id"`
}

type ReceiveLineRequest struct {
	VariantID string           `json:"variant_id"`
	Quantity  int64            `json:"quantity"`
	UnitCost  *decimal.Decimal `json:"unit_cost,omitempty"`
}

type ReceivePurchaseOrderRequest struct {
	PurchaseOrderID string               `json:"purchase_order_id"`
	Lines           []ReceiveLineRequest `json:"lines"`
}

type VariantRequest struct {
	VariantID string `json:"variant_id"`
}

type AdjustStockRequest struct {
	VariantID string `json:"variant_id"`
	Delta     int64  `json:"delta"`
	Reason    string `json:"reason"`
	// Cost of found stock. Omitted: the latest batch's cost.
	UnitCost *decimal.Decimal `json:"unit_cost,omitempty"`
}

type ListBatchesResponse struct {
	Batches []model.InventoryBatch `json:"batches"`
}

type ListMovementsRequest struct {
	VariantID    string `json:"variant_id"`
	MovementType string `json:"movement_type"`
	ReferenceID  string `json:"reference_id"`
	Page         int    `json:"page"`
	PageSize     int    `json:"page_size"`
}

type ListMovementsResponse struct {
	Movements []model.StockMovement `json:"movements"`
	Total     int                   `json:"total"`
}

type ExpandVariantsRequest struct {
	Axes []model.VariantOptionAxis `json:"axes"`
}

type ExpandVariantsResponse struct {
	Combinations []model.Combination `json:"combinations"`
}

type BuildVariantsRequest struct {
	ProductID string                    `json:"product_id"`
	BaseSKU   string                    `json:"base_sku"`
	Axes      []model.VariantOptionAxis `json:"axes"`
}

type BuildVariantsResponse struct {
	Variants []model.Variant `json:"variants"`
}
