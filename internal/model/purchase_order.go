package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PurchaseOrderState string

const (
	PurchaseOrderDraft     PurchaseOrderState = "draft"
	PurchaseOrderSubmitted PurchaseOrderState = "submitted"
	PurchaseOrderReceived  PurchaseOrderState = "received"
	PurchaseOrderClosed    PurchaseOrderState = "closed"
)

// CanTransition encodes draft -> submitted -> received -> closed. A received
// order may be received into again until it closes, and an order that was
// submitted but never received may be closed short.
func (s PurchaseOrderState) CanTransition(next PurchaseOrderState) bool {
	switch s {
	case PurchaseOrderDraft:
		return next == PurchaseOrderSubmitted
	case PurchaseOrderSubmitted:
		return next == PurchaseOrderReceived || next == PurchaseOrderClosed
	case PurchaseOrderReceived:
		return next == PurchaseOrderReceived || next == PurchaseOrderClosed
	case PurchaseOrderClosed:
		return false
	}
	return false
}

type PurchaseOrder struct {
	ID          string              `db:"id" json:"id"`
	SupplierRef string              `db:"supplier_ref" json:"supplier_ref"`
	State       PurchaseOrderState  `db:"state" json:"state"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time           `db:"updated_at" json:"updated_at"`
	Lines       []PurchaseOrderLine `db:"-" json:"lines"`
}

type PurchaseOrderLine struct {
	PurchaseOrderID  string          `db:"purchase_order_id" json:"purchase_order_id"`
	LineNo           int             `db:"line_no" json:"line_no"`
	VariantID        string          `db:"variant_id" json:"variant_id"`
	QuantityOrdered  int64           `db:"quantity_ordered" json:"quantity_ordered"`
	QuantityReceived int64           `db:"quantity_received" json:"quantity_received"`
	UnitCost         decimal.Decimal `db:"unit_cost" json:"unit_cost"`
}

func (l PurchaseOrderLine) Outstanding() int64 {
	return l.QuantityOrdered - l.QuantityReceived
}

// FullyReceived reports whether every line has been received in full.
func (po *PurchaseOrder) FullyReceived() bool {
	for _, l := range po.Lines {
		if l.Outstanding() > 0 {
			return false
		}
	}
	return true
}

// OutstandingFor sums what is still to be received for variantID across lines.
func (po *PurchaseOrder) OutstandingFor(variantID string) int64 {
	var total int64
	for _, l := range po.Lines {
		if l.VariantID == variantID {
			total += l.Outstanding()
		}
	}
	return total
}
