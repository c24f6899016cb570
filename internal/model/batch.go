package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// InventoryBatch is one receipt of stock at a unit cost. Rows are never deleted.
// A batch comes either from a purchase order line or from a stock adjustment.
type InventoryBatch struct {
	ID                string          `db:"id" json:"id"`
	Seq               int64           `db:"seq" json:"seq"`
	VariantID         string          `db:"variant_id" json:"variant_id"`
	PurchaseOrderID   string          `db:"purchase_order_id" json:"purchase_order_id"`
	LineNo            int             `db:"line_no" json:"line_no"`
	AdjustmentID      string          `db:"adjustment_id" json:"adjustment_id,omitempty"`
	ReceivedAt        time.Time       `db:"received_at" json:"received_at"`
	QuantityReceived  int64           `db:"quantity_received" json:"quantity_received"`
	QuantityRemaining int64           `db:"quantity_remaining" json:"quantity_remaining"`
	UnitCost          decimal.Decimal `db:"unit_cost" json:"unit_cost"`
}

// Before reports whether b is consumed ahead of o.
func (b InventoryBatch) Before(o InventoryBatch) bool {
	if !b.ReceivedAt.Equal(o.ReceivedAt) {
		return b.ReceivedAt.Before(o.ReceivedAt)
	}
	return b.Seq < o.Seq
}

type Allocation struct {
	BatchID  string          `db:"batch_id" json:"batch_id"`
	Quantity int64           `db:"quantity" json:"quantity"`
	UnitCost decimal.Decimal `db:"unit_cost" json:"unit_cost"`
}

func (a Allocation) Cost() decimal.Decimal {
	return a.UnitCost.Mul(decimal.NewFromInt(a.Quantity))
}
